package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/lazaret/lazaret/internal/store"
)

// lockRetryDelay is the poll interval while waiting for the store lock.
const lockRetryDelay = 50 * time.Millisecond

// update runs fn on the current document under the exclusive lock and
// atomically replaces the document afterwards. No partial writes escape: if
// fn or the write fails, the previous document stays intact.
func (s *Store) update(ctx context.Context, fn func(*document) error) error {
	fl, err := s.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// view runs fn on the current document under the shared lock.
func (s *Store) view(ctx context.Context, fn func(*document) error) error {
	fl, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// acquire takes the advisory lock on the sidecar lock file, waiting up to
// the store timeout. Contention past the timeout is ErrStoreBusy so callers
// can distinguish it from cancellation.
func (s *Store) acquire(ctx context.Context, shared bool) (*flock.Flock, error) {
	fl := flock.New(s.lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	try := fl.TryLockContext
	if shared {
		try = fl.TryRLockContext
	}

	locked, err := try(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("lock %s held for over %s: %w", s.lockPath, s.timeout, store.ErrStoreBusy)
	}
	return fl, nil
}
