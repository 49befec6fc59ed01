// Package store defines the metadata store contract shared by the SQLite and
// JSON file backends.
package store

import (
	"context"

	"github.com/lazaret/lazaret/internal/models"
)

// MetadataStore is the durable record of every quarantined file. Both
// backends implement identical observable behavior for each operation;
// callers never depend on which one is wired in.
type MetadataStore interface {
	// Insert appends a new active record together with its quarantined
	// event, atomically, and returns the assigned id. Inserting a record
	// whose quarantine path collides with another active record fails with
	// ErrDuplicateActivePath.
	Insert(ctx context.Context, rec *models.QuarantineRecord) (int64, error)

	// Transition moves a record from active to the given terminal status and
	// appends the matching event, atomically. Expired and evicted set the
	// archived flag; restored does not, the quarantined copy stays on disk.
	// Returns ErrNotFound for an unknown id and ErrInvalidTransition when
	// the record is not active or the target status is not terminal.
	Transition(ctx context.Context, id int64, newStatus models.Status, detail string) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id int64) (*models.QuarantineRecord, error)

	// QueryExpiring returns active records whose expiry falls within
	// [now, now+within], ordered by expires_at ascending.
	QueryExpiring(ctx context.Context, now, within int64) ([]models.QuarantineRecord, error)

	// QueryExpired returns active records with expires_at <= now, ordered by
	// expires_at ascending.
	QueryExpired(ctx context.Context, now int64) ([]models.QuarantineRecord, error)

	// QueryByRisk returns active records in the given tier, newest first.
	// An empty tier selects all active records.
	QueryByRisk(ctx context.Context, tier models.RiskTier) ([]models.QuarantineRecord, error)

	// QueryByStatus returns records in the given status regardless of tier,
	// newest first.
	QueryByStatus(ctx context.Context, status models.Status) ([]models.QuarantineRecord, error)

	// TotalActiveSize returns the sum of size_bytes over active records.
	TotalActiveSize(ctx context.Context) (int64, error)

	// OldestActive returns active records ordered by detected_at ascending
	// (ids break ties), excluding the given tiers. Eviction relies on this
	// ordering being stable across calls and backends.
	OldestActive(ctx context.Context, excludeTiers []models.RiskTier) ([]models.QuarantineRecord, error)

	// RestoredUnarchived returns restored records whose retention has
	// elapsed and whose quarantined copy has not been cleaned up yet.
	RestoredUnarchived(ctx context.Context, now int64) ([]models.QuarantineRecord, error)

	// MarkArchived flags a record's on-disk copy as removed. It appends no
	// event and does not touch the status.
	MarkArchived(ctx context.Context, id int64) error

	// Summary returns aggregate counts and the active byte total.
	Summary(ctx context.Context) (*models.StoreSummary, error)

	// RecentEvents returns events with occurred_at >= since, newest first.
	RecentEvents(ctx context.Context, since int64) ([]models.QuarantineEvent, error)

	// EventsByRecord returns a record's events oldest first.
	EventsByRecord(ctx context.Context, id int64) ([]models.QuarantineEvent, error)

	Close() error
}
