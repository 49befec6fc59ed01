// Package jsonfile implements the metadata store as a single JSON document,
// used when the embedded database is unavailable. Every operation runs under
// an advisory file lock and replaces the document atomically, so concurrent
// processes see either the old state or the new one, never a partial write.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/store"
)

// DefaultLockTimeout bounds the wait for the store lock before an operation
// gives up with ErrStoreBusy.
const DefaultLockTimeout = 10 * time.Second

// document is the on-disk shape of the whole store.
type document struct {
	NextRecordID int64                     `json:"next_record_id"`
	NextEventID  int64                     `json:"next_event_id"`
	Records      []models.QuarantineRecord `json:"records"`
	Events       []models.QuarantineEvent  `json:"events"`
}

// Store is the JSON file metadata store.
type Store struct {
	path     string
	lockPath string
	timeout  time.Duration

	// now stamps transition events; tests override it.
	now func() int64
}

// Open prepares the store at path, creating the parent directory and an
// empty document when absent.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{
		path:     path,
		lockPath: path + ".lock",
		timeout:  DefaultLockTimeout,
		now:      func() int64 { return time.Now().Unix() },
	}

	err := s.update(context.Background(), func(doc *document) error { return nil })
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	return s, nil
}

// SetLockTimeout adjusts how long operations wait for the store lock before
// giving up with ErrStoreBusy. Non-positive values are ignored.
func (s *Store) SetLockTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Close releases nothing: the lock is scoped to each operation.
func (s *Store) Close() error {
	return nil
}

// Insert appends a new active record and its quarantined event in one
// locked write.
func (s *Store) Insert(ctx context.Context, rec *models.QuarantineRecord) (int64, error) {
	var id int64
	err := s.update(ctx, func(doc *document) error {
		for i := range doc.Records {
			r := &doc.Records[i]
			if r.QuarantinePath == rec.QuarantinePath && r.Status == models.StatusActive {
				return fmt.Errorf("insert %s: %w", rec.QuarantinePath, store.ErrDuplicateActivePath)
			}
		}

		id = doc.NextRecordID
		doc.NextRecordID++

		stored := *rec
		stored.ID = id
		stored.Status = models.StatusActive
		stored.Archived = false
		doc.Records = append(doc.Records, stored)

		doc.Events = append(doc.Events, models.QuarantineEvent{
			ID:         doc.NextEventID,
			RecordID:   id,
			Type:       models.EventQuarantined,
			OccurredAt: rec.DetectedAt,
			Detail:     rec.DetectionLabel,
		})
		doc.NextEventID++
		return nil
	})
	if err != nil {
		return 0, err
	}

	rec.ID = id
	rec.Status = models.StatusActive
	rec.Archived = false
	return id, nil
}

// Transition moves an active record to a terminal status and appends the
// matching event in one locked write.
func (s *Store) Transition(ctx context.Context, id int64, newStatus models.Status, detail string) error {
	if !newStatus.Terminal() {
		return fmt.Errorf("status %q: %w", newStatus, store.ErrInvalidTransition)
	}

	return s.update(ctx, func(doc *document) error {
		rec := findRecord(doc, id)
		if rec == nil {
			return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
		}
		if rec.Status != models.StatusActive {
			return fmt.Errorf("record %d is %s: %w", id, rec.Status, store.ErrInvalidTransition)
		}

		rec.Status = newStatus
		// Expiry and eviction remove the file as part of the sweep; restore
		// keeps the quarantined copy for audit.
		rec.Archived = newStatus == models.StatusExpired || newStatus == models.StatusEvicted

		doc.Events = append(doc.Events, models.QuarantineEvent{
			ID:         doc.NextEventID,
			RecordID:   id,
			Type:       models.TransitionEvent(newStatus),
			OccurredAt: s.now(),
			Detail:     detail,
		})
		doc.NextEventID++
		return nil
	})
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (*models.QuarantineRecord, error) {
	var out *models.QuarantineRecord
	err := s.view(ctx, func(doc *document) error {
		rec := findRecord(doc, id)
		if rec == nil {
			return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
		}
		cp := *rec
		out = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryExpiring returns active records expiring within [now, now+within].
func (s *Store) QueryExpiring(ctx context.Context, now, within int64) ([]models.QuarantineRecord, error) {
	return s.filterRecords(ctx, func(r *models.QuarantineRecord) bool {
		return r.Status == models.StatusActive && r.ExpiresAt >= now && r.ExpiresAt <= now+within
	}, byExpiry)
}

// QueryExpired returns active records whose expiry has passed.
func (s *Store) QueryExpired(ctx context.Context, now int64) ([]models.QuarantineRecord, error) {
	return s.filterRecords(ctx, func(r *models.QuarantineRecord) bool {
		return r.Status == models.StatusActive && r.ExpiresAt <= now
	}, byExpiry)
}

// QueryByRisk returns active records in the given tier, newest first. An
// empty tier selects all active records.
func (s *Store) QueryByRisk(ctx context.Context, tier models.RiskTier) ([]models.QuarantineRecord, error) {
	return s.filterRecords(ctx, func(r *models.QuarantineRecord) bool {
		return r.Status == models.StatusActive && (tier == "" || r.RiskTier == tier)
	}, byNewest)
}

// QueryByStatus returns records in the given status across all tiers,
// newest first.
func (s *Store) QueryByStatus(ctx context.Context, status models.Status) ([]models.QuarantineRecord, error) {
	return s.filterRecords(ctx, func(r *models.QuarantineRecord) bool {
		return r.Status == status
	}, byNewest)
}

// TotalActiveSize returns the byte total across active records.
func (s *Store) TotalActiveSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.view(ctx, func(doc *document) error {
		for i := range doc.Records {
			if doc.Records[i].Status == models.StatusActive {
				total += doc.Records[i].SizeBytes
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// OldestActive returns active records ordered oldest first, excluding the
// given tiers. Ids break detected_at ties so the ordering is stable.
func (s *Store) OldestActive(ctx context.Context, excludeTiers []models.RiskTier) ([]models.QuarantineRecord, error) {
	excluded := make(map[models.RiskTier]bool, len(excludeTiers))
	for _, t := range excludeTiers {
		excluded[t] = true
	}
	return s.filterRecords(ctx, func(r *models.QuarantineRecord) bool {
		return r.Status == models.StatusActive && !excluded[r.RiskTier]
	}, byOldest)
}

// RestoredUnarchived returns restored records past their expiry whose
// quarantined copy is still on disk.
func (s *Store) RestoredUnarchived(ctx context.Context, now int64) ([]models.QuarantineRecord, error) {
	return s.filterRecords(ctx, func(r *models.QuarantineRecord) bool {
		return r.Status == models.StatusRestored && !r.Archived && r.ExpiresAt <= now
	}, byExpiry)
}

// MarkArchived flags the record's quarantined copy as removed.
func (s *Store) MarkArchived(ctx context.Context, id int64) error {
	return s.update(ctx, func(doc *document) error {
		rec := findRecord(doc, id)
		if rec == nil {
			return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
		}
		rec.Archived = true
		return nil
	})
}

// Summary returns aggregate counts and the active byte total.
func (s *Store) Summary(ctx context.Context) (*models.StoreSummary, error) {
	var sum models.StoreSummary
	err := s.view(ctx, func(doc *document) error {
		sum.Total = len(doc.Records)
		for i := range doc.Records {
			r := &doc.Records[i]
			switch r.Status {
			case models.StatusActive:
				sum.Active++
				sum.ActiveSize += r.SizeBytes
			case models.StatusRestored:
				sum.Restored++
			case models.StatusExpired:
				sum.Expired++
			case models.StatusEvicted:
				sum.Evicted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// RecentEvents returns events that occurred at or after since, newest first.
func (s *Store) RecentEvents(ctx context.Context, since int64) ([]models.QuarantineEvent, error) {
	var events []models.QuarantineEvent
	err := s.view(ctx, func(doc *document) error {
		for _, e := range doc.Events {
			if e.OccurredAt >= since {
				events = append(events, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].OccurredAt != events[j].OccurredAt {
			return events[i].OccurredAt > events[j].OccurredAt
		}
		return events[i].ID > events[j].ID
	})
	return events, nil
}

// EventsByRecord returns a record's audit trail, oldest first.
func (s *Store) EventsByRecord(ctx context.Context, id int64) ([]models.QuarantineEvent, error) {
	var events []models.QuarantineEvent
	err := s.view(ctx, func(doc *document) error {
		for _, e := range doc.Events {
			if e.RecordID == id {
				events = append(events, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].OccurredAt != events[j].OccurredAt {
			return events[i].OccurredAt < events[j].OccurredAt
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (s *Store) filterRecords(ctx context.Context, keep func(*models.QuarantineRecord) bool, order func([]models.QuarantineRecord)) ([]models.QuarantineRecord, error) {
	var records []models.QuarantineRecord
	err := s.view(ctx, func(doc *document) error {
		for i := range doc.Records {
			if keep(&doc.Records[i]) {
				records = append(records, doc.Records[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order(records)
	return records, nil
}

func findRecord(doc *document, id int64) *models.QuarantineRecord {
	for i := range doc.Records {
		if doc.Records[i].ID == id {
			return &doc.Records[i]
		}
	}
	return nil
}

func byExpiry(records []models.QuarantineRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].ExpiresAt != records[j].ExpiresAt {
			return records[i].ExpiresAt < records[j].ExpiresAt
		}
		return records[i].ID < records[j].ID
	})
}

func byOldest(records []models.QuarantineRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].DetectedAt != records[j].DetectedAt {
			return records[i].DetectedAt < records[j].DetectedAt
		}
		return records[i].ID < records[j].ID
	})
}

func byNewest(records []models.QuarantineRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].DetectedAt != records[j].DetectedAt {
			return records[i].DetectedAt > records[j].DetectedAt
		}
		return records[i].ID > records[j].ID
	})
}

// load reads the current document, returning a fresh one when the file does
// not exist yet.
func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{NextRecordID: 1, NextEventID: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", s.path, err)
	}
	if doc.NextRecordID == 0 {
		doc.NextRecordID = 1
	}
	if doc.NextEventID == 0 {
		doc.NextEventID = 1
	}
	return &doc, nil
}

// save writes a full replacement document to a temporary file, syncs it, and
// renames it over the original. The store file is never edited in place.
func (s *Store) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
