package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/store"
)

const recordColumns = `id, original_path, quarantine_path, detection_label, detected_at,
	scan_session_id, risk_tier, category, retention_days, expires_at,
	content_hash, size_bytes, mime_type, status, archived`

// Insert appends a new active record and its quarantined event in one
// transaction. The quarantined event is stamped with the record's intake
// time, not the wall clock.
func (s *Store) Insert(ctx context.Context, rec *models.QuarantineRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM quarantine_records WHERE quarantine_path = ? AND status = ?",
		rec.QuarantinePath, models.StatusActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("check active path: %w", err)
	}
	if count > 0 {
		return 0, fmt.Errorf("insert %s: %w", rec.QuarantinePath, store.ErrDuplicateActivePath)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO quarantine_records (
			original_path, quarantine_path, detection_label, detected_at,
			scan_session_id, risk_tier, category, retention_days, expires_at,
			content_hash, size_bytes, mime_type, status, archived
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`,
		rec.OriginalPath, rec.QuarantinePath, rec.DetectionLabel, rec.DetectedAt,
		rec.ScanSessionID, rec.RiskTier, rec.Category, rec.RetentionDays, rec.ExpiresAt,
		rec.ContentHash, rec.SizeBytes, rec.MIMEType, models.StatusActive,
	)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quarantine_events (record_id, event_type, occurred_at, detail)
		VALUES (?, ?, ?, ?)
	`, id, models.EventQuarantined, rec.DetectedAt, rec.DetectionLabel)
	if err != nil {
		return 0, fmt.Errorf("insert quarantined event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	rec.ID = id
	rec.Status = models.StatusActive
	rec.Archived = false
	return id, nil
}

// Transition moves an active record to a terminal status and appends the
// matching event in one transaction.
func (s *Store) Transition(ctx context.Context, id int64, newStatus models.Status, detail string) error {
	if !newStatus.Terminal() {
		return fmt.Errorf("status %q: %w", newStatus, store.ErrInvalidTransition)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current models.Status
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM quarantine_records WHERE id = ?", id,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load record %d: %w", id, err)
	}
	if current != models.StatusActive {
		return fmt.Errorf("record %d is %s: %w", id, current, store.ErrInvalidTransition)
	}

	// Expiry and eviction remove the file as part of the sweep; restore
	// keeps the quarantined copy for audit.
	archived := 0
	if newStatus == models.StatusExpired || newStatus == models.StatusEvicted {
		archived = 1
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE quarantine_records SET status = ?, archived = ? WHERE id = ?",
		newStatus, archived, id,
	)
	if err != nil {
		return fmt.Errorf("update record %d: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quarantine_events (record_id, event_type, occurred_at, detail)
		VALUES (?, ?, ?, ?)
	`, id, models.TransitionEvent(newStatus), s.now(), detail)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", newStatus, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (*models.QuarantineRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM quarantine_records WHERE id = ?", id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// QueryExpiring returns active records expiring within [now, now+within].
func (s *Store) QueryExpiring(ctx context.Context, now, within int64) ([]models.QuarantineRecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM quarantine_records
		WHERE status = ? AND expires_at >= ? AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC
	`, models.StatusActive, now, now+within)
}

// QueryExpired returns active records whose expiry has passed.
func (s *Store) QueryExpired(ctx context.Context, now int64) ([]models.QuarantineRecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM quarantine_records
		WHERE status = ? AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC
	`, models.StatusActive, now)
}

// QueryByRisk returns active records in the given tier, newest first. An
// empty tier selects all active records.
func (s *Store) QueryByRisk(ctx context.Context, tier models.RiskTier) ([]models.QuarantineRecord, error) {
	if tier == "" {
		return s.queryRecords(ctx, `
			SELECT `+recordColumns+` FROM quarantine_records
			WHERE status = ?
			ORDER BY detected_at DESC, id DESC
		`, models.StatusActive)
	}
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM quarantine_records
		WHERE status = ? AND risk_tier = ?
		ORDER BY detected_at DESC, id DESC
	`, models.StatusActive, tier)
}

// QueryByStatus returns records in the given status across all tiers,
// newest first.
func (s *Store) QueryByStatus(ctx context.Context, status models.Status) ([]models.QuarantineRecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM quarantine_records
		WHERE status = ?
		ORDER BY detected_at DESC, id DESC
	`, status)
}

// TotalActiveSize returns the byte total across active records.
func (s *Store) TotalActiveSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(size_bytes), 0) FROM quarantine_records WHERE status = ?",
		models.StatusActive,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum active size: %w", err)
	}
	return total, nil
}

// OldestActive returns active records ordered oldest first, excluding the
// given tiers. Ids break detected_at ties so the ordering is stable.
func (s *Store) OldestActive(ctx context.Context, excludeTiers []models.RiskTier) ([]models.QuarantineRecord, error) {
	query := "SELECT " + recordColumns + " FROM quarantine_records WHERE status = ?"
	args := []any{models.StatusActive}

	if len(excludeTiers) > 0 {
		placeholders := strings.Repeat("?, ", len(excludeTiers))
		query += " AND risk_tier NOT IN (" + placeholders[:len(placeholders)-2] + ")"
		for _, t := range excludeTiers {
			args = append(args, t)
		}
	}
	query += " ORDER BY detected_at ASC, id ASC"

	return s.queryRecords(ctx, query, args...)
}

// RestoredUnarchived returns restored records past their expiry whose
// quarantined copy is still on disk.
func (s *Store) RestoredUnarchived(ctx context.Context, now int64) ([]models.QuarantineRecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM quarantine_records
		WHERE status = ? AND archived = 0 AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC
	`, models.StatusRestored, now)
}

// MarkArchived flags the record's quarantined copy as removed.
func (s *Store) MarkArchived(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE quarantine_records SET archived = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark archived %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark archived %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// Summary returns aggregate counts and the active byte total.
func (s *Store) Summary(ctx context.Context) (*models.StoreSummary, error) {
	var sum models.StoreSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'restored' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'evicted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' THEN size_bytes ELSE 0 END), 0)
		FROM quarantine_records
	`).Scan(&sum.Total, &sum.Active, &sum.Restored, &sum.Expired, &sum.Evicted, &sum.ActiveSize)
	if err != nil {
		return nil, fmt.Errorf("summarize records: %w", err)
	}
	return &sum, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]models.QuarantineRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []models.QuarantineRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.QuarantineRecord, error) {
	var rec models.QuarantineRecord
	var archived int
	err := row.Scan(
		&rec.ID, &rec.OriginalPath, &rec.QuarantinePath, &rec.DetectionLabel, &rec.DetectedAt,
		&rec.ScanSessionID, &rec.RiskTier, &rec.Category, &rec.RetentionDays, &rec.ExpiresAt,
		&rec.ContentHash, &rec.SizeBytes, &rec.MIMEType, &rec.Status, &archived,
	)
	if err != nil {
		return nil, err
	}
	rec.Archived = archived != 0
	return &rec, nil
}
