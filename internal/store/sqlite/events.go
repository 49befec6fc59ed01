package sqlite

import (
	"context"
	"fmt"

	"github.com/lazaret/lazaret/internal/models"
)

// RecentEvents returns events that occurred at or after since, newest first.
func (s *Store) RecentEvents(ctx context.Context, since int64) ([]models.QuarantineEvent, error) {
	return s.queryEvents(ctx, `
		SELECT id, record_id, event_type, occurred_at, detail
		FROM quarantine_events
		WHERE occurred_at >= ?
		ORDER BY occurred_at DESC, id DESC
	`, since)
}

// EventsByRecord returns a record's audit trail, oldest first.
func (s *Store) EventsByRecord(ctx context.Context, id int64) ([]models.QuarantineEvent, error) {
	return s.queryEvents(ctx, `
		SELECT id, record_id, event_type, occurred_at, detail
		FROM quarantine_events
		WHERE record_id = ?
		ORDER BY occurred_at ASC, id ASC
	`, id)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]models.QuarantineEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.QuarantineEvent
	for rows.Next() {
		var e models.QuarantineEvent
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Type, &e.OccurredAt, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
