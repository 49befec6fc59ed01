// Package storetest exercises the MetadataStore contract. Both backends run
// this suite so their observable behavior cannot drift apart.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/store"
)

// Factory returns a fresh, empty store for one test. Cleanup is the
// factory's job, usually via t.TempDir and t.Cleanup.
type Factory func(t *testing.T) store.MetadataStore

// Run executes the contract suite against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("InsertAssignsSequentialIDs", func(t *testing.T) { testInsertAssignsSequentialIDs(t, factory) })
	t.Run("InsertWritesQuarantinedEvent", func(t *testing.T) { testInsertWritesQuarantinedEvent(t, factory) })
	t.Run("InsertRejectsDuplicateActivePath", func(t *testing.T) { testInsertRejectsDuplicateActivePath(t, factory) })
	t.Run("GetRoundTripsAllFields", func(t *testing.T) { testGetRoundTrips(t, factory) })
	t.Run("GetUnknownID", func(t *testing.T) { testGetUnknownID(t, factory) })
	t.Run("TransitionTerminalStates", func(t *testing.T) { testTransitionTerminalStates(t, factory) })
	t.Run("TransitionForwardOnly", func(t *testing.T) { testTransitionForwardOnly(t, factory) })
	t.Run("TransitionErrors", func(t *testing.T) { testTransitionErrors(t, factory) })
	t.Run("QueryExpiringWindow", func(t *testing.T) { testQueryExpiringWindow(t, factory) })
	t.Run("QueryExpired", func(t *testing.T) { testQueryExpired(t, factory) })
	t.Run("QueryByRisk", func(t *testing.T) { testQueryByRisk(t, factory) })
	t.Run("QueryByStatus", func(t *testing.T) { testQueryByStatus(t, factory) })
	t.Run("TotalActiveSize", func(t *testing.T) { testTotalActiveSize(t, factory) })
	t.Run("OldestActiveOrdering", func(t *testing.T) { testOldestActiveOrdering(t, factory) })
	t.Run("RestoredUnarchived", func(t *testing.T) { testRestoredUnarchived(t, factory) })
	t.Run("Summary", func(t *testing.T) { testSummary(t, factory) })
	t.Run("Events", func(t *testing.T) { testEvents(t, factory) })
}

// seedRecord builds a distinct active record. The index varies every field
// that queries filter or order by.
func seedRecord(i int) *models.QuarantineRecord {
	detected := int64(1700000000 + i*3600)
	return &models.QuarantineRecord{
		OriginalPath:   fmt.Sprintf("/home/user/downloads/sample-%d.bin", i),
		QuarantinePath: fmt.Sprintf("/var/lib/quarantine/2023-11-14/sample-%d.bin.17000000.abc", i),
		DetectionLabel: fmt.Sprintf("Win.Trojan.Generic-%d", i),
		DetectedAt:     detected,
		ScanSessionID:  "session-1",
		RiskTier:       models.TierHigh,
		Category:       "trojan",
		RetentionDays:  365,
		ExpiresAt:      models.ExpiryTime(detected, 365),
		ContentHash:    fmt.Sprintf("%064d", i),
		SizeBytes:      int64(1024 * (i + 1)),
		MIMEType:       "application/x-executable",
		Status:         models.StatusActive,
	}
}

func mustInsert(t *testing.T, s store.MetadataStore, rec *models.QuarantineRecord) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Insert(%s) failed: %v", rec.QuarantinePath, err)
	}
	return id
}

func testInsertAssignsSequentialIDs(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 3; i++ {
		id := mustInsert(t, s, seedRecord(i))
		if id <= last {
			t.Errorf("id %d not greater than previous %d", id, last)
		}
		last = id
	}

	rec, err := s.Get(ctx, last)
	if err != nil {
		t.Fatalf("Get(%d) failed: %v", last, err)
	}
	if rec.Status != models.StatusActive {
		t.Errorf("inserted record status = %q, want active", rec.Status)
	}
	if rec.Archived {
		t.Error("inserted record is archived")
	}
}

func testInsertWritesQuarantinedEvent(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	rec := seedRecord(0)
	id := mustInsert(t, s, rec)

	events, err := s.EventsByRecord(ctx, id)
	if err != nil {
		t.Fatalf("EventsByRecord failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after insert, want 1", len(events))
	}
	e := events[0]
	if e.Type != models.EventQuarantined {
		t.Errorf("event type = %q, want quarantined", e.Type)
	}
	if e.RecordID != id {
		t.Errorf("event record id = %d, want %d", e.RecordID, id)
	}
	if e.OccurredAt != rec.DetectedAt {
		t.Errorf("event occurred_at = %d, want intake time %d", e.OccurredAt, rec.DetectedAt)
	}
}

func testInsertRejectsDuplicateActivePath(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	rec := seedRecord(0)
	id := mustInsert(t, s, rec)

	dup := seedRecord(1)
	dup.QuarantinePath = rec.QuarantinePath
	if _, err := s.Insert(ctx, dup); !errors.Is(err, store.ErrDuplicateActivePath) {
		t.Fatalf("duplicate insert error = %v, want ErrDuplicateActivePath", err)
	}

	// Once the first record leaves active, the path can be reused.
	if err := s.Transition(ctx, id, models.StatusEvicted, "size limit"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if _, err := s.Insert(ctx, dup); err != nil {
		t.Fatalf("insert after eviction failed: %v", err)
	}
}

func testGetRoundTrips(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	want := seedRecord(7)
	id := mustInsert(t, s, want)

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	want.ID = id
	want.Status = models.StatusActive
	want.Archived = false
	if *got != *want {
		t.Errorf("Get = %+v, want %+v", *got, *want)
	}
}

func testGetUnknownID(t *testing.T, factory Factory) {
	s := factory(t)

	if _, err := s.Get(context.Background(), 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get(9999) error = %v, want ErrNotFound", err)
	}
}

func testTransitionTerminalStates(t *testing.T, factory Factory) {
	tests := []struct {
		status       models.Status
		event        models.EventType
		wantArchived bool
	}{
		{models.StatusRestored, models.EventRestored, false},
		{models.StatusExpired, models.EventExpired, true},
		{models.StatusEvicted, models.EventEvicted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			id := mustInsert(t, s, seedRecord(0))

			if err := s.Transition(ctx, id, tt.status, "detail"); err != nil {
				t.Fatalf("Transition(%s) failed: %v", tt.status, err)
			}

			rec, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if rec.Status != tt.status {
				t.Errorf("status = %q, want %q", rec.Status, tt.status)
			}
			if rec.Archived != tt.wantArchived {
				t.Errorf("archived = %v, want %v", rec.Archived, tt.wantArchived)
			}

			events, err := s.EventsByRecord(ctx, id)
			if err != nil {
				t.Fatalf("EventsByRecord failed: %v", err)
			}
			if len(events) != 2 {
				t.Fatalf("got %d events, want 2 (quarantined + transition)", len(events))
			}
			if events[1].Type != tt.event {
				t.Errorf("transition event type = %q, want %q", events[1].Type, tt.event)
			}
			if events[1].Detail != "detail" {
				t.Errorf("transition event detail = %q, want %q", events[1].Detail, "detail")
			}
		})
	}
}

func testTransitionForwardOnly(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()
	id := mustInsert(t, s, seedRecord(0))

	if err := s.Transition(ctx, id, models.StatusRestored, "restored by operator"); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	for _, status := range []models.Status{models.StatusExpired, models.StatusEvicted, models.StatusRestored} {
		if err := s.Transition(ctx, id, status, "again"); !errors.Is(err, store.ErrInvalidTransition) {
			t.Errorf("second transition to %s error = %v, want ErrInvalidTransition", status, err)
		}
	}

	// The failed attempts must not have appended events.
	events, err := s.EventsByRecord(ctx, id)
	if err != nil {
		t.Fatalf("EventsByRecord failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func testTransitionErrors(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	if err := s.Transition(ctx, 42, models.StatusExpired, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("transition of unknown id error = %v, want ErrNotFound", err)
	}

	id := mustInsert(t, s, seedRecord(0))
	if err := s.Transition(ctx, id, models.StatusActive, ""); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("transition to active error = %v, want ErrInvalidTransition", err)
	}
	if err := s.Transition(ctx, id, models.Status("purged"), ""); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("transition to unknown status error = %v, want ErrInvalidTransition", err)
	}
}

func testQueryExpiringWindow(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()
	now := int64(1700000000)

	inWindow := seedRecord(0)
	inWindow.ExpiresAt = now + 3600
	soon := mustInsert(t, s, inWindow)

	edge := seedRecord(1)
	edge.ExpiresAt = now + 7200
	atEdge := mustInsert(t, s, edge)

	beyond := seedRecord(2)
	beyond.ExpiresAt = now + 7201
	mustInsert(t, s, beyond)

	past := seedRecord(3)
	past.ExpiresAt = now - 1
	mustInsert(t, s, past)

	forever := seedRecord(4)
	forever.RetentionDays = 0
	forever.ExpiresAt = models.NeverExpires
	mustInsert(t, s, forever)

	records, err := s.QueryExpiring(ctx, now, 7200)
	if err != nil {
		t.Fatalf("QueryExpiring failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d expiring records, want 2", len(records))
	}
	if records[0].ID != soon || records[1].ID != atEdge {
		t.Errorf("expiring order = [%d %d], want [%d %d]", records[0].ID, records[1].ID, soon, atEdge)
	}
}

func testQueryExpired(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()
	now := int64(1700000000)

	overdue := seedRecord(0)
	overdue.ExpiresAt = now - 7200
	first := mustInsert(t, s, overdue)

	atNow := seedRecord(1)
	atNow.ExpiresAt = now
	second := mustInsert(t, s, atNow)

	future := seedRecord(2)
	future.ExpiresAt = now + 1
	mustInsert(t, s, future)

	gone := seedRecord(3)
	gone.ExpiresAt = now - 9999
	goneID := mustInsert(t, s, gone)
	if err := s.Transition(ctx, goneID, models.StatusExpired, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	records, err := s.QueryExpired(ctx, now)
	if err != nil {
		t.Fatalf("QueryExpired failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d expired records, want 2", len(records))
	}
	if records[0].ID != first || records[1].ID != second {
		t.Errorf("expired order = [%d %d], want [%d %d]", records[0].ID, records[1].ID, first, second)
	}
}

func testQueryByRisk(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	low := seedRecord(0)
	low.RiskTier = models.TierLow
	mustInsert(t, s, low)

	high1 := seedRecord(1)
	high1.RiskTier = models.TierHigh
	oldHigh := mustInsert(t, s, high1)

	high2 := seedRecord(2)
	high2.RiskTier = models.TierHigh
	newHigh := mustInsert(t, s, high2)

	evicted := seedRecord(3)
	evicted.RiskTier = models.TierHigh
	evictedID := mustInsert(t, s, evicted)
	if err := s.Transition(ctx, evictedID, models.StatusEvicted, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	records, err := s.QueryByRisk(ctx, models.TierHigh)
	if err != nil {
		t.Fatalf("QueryByRisk(high) failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d high records, want 2", len(records))
	}
	if records[0].ID != newHigh || records[1].ID != oldHigh {
		t.Errorf("high order = [%d %d], want newest first [%d %d]", records[0].ID, records[1].ID, newHigh, oldHigh)
	}

	all, err := s.QueryByRisk(ctx, "")
	if err != nil {
		t.Fatalf("QueryByRisk(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d active records, want 3", len(all))
	}
}

func testQueryByStatus(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	older := seedRecord(0)
	older.RiskTier = models.TierLow
	olderID := mustInsert(t, s, older)
	if err := s.Transition(ctx, olderID, models.StatusRestored, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	newer := seedRecord(1)
	newer.RiskTier = models.TierCritical
	newerID := mustInsert(t, s, newer)
	if err := s.Transition(ctx, newerID, models.StatusRestored, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	mustInsert(t, s, seedRecord(2))

	records, err := s.QueryByStatus(ctx, models.StatusRestored)
	if err != nil {
		t.Fatalf("QueryByStatus failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d restored records, want 2", len(records))
	}
	if records[0].ID != newerID || records[1].ID != olderID {
		t.Errorf("restored order = [%d %d], want newest first [%d %d]",
			records[0].ID, records[1].ID, newerID, olderID)
	}

	none, err := s.QueryByStatus(ctx, models.StatusEvicted)
	if err != nil {
		t.Fatalf("QueryByStatus(evicted) failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d evicted records, want 0", len(none))
	}
}

func testTotalActiveSize(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	empty, err := s.TotalActiveSize(ctx)
	if err != nil {
		t.Fatalf("TotalActiveSize on empty store failed: %v", err)
	}
	if empty != 0 {
		t.Errorf("empty store size = %d, want 0", empty)
	}

	a := seedRecord(0)
	a.SizeBytes = 1000
	mustInsert(t, s, a)

	b := seedRecord(1)
	b.SizeBytes = 500
	bID := mustInsert(t, s, b)

	total, err := s.TotalActiveSize(ctx)
	if err != nil {
		t.Fatalf("TotalActiveSize failed: %v", err)
	}
	if total != 1500 {
		t.Errorf("active size = %d, want 1500", total)
	}

	if err := s.Transition(ctx, bID, models.StatusEvicted, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	total, err = s.TotalActiveSize(ctx)
	if err != nil {
		t.Fatalf("TotalActiveSize failed: %v", err)
	}
	if total != 1000 {
		t.Errorf("active size after eviction = %d, want 1000", total)
	}
}

func testOldestActiveOrdering(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	newest := seedRecord(0)
	newest.DetectedAt = 3000
	newestID := mustInsert(t, s, newest)

	oldest := seedRecord(1)
	oldest.DetectedAt = 1000
	oldestID := mustInsert(t, s, oldest)

	// Same detected_at as oldest; the lower id must sort first.
	tie := seedRecord(2)
	tie.DetectedAt = 1000
	tieID := mustInsert(t, s, tie)

	critical := seedRecord(3)
	critical.DetectedAt = 500
	critical.RiskTier = models.TierCritical
	mustInsert(t, s, critical)

	records, err := s.OldestActive(ctx, []models.RiskTier{models.TierCritical})
	if err != nil {
		t.Fatalf("OldestActive failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	wantOrder := []int64{oldestID, tieID, newestID}
	for i, want := range wantOrder {
		if records[i].ID != want {
			t.Errorf("position %d: id = %d, want %d", i, records[i].ID, want)
		}
	}

	all, err := s.OldestActive(ctx, nil)
	if err != nil {
		t.Fatalf("OldestActive(nil) failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d records without exclusions, want 4", len(all))
	}
}

func testRestoredUnarchived(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()
	now := int64(1700000000)

	elapsed := seedRecord(0)
	elapsed.ExpiresAt = now - 100
	elapsedID := mustInsert(t, s, elapsed)
	if err := s.Transition(ctx, elapsedID, models.StatusRestored, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	pending := seedRecord(1)
	pending.ExpiresAt = now + 100
	pendingID := mustInsert(t, s, pending)
	if err := s.Transition(ctx, pendingID, models.StatusRestored, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	records, err := s.RestoredUnarchived(ctx, now)
	if err != nil {
		t.Fatalf("RestoredUnarchived failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != elapsedID {
		t.Fatalf("RestoredUnarchived = %+v, want only record %d", records, elapsedID)
	}

	if err := s.MarkArchived(ctx, elapsedID); err != nil {
		t.Fatalf("MarkArchived failed: %v", err)
	}

	rec, err := s.Get(ctx, elapsedID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.Archived {
		t.Error("record not archived after MarkArchived")
	}
	if rec.Status != models.StatusRestored {
		t.Errorf("MarkArchived changed status to %q", rec.Status)
	}

	// Archiving appends no event.
	events, err := s.EventsByRecord(ctx, elapsedID)
	if err != nil {
		t.Fatalf("EventsByRecord failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events after MarkArchived, want 2", len(events))
	}

	records, err = s.RestoredUnarchived(ctx, now)
	if err != nil {
		t.Fatalf("RestoredUnarchived failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records after archiving, want 0", len(records))
	}

	if err := s.MarkArchived(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("MarkArchived(9999) error = %v, want ErrNotFound", err)
	}
}

func testSummary(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	active := seedRecord(0)
	active.SizeBytes = 2048
	mustInsert(t, s, active)

	restored := seedRecord(1)
	restoredID := mustInsert(t, s, restored)
	if err := s.Transition(ctx, restoredID, models.StatusRestored, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	expired := seedRecord(2)
	expiredID := mustInsert(t, s, expired)
	if err := s.Transition(ctx, expiredID, models.StatusExpired, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	evicted := seedRecord(3)
	evictedID := mustInsert(t, s, evicted)
	if err := s.Transition(ctx, evictedID, models.StatusEvicted, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	want := models.StoreSummary{Total: 4, Active: 1, Restored: 1, Expired: 1, Evicted: 1, ActiveSize: 2048}
	if *sum != want {
		t.Errorf("Summary = %+v, want %+v", *sum, want)
	}
}

func testEvents(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := context.Background()

	early := seedRecord(0)
	early.DetectedAt = 1000
	earlyID := mustInsert(t, s, early)

	late := seedRecord(1)
	late.DetectedAt = 2000
	lateID := mustInsert(t, s, late)

	if err := s.Transition(ctx, earlyID, models.StatusRestored, "operator request"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	// Everything since the dawn of time, newest first.
	events, err := s.RecentEvents(ctx, 0)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].OccurredAt > events[i-1].OccurredAt {
			t.Errorf("events not newest first: %d before %d", events[i-1].OccurredAt, events[i].OccurredAt)
		}
	}

	// A cutoff after the first intake excludes it.
	events, err = s.RecentEvents(ctx, 1001)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	for _, e := range events {
		if e.RecordID == earlyID && e.Type == models.EventQuarantined {
			t.Error("RecentEvents returned an event before the cutoff")
		}
	}

	byRecord, err := s.EventsByRecord(ctx, earlyID)
	if err != nil {
		t.Fatalf("EventsByRecord failed: %v", err)
	}
	if len(byRecord) != 2 {
		t.Fatalf("got %d events for record, want 2", len(byRecord))
	}
	if byRecord[0].Type != models.EventQuarantined || byRecord[1].Type != models.EventRestored {
		t.Errorf("event order = [%s %s], want [quarantined restored]", byRecord[0].Type, byRecord[1].Type)
	}

	none, err := s.EventsByRecord(ctx, lateID+100)
	if err != nil {
		t.Fatalf("EventsByRecord for unknown record failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d events for unknown record, want 0", len(none))
	}
}
