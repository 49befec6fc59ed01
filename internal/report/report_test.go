package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/store"
	"github.com/lazaret/lazaret/internal/store/jsonfile"
)

func newTestView(t *testing.T) (*View, store.MetadataStore) {
	t.Helper()
	s, err := jsonfile.Open(filepath.Join(t.TempDir(), "quarantine.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewView(s), s
}

func insert(t *testing.T, s store.MetadataStore, path string, tier models.RiskTier, size int64, detectedAt, expiresAt int64) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), &models.QuarantineRecord{
		OriginalPath:   "/original" + path,
		QuarantinePath: path,
		DetectionLabel: "Test.Label",
		DetectedAt:     detectedAt,
		ScanSessionID:  "s1",
		RiskTier:       tier,
		Category:       "malware",
		RetentionDays:  90,
		ExpiresAt:      expiresAt,
		SizeBytes:      size,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestTierBreakdown(t *testing.T) {
	view, s := newTestView(t)
	ctx := context.Background()

	insert(t, s, "/q/a", models.TierHigh, 100, 1000, 9999)
	insert(t, s, "/q/b", models.TierHigh, 200, 2000, 9999)
	insert(t, s, "/q/c", models.TierLow, 50, 3000, 9999)

	// Terminal records never count toward the active footprint.
	gone := insert(t, s, "/q/d", models.TierHigh, 400, 4000, 9999)
	if err := s.Transition(ctx, gone, models.StatusEvicted, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	stats, err := view.TierBreakdown(ctx)
	if err != nil {
		t.Fatalf("TierBreakdown failed: %v", err)
	}
	if len(stats) != len(models.Tiers) {
		t.Fatalf("got %d tiers, want %d", len(stats), len(models.Tiers))
	}

	want := map[models.RiskTier]TierStat{
		models.TierLow:      {Tier: models.TierLow, Count: 1, Bytes: 50},
		models.TierMedium:   {Tier: models.TierMedium, Count: 0, Bytes: 0},
		models.TierHigh:     {Tier: models.TierHigh, Count: 2, Bytes: 300},
		models.TierCritical: {Tier: models.TierCritical, Count: 0, Bytes: 0},
	}
	for i, tier := range models.Tiers {
		if stats[i] != want[tier] {
			t.Errorf("tier %s = %+v, want %+v", tier, stats[i], want[tier])
		}
	}
}

func TestExpiringSoon(t *testing.T) {
	view, s := newTestView(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	soon := insert(t, s, "/q/soon", models.TierLow, 1, 1000, now.Unix()+1800)
	later := insert(t, s, "/q/later", models.TierLow, 1, 2000, now.Unix()+3600)
	insert(t, s, "/q/distant", models.TierLow, 1, 3000, now.Unix()+7200)
	insert(t, s, "/q/never", models.TierLow, 1, 4000, models.NeverExpires)

	records, err := view.ExpiringSoon(ctx, now, time.Hour)
	if err != nil {
		t.Fatalf("ExpiringSoon failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != soon || records[1].ID != later {
		t.Errorf("order = [%d %d], want soonest first [%d %d]", records[0].ID, records[1].ID, soon, later)
	}
}

func TestRecentEventsWindow(t *testing.T) {
	view, s := newTestView(t)
	ctx := context.Background()

	now := time.Now()
	old := now.Add(-2 * time.Hour).Unix()
	fresh := now.Add(-10 * time.Minute).Unix()

	insert(t, s, "/q/old", models.TierLow, 1, old, models.NeverExpires)
	insert(t, s, "/q/fresh", models.TierLow, 1, fresh, models.NeverExpires)

	events, err := view.RecentEvents(ctx, now, time.Hour)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 within the window", len(events))
	}
	if events[0].OccurredAt != fresh {
		t.Errorf("event at %d, want %d", events[0].OccurredAt, fresh)
	}
}

func TestSummaryPassthrough(t *testing.T) {
	view, s := newTestView(t)
	ctx := context.Background()

	insert(t, s, "/q/a", models.TierMedium, 512, 1000, 9999)

	sum, err := view.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.Total != 1 || sum.Active != 1 || sum.ActiveSize != 512 {
		t.Errorf("summary = %+v", sum)
	}
}
