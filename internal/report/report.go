// Package report builds read-only projections over the metadata store for
// operator-facing output. Nothing here mutates; every call is safe alongside
// any lifecycle operation.
package report

import (
	"context"
	"time"

	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/store"
)

// View answers reporting queries against a metadata store.
type View struct {
	store store.MetadataStore
}

// NewView builds a View over s.
func NewView(s store.MetadataStore) *View {
	return &View{store: s}
}

// TierStat is the active footprint of one risk tier.
type TierStat struct {
	Tier  models.RiskTier `json:"tier"`
	Count int             `json:"count"`
	Bytes int64           `json:"bytes"`
}

// Summary returns the store-wide counts and active byte total.
func (v *View) Summary(ctx context.Context) (*models.StoreSummary, error) {
	return v.store.Summary(ctx)
}

// TierBreakdown returns the active record count and byte total per tier,
// ordered least to most severe. Tiers with no records still appear.
func (v *View) TierBreakdown(ctx context.Context) ([]TierStat, error) {
	stats := make([]TierStat, 0, len(models.Tiers))
	for _, tier := range models.Tiers {
		records, err := v.store.QueryByRisk(ctx, tier)
		if err != nil {
			return nil, err
		}
		stat := TierStat{Tier: tier, Count: len(records)}
		for i := range records {
			stat.Bytes += records[i].SizeBytes
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

// ExpiringSoon returns active records whose retention runs out within
// horizon of now, soonest first.
func (v *View) ExpiringSoon(ctx context.Context, now time.Time, horizon time.Duration) ([]models.QuarantineRecord, error) {
	return v.store.QueryExpiring(ctx, now.Unix(), int64(horizon.Seconds()))
}

// ByRisk returns active records in the given tier, newest first; an empty
// tier selects all active records.
func (v *View) ByRisk(ctx context.Context, tier models.RiskTier) ([]models.QuarantineRecord, error) {
	return v.store.QueryByRisk(ctx, tier)
}

// ByStatus returns records in the given status, newest first.
func (v *View) ByStatus(ctx context.Context, status models.Status) ([]models.QuarantineRecord, error) {
	return v.store.QueryByStatus(ctx, status)
}

// RecentEvents returns audit events within window of now, newest first.
func (v *View) RecentEvents(ctx context.Context, now time.Time, window time.Duration) ([]models.QuarantineEvent, error) {
	return v.store.RecentEvents(ctx, now.Add(-window).Unix())
}

// EventsFor returns one record's audit trail, oldest first.
func (v *View) EventsFor(ctx context.Context, id int64) ([]models.QuarantineEvent, error) {
	return v.store.EventsByRecord(ctx, id)
}
