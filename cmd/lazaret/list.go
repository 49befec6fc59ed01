package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/report"
)

var listFlags struct {
	storeConfig
	tier     string
	status   string
	expiring time.Duration
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantine records",
	Long: `List quarantine records, active ones by default. Filter by risk tier
or status, or show only the active records expiring within a window.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	addStoreFlags(listCmd, &listFlags.storeConfig)
	listCmd.Flags().StringVar(&listFlags.tier, "tier", "", "filter by risk tier: low, medium, high, or critical")
	listCmd.Flags().StringVar(&listFlags.status, "status", "", "filter by status: active, restored, expired, or evicted")
	listCmd.Flags().DurationVar(&listFlags.expiring, "expiring", 0, "only active records expiring within this window, e.g. 72h")
}

func runList(cmd *cobra.Command, args []string) error {
	listFlags.apply(cfg)

	tier := models.RiskTier(listFlags.tier)
	if tier != "" && !tier.Valid() {
		return fmt.Errorf("unknown tier %q", listFlags.tier)
	}
	status := models.Status(listFlags.status)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", listFlags.status)
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	view := report.NewView(st)
	ctx := context.Background()

	var records []models.QuarantineRecord
	switch {
	case listFlags.expiring > 0:
		records, err = view.ExpiringSoon(ctx, time.Now(), listFlags.expiring)
		records = filterTier(records, tier)
	case status != "":
		records, err = view.ByStatus(ctx, status)
		records = filterTier(records, tier)
	default:
		records, err = view.ByRisk(ctx, tier)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	fmt.Printf("%-6s  %-9s  %-9s  %-10s  %-19s  %-19s  %s\n",
		"ID", "TIER", "STATUS", "SIZE", "DETECTED", "EXPIRES", "LABEL")
	for i := range records {
		r := &records[i]
		fmt.Printf("%-6d  %-9s  %-9s  %-10s  %-19s  %-19s  %s\n",
			r.ID, r.RiskTier, r.Status, humanize.IBytes(uint64(r.SizeBytes)),
			formatUnix(r.DetectedAt), formatExpiry(r.ExpiresAt), r.DetectionLabel)
	}
	return nil
}

// filterTier narrows records to one tier for the query paths that cannot
// push the tier filter into the store.
func filterTier(records []models.QuarantineRecord, tier models.RiskTier) []models.QuarantineRecord {
	if tier == "" {
		return records
	}
	kept := records[:0]
	for i := range records {
		if records[i].RiskTier == tier {
			kept = append(kept, records[i])
		}
	}
	return kept
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}

func formatExpiry(ts int64) string {
	if ts == models.NeverExpires {
		return "never"
	}
	return formatUnix(ts)
}
