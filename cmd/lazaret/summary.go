package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazaret/lazaret/internal/report"
)

var summaryFlags struct {
	storeConfig
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show store totals and the per-tier breakdown",
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	addStoreFlags(summaryCmd, &summaryFlags.storeConfig)
}

func runSummary(cmd *cobra.Command, args []string) error {
	summaryFlags.apply(cfg)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	view := report.NewView(st)
	ctx := context.Background()

	sum, err := view.Summary(ctx)
	if err != nil {
		return err
	}
	stats, err := view.TierBreakdown(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Total records: %d\n", sum.Total)
	fmt.Printf("  active:      %d\n", sum.Active)
	fmt.Printf("  restored:    %d\n", sum.Restored)
	fmt.Printf("  expired:     %d\n", sum.Expired)
	fmt.Printf("  evicted:     %d\n", sum.Evicted)
	fmt.Printf("Active size:   %s\n", humanize.IBytes(uint64(sum.ActiveSize)))
	fmt.Println()

	fmt.Printf("%-9s  %-6s  %s\n", "TIER", "COUNT", "SIZE")
	for _, stat := range stats {
		fmt.Printf("%-9s  %-6d  %s\n", stat.Tier, stat.Count, humanize.IBytes(uint64(stat.Bytes)))
	}
	return nil
}
