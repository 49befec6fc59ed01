package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/report"
)

var eventsFlags struct {
	storeConfig
	window time.Duration
	record int64
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent audit events",
	Long: `Show the audit trail: recent events across the store, newest first, or
the full history of one record with --record, oldest first.`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	addStoreFlags(eventsCmd, &eventsFlags.storeConfig)
	eventsCmd.Flags().DurationVar(&eventsFlags.window, "window", 24*time.Hour, "how far back to look, e.g. 48h")
	eventsCmd.Flags().Int64Var(&eventsFlags.record, "record", 0, "show the full event history of one record")
}

func runEvents(cmd *cobra.Command, args []string) error {
	eventsFlags.apply(cfg)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	view := report.NewView(st)
	ctx := context.Background()

	var events []models.QuarantineEvent
	if eventsFlags.record > 0 {
		events, err = view.EventsFor(ctx, eventsFlags.record)
	} else {
		events, err = view.RecentEvents(ctx, time.Now(), eventsFlags.window)
	}
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events found.")
		return nil
	}

	fmt.Printf("%-19s  %-12s  %-7s  %s\n", "TIME", "EVENT", "RECORD", "DETAIL")
	for _, e := range events {
		fmt.Printf("%-19s  %-12s  %-7d  %s\n",
			formatUnix(e.OccurredAt), e.Type, e.RecordID, e.Detail)
	}
	return nil
}
