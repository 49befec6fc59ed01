package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazaret/lazaret/internal/engine"
	"github.com/lazaret/lazaret/internal/store"
)

var sweepFlags struct {
	storeConfig
	sizeLimit int64
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the expiry and eviction passes",
	Long: `Run one maintenance cycle: expire every record whose retention has
elapsed, then evict the oldest non-critical files until the active
store is back under the size limit. A negative size limit disables
eviction. A busy store skips the cycle; the next scheduled sweep
retries.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	addStoreFlags(sweepCmd, &sweepFlags.storeConfig)
	sweepCmd.Flags().Int64Var(&sweepFlags.sizeLimit, "size-limit", 0, "active store size limit in bytes, negative disables eviction (env: LAZARET_SIZE_LIMIT)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	sweepFlags.apply(cfg)
	if cmd.Flags().Changed("size-limit") {
		cfg.SizeLimitBytes = sweepFlags.sizeLimit
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	eng := engine.New(engine.Config{
		Store:          st,
		QuarantineRoot: cfg.QuarantineRoot,
		Logger:         logger,
	})

	ctx := context.Background()
	expired, err := eng.Expire(ctx)
	if err != nil {
		if errors.Is(err, store.ErrStoreBusy) {
			fmt.Println("Store busy; sweep skipped, the next cycle will retry.")
			return nil
		}
		return err
	}

	evicted, err := eng.Evict(ctx, cfg.SizeLimitBytes)
	if err != nil {
		if errors.Is(err, store.ErrStoreBusy) {
			fmt.Printf("Expired %d; store busy during eviction, the next cycle will retry.\n", expired)
			return nil
		}
		return err
	}

	fmt.Printf("Expired %d, evicted %d.\n", expired, evicted)
	return nil
}
