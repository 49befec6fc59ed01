package main

import (
	"fmt"
	"os"

	"github.com/lazaret/lazaret/internal/config"
	"github.com/lazaret/lazaret/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lazaret",
	Short: "Antivirus quarantine lifecycle manager",
	Long: `lazaret manages the lifecycle of files flagged by an antivirus scan:
intake from a staging area into date-partitioned quarantine storage,
risk classification, size-based eviction, retention expiry, and safe
restore, with a full audit trail.

Metadata lives in an embedded database by default; when that is
unavailable the store falls back to a locked JSON document so the
quarantine keeps working.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
