package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lazaret/lazaret/internal/classify"
	"github.com/lazaret/lazaret/internal/config"
	"github.com/lazaret/lazaret/internal/engine"
)

var intakeFlags struct {
	storeConfig
	staging    string
	quarantine string
	metadata   string
	sessionID  string
	labels     string
	overrides  string
}

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Sweep the staging area into quarantine",
	Long: `Sweep every file in the staging area into date-partitioned quarantine
storage: move, defang, hash, classify, and record. Detection labels come
from a JSON manifest produced by the scan runner; staged files without a
matching detection are recorded with the label "Unknown".

The manifest is a JSON array of {"path": ..., "label": ...} objects.`,
	RunE: runIntake,
}

func init() {
	rootCmd.AddCommand(intakeCmd)

	addStoreFlags(intakeCmd, &intakeFlags.storeConfig)
	intakeCmd.Flags().StringVar(&intakeFlags.staging, "staging", "", "staging directory to sweep (env: LAZARET_STAGING_DIR)")
	intakeCmd.Flags().StringVar(&intakeFlags.quarantine, "quarantine", "", "quarantine root directory (env: LAZARET_QUARANTINE_ROOT)")
	intakeCmd.Flags().StringVar(&intakeFlags.metadata, "metadata", "", "metadata sidecar directory (env: LAZARET_METADATA_DIR)")
	intakeCmd.Flags().StringVar(&intakeFlags.sessionID, "session-id", "", "scan session identifier (generated when absent)")
	intakeCmd.Flags().StringVar(&intakeFlags.labels, "labels", "", "path to the detection manifest JSON")
	intakeCmd.Flags().StringVar(&intakeFlags.overrides, "retention-overrides", "", `per-tier retention days, e.g. "high=365,low=14" (env: LAZARET_RETENTION_OVERRIDES)`)
}

func runIntake(cmd *cobra.Command, args []string) error {
	intakeFlags.apply(cfg)
	if intakeFlags.staging != "" {
		cfg.StagingDir = intakeFlags.staging
	}
	if intakeFlags.quarantine != "" {
		cfg.QuarantineRoot = intakeFlags.quarantine
	}
	if intakeFlags.metadata != "" {
		cfg.MetadataDir = intakeFlags.metadata
	}
	if intakeFlags.overrides != "" {
		overrides, err := config.ParseTierOverrides(intakeFlags.overrides)
		if err != nil {
			return err
		}
		cfg.TierOverrides = overrides
	}

	session := engine.Session{ID: intakeFlags.sessionID}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if intakeFlags.labels != "" {
		detections, err := readManifest(intakeFlags.labels)
		if err != nil {
			return err
		}
		session.Detections = detections
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	eng := engine.New(engine.Config{
		Store:          st,
		StagingDir:     cfg.StagingDir,
		QuarantineRoot: cfg.QuarantineRoot,
		MetadataDir:    cfg.MetadataDir,
		Classifier:     &classify.Classifier{Overrides: cfg.TierOverrides},
		Logger:         logger,
	})

	result, err := eng.Intake(context.Background(), session)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s: %d quarantined, %d failed.\n", session.ID, result.Processed, result.Failed)
	return nil
}

// readManifest parses the scan runner's detection manifest.
func readManifest(path string) ([]engine.Detection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read detection manifest: %w", err)
	}
	var detections []engine.Detection
	if err := json.Unmarshal(data, &detections); err != nil {
		return nil, fmt.Errorf("parse detection manifest %s: %w", path, err)
	}
	return detections, nil
}
