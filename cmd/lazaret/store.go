package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazaret/lazaret/internal/config"
	"github.com/lazaret/lazaret/internal/logging"
	"github.com/lazaret/lazaret/internal/store"
	"github.com/lazaret/lazaret/internal/store/jsonfile"
	"github.com/lazaret/lazaret/internal/store/sqlite"
)

// storeConfig carries the backend selection flags shared by every command.
// Unset flags defer to the environment-derived configuration.
type storeConfig struct {
	backend   string
	dbPath    string
	storePath string
}

func addStoreFlags(cmd *cobra.Command, f *storeConfig) {
	cmd.Flags().StringVar(&f.backend, "backend", "", "metadata backend: auto, sqlite, or json (env: LAZARET_BACKEND)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "sqlite database path (env: LAZARET_DB)")
	cmd.Flags().StringVar(&f.storePath, "store", "", "JSON document store path (env: LAZARET_STORE)")
}

// apply folds set flags into the loaded configuration.
func (f *storeConfig) apply(cfg *config.Config) {
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.storePath != "" {
		cfg.StorePath = f.storePath
	}
}

// openStore validates the configuration and opens the selected backend. Auto
// probes the embedded database first and falls back to the JSON document
// store when it cannot be opened.
func openStore(cfg *config.Config, logger *zap.Logger) (store.MetadataStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Debug("store opened", logging.Backend(config.BackendSQLite), logging.Path(cfg.DBPath))
		return s, nil
	case config.BackendJSON:
		s, err := openJSON(cfg)
		if err != nil {
			return nil, fmt.Errorf("open json store: %w", err)
		}
		logger.Debug("store opened", logging.Backend(config.BackendJSON), logging.Path(cfg.StorePath))
		return s, nil
	}

	s, err := sqlite.Open(cfg.DBPath)
	if err == nil {
		logger.Debug("store opened", logging.Backend(config.BackendSQLite), logging.Path(cfg.DBPath))
		return s, nil
	}
	logger.Warn("sqlite backend unavailable, falling back to json store",
		logging.Path(cfg.DBPath), zap.Error(err))

	js, err := openJSON(cfg)
	if err != nil {
		return nil, fmt.Errorf("open json store: %w", err)
	}
	logger.Debug("store opened", logging.Backend(config.BackendJSON), logging.Path(cfg.StorePath))
	return js, nil
}

func openJSON(cfg *config.Config) (*jsonfile.Store, error) {
	s, err := jsonfile.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	s.SetLockTimeout(cfg.LockTimeout)
	return s, nil
}
