// Package config holds runtime configuration for the quarantine manager.
// Values come from LAZARET_* environment variables with working defaults;
// commands layer flag overrides on top. No package-level state: callers pass
// the Config they loaded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lazaret/lazaret/internal/models"
)

// Backend selection values.
const (
	BackendAuto   = "auto"
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// DefaultSizeLimit caps the active store at 10 GiB unless configured.
const DefaultSizeLimit int64 = 10 << 30

type Config struct {
	// DataDir anchors the default layout; individual paths override it.
	DataDir        string
	StagingDir     string
	QuarantineRoot string
	MetadataDir    string

	// Backend picks the metadata store: auto probes sqlite and falls back
	// to the JSON document store.
	Backend   string
	DBPath    string
	StorePath string

	// SizeLimitBytes bounds the active store; negative disables eviction.
	SizeLimitBytes int64

	// TierOverrides replaces the classifier's computed retention per tier.
	TierOverrides map[models.RiskTier]int

	// LockTimeout bounds the JSON store's lock wait.
	LockTimeout time.Duration
}

// Load builds a Config from the environment.
func Load() (*Config, error) {
	dataDir := getEnv("LAZARET_DATA_DIR", "lazaret-data")

	cfg := &Config{
		DataDir:        dataDir,
		StagingDir:     getEnv("LAZARET_STAGING_DIR", filepath.Join(dataDir, "staging")),
		QuarantineRoot: getEnv("LAZARET_QUARANTINE_ROOT", filepath.Join(dataDir, "quarantine")),
		MetadataDir:    getEnv("LAZARET_METADATA_DIR", filepath.Join(dataDir, "metadata")),
		Backend:        getEnv("LAZARET_BACKEND", BackendAuto),
		DBPath:         getEnv("LAZARET_DB", filepath.Join(dataDir, "quarantine.db")),
		StorePath:      getEnv("LAZARET_STORE", filepath.Join(dataDir, "quarantine.json")),
	}

	limit, err := getEnvInt64("LAZARET_SIZE_LIMIT", DefaultSizeLimit)
	if err != nil {
		return nil, err
	}
	cfg.SizeLimitBytes = limit

	overrides, err := ParseTierOverrides(os.Getenv("LAZARET_RETENTION_OVERRIDES"))
	if err != nil {
		return nil, err
	}
	cfg.TierOverrides = overrides

	timeout := getEnv("LAZARET_LOCK_TIMEOUT", "10s")
	cfg.LockTimeout, err = time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("parse LAZARET_LOCK_TIMEOUT %q: %w", timeout, err)
	}

	return cfg, nil
}

// Validate rejects configurations no command could run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendSQLite, BackendJSON:
	default:
		return fmt.Errorf("unknown backend %q (want auto, sqlite, or json)", c.Backend)
	}
	if c.StagingDir == "" {
		return fmt.Errorf("staging dir not set")
	}
	if c.QuarantineRoot == "" {
		return fmt.Errorf("quarantine root not set")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout %s not positive", c.LockTimeout)
	}
	return nil
}

// ParseTierOverrides parses per-tier retention overrides in the form
// "high=365,low=14". Days of 0 mean keep forever. An empty input yields nil.
func ParseTierOverrides(s string) (map[models.RiskTier]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	out := make(map[models.RiskTier]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid retention override %q (want tier=days)", part)
		}
		tier := models.RiskTier(strings.ToLower(strings.TrimSpace(kv[0])))
		if !tier.Valid() {
			return nil, fmt.Errorf("unknown risk tier %q in retention overrides", kv[0])
		}
		days, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid retention days %q for tier %s", kv[1], tier)
		}
		if days < 0 {
			return nil, fmt.Errorf("negative retention days %d for tier %s", days, tier)
		}
		out[tier] = days
	}

	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, v, err)
	}
	return n, nil
}
