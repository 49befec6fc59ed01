package config

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/lazaret/lazaret/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "lazaret-data" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.StagingDir != filepath.Join("lazaret-data", "staging") {
		t.Errorf("staging dir = %q", cfg.StagingDir)
	}
	if cfg.Backend != BackendAuto {
		t.Errorf("backend = %q, want auto", cfg.Backend)
	}
	if cfg.SizeLimitBytes != DefaultSizeLimit {
		t.Errorf("size limit = %d", cfg.SizeLimitBytes)
	}
	if cfg.LockTimeout != 10*time.Second {
		t.Errorf("lock timeout = %s", cfg.LockTimeout)
	}
	if cfg.TierOverrides != nil {
		t.Errorf("tier overrides = %v, want nil", cfg.TierOverrides)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LAZARET_DATA_DIR", "/srv/lazaret")
	t.Setenv("LAZARET_STAGING_DIR", "/incoming/suspect")
	t.Setenv("LAZARET_BACKEND", "json")
	t.Setenv("LAZARET_SIZE_LIMIT", "1048576")
	t.Setenv("LAZARET_RETENTION_OVERRIDES", "high=365,low=14")
	t.Setenv("LAZARET_LOCK_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.StagingDir != "/incoming/suspect" {
		t.Errorf("staging dir = %q", cfg.StagingDir)
	}
	// Unset paths derive from the data dir.
	if cfg.QuarantineRoot != filepath.Join("/srv/lazaret", "quarantine") {
		t.Errorf("quarantine root = %q", cfg.QuarantineRoot)
	}
	if cfg.DBPath != filepath.Join("/srv/lazaret", "quarantine.db") {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.Backend != BackendJSON {
		t.Errorf("backend = %q", cfg.Backend)
	}
	if cfg.SizeLimitBytes != 1048576 {
		t.Errorf("size limit = %d", cfg.SizeLimitBytes)
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Errorf("lock timeout = %s", cfg.LockTimeout)
	}

	want := map[models.RiskTier]int{models.TierHigh: 365, models.TierLow: 14}
	if !reflect.DeepEqual(cfg.TierOverrides, want) {
		t.Errorf("tier overrides = %v, want %v", cfg.TierOverrides, want)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("size limit", func(t *testing.T) {
		t.Setenv("LAZARET_SIZE_LIMIT", "ten gigabytes")
		if _, err := Load(); err == nil {
			t.Error("Load accepted a non-numeric size limit")
		}
	})
	t.Run("lock timeout", func(t *testing.T) {
		t.Setenv("LAZARET_LOCK_TIMEOUT", "soon")
		if _, err := Load(); err == nil {
			t.Error("Load accepted a non-duration lock timeout")
		}
	})
	t.Run("overrides", func(t *testing.T) {
		t.Setenv("LAZARET_RETENTION_OVERRIDES", "high=never")
		if _, err := Load(); err == nil {
			t.Error("Load accepted a non-numeric override")
		}
	})
}

func TestParseTierOverrides(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[models.RiskTier]int
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"blank", "   ", nil, false},
		{"single", "high=365", map[models.RiskTier]int{models.TierHigh: 365}, false},
		{
			"multiple with spaces",
			" high=365 , low=14 ",
			map[models.RiskTier]int{models.TierHigh: 365, models.TierLow: 14},
			false,
		},
		{"uppercase tier", "HIGH=30", map[models.RiskTier]int{models.TierHigh: 30}, false},
		{"zero keeps forever", "critical=0", map[models.RiskTier]int{models.TierCritical: 0}, false},
		{"trailing comma", "low=7,", map[models.RiskTier]int{models.TierLow: 7}, false},
		{"unknown tier", "extreme=10", nil, true},
		{"missing equals", "high", nil, true},
		{"non-numeric days", "high=year", nil, true},
		{"negative days", "high=-1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTierOverrides(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTierOverrides(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTierOverrides(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := &Config{
		StagingDir:     "staging",
		QuarantineRoot: "quarantine",
		Backend:        BackendSQLite,
		LockTimeout:    time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Backend = "postgres" }},
		{"no staging", func(c *Config) { c.StagingDir = "" }},
		{"no quarantine root", func(c *Config) { c.QuarantineRoot = "" }},
		{"zero lock timeout", func(c *Config) { c.LockTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
