// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service", "lazaret"))

	return logger, nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("LAZARET_LOG_LEVEL", "info"),
		Format: getenv("LAZARET_LOG_FORMAT", "json"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Path returns a zap field for a filesystem path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Destination returns a zap field for a restore destination path.
func Destination(path string) zap.Field { return zap.String("destination", path) }

// RecordID returns a zap field for a quarantine record id.
func RecordID(id int64) zap.Field { return zap.Int64("record_id", id) }

// Label returns a zap field for a detection label.
func Label(label string) zap.Field { return zap.String("label", label) }

// Tier returns a zap field for a risk tier.
func Tier(tier string) zap.Field { return zap.String("tier", tier) }

// Status returns a zap field for a record status.
func Status(status string) zap.Field { return zap.String("status", status) }

// Session returns a zap field for a scan session id.
func Session(id string) zap.Field { return zap.String("scan_session", id) }

// Backend returns a zap field for the store backend in use.
func Backend(name string) zap.Field { return zap.String("backend", name) }

// Count returns a zap field for a processed item count.
func Count(n int) zap.Field { return zap.Int("count", n) }

// Bytes returns a zap field for a byte size.
func Bytes(n int64) zap.Field { return zap.Int64("bytes", n) }

// Limit returns a zap field for a byte limit.
func Limit(n int64) zap.Field { return zap.Int64("limit_bytes", n) }
