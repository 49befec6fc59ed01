// Package engine orchestrates the quarantine lifecycle: intake from staging,
// size-based eviction, retention expiry, and restore. Every operation is
// self-contained; concurrent invocations may be separate OS processes and
// coordinate only through the metadata store and the filesystem.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/lazaret/lazaret/internal/classify"
	"github.com/lazaret/lazaret/internal/logging"
	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/rotation"
	"github.com/lazaret/lazaret/internal/store"
)

// ErrFileMissing is returned by Restore when the record exists but its
// quarantined file is gone from disk. The record is left untouched.
var ErrFileMissing = errors.New("quarantined file missing")

// UnknownLabel is recorded when the scan run supplied no label for a staged
// file. The engine never parses scan engine output itself.
const UnknownLabel = "Unknown"

// restoredPrefix marks restored files so they cannot silently reappear
// under their original name.
const restoredPrefix = "restored_"

// Detection is one parsed scan finding: the path the scanner flagged and the
// signature label it reported.
type Detection struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// Session identifies one scan run feeding an intake cycle.
type Session struct {
	ID         string
	Detections []Detection
}

// IntakeResult counts the outcome of one intake cycle.
type IntakeResult struct {
	Processed int
	Failed    int
}

// Config carries the engine dependencies.
type Config struct {
	Store          store.MetadataStore
	StagingDir     string
	QuarantineRoot string
	MetadataDir    string
	Classifier     *classify.Classifier
	Logger         *zap.Logger
}

// Engine runs the quarantine lifecycle operations.
type Engine struct {
	store       store.MetadataStore
	staging     string
	resolver    *rotation.Resolver
	metadataDir string
	classifier  *classify.Classifier
	logger      *zap.Logger

	// now is the clock; tests override it.
	now func() time.Time
}

// New builds an Engine. A nil logger silences logging and a nil classifier
// uses the default rules.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = &classify.Classifier{}
	}
	return &Engine{
		store:       cfg.Store,
		staging:     cfg.StagingDir,
		resolver:    &rotation.Resolver{Root: cfg.QuarantineRoot},
		metadataDir: cfg.MetadataDir,
		classifier:  classifier,
		logger:      logger.Named("engine"),
		now:         time.Now,
	}
}

// Intake sweeps the staging area: each file is moved into the dated
// quarantine directory, measured, classified, and recorded. One bad file
// does not stop the sweep; it is logged, counted, and left in staging.
// Store contention aborts the remainder of the batch with ErrStoreBusy.
func (e *Engine) Intake(ctx context.Context, session Session) (IntakeResult, error) {
	var result IntakeResult

	entries, err := os.ReadDir(e.staging)
	if err != nil {
		return result, fmt.Errorf("list staging dir: %w", err)
	}

	labels := make(map[string]string, len(session.Detections))
	originals := make(map[string]string, len(session.Detections))
	for _, d := range session.Detections {
		base := filepath.Base(d.Path)
		labels[base] = d.Label
		originals[base] = d.Path
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(e.staging, entry.Name())

		label := labels[entry.Name()]
		if label == "" {
			label = UnknownLabel
		}
		original := originals[entry.Name()]
		if original == "" {
			original = src
		}

		err := e.processStagedFile(ctx, src, original, label, session.ID)
		if err != nil {
			if errors.Is(err, store.ErrStoreBusy) {
				return result, fmt.Errorf("intake aborted after %d files: %w", result.Processed, err)
			}
			e.logger.Warn("staged file not quarantined",
				logging.Path(src), logging.Label(label), zap.Error(err))
			result.Failed++
			continue
		}
		result.Processed++
	}

	e.logger.Info("intake cycle complete",
		logging.Session(session.ID),
		logging.Count(result.Processed),
		zap.Int("failed", result.Failed))
	return result, nil
}

// processStagedFile quarantines one file. Any failure after the move puts
// the file back into staging so a later cycle can retry it.
func (e *Engine) processStagedFile(ctx context.Context, src, originalPath, label, sessionID string) error {
	now := e.now()

	dir, err := e.resolver.Dir(now)
	if err != nil {
		return err
	}
	name, err := rotation.UniqueName(src, now)
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, name)

	hash, err := moveFile(src, dest)
	if err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}
	undo := func() { _ = os.Rename(dest, src) }

	// Exec bits are dropped so the payload cannot run from quarantine.
	if err := os.Chmod(dest, 0o600); err != nil {
		undo()
		return fmt.Errorf("chmod quarantined file: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		undo()
		return fmt.Errorf("stat quarantined file: %w", err)
	}

	if hash == "" {
		hash, err = hashFile(dest)
		if err != nil {
			undo()
			return fmt.Errorf("hash quarantined file: %w", err)
		}
	}

	mimeType := ""
	if mtype, err := mimetype.DetectFile(dest); err == nil {
		mimeType = mtype.String()
	} else {
		e.logger.Debug("mime detection failed", logging.Path(dest), zap.Error(err))
	}

	verdict := e.classifier.Classify(classify.Input{
		Label:     label,
		SizeBytes: info.Size(),
		MIMEType:  mimeType,
	})

	detectedAt := now.Unix()
	rec := &models.QuarantineRecord{
		OriginalPath:   originalPath,
		QuarantinePath: dest,
		DetectionLabel: label,
		DetectedAt:     detectedAt,
		ScanSessionID:  sessionID,
		RiskTier:       verdict.Tier,
		Category:       verdict.Category,
		RetentionDays:  verdict.RetentionDays,
		ExpiresAt:      models.ExpiryTime(detectedAt, verdict.RetentionDays),
		ContentHash:    hash,
		SizeBytes:      info.Size(),
		MIMEType:       mimeType,
		Status:         models.StatusActive,
	}

	id, err := e.store.Insert(ctx, rec)
	if err != nil {
		undo()
		return fmt.Errorf("record quarantined file: %w", err)
	}
	rec.ID = id

	if err := e.writeSidecar(rec, now); err != nil {
		e.logger.Warn("metadata sidecar not written", logging.RecordID(id), zap.Error(err))
	}

	e.logger.Info("file quarantined",
		logging.RecordID(id),
		logging.Path(originalPath),
		logging.Label(label),
		logging.Tier(string(verdict.Tier)),
		logging.Bytes(info.Size()))
	return nil
}

// Evict removes the oldest active non-critical files until the active byte
// total is back under limitBytes. A negative limit disables eviction.
// Critical-tier files are never auto-evicted.
func (e *Engine) Evict(ctx context.Context, limitBytes int64) (int, error) {
	if limitBytes < 0 {
		return 0, nil
	}

	total, err := e.store.TotalActiveSize(ctx)
	if err != nil {
		return 0, fmt.Errorf("total active size: %w", err)
	}
	if total <= limitBytes {
		return 0, nil
	}

	candidates, err := e.store.OldestActive(ctx, []models.RiskTier{models.TierCritical})
	if err != nil {
		return 0, fmt.Errorf("eviction candidates: %w", err)
	}

	evicted := 0
	for i := range candidates {
		if total <= limitBytes {
			break
		}
		rec := &candidates[i]

		if err := removeFile(rec.QuarantinePath); err != nil {
			e.logger.Warn("eviction skipped, file not removable",
				logging.RecordID(rec.ID), logging.Path(rec.QuarantinePath), zap.Error(err))
			continue
		}

		detail := fmt.Sprintf("active size %d bytes over limit %d", total, limitBytes)
		if err := e.store.Transition(ctx, rec.ID, models.StatusEvicted, detail); err != nil {
			if errors.Is(err, store.ErrStoreBusy) {
				return evicted, fmt.Errorf("eviction aborted: %w", err)
			}
			e.logger.Error("eviction transition failed",
				logging.RecordID(rec.ID), zap.Error(err))
			continue
		}

		total -= rec.SizeBytes
		evicted++
	}

	if total > limitBytes {
		e.logger.Warn("store still over limit after eviction",
			logging.Bytes(total), logging.Limit(limitBytes))
	}
	if evicted > 0 {
		e.logger.Info("eviction sweep complete", logging.Count(evicted), logging.Bytes(total))
	}
	return evicted, nil
}

// Expire transitions every active record whose retention has elapsed,
// removing its file first (a file already gone is fine). It also cleans up
// the retained quarantine copies of restored records past their retention;
// those keep their restored status and are only flagged archived.
func (e *Engine) Expire(ctx context.Context) (int, error) {
	now := e.now().Unix()

	records, err := e.store.QueryExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("query expired: %w", err)
	}

	expired := 0
	for i := range records {
		rec := &records[i]

		if err := removeFile(rec.QuarantinePath); err != nil {
			e.logger.Warn("expired file not removed",
				logging.RecordID(rec.ID), logging.Path(rec.QuarantinePath), zap.Error(err))
			continue
		}
		if err := e.store.Transition(ctx, rec.ID, models.StatusExpired, "retention period elapsed"); err != nil {
			if errors.Is(err, store.ErrStoreBusy) {
				return expired, fmt.Errorf("expiry aborted: %w", err)
			}
			e.logger.Error("expiry transition failed",
				logging.RecordID(rec.ID), zap.Error(err))
			continue
		}
		expired++
	}

	restored, err := e.store.RestoredUnarchived(ctx, now)
	if err != nil {
		return expired, fmt.Errorf("query restored leftovers: %w", err)
	}
	for i := range restored {
		rec := &restored[i]

		if err := removeFile(rec.QuarantinePath); err != nil {
			e.logger.Warn("restored leftover not removed",
				logging.RecordID(rec.ID), logging.Path(rec.QuarantinePath), zap.Error(err))
			continue
		}
		if err := e.store.MarkArchived(ctx, rec.ID); err != nil {
			if errors.Is(err, store.ErrStoreBusy) {
				return expired, fmt.Errorf("expiry aborted: %w", err)
			}
			e.logger.Error("archive flag not set",
				logging.RecordID(rec.ID), zap.Error(err))
			continue
		}
		e.logger.Debug("restored leftover cleaned up", logging.RecordID(rec.ID))
	}

	if expired > 0 {
		e.logger.Info("expiry sweep complete", logging.Count(expired))
	}
	return expired, nil
}

// Restore copies (never moves) a quarantined file into destDir under a
// clearly marked name and transitions the record to restored. The
// quarantined copy stays on disk until a later expiry pass for audit.
func (e *Engine) Restore(ctx context.Context, id int64, destDir string) (string, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	// The file check runs before the status check: an expired or evicted
	// record has had its file removed, and the operator is told the file is
	// gone rather than which transition would have been refused.
	if _, err := os.Stat(rec.QuarantinePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("record %d at %s: %w", id, rec.QuarantinePath, ErrFileMissing)
		}
		return "", fmt.Errorf("stat quarantined file: %w", err)
	}
	if rec.Status != models.StatusActive {
		return "", fmt.Errorf("record %d is %s: %w", id, rec.Status, store.ErrInvalidTransition)
	}

	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}

	destPath := filepath.Join(destDir, restoredPrefix+filepath.Base(rec.OriginalPath))
	hash, _, err := copyFile(rec.QuarantinePath, destPath)
	if err != nil {
		return "", fmt.Errorf("copy to destination: %w", err)
	}

	if rec.ContentHash != "" && hash != rec.ContentHash {
		_ = os.Remove(destPath)
		return "", fmt.Errorf("restored copy hash %s does not match recorded %s", hash, rec.ContentHash)
	}

	if err := e.store.Transition(ctx, id, models.StatusRestored, "restored to "+destPath); err != nil {
		_ = os.Remove(destPath)
		return "", err
	}

	e.logger.Info("file restored",
		logging.RecordID(id),
		logging.Path(rec.QuarantinePath),
		logging.Destination(destPath))
	return destPath, nil
}
