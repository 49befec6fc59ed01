package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lazaret/lazaret/internal/models"
)

// moveFile moves src to dst, by rename when both sit on the same volume.
// Across volumes it copies, verifies the copied size, and only then deletes
// the source. The returned hash is non-empty only on the copy path, where
// the content was hashed in flight.
func moveFile(src, dst string) (string, error) {
	err := os.Rename(src, dst)
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", err
	}

	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	hash, written, err := copyFile(src, dst)
	if err != nil {
		return "", err
	}
	if written != info.Size() {
		_ = os.Remove(dst)
		return "", fmt.Errorf("cross-volume copy wrote %d of %d bytes", written, info.Size())
	}

	if err := os.Remove(src); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("remove source after copy: %w", err)
	}
	return hash, nil
}

// copyFile copies src to dst, hashing the content in flight. dst must not
// exist; an existing file is an error, never overwritten.
func copyFile(src, dst string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create destination: %w", err)
	}

	h := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", 0, fmt.Errorf("copy content: %w", err)
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", 0, fmt.Errorf("sync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", 0, fmt.Errorf("close destination: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), written, nil
}

// hashFile returns the hex SHA-256 of the file content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// removeFile deletes path, treating an already missing file as success.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// writeSidecar drops a per-record JSON file under the metadata dir for
// offline inspection. The store stays authoritative; sidecars are advisory.
func (e *Engine) writeSidecar(rec *models.QuarantineRecord, now time.Time) error {
	if e.metadataDir == "" {
		return nil
	}

	dir := filepath.Join(e.metadataDir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.json", rec.ID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
