// Package rotation computes date-partitioned quarantine directories and
// collision-safe filenames inside them.
package rotation

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const suffixLength = 6

var charset = []byte("abcdefghijklmnopqrstuvwxyz0123456789")

// Resolver partitions a quarantine root by calendar date, one directory per
// day. The same instant always resolves to the same directory.
type Resolver struct {
	Root string
}

// Dir returns the directory for the given moment, creating it with owner-only
// permissions when absent. Repeated calls within the same calendar day return
// the same path. The result is absolute: it is recorded as the stable
// location of quarantined files.
func (r *Resolver) Dir(now time.Time) (string, error) {
	dir := filepath.Join(r.Root, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create rotation dir: %w", err)
	}
	return filepath.Abs(dir)
}

// UniqueName builds a collision-safe filename for a quarantined file: the
// original base name plus a nanosecond timestamp and a short random suffix.
// Two intakes of the same filename in the same instant still diverge on the
// suffix.
func UniqueName(base string, now time.Time) (string, error) {
	b := make([]byte, suffixLength)
	randomBytes := make([]byte, suffixLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("generate name suffix: %w", err)
	}
	for i := range b {
		b[i] = charset[int(randomBytes[i])%len(charset)]
	}
	return fmt.Sprintf("%s.%d.%s", filepath.Base(base), now.UnixNano(), string(b)), nil
}
