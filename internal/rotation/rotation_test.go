package rotation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDirCreatesDatePartition(t *testing.T) {
	root := t.TempDir()
	r := &Resolver{Root: root}

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	dir, err := r.Dir(now)
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}

	want := filepath.Join(root, "2025-03-14")
	if dir != want {
		t.Errorf("Dir() = %q, want %q", dir, want)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat rotation dir: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("rotation path is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("rotation dir permissions = %o, want 700", perm)
	}
}

func TestDirIdempotentSameDay(t *testing.T) {
	r := &Resolver{Root: t.TempDir()}

	morning := time.Date(2025, 3, 14, 0, 0, 1, 0, time.UTC)
	evening := time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)

	first, err := r.Dir(morning)
	if err != nil {
		t.Fatalf("Dir(morning) error: %v", err)
	}
	second, err := r.Dir(evening)
	if err != nil {
		t.Fatalf("Dir(evening) error: %v", err)
	}
	if first != second {
		t.Errorf("same-day resolutions differ: %q vs %q", first, second)
	}

	nextDay, err := r.Dir(evening.Add(time.Second))
	if err != nil {
		t.Fatalf("Dir(next day) error: %v", err)
	}
	if nextDay == first {
		t.Error("next-day resolution returned the same directory")
	}
}

func TestUniqueName(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 123456789, time.UTC)

	name, err := UniqueName("/staging/evil.exe", now)
	if err != nil {
		t.Fatalf("UniqueName() error: %v", err)
	}
	if !strings.HasPrefix(name, "evil.exe.") {
		t.Errorf("name %q does not start with the original base name", name)
	}
	if strings.ContainsRune(name, filepath.Separator) {
		t.Errorf("name %q contains a path separator", name)
	}

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		n, err := UniqueName("evil.exe", now)
		if err != nil {
			t.Fatalf("UniqueName() error: %v", err)
		}
		if seen[n] {
			t.Fatalf("duplicate name generated at the same instant: %q", n)
		}
		seen[n] = true
	}
}
