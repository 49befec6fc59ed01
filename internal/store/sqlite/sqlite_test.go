package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lazaret/lazaret/internal/models"
	"github.com/lazaret/lazaret/internal/store"
	"github.com/lazaret/lazaret/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "quarantine.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.MetadataStore {
		return openTestStore(t)
	})
}

func TestOpenCreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "quarantine.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	info, err := os.Stat(dbPath)
	if err != nil {
		t.Fatalf("database file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("database permissions = %o, want 600", perm)
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)

	tables := []string{"schema_migrations", "quarantine_records", "quarantine_events"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestOpenIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "quarantine.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if _, err := s.Insert(context.Background(), testRecord()); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening applies no migrations twice and keeps the data.
	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	rec, err := s.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if rec.QuarantinePath != testRecord().QuarantinePath {
		t.Errorf("reopened record path = %q", rec.QuarantinePath)
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	s := openTestStore(t)

	var fkEnabled int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("PRAGMA foreign_keys failed: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys not enabled")
	}
}

func TestActivePathUniqueIndex(t *testing.T) {
	s := openTestStore(t)

	// The partial unique index backs the duplicate check at the schema
	// level: a direct insert bypassing Insert still fails.
	_, err := s.db.Exec(`
		INSERT INTO quarantine_records (
			original_path, quarantine_path, detection_label, detected_at,
			risk_tier, retention_days, expires_at, status
		) VALUES ('/a', '/q/x', 'Label', 1, 'low', 30, 100, 'active')
	`)
	if err != nil {
		t.Fatalf("first direct insert failed: %v", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO quarantine_records (
			original_path, quarantine_path, detection_label, detected_at,
			risk_tier, retention_days, expires_at, status
		) VALUES ('/b', '/q/x', 'Label', 2, 'low', 30, 100, 'active')
	`)
	if err == nil {
		t.Fatal("duplicate active path accepted by schema")
	}

	// Non-active rows with the same path are allowed.
	_, err = s.db.Exec(`
		INSERT INTO quarantine_records (
			original_path, quarantine_path, detection_label, detected_at,
			risk_tier, retention_days, expires_at, status
		) VALUES ('/c', '/q/x', 'Label', 3, 'low', 30, 100, 'evicted')
	`)
	if err != nil {
		t.Fatalf("non-active duplicate path rejected: %v", err)
	}
}

func TestCascadeDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testRecord())
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := s.db.Exec("DELETE FROM quarantine_records WHERE id=?", id); err != nil {
		t.Fatalf("delete record: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM quarantine_events WHERE record_id=?", id).Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 events after cascade delete, got %d", count)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     int
		wantErr  bool
	}{
		{"valid", "0001_initial_schema.sql", 1, false},
		{"valid large", "123_add_column.sql", 123, false},
		{"missing underscore", "001.sql", 0, true},
		{"empty prefix", "_create_tables.sql", 0, true},
		{"non-numeric prefix", "abc_create_tables.sql", 0, true},
		{"empty string", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersion(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseVersion(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("parseVersion(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func testRecord() *models.QuarantineRecord {
	return &models.QuarantineRecord{
		OriginalPath:   "/home/user/downloads/invoice.exe",
		QuarantinePath: "/var/lib/quarantine/2023-11-14/invoice.exe.1700000000.x1y2z3",
		DetectionLabel: "Win.Trojan.Agent",
		DetectedAt:     1700000000,
		ScanSessionID:  "session-1",
		RiskTier:       models.TierHigh,
		Category:       "trojan",
		RetentionDays:  365,
		ExpiresAt:      models.ExpiryTime(1700000000, 365),
		ContentHash:    "deadbeef",
		SizeBytes:      4096,
		MIMEType:       "application/x-dosexec",
	}
}
