package store

import (
	"os"
	"path/filepath"
	"testing"
)

// newTestStore creates a store in a temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "pokayoke-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pokayoke-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("expected path %s, got %s", dbPath, s.Path())
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"zones", "validations", "evidence", "settings"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}

	for _, idx := range []string{"idx_zones_position", "idx_validations_zone_id", "idx_evidence_validation_id"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist after migrations: %v", idx, err)
		}
	}
}

func TestStore_Close(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pokayoke-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var fkEnabled int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("failed to check foreign keys pragma: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys should be enabled")
	}
}

func TestStore_WALJournal(t *testing.T) {
	s := newTestStore(t)

	var mode string
	if err := s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to check journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected journal mode wal, got %q", mode)
	}
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	t.Run("missing key", func(t *testing.T) {
		if _, err := settings.Get(SettingMode); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		v, err := settings.GetOr(SettingMode, "picking")
		if err != nil || v != "picking" {
			t.Errorf("expected fallback picking, got %q (%v)", v, err)
		}
		if !settings.GetBool(SettingValidation, true) {
			t.Error("expected bool fallback")
		}
	})

	t.Run("set and overwrite", func(t *testing.T) {
		if err := settings.Set(SettingMode, "counting"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := settings.Set(SettingMode, "assembly"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		v, err := settings.Get(SettingMode)
		if err != nil || v != "assembly" {
			t.Errorf("expected assembly, got %q (%v)", v, err)
		}
	})

	t.Run("bool", func(t *testing.T) {
		settings.Set(SettingValidation, "false")
		if settings.GetBool(SettingValidation, true) {
			t.Error("expected false")
		}
		settings.Set(SettingValidation, "maybe")
		if !settings.GetBool(SettingValidation, true) {
			t.Error("expected fallback for invalid bool")
		}
	})
}
