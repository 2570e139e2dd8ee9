package shared

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDatabase(t *testing.T) {
	t.Run("file-backed databases wait on the write lock", func(t *testing.T) {
		db, err := NewDatabase(filepath.Join(t.TempDir(), "tracks.db"))
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		var journalMode string
		if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
			t.Fatalf("failed to read journal_mode: %v", err)
		}
		if !strings.EqualFold(journalMode, "wal") {
			t.Errorf("journal_mode = %q, want wal", journalMode)
		}

		var busyTimeout int
		if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
			t.Fatalf("failed to read busy_timeout: %v", err)
		}
		if busyTimeout != 5000 {
			t.Errorf("busy_timeout = %d, want 5000", busyTimeout)
		}
	})

	t.Run("in-memory database opens plain", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if _, err := db.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
			t.Errorf("in-memory database should be usable: %v", err)
		}
	})
}
