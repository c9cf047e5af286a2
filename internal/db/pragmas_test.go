package db

import (
	"path/filepath"
	"testing"
)

// Connection PRAGMAs the recorder depends on: WAL so the flusher can
// write while report queries read, a busy timeout instead of instant
// SQLITE_BUSY, NORMAL sync and in-memory temp tables for tick-rate
// writes.
var wantPragmas = []struct {
	pragma string
	want   string
}{
	{"journal_mode", "wal"},
	{"busy_timeout", "5000"},
	{"synchronous", "1"}, // NORMAL
	{"temp_store", "2"},  // MEMORY
}

func assertPragmas(t *testing.T, db *DB) {
	t.Helper()
	for _, p := range wantPragmas {
		var got string
		if err := db.QueryRow("PRAGMA " + p.pragma).Scan(&got); err != nil {
			t.Fatalf("query PRAGMA %s: %v", p.pragma, err)
		}
		if got != p.want {
			t.Errorf("PRAGMA %s = %s, want %s", p.pragma, got, p.want)
		}
	}
}

func TestNewDBAppliesPragmas(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "pragmas.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	assertPragmas(t, db)
}

// PRAGMAs are per-connection (except the persistent journal_mode), so
// a reopen without migrations must apply them again.
func TestOpenDBReappliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	first, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	first.Close()

	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	assertPragmas(t, db)
}
