package db

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

const sqliteMagic = "SQLite format 3\x00"

// TestBackupCreatesConsistentCopy verifies VACUUM INTO produces a
// standalone database file that reopens cleanly
func TestBackupCreatesConsistentCopy(t *testing.T) {
	db := newTestDB(t)

	s := &Session{Notes: "backup me"}
	if err := db.InsertSession(s); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}

	backupDir := t.TempDir()
	backupPath, err := db.Backup(backupDir)
	if err != nil {
		t.Fatalf("Failed to create backup: %v", err)
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("Failed to read backup file: %v", err)
	}
	if !strings.HasPrefix(string(data), sqliteMagic) {
		t.Error("Expected backup file to start with the SQLite magic")
	}

	// The copy should open and contain the session row
	backup, err := OpenDB(backupPath)
	if err != nil {
		t.Fatalf("Failed to open backup: %v", err)
	}
	defer backup.Close()

	got, err := backup.GetSession(s.ID)
	if err != nil {
		t.Fatalf("Failed to read session from backup: %v", err)
	}
	if got.Notes != "backup me" {
		t.Errorf("Expected session notes to survive backup, got %q", got.Notes)
	}
}

// localHostRequest builds a request that passes the debug handler's
// local-client check.
func localHostRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminDebugIndex(t *testing.T) {
	db := newTestDB(t)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from debug index, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "backup") {
		t.Error("Expected debug index to list the backup handler")
	}
	if !strings.Contains(body, "tailsql") {
		t.Error("Expected debug index to list the tailsql handler")
	}
}

func TestAdminBackupDownload(t *testing.T) {
	db := newTestDB(t)

	s := &Session{}
	if err := db.InsertSession(s); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/backup"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from backup endpoint, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", got)
	}

	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("Failed to open gzip stream: %v", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("Failed to read backup stream: %v", err)
	}
	if !strings.HasPrefix(string(data), sqliteMagic) {
		t.Error("Expected downloaded backup to start with the SQLite magic")
	}
}

func TestPath(t *testing.T) {
	db := newTestDB(t)
	if db.Path() == "" {
		t.Error("Expected Path to return the open path")
	}
}
