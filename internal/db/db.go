// Package db persists tracking sessions to SQLite: per-tick loop
// stats, snapshots of the selected track, emitted drive commands,
// capture events and parameter-sweep results. The schema is managed
// by embedded golang-migrate migrations.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/kestrel-optics/pursuit.camera/internal/security"
)

type DB struct {
	*sql.DB

	path string
}

// OpenDB opens (creating if necessary) the SQLite database at path and
// applies the connection PRAGMAs. It does not touch the schema; use
// NewDB for the common open-and-migrate path, or the migrate
// subcommand for explicit schema control.
func OpenDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db := &DB{DB: sqldb, path: path}
	if err := db.applyPragmas(); err != nil {
		sqldb.Close()
		return nil, err
	}

	return db, nil
}

// NewDB opens the database at path and brings the schema up to the
// latest embedded migration version.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// applyPragmas sets the connection PRAGMAs every database needs:
// WAL journaling so the recorder can write while the HTTP surface
// reads, a busy timeout instead of immediate SQLITE_BUSY, NORMAL
// fsync and in-memory temp tables.
func (db *DB) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// Path returns the filesystem path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// Backup writes a consistent copy of the database into dir using
// VACUUM INTO and returns the path of the backup file. The target
// path is validated against dir before SQLite sees it.
func (db *DB) Backup(dir string) (string, error) {
	name := fmt.Sprintf("pursuit-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)

	if err := security.ValidatePathWithinDirectory(backupPath, dir); err != nil {
		return "", fmt.Errorf("invalid backup path: %w", err)
	}
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	return backupPath, nil
}

// AttachAdminRoutes mounts the database debug surface on mux: a
// tailSQL console for live queries and a backup endpoint that streams
// a gzipped VACUUM INTO copy of the database.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://pursuit.db", db.DB, &tailsql.DBOptions{
		Label: "Pursuit DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupDir, err := os.MkdirTemp("", "pursuit-backup-")
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
			return
		}
		defer os.RemoveAll(backupDir)

		backupPath, err := db.Backup(backupDir)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("failed to stream backup: %v", err)
		}
	}))
}
