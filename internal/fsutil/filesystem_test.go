package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryWriteReadRoundTrip(t *testing.T) {
	m := NewMemoryFileSystem()
	want := []byte(`{"strategy":"adaptive"}`)

	if err := m.WriteFile("/etc/pursuit/tuning.json", want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := m.ReadFile("/etc/pursuit/tuning.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("read back %q, want %q", got, want)
	}
}

func TestMemoryReadIsACopy(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.WriteFile("a.json", []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, _ := m.ReadFile("a.json")
	got[0] = 'X'

	again, _ := m.ReadFile("a.json")
	if string(again) != "original" {
		t.Errorf("mutation through a returned slice leaked into the store: %q", again)
	}
}

func TestMemoryReadMissing(t *testing.T) {
	m := NewMemoryFileSystem()
	_, err := m.ReadFile("nope.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile on missing file: err = %v, want fs.ErrNotExist", err)
	}
}

func TestMemoryStat(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.WriteFile("reports/summary.json", []byte("12345"), 0o600); err != nil {
		t.Fatal(err)
	}

	info, err := m.Stat("reports/summary.json")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Name() != "summary.json" || info.Size() != 5 || info.IsDir() {
		t.Errorf("Stat = {%s %d dir=%v}, want {summary.json 5 dir=false}",
			info.Name(), info.Size(), info.IsDir())
	}
	if info.Mode() != 0o600 {
		t.Errorf("Mode = %v, want 0600", info.Mode())
	}

	if _, err := m.Stat("reports/missing.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat missing: err = %v, want fs.ErrNotExist", err)
	}
}

func TestMemoryWriteImpliesParentDirs(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.WriteFile("/out/session/report.html", []byte("<html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{"/out", "/out/session"} {
		info, err := m.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%s): %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestMemoryMkdirAllAndExists(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.MkdirAll("/var/lib/pursuit/backups", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	for _, p := range []string{"/var", "/var/lib", "/var/lib/pursuit", "/var/lib/pursuit/backups"} {
		if !m.Exists(p) {
			t.Errorf("Exists(%s) = false after MkdirAll", p)
		}
	}
	if m.Exists("/var/lib/other") {
		t.Error("Exists reported a directory that was never created")
	}
}

func TestMemoryExistsCleansPaths(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.WriteFile("dir/../file.txt", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !m.Exists("file.txt") {
		t.Error("path was not cleaned on write")
	}
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "probe.txt")

	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := fsys.WriteFile(path, []byte("probe"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !fsys.Exists(path) {
		t.Error("Exists = false for a file just written")
	}

	got, err := fsys.ReadFile(path)
	if err != nil || string(got) != "probe" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}

	info, err := fsys.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("Size = %d, want 5", info.Size())
	}
	if fsys.Exists(filepath.Join(dir, "never")) {
		t.Error("Exists = true for a missing path")
	}
	_ = os.Remove(path)
}
