// Package fsutil narrows file access to the handful of operations the
// tuning loader and report writers need, so tests can run against an
// in-memory tree instead of the host disk.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSystem is the file surface consumed by config loading and report
// output. OSFileSystem hits the disk; MemoryFileSystem backs tests.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error

	// Exists reports whether name is a file or directory. It folds all
	// stat errors into false; callers that need the distinction use Stat.
	Exists(name string) bool
}

// OSFileSystem passes straight through to the os package.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// MemoryFileSystem keeps files in a map keyed by cleaned path.
// Directories exist implicitly for every written file's parents plus
// anything created by MkdirAll. Safe for concurrent use.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string]memEntry
	dirs  map[string]struct{}
}

type memEntry struct {
	data []byte
	mode os.FileMode
}

// NewMemoryFileSystem returns an empty in-memory tree.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files: make(map[string]memEntry),
		dirs:  make(map[string]struct{}),
	}
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	e, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[name] = memEntry{data: buf, mode: perm}
	m.recordParents(filepath.Dir(name))
	return nil
}

func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if e, ok := m.files[name]; ok {
		return memInfo{name: filepath.Base(name), size: int64(len(e.data)), mode: e.mode}, nil
	}
	if _, ok := m.dirs[name]; ok {
		return memInfo{name: filepath.Base(name), mode: fs.ModeDir | 0o755, dir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordParents(filepath.Clean(path))
	return nil
}

func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if _, ok := m.files[name]; ok {
		return true
	}
	_, ok := m.dirs[name]
	return ok
}

// recordParents marks path and every ancestor as a directory.
// Callers hold m.mu.
func (m *MemoryFileSystem) recordParents(path string) {
	for path != "." && path != string(filepath.Separator) {
		m.dirs[path] = struct{}{}
		next := filepath.Dir(path)
		if next == path {
			return
		}
		path = next
	}
}

type memInfo struct {
	name string
	size int64
	mode os.FileMode
	dir  bool
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() os.FileMode  { return i.mode }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return i.dir }
func (i memInfo) Sys() any           { return nil }
