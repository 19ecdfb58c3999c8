package mocks

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poltergeist/wraith/pkg/fsys"
)

// FSCall records one file system operation
type FSCall struct {
	Op   string
	Path string
}

// MockFileSystem is an in-memory fsys.FileSystem that records every call
type MockFileSystem struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte
	calls []FSCall

	// mtimes advance one second per write so every write is observable
	mtimes map[string]time.Time
	clock  int64

	mkdirErrors map[string]error
	writeErrors map[string]error
	readErrors  map[string]error
}

var _ fsys.FileSystem = (*MockFileSystem)(nil)

// NewMockFileSystem creates a file system containing only the root "/"
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		dirs:        map[string]bool{string(filepath.Separator): true},
		files:       make(map[string][]byte),
		mtimes:      make(map[string]time.Time),
		mkdirErrors: make(map[string]error),
		writeErrors: make(map[string]error),
		readErrors:  make(map[string]error),
	}
}

// AddDir creates path and all of its parents
func (m *MockFileSystem) AddDir(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := filepath.Clean(path); ; p = filepath.Dir(p) {
		m.dirs[p] = true
		if p == filepath.Dir(p) {
			return
		}
	}
}

// AddFile creates a file, adding its parent directories
func (m *MockFileSystem) AddFile(path, content string) {
	m.AddDir(filepath.Dir(path))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = []byte(content)
	m.touchLocked(filepath.Clean(path))
}

func (m *MockFileSystem) touchLocked(path string) {
	m.clock++
	m.mtimes[path] = time.Unix(m.clock, 0)
}

// File returns the content of path and whether it exists
func (m *MockFileSystem) File(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[filepath.Clean(path)]
	return string(data), ok
}

// Files returns every file path in sorted order
func (m *MockFileSystem) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Calls returns the recorded operations
func (m *MockFileSystem) Calls() []FSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount counts recorded operations named op
func (m *MockFileSystem) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log
func (m *MockFileSystem) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SetMkdirError makes Mkdir(path) fail
func (m *MockFileSystem) SetMkdirError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirErrors[filepath.Clean(path)] = err
}

// SetWriteError makes WriteFile(path) fail
func (m *MockFileSystem) SetWriteError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrors[filepath.Clean(path)] = err
}

// SetReadError makes ReadFile(path) fail
func (m *MockFileSystem) SetReadError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrors[filepath.Clean(path)] = err
}

func (m *MockFileSystem) record(op, path string) {
	m.calls = append(m.calls, FSCall{Op: op, Path: path})
}

// Stat implements fsys.FileSystem
func (m *MockFileSystem) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.record("stat", path)
	return m.statLocked(path)
}

func (m *MockFileSystem) statLocked(path string) (fs.FileInfo, error) {
	if m.dirs[path] {
		return memInfo{name: filepath.Base(path), dir: true}, nil
	}
	if data, ok := m.files[path]; ok {
		return memInfo{name: filepath.Base(path), size: int64(len(data)), modTime: m.mtimes[path]}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

// Mkdir implements fsys.FileSystem
func (m *MockFileSystem) Mkdir(path string, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.record("mkdir", path)

	if err := m.mkdirErrors[path]; err != nil {
		return &fs.PathError{Op: "mkdir", Path: path, Err: err}
	}
	if _, err := m.statLocked(path); err == nil {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
	}
	if !m.dirs[filepath.Dir(path)] {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrNotExist}
	}
	m.dirs[path] = true
	return nil
}

// ReadFile implements fsys.FileSystem
func (m *MockFileSystem) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.record("read", path)

	if err := m.readErrors[path]; err != nil {
		return nil, &fs.PathError{Op: "read", Path: path, Err: err}
	}
	data, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile implements fsys.FileSystem
func (m *MockFileSystem) WriteFile(path string, data []byte, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.record("write", path)

	if err := m.writeErrors[path]; err != nil {
		return &fs.PathError{Op: "write", Path: path, Err: err}
	}
	if !m.dirs[filepath.Dir(path)] {
		return &fs.PathError{Op: "write", Path: path, Err: fs.ErrNotExist}
	}
	if m.dirs[path] {
		return &fs.PathError{Op: "write", Path: path, Err: fs.ErrInvalid}
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.files[path] = stored
	m.touchLocked(path)
	return nil
}

// WalkDir implements fsys.FileSystem in lexical order
func (m *MockFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	m.mu.Lock()
	root = filepath.Clean(root)
	m.record("walk", root)
	var paths []string
	prefix := root + string(filepath.Separator)
	if root == string(filepath.Separator) {
		prefix = root
	}
	for p := range m.dirs {
		if p == root || strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	for p := range m.files {
		if p == root || strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	infos := make(map[string]fs.FileInfo, len(paths))
	for _, p := range paths {
		info, _ := m.statLocked(p)
		infos[p] = info
	}
	m.mu.Unlock()

	if len(paths) == 0 {
		return fn(root, nil, &fs.PathError{Op: "walk", Path: root, Err: fs.ErrNotExist})
	}

	sort.Strings(paths)
	var skipped []string
	for _, p := range paths {
		skip := false
		for _, s := range skipped {
			if strings.HasPrefix(p, s+string(filepath.Separator)) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		err := fn(p, fs.FileInfoToDirEntry(infos[p]), nil)
		if err == fs.SkipDir {
			if infos[p].IsDir() {
				skipped = append(skipped, p)
				continue
			}
			return nil
		}
		if err == fs.SkipAll {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type memInfo struct {
	name    string
	size    int64
	dir     bool
	modTime time.Time
}

func (i memInfo) Name() string { return i.name }
func (i memInfo) Size() int64  { return i.size }
func (i memInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | fsys.DirPerm
	}
	return fsys.FilePerm
}
func (i memInfo) ModTime() time.Time { return i.modTime }
func (i memInfo) IsDir() bool        { return i.dir }
func (i memInfo) Sys() any           { return nil }
