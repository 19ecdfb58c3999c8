package program

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/poltergeist/wraith/pkg/fsys"
	"github.com/poltergeist/wraith/pkg/outtree"
)

// Host is the file access surface handed to the program model and to
// code generation extensions
type Host interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Stat(path string) (fs.FileInfo, error)
}

// FSHost implements Host over an fsys.FileSystem. WriteFile creates missing
// parent directories and remembers the path, so a program built on this host
// never serves a cached copy of a file the host wrote.
type FSHost struct {
	fs fsys.FileSystem

	mu      sync.Mutex
	written map[string]bool
}

var _ Host = (*FSHost)(nil)

// NewHost creates a host over fs
func NewHost(fs fsys.FileSystem) *FSHost {
	if fs == nil {
		fs = fsys.NewOS()
	}
	return &FSHost{fs: fs, written: make(map[string]bool)}
}

// FileSystem returns the underlying file system
func (h *FSHost) FileSystem() fsys.FileSystem {
	return h.fs
}

// ReadFile reads a file
func (h *FSHost) ReadFile(path string) ([]byte, error) {
	return h.fs.ReadFile(path)
}

// Stat returns file info
func (h *FSHost) Stat(path string) (fs.FileInfo, error) {
	return h.fs.Stat(path)
}

// WriteFile writes a file atomically, materializing its parent directory
func (h *FSHost) WriteFile(path string, data []byte) error {
	if err := outtree.EnsureDir(h.fs, filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", path, err)
	}
	if err := h.fs.WriteFile(path, data, fsys.FilePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	h.mu.Lock()
	h.written[filepath.Clean(path)] = true
	h.mu.Unlock()
	return nil
}

// Written reports whether path was written through this host
func (h *FSHost) Written(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.written[filepath.Clean(path)]
}
