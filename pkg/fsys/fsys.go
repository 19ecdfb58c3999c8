// Package fsys abstracts the file system operations used by the pipeline
package fsys

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Default permissions for created entries
const (
	DirPerm  fs.FileMode = 0o755
	FilePerm fs.FileMode = 0o644
)

// FileSystem is the minimal file system surface the pipeline touches
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Mkdir(path string, perm fs.FileMode) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm fs.FileMode) error
	WalkDir(root string, fn fs.WalkDirFunc) error
}

// OS implements FileSystem on the host file system.
// WriteFile is atomic: data goes to a temp file in the target directory
// which is then renamed over the destination. Parent directories are not
// created.
type OS struct{}

// NewOS returns the host file system
func NewOS() *OS {
	return &OS{}
}

// Stat returns file info for path
func (OS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Mkdir creates a single directory
func (OS) Mkdir(path string, perm fs.FileMode) error {
	return os.Mkdir(path, perm)
}

// ReadFile reads the whole file
func (OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data atomically
func (OS) WriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

// WalkDir walks the tree rooted at root
func (OS) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// Exists reports whether path exists
func Exists(fsys FileSystem, path string) bool {
	_, err := fsys.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory
func IsDir(fsys FileSystem, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && info.IsDir()
}

// IsNotExist reports whether err means the entry is missing
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
