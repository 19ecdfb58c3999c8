// Package outtree materializes nested directories under an output root
package outtree

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/poltergeist/wraith/pkg/fsys"
)

var (
	// ErrNotDirectory indicates a path component exists but is not a directory
	ErrNotDirectory = errors.New("path component is not a directory")

	// ErrEscapesRoot indicates rel is absolute or climbs out of root
	ErrEscapesRoot = errors.New("relative path escapes output root")
)

// Ensure makes sure root/rel exists as a directory, creating missing
// components front to back. root itself must already exist.
//
// The ancestor chain is scanned from the deepest entry upward until an
// existing directory is found, so a second call for the same rel performs
// only a single stat.
func Ensure(fs fsys.FileSystem, root, rel string) error {
	chain, err := Chain(root, rel)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return nil
	}

	// first index of chain that does not exist yet
	missing := len(chain)
	for i := len(chain) - 1; i >= 0; i-- {
		info, err := fs.Stat(chain[i])
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%w: %s", ErrNotDirectory, chain[i])
			}
			break
		}
		if !fsys.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", chain[i], err)
		}
		missing = i
	}

	for _, dir := range chain[missing:] {
		if err := fs.Mkdir(dir, fsys.DirPerm); err != nil {
			// lost a race with another writer; accept an existing directory
			if fsys.IsDir(fs, dir) {
				continue
			}
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureParent ensures the parent directory of the file at root/relFile
func EnsureParent(fs fsys.FileSystem, root, relFile string) error {
	return Ensure(fs, root, filepath.Dir(relFile))
}

// EnsureDir ensures dir exists, walking from the file system root for
// absolute paths and from "." otherwise
func EnsureDir(fs fsys.FileSystem, dir string) error {
	dir = filepath.Clean(dir)
	if !filepath.IsAbs(dir) {
		return Ensure(fs, ".", dir)
	}
	root := filepath.VolumeName(dir) + string(filepath.Separator)
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return Ensure(fs, root, rel)
}

// Chain returns the ancestor chain of root/rel, shallowest first, excluding
// root. Empty and "." yield an empty chain.
func Chain(root, rel string) ([]string, error) {
	if rel == "" {
		return nil, nil
	}
	if filepath.IsAbs(rel) {
		return nil, fmt.Errorf("%w: %s", ErrEscapesRoot, rel)
	}

	clean := filepath.Clean(rel)
	if clean == "." {
		return nil, nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrEscapesRoot, rel)
	}

	segments := strings.Split(clean, string(filepath.Separator))
	chain := make([]string, 0, len(segments))
	current := root
	for _, seg := range segments {
		current = filepath.Join(current, seg)
		chain = append(chain, current)
	}
	return chain, nil
}
