// Package emit writes the primary and metadata artifacts of a program
package emit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/poltergeist/wraith/pkg/fsys"
	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/outtree"
	"github.com/poltergeist/wraith/pkg/program"
	"github.com/poltergeist/wraith/pkg/types"
)

var (
	// ErrOutsideRoot indicates a source outside both rootDir and basePath
	ErrOutsideRoot = errors.New("source file is outside the project root")

	// ErrPrimaryMissing indicates metadata was requested before the primary output exists
	ErrPrimaryMissing = errors.New("primary output missing")
)

// Emitter writes one family of artifacts for a program
type Emitter interface {
	Emit(ctx context.Context, host *Host, prog program.Program) error
}

// ArtifactKind labels a manifest entry
type ArtifactKind string

const (
	KindPrimary     ArtifactKind = "primary"
	KindSourceMap   ArtifactKind = "sourcemap"
	KindMetadata    ArtifactKind = "metadata"
	KindDeclaration ArtifactKind = "declaration"
)

// Settings are the emit-relevant compiler options with defaults applied
type Settings struct {
	BasePath       string
	OutDir         string
	RootDir        string
	OutExt         string
	DeclarationExt string
	SourceMap      bool
	Banner         bool
	MetadataFormat types.MetadataFormat
}

// ResolveSettings applies defaults and resolves directories against basePath
func ResolveSettings(opts types.CompilerOptions, basePath string) Settings {
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(basePath, p)
	}
	return Settings{
		BasePath:       basePath,
		OutDir:         abs(opts.String(types.OptionOutDir, types.DefaultOutDir)),
		RootDir:        abs(opts.String(types.OptionRootDir, ".")),
		OutExt:         opts.String(types.OptionOutExt, ".js"),
		DeclarationExt: opts.String(types.OptionDeclarationExt, ".d.ts"),
		SourceMap:      opts.Bool(types.OptionSourceMap, true),
		Banner:         opts.Bool(types.OptionBanner, true),
		MetadataFormat: types.MetadataFormat(opts.String(types.OptionMetadataFormat, string(types.MetadataFormatJSON))),
	}
}

// Entry records one written artifact
type Entry struct {
	Source string       `json:"source"`
	Output string       `json:"output"`
	Kind   ArtifactKind `json:"kind"`
	SHA256 string       `json:"sha256"`
	Size   int          `json:"size"`
}

// Host maps sources to output paths, writes artifacts and keeps a manifest
type Host struct {
	fs       fsys.FileSystem
	settings Settings
	logger   logger.Logger

	mu       sync.Mutex
	manifest map[string]Entry
	bySource map[string]map[ArtifactKind]string
}

// NewHost creates an emit host
func NewHost(fs fsys.FileSystem, settings Settings, log logger.Logger) *Host {
	if fs == nil {
		fs = fsys.NewOS()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Host{
		fs:       fs,
		settings: settings,
		logger:   log,
		manifest: make(map[string]Entry),
		bySource: make(map[string]map[ArtifactKind]string),
	}
}

// Settings returns the resolved emit settings
func (h *Host) Settings() Settings {
	return h.settings
}

// RelativeSource returns source relative to rootDir, falling back to
// basePath. Sources outside both fail with ErrOutsideRoot.
func (h *Host) RelativeSource(source string) (string, error) {
	for _, root := range []string{h.settings.RootDir, h.settings.BasePath} {
		rel, err := filepath.Rel(root, source)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return rel, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideRoot, source)
}

// OutputPath maps source to outDir with its extension replaced by ext
func (h *Host) OutputPath(source, ext string) (string, error) {
	rel, err := h.RelativeSource(source)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + ext
	return filepath.Join(h.settings.OutDir, rel), nil
}

// Write materializes the output directory and atomically writes data,
// recording the artifact in the manifest
func (h *Host) Write(source, output string, kind ArtifactKind, data []byte) error {
	if err := outtree.EnsureDir(h.fs, h.settings.OutDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	relDir, err := filepath.Rel(h.settings.OutDir, filepath.Dir(output))
	if err != nil {
		return fmt.Errorf("failed to resolve output %s: %w", output, err)
	}
	if err := outtree.Ensure(h.fs, h.settings.OutDir, relDir); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", output, err)
	}
	if err := h.fs.WriteFile(output, data, fsys.FilePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	sum := sha256.Sum256(data)
	entry := Entry{
		Source: source,
		Output: output,
		Kind:   kind,
		SHA256: hex.EncodeToString(sum[:]),
		Size:   len(data),
	}

	h.mu.Lock()
	h.manifest[output] = entry
	if h.bySource[source] == nil {
		h.bySource[source] = make(map[ArtifactKind]string)
	}
	h.bySource[source][kind] = output
	h.mu.Unlock()

	h.logger.Debug("Wrote artifact",
		logger.WithField("kind", string(kind)),
		logger.WithField("output", output),
		logger.WithField("bytes", len(data)))
	return nil
}

// Lookup returns the manifest entry of kind written for source
func (h *Host) Lookup(source string, kind ArtifactKind) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	output, ok := h.bySource[source][kind]
	if !ok {
		return Entry{}, false
	}
	return h.manifest[output], true
}

// Manifest returns every written artifact sorted by output path
func (h *Host) Manifest() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := make([]Entry, 0, len(h.manifest))
	for _, e := range h.manifest {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Output < entries[j].Output })
	return entries
}

// Outputs returns the output paths of kind
func (h *Host) Outputs(kind ArtifactKind) []string {
	var out []string
	for _, e := range h.Manifest() {
		if e.Kind == kind {
			out = append(out, e.Output)
		}
	}
	return out
}
