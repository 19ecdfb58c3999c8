// Package program models the compilable unit built from a file set
package program

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/poltergeist/wraith/pkg/types"
)

// Diagnostic codes reported by SourceProgram
const (
	CodeUnknownOption   = 5023
	CodeOptionType      = 5024
	CodeOptionValue     = 5025
	CodeFileNotFound    = 6053
	CodeFileUnreadable  = 6054
	CodeInvalidEncoding = 1490
)

// cacheSize bounds the number of source texts kept across rebuilds
const cacheSize = 1024

var (
	// ErrNotInProgram indicates a path that is not a root file
	ErrNotInProgram = errors.New("file is not part of the program")

	// ErrNoSource indicates a root file whose text could not be loaded
	ErrNoSource = errors.New("source text unavailable")
)

// Program is a compilable unit
type Program interface {
	RootFiles() []string
	Options() types.CompilerOptions
	OptionsDiagnostics() []types.Diagnostic
	SemanticDiagnostics() []types.Diagnostic
	SourceText(path string) (string, error)
}

// Factory builds a program. old, when non-nil, is the previous instance
// and may be used as a structural cache.
type Factory func(files []string, opts types.CompilerOptions, host Host, old Program) (Program, error)

type cachedSource struct {
	size    int64
	modTime time.Time
	text    string
}

// SourceProgram is the default line/text oriented program model
type SourceProgram struct {
	files       []string
	opts        types.CompilerOptions
	optionDiags []types.Diagnostic
	semDiags    []types.Diagnostic
	texts       map[string]string

	cache     *lru.Cache[string, cachedSource]
	cacheHits int
}

var _ Program = (*SourceProgram)(nil)

// NewSourceProgram implements Factory
func NewSourceProgram(files []string, opts types.CompilerOptions, host Host, old Program) (Program, error) {
	if host == nil {
		return nil, fmt.Errorf("failed to create program: host is required")
	}

	var cache *lru.Cache[string, cachedSource]
	if prev, ok := old.(*SourceProgram); ok && prev != nil {
		cache = prev.cache
	}
	if cache == nil {
		c, err := lru.New[string, cachedSource](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create source cache: %w", err)
		}
		cache = c
	}

	if opts == nil {
		opts = types.CompilerOptions{}
	}

	p := &SourceProgram{
		files:       append([]string(nil), files...),
		opts:        opts,
		optionDiags: ValidateOptions(opts),
		texts:       make(map[string]string, len(files)),
		cache:       cache,
	}

	for _, path := range p.files {
		p.load(host, path)
	}
	return p, nil
}

func (p *SourceProgram) load(host Host, path string) {
	info, err := host.Stat(path)
	if err != nil {
		p.semDiags = append(p.semDiags, types.Diagnostic{
			File:     path,
			Code:     CodeFileNotFound,
			Category: types.SeverityError,
			Message:  fmt.Sprintf("File '%s' not found.", path),
		})
		return
	}

	if cached, ok := p.cache.Get(path); ok && !written(host, path) &&
		cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		p.cacheHits++
		p.texts[path] = cached.text
		return
	}

	data, err := host.ReadFile(path)
	if err != nil {
		p.semDiags = append(p.semDiags, types.Diagnostic{
			File:     path,
			Code:     CodeFileUnreadable,
			Category: types.SeverityError,
			Message:  fmt.Sprintf("Cannot read file '%s': %v.", path, err),
		})
		return
	}

	if !utf8.Valid(data) {
		p.semDiags = append(p.semDiags, types.Diagnostic{
			File:     path,
			Code:     CodeInvalidEncoding,
			Category: types.SeverityError,
			Message:  "File is not valid UTF-8.",
		})
		return
	}

	text := string(data)
	p.texts[path] = text
	p.cache.Add(path, cachedSource{size: info.Size(), modTime: info.ModTime(), text: text})
}

func written(host Host, path string) bool {
	w, ok := host.(interface{ Written(string) bool })
	return ok && w.Written(path)
}

// RootFiles returns the input files in config order
func (p *SourceProgram) RootFiles() []string {
	return p.files
}

// Options returns the compiler options the program was built with
func (p *SourceProgram) Options() types.CompilerOptions {
	return p.opts
}

// OptionsDiagnostics returns option-level diagnostics
func (p *SourceProgram) OptionsDiagnostics() []types.Diagnostic {
	return p.optionDiags
}

// SemanticDiagnostics returns per-file diagnostics
func (p *SourceProgram) SemanticDiagnostics() []types.Diagnostic {
	return p.semDiags
}

// SourceText returns the loaded text of a root file
func (p *SourceProgram) SourceText(path string) (string, error) {
	if text, ok := p.texts[path]; ok {
		return text, nil
	}
	for _, f := range p.files {
		if f == path {
			return "", fmt.Errorf("%w: %s", ErrNoSource, path)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotInProgram, path)
}

// CacheHits reports how many root files were served from the shared cache
func (p *SourceProgram) CacheHits() int {
	return p.cacheHits
}

type optionKind int

const (
	stringOption optionKind = iota
	boolOption
)

var knownOptions = map[string]optionKind{
	types.OptionOutDir:         stringOption,
	types.OptionRootDir:        stringOption,
	types.OptionOutExt:         stringOption,
	types.OptionDeclarationExt: stringOption,
	types.OptionMetadataFormat: stringOption,
	types.OptionSourceMap:      boolOption,
	types.OptionBanner:         boolOption,
}

// ValidateOptions returns option-level diagnostics for opts, in key order
func ValidateOptions(opts types.CompilerOptions) []types.Diagnostic {
	var diags []types.Diagnostic
	add := func(code int, format string, args ...interface{}) {
		diags = append(diags, types.Diagnostic{
			Code:     code,
			Category: types.SeverityError,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	for _, key := range opts.Keys() {
		kind, ok := knownOptions[key]
		if !ok {
			add(CodeUnknownOption, "Unknown compiler option '%s'.", key)
			continue
		}

		value := opts[key]
		switch kind {
		case boolOption:
			if _, ok := value.(bool); !ok {
				add(CodeOptionType, "Compiler option '%s' requires a value of type boolean.", key)
			}
			continue
		case stringOption:
			if _, ok := value.(string); !ok {
				add(CodeOptionType, "Compiler option '%s' requires a value of type string.", key)
				continue
			}
		}

		s := value.(string)
		switch key {
		case types.OptionOutExt, types.OptionDeclarationExt:
			if !strings.HasPrefix(s, ".") || len(s) < 2 || strings.ContainsAny(s, `/\`) {
				add(CodeOptionValue, "Compiler option '%s' must be an extension starting with '.'.", key)
			}
		case types.OptionMetadataFormat:
			if s != string(types.MetadataFormatJSON) && s != string(types.MetadataFormatMsgpack) {
				add(CodeOptionValue, "Argument for '%s' option must be: 'json', 'msgpack'.", key)
			}
		case types.OptionOutDir, types.OptionRootDir:
			if s == "" {
				add(CodeOptionValue, "Compiler option '%s' must not be empty.", key)
			} else if filepath.Clean(s) == string(filepath.Separator) {
				add(CodeOptionValue, "Compiler option '%s' must not be the file system root.", key)
			}
		}
	}
	return diags
}
