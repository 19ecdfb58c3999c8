// Package config handles project file discovery, parsing and validation
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/poltergeist/wraith/pkg/fsys"
	"github.com/poltergeist/wraith/pkg/types"
)

var (
	// ErrConfigNotFound indicates no project file exists at the locator
	ErrConfigNotFound = errors.New("project file not found")

	// ErrConfigInvalid indicates the project file could not be parsed or validated
	ErrConfigInvalid = errors.New("invalid project file")
)

// ConfigFileNames are searched in order when the locator is a directory
var ConfigFileNames = []string{
	"wraith.config.json",
	"wraith.config.yaml",
	"wraith.config.yml",
	"wraith.config.toml",
}

var topLevelKeys = map[string]bool{
	"files":           true,
	"include":         true,
	"exclude":         true,
	"compilerOptions": true,
	"toolOptions":     true,
}

// skippedDirs are never descended into when expanding include globs
var skippedDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	".wraith":      true,
	"node_modules": true,
}

// Loader turns a locator into a parsed configuration
type Loader interface {
	Load(locator, basePath string) (*types.ParsedConfig, error)
}

// Manager loads project files
type Manager struct {
	fs fsys.FileSystem
}

var _ Loader = (*Manager)(nil)

// NewManager creates a new configuration manager
func NewManager(fs fsys.FileSystem) *Manager {
	if fs == nil {
		fs = fsys.NewOS()
	}
	return &Manager{fs: fs}
}

// Locate resolves a locator to a project file path
func (m *Manager) Locate(locator string) (string, error) {
	info, err := m.fs.Stat(locator)
	if err != nil {
		if fsys.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, locator)
		}
		return "", fmt.Errorf("failed to stat %s: %w", locator, err)
	}
	if !info.IsDir() {
		return locator, nil
	}

	for _, name := range ConfigFileNames {
		candidate := filepath.Join(locator, name)
		if info, err := m.fs.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no %s in %s", ErrConfigNotFound, strings.Join(ConfigFileNames, ", "), locator)
}

// Load reads the project file found at locator and resolves its inputs
// against basePath. An empty basePath means the project file's directory.
func (m *Manager) Load(locator, basePath string) (*types.ParsedConfig, error) {
	path, err := m.Locate(locator)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	project, err := m.LoadProjectFile(path)
	if err != nil {
		return nil, err
	}

	projectDir := filepath.Dir(path)
	if basePath == "" {
		basePath = projectDir
	}

	if err := m.ValidateProject(project); err != nil {
		return nil, err
	}

	files, err := m.resolveFiles(project, basePath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s: no input files", ErrConfigInvalid, path)
	}

	opts := project.CompilerOptions
	if opts == nil {
		opts = types.CompilerOptions{}
	}
	tool := project.ToolOptions
	tool.BasePath = basePath

	return &types.ParsedConfig{
		FileNames:       files,
		CompilerOptions: opts,
		ToolOptions:     tool,
		ConfigPath:      path,
		ProjectDir:      projectDir,
	}, nil
}

// LoadProjectFile parses a project file by extension. Every format is first
// decoded into a generic map and then normalized through JSON so numbers and
// nested tables look the same regardless of source format.
func (m *Manager) LoadProjectFile(path string) (*types.ProjectFile, error) {
	data, err := m.fs.ReadFile(path)
	if err != nil {
		if fsys.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	raw, err := decodeRaw(path, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}

	for key := range raw {
		if !topLevelKeys[key] {
			return nil, fmt.Errorf("%w: %s: unknown key %q", ErrConfigInvalid, path, key)
		}
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}

	var project types.ProjectFile
	if err := json.Unmarshal(normalized, &project); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	return &project, nil
}

func decodeRaw(path string, data []byte) (map[string]interface{}, error) {
	raw := make(map[string]interface{})

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		return raw, nil
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return raw, nil
	}

	// JSON first, then YAML, which also accepts most hand-edited JSON
	if err := json.Unmarshal(data, &raw); err == nil {
		return raw, nil
	}
	raw = make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("failed to parse as JSON or YAML")
}

// ValidateProject checks tool options that cannot be verified later
func (m *Manager) ValidateProject(project *types.ProjectFile) error {
	var problems []string

	names := make([]string, 0, len(project.ToolOptions.Lint.Rules))
	for name := range project.ToolOptions.Lint.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !types.IsKnownRule(name) {
			problems = append(problems, fmt.Sprintf("unknown lint rule %q", name))
			continue
		}
		switch v := project.ToolOptions.Lint.Rules[name].(type) {
		case bool:
		case float64:
			if v < 0 {
				problems = append(problems, fmt.Sprintf("lint rule %q: argument must not be negative", name))
			}
		default:
			problems = append(problems, fmt.Sprintf("lint rule %q: expected boolean or number", name))
		}
	}

	if project.ToolOptions.BasePath != "" {
		problems = append(problems, "toolOptions.basePath cannot be set in a project file; use --basePath")
	}

	if dir := project.ToolOptions.FixesDir; dir != "" && filepath.IsAbs(dir) {
		problems = append(problems, fmt.Sprintf("fixesDir %q must be relative", dir))
	}

	for i, tpl := range project.ToolOptions.Codegen.Templates {
		if tpl.Source == "" || tpl.Output == "" {
			problems = append(problems, fmt.Sprintf("codegen template %d: source and output are required", i))
		}
	}

	for _, pattern := range append(append([]string{}, project.Include...), project.Exclude...) {
		if _, err := globToRegex(NormalizePattern(pattern)); err != nil {
			problems = append(problems, fmt.Sprintf("invalid glob %q", pattern))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// GeneratedDirs returns the output directory and the project's fixes
// directory resolved against basePath. Include globs never descend into them.
func GeneratedDirs(opts types.CompilerOptions, tool types.ToolOptions, basePath string) []string {
	fixes := tool.FixesDir
	if fixes == "" {
		fixes = types.DefaultFixesDir
	}
	return []string{
		resolve(basePath, opts.String(types.OptionOutDir, types.DefaultOutDir)),
		resolve(basePath, fixes),
	}
}

// resolveFiles lists explicit files first in declared order, then sorted
// include matches not already listed and not excluded.
func (m *Manager) resolveFiles(project *types.ProjectFile, basePath string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, name := range project.Files {
		resolved := resolve(basePath, name)
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		files = append(files, resolved)
	}

	if len(project.Include) == 0 {
		return files, nil
	}

	include, err := NewPatternMatcher(project.Include)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	exclude, err := NewPatternMatcher(project.Exclude)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	generated := make(map[string]bool)
	for _, dir := range GeneratedDirs(project.CompilerOptions, project.ToolOptions, basePath) {
		generated[dir] = true
	}

	var matches []string
	err = m.fs.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == basePath {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(basePath, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] || generated[filepath.Clean(path)] || exclude.MatchesDirectory(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if include.Match(rel) && !exclude.Match(rel) {
			matches = append(matches, filepath.Clean(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expand include globs under %s: %w", basePath, err)
	}

	sort.Strings(matches)
	for _, path := range matches {
		if seen[path] {
			continue
		}
		seen[path] = true
		files = append(files, path)
	}
	return files, nil
}

func resolve(basePath, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(basePath, name)
}
