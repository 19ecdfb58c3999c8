package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist/wraith/pkg/config"
	"github.com/poltergeist/wraith/pkg/fsys"
	"github.com/poltergeist/wraith/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantRule interface{}
	}{
		{
			name: "json",
			file: "wraith.config.json",
			content: `{
				"files": ["src/a.ts"],
				"compilerOptions": {"outDir": "build", "sourceMap": false},
				"toolOptions": {"skipTemplateCodegen": true, "lint": {"rules": {"max-line-length": 120}}}
			}`,
			wantRule: float64(120),
		},
		{
			name: "yaml",
			file: "wraith.config.yaml",
			content: `files:
  - src/a.ts
compilerOptions:
  outDir: build
  sourceMap: false
toolOptions:
  skipTemplateCodegen: true
  lint:
    rules:
      max-line-length: 120
`,
			wantRule: float64(120),
		},
		{
			name: "toml",
			file: "wraith.config.toml",
			content: `files = ["src/a.ts"]

[compilerOptions]
outDir = "build"
sourceMap = false

[toolOptions]
skipTemplateCodegen = true

[toolOptions.lint.rules]
max-line-length = 120
`,
			wantRule: float64(120),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, tt.file), tt.content)

			cfg, err := config.NewManager(fsys.NewOS()).Load(dir, "")
			require.NoError(t, err)

			assert.Equal(t, []string{filepath.Join(dir, "src", "a.ts")}, cfg.FileNames)
			assert.Equal(t, "build", cfg.CompilerOptions.String(types.OptionOutDir, ""))
			assert.False(t, cfg.CompilerOptions.Bool(types.OptionSourceMap, true))
			assert.True(t, cfg.ToolOptions.SkipTemplateCodegen)
			assert.Equal(t, tt.wantRule, cfg.ToolOptions.Lint.Rules["max-line-length"])
			assert.Equal(t, dir, cfg.ToolOptions.BasePath)
			assert.Equal(t, dir, cfg.ProjectDir)
			assert.Equal(t, filepath.Join(dir, tt.file), cfg.ConfigPath)
		})
	}
}

func TestLoad_DiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "wraith.config.toml"), `files = ["b.ts"]`)
	writeFile(t, filepath.Join(dir, "wraith.config.yaml"), "files: [a.ts]\n")

	cfg, err := config.NewManager(nil).Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wraith.config.yaml"), cfg.ConfigPath)
}

func TestLoad_ExplicitFileLocator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	writeFile(t, path, `{"files": ["x.ts"]}`)

	base := filepath.Join(dir, "elsewhere")
	cfg, err := config.NewManager(nil).Load(path, base)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(base, "x.ts")}, cfg.FileNames)
	assert.Equal(t, base, cfg.ToolOptions.BasePath)
}

func TestLoad_IncludeExclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "wraith.config.json"), `{
		"files": ["src/z.ts"],
		"include": ["src/**/*.ts"],
		"exclude": ["src/vendor/", "**/*.spec.ts"]
	}`)
	for _, f := range []string{"src/z.ts", "src/a.ts", "src/lib/b.ts", "src/lib/b.spec.ts", "src/vendor/v.ts", "node_modules/m.ts", "src/readme.md"} {
		writeFile(t, filepath.Join(dir, f), "")
	}

	cfg, err := config.NewManager(nil).Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "src", "z.ts"),
		filepath.Join(dir, "src", "a.ts"),
		filepath.Join(dir, "src", "lib", "b.ts"),
	}, cfg.FileNames)
}

func TestLoad_IncludeSkipsGeneratedTrees(t *testing.T) {
	tests := []struct {
		name    string
		project string
		skipped []string
	}{
		{"defaults", `{"include": ["**/*.ts"]}`, []string{"dist/src/a.d.ts", "fixes/src/a.ts"}},
		{
			"configured",
			`{"include": ["**/*.ts"], "compilerOptions": {"outDir": "out"}, "toolOptions": {"fixesDir": "fixed"}}`,
			[]string{"out/src/a.d.ts", "fixed/src/a.ts"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "wraith.config.json"), tt.project)
			writeFile(t, filepath.Join(dir, "src", "a.ts"), "")
			for _, f := range tt.skipped {
				writeFile(t, filepath.Join(dir, f), "")
			}

			cfg, err := config.NewManager(nil).Load(dir, "")
			require.NoError(t, err)
			assert.Equal(t, []string{filepath.Join(dir, "src", "a.ts")}, cfg.FileNames)
		})
	}
}

func TestGeneratedDirs(t *testing.T) {
	dirs := config.GeneratedDirs(nil, types.ToolOptions{}, "/p")
	assert.Equal(t, []string{filepath.Join("/p", "dist"), filepath.Join("/p", "fixes")}, dirs)

	dirs = config.GeneratedDirs(types.CompilerOptions{"outDir": "/abs/out"}, types.ToolOptions{FixesDir: "f"}, "/p")
	assert.Equal(t, []string{"/abs/out", filepath.Join("/p", "f")}, dirs)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    error
		msg     string
	}{
		{"no input files", "wraith.config.json", `{"files": []}`, config.ErrConfigInvalid, "no input files"},
		{"unknown key", "wraith.config.json", `{"files": ["a.ts"], "target": "es5"}`, config.ErrConfigInvalid, `unknown key "target"`},
		{"unknown rule", "wraith.config.json", `{"files": ["a.ts"], "toolOptions": {"lint": {"rules": {"no-var": true}}}}`, config.ErrConfigInvalid, `unknown lint rule "no-var"`},
		{"bad rule value", "wraith.config.json", `{"files": ["a.ts"], "toolOptions": {"lint": {"rules": {"indent": "tabs"}}}}`, config.ErrConfigInvalid, "expected boolean or number"},
		{"basePath in project file", "wraith.config.json", `{"files": ["a.ts"], "toolOptions": {"basePath": "src"}}`, config.ErrConfigInvalid, "toolOptions.basePath cannot be set"},
		{"absolute fixesDir", "wraith.config.json", `{"files": ["a.ts"], "toolOptions": {"fixesDir": "/tmp/fixes"}}`, config.ErrConfigInvalid, "must be relative"},
		{"template without output", "wraith.config.json", `{"files": ["a.ts"], "toolOptions": {"codegen": {"templates": [{"source": "t.tmpl"}]}}}`, config.ErrConfigInvalid, "source and output are required"},
		{"garbage", "wraith.config.json", `{{{ not: [valid`, config.ErrConfigInvalid, "failed to parse"},
		{"bad toml", "wraith.config.toml", `files = [`, config.ErrConfigInvalid, "TOML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, tt.file), tt.content)

			_, err := config.NewManager(nil).Load(dir, "")
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	dir := t.TempDir()
	m := config.NewManager(nil)

	_, err := m.Load(dir, "")
	assert.ErrorIs(t, err, config.ErrConfigNotFound)

	_, err = m.Load(filepath.Join(dir, "missing.json"), "")
	assert.ErrorIs(t, err, config.ErrConfigNotFound)
}

func TestLoad_DeduplicatesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "wraith.config.json"), `{"files": ["a.ts", "./a.ts", "b.ts"]}`)

	cfg, err := config.NewManager(nil).Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.ts"), filepath.Join(dir, "b.ts")}, cfg.FileNames)
}
