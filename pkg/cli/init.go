package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/poltergeist/wraith/pkg/config"
	"github.com/poltergeist/wraith/pkg/fsys"
	"github.com/poltergeist/wraith/pkg/lint"
	"github.com/poltergeist/wraith/pkg/types"
)

// ErrProjectExists is returned by init when a project file is already present
var ErrProjectExists = errors.New("project file already exists")

// sourceDirs are probed in order; every one present gets an include pattern
var sourceDirs = []string{"src", "lib", "app"}

func (c *CLI) newInitCmd() *cobra.Command {
	var format string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a wraith project file in the working directory",
		Long: `Create a wraith.config file with include patterns for the source directories
found in the working directory and the default lint rules.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(format, force)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "project file format (json, yaml, toml)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing project file")
	return cmd
}

func (c *CLI) runInit(format string, force bool) error {
	fs := fsys.NewOS()

	if !force {
		for _, name := range config.ConfigFileNames {
			if path := filepath.Join(c.workDir, name); fsys.Exists(fs, path) {
				return fmt.Errorf("%w: %s (use --force to overwrite)", ErrProjectExists, path)
			}
		}
	}

	project := DefaultProject(detectSourceDirs(fs, c.workDir))
	data, ext, err := EncodeProject(project, format)
	if err != nil {
		return err
	}

	path := filepath.Join(c.workDir, "wraith.config"+ext)
	if err := fs.WriteFile(path, data, fsys.FilePerm); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}

	c.console.Success(fmt.Sprintf("Created project file at %s", path))
	c.console.Info("Run `wraith` to build, or `wraith watch` to rebuild on change")
	return nil
}

func detectSourceDirs(fs fsys.FileSystem, root string) []string {
	var dirs []string
	for _, dir := range sourceDirs {
		if fsys.IsDir(fs, filepath.Join(root, dir)) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// DefaultProject returns the project file written by init
func DefaultProject(sourceDirs []string) *types.ProjectFile {
	include := []string{"**/*.ts"}
	if len(sourceDirs) > 0 {
		include = include[:0]
		for _, dir := range sourceDirs {
			include = append(include, dir+"/**/*.ts")
		}
	}

	rules := make(map[string]interface{}, len(lint.DefaultRules))
	for name, value := range lint.DefaultRules {
		rules[name] = value
	}

	return &types.ProjectFile{
		Files:   []string{},
		Include: include,
		Exclude: []string{"dist/**", "fixes/**"},
		CompilerOptions: types.CompilerOptions{
			types.OptionOutDir:    "dist",
			types.OptionSourceMap: true,
		},
		ToolOptions: types.ToolOptions{
			Lint: types.LintOptions{Rules: rules},
		},
	}
}

// EncodeProject serializes project in format and returns the file extension
func EncodeProject(project *types.ProjectFile, format string) ([]byte, string, error) {
	switch format {
	case "json", "":
		data, err := json.MarshalIndent(project, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode project file: %w", err)
		}
		return append(data, '\n'), ".json", nil
	case "yaml", "yml":
		data, err := yaml.Marshal(project)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode project file: %w", err)
		}
		return data, ".yaml", nil
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(project); err != nil {
			return nil, "", fmt.Errorf("failed to encode project file: %w", err)
		}
		return buf.Bytes(), ".toml", nil
	}
	return nil, "", fmt.Errorf("unsupported project file format %q", format)
}
