// Package cli provides the command-line interface for wraith
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/poltergeist/wraith/internal/engine"
	"github.com/poltergeist/wraith/pkg/logger"
)

// ErrCompilationFailed is returned once a failed run has been reported
var ErrCompilationFailed = errors.New("compilation failed")

// ErrInvalidColor indicates a --color value other than auto, on or off
var ErrInvalidColor = errors.New("invalid color mode")

// EnvPrefix prefixes environment variables that override flags
const EnvPrefix = "WRAITH"

// CLI wires flags, environment and commands to the build engine
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	logger   logger.Logger
	console  *logger.ConsoleLogger
	output   io.Writer
	errorOut io.Writer

	workDir   string
	useColor  bool
	overrides engine.Dependencies
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(config *Config) *CLI {
	if config == nil {
		config = NewConfig()
	}

	c := &CLI{
		config:   config,
		viper:    viper.New(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}

	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing)
func NewCLIWithOutput(config *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(config)
	c.output = output
	c.errorOut = errorOut
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// WithDependencies replaces the default collaborators of every run with the
// non-nil fields of deps
func (c *CLI) WithDependencies(deps engine.Dependencies) *CLI {
	c.overrides = deps
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "wraith",
		Short: "Build a project and write lint-fixed copies of its sources",
		Long: `👻 wraith - load a project, run its code generation, analyze every source file
and emit outputs. Fixable lint findings are applied to copies of the sources
under a mirrored fixes directory; the originals are never touched.`,

		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initializeConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBuild(cmd.Context())
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("👻 wraith v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newWatchCmd())
	c.rootCmd.AddCommand(c.newStatusCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringP("project", "p", c.config.Project, "project file or directory containing wraith.config.*")
	flags.String("basePath", c.config.BasePath, "root for resolving input files (default: the project directory)")
	flags.String("fixes-dir", c.config.FixesDir, "directory receiving fixed copies (default: toolOptions.fixesDir or <basePath>/fixes)")
	flags.StringP("verbosity", "v", c.config.Verbosity, "log level (debug, info, warn, error)")
	flags.String("color", c.config.Color, "colorize output (auto, on, off)")
	flags.String("metrics-textfile", c.config.MetricsTextfile, "write Prometheus metrics to this file after each run")
	flags.String("log-file", c.config.LogFile, "also append log output to this file")
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	workDir, err := c.config.ResolveWorkDir()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	c.workDir = workDir

	if err := godotenv.Load(filepath.Join(workDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v := c.viper
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(c.rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	c.config.Project = v.GetString("project")
	c.config.BasePath = v.GetString("basePath")
	c.config.FixesDir = v.GetString("fixes-dir")
	c.config.Verbosity = v.GetString("verbosity")
	c.config.Color = v.GetString("color")
	c.config.MetricsTextfile = v.GetString("metrics-textfile")
	c.config.LogFile = v.GetString("log-file")

	useColor, err := c.resolveColor()
	if err != nil {
		return err
	}
	c.useColor = useColor
	color.NoColor = !useColor

	log, err := logger.CreateLogger(c.errorOut, c.resolve(c.config.LogFile), c.config.Verbosity, !useColor)
	if err != nil {
		return err
	}
	c.logger = log
	c.console = logger.NewConsoleLogger(c.output, c.errorOut)

	c.logger.Debug("Configuration resolved",
		logger.WithField("work_dir", workDir),
		logger.WithField("project", c.config.Project),
		logger.WithField("color", useColor))
	return nil
}

func (c *CLI) resolveColor() (bool, error) {
	switch strings.ToLower(c.config.Color) {
	case ColorOn:
		return true, nil
	case ColorOff:
		return false, nil
	case ColorAuto, "":
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return false, nil
		}
		f, ok := c.output.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidColor, c.config.Color)
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of wraith",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "👻 wraith v%s\n", c.config.Version)
		},
	}
}

// resolve anchors p at the working directory
func (c *CLI) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.workDir, p)
}
