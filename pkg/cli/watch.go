package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/poltergeist/wraith/internal/engine"
	"github.com/poltergeist/wraith/pkg/config"
	"github.com/poltergeist/wraith/pkg/faults"
	"github.com/poltergeist/wraith/pkg/metrics"
	"github.com/poltergeist/wraith/pkg/notifier"
	"github.com/poltergeist/wraith/pkg/types"
	"github.com/poltergeist/wraith/pkg/watch"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild whenever project files change",
		Long: `Run a build, then watch the base path and rebuild after every burst of
changes. The output, fixes and state directories and codegen template
outputs are not watched. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context(), debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a rebuild starts")
	return cmd
}

func (c *CLI) runWatch(ctx context.Context, debounce time.Duration) error {
	cfg, err := c.loadProject()
	if err != nil {
		return c.reportFailure(faults.Configuration(err))
	}

	tool := cfg.ToolOptions
	project := filepath.Base(tool.BasePath)
	notify := notifier.New(tool.Notifications, c.logger)
	rec := metrics.NewPrometheusRecorder(nil)
	orch := c.newOrchestrator(rec)

	run := func(ctx context.Context, changed []string) error {
		if len(changed) > 0 {
			c.console.Info(fmt.Sprintf("%d file(s) changed, rebuilding", len(changed)))
		}
		notify.NotifyRunStart(project)

		start := time.Now()
		report, err := orch.Run(ctx)
		c.writeMetrics(rec)
		if err != nil {
			failure := c.reportFailure(err)
			notify.NotifyRunFailure(project, err)
			return failure
		}
		c.reportSuccess(report)
		notify.NotifyRunSuccess(project, time.Since(start), len(report.Findings))
		return nil
	}

	var extra []string
	if within(tool.BasePath, cfg.ConfigPath) == "" {
		extra = append(extra, cfg.ConfigPath)
	}

	w, err := watch.New(watch.Options{
		Root:     tool.BasePath,
		Extra:    extra,
		Ignore:   engine.GeneratedPaths(c.workDir, c.config.FixesDir, cfg),
		Debounce: debounce,
	}, run, c.logger)
	if err != nil {
		return err
	}

	c.console.Info(fmt.Sprintf("Watching %s (Ctrl+C to stop)", tool.BasePath))
	if err := w.Run(ctx); err != nil {
		return err
	}
	c.console.Success("wraith stopped")
	return nil
}

// loadProject loads the project file the way a run does, so the watcher
// knows which trees to observe
func (c *CLI) loadProject() (*types.ParsedConfig, error) {
	loader := c.overrides.ConfigLoader
	if loader == nil {
		loader = config.NewManager(nil)
	}

	locator := c.resolve(c.config.Project)
	if locator == "" {
		locator = c.workDir
	}
	cfg, err := loader.Load(locator, c.resolve(c.config.BasePath))
	if err != nil {
		return nil, err
	}
	if cfg.ToolOptions.BasePath == "" {
		cfg.ToolOptions.BasePath = c.resolve(c.config.BasePath)
	}
	if cfg.ToolOptions.BasePath == "" {
		cfg.ToolOptions.BasePath = cfg.ProjectDir
	}
	if cfg.ToolOptions.BasePath == "" {
		cfg.ToolOptions.BasePath = c.workDir
	}
	return cfg, nil
}

// within returns path relative to root, or "" when path is outside root
func within(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}
