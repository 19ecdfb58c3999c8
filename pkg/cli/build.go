package cli

import (
	"context"
	"fmt"

	"github.com/poltergeist/wraith/internal/engine"
	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/metrics"
)

func (c *CLI) runBuild(ctx context.Context) error {
	rec := metrics.NewPrometheusRecorder(nil)
	report, err := c.newOrchestrator(rec).Run(ctx)
	c.writeMetrics(rec)
	if err != nil {
		return c.reportFailure(err)
	}
	c.reportSuccess(report)
	return nil
}

func (c *CLI) newOrchestrator(rec metrics.Recorder) *engine.Orchestrator {
	deps := engine.NewDependencyFactory(c.logger, rec).CreateWithOverrides(c.overrides)
	return engine.New(engine.Options{
		Project:   c.config.Project,
		BasePath:  c.config.BasePath,
		WorkDir:   c.workDir,
		FixesRoot: c.config.FixesDir,
		Output:    c.output,
		Color:     c.useColor,
	}, c.logger, deps)
}

func (c *CLI) writeMetrics(rec *metrics.PrometheusRecorder) {
	path := c.config.MetricsTextfile
	if path == "" {
		return
	}
	if err := rec.WriteTextfile(c.resolve(path)); err != nil {
		c.logger.Warn("Failed to write metrics textfile",
			logger.WithField("path", path),
			logger.WithError(err))
	}
}

// reportFailure prints err and the final failure line, and returns an error
// matching both ErrCompilationFailed and err
func (c *CLI) reportFailure(err error) error {
	fmt.Fprintln(c.errorOut, err)
	fmt.Fprintln(c.errorOut, "Compilation failed")
	return fmt.Errorf("%w: %w", ErrCompilationFailed, err)
}

func (c *CLI) reportSuccess(report *engine.RunReport) {
	for _, path := range report.PatchedFiles {
		c.console.Info(fmt.Sprintf("Fixed copy written to %s", path))
	}
	c.console.Success(fmt.Sprintf("Build finished: %d findings, %d fixed copies, %d outputs",
		len(report.Findings), len(report.PatchedFiles), len(report.Emitted)))
}
