package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/poltergeist/wraith/pkg/faults"
	"github.com/poltergeist/wraith/pkg/state"
	"github.com/poltergeist/wraith/pkg/types"
)

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last run",
		Long:  `Display the persisted record of the most recent run of the project, including per-phase timings.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStatus()
		},
	}
}

func (c *CLI) runStatus() error {
	cfg, err := c.loadProject()
	if err != nil {
		return c.reportFailure(faults.Configuration(err))
	}

	store := c.overrides.State
	if store == nil {
		store = state.NewManager(c.logger)
	}

	record, err := store.Read(cfg.ToolOptions.BasePath)
	if errors.Is(err, state.ErrNoState) {
		c.console.Info(fmt.Sprintf("No runs recorded for %s", cfg.ToolOptions.BasePath))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read run state: %w", err)
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Project:\t%s\n", cfg.ToolOptions.BasePath)
	fmt.Fprintf(w, "Run:\t%s\n", record.RunID)
	fmt.Fprintf(w, "Status:\t%s\n", statusColor(record.Status))
	fmt.Fprintf(w, "Started:\t%s\n", record.StartedAt.Format(time.RFC3339))
	if !record.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration:\t%s\n", record.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Runs:\t%d (%d failed)\n", record.RunCount, record.FailureCount)
	fmt.Fprintf(w, "Findings:\t%d\n", record.Findings)
	fmt.Fprintf(w, "Fixed copies:\t%d\n", len(record.PatchedFiles))
	fmt.Fprintf(w, "Outputs:\t%d\n", record.Emitted)
	if record.LastError != "" {
		fmt.Fprintf(w, "Failed phase:\t%s\n", record.FailedPhase)
		fmt.Fprintf(w, "Error:\t%s\n", record.LastError)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(record.Phases) == 0 {
		return nil
	}
	fmt.Fprintln(c.output)
	w = tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tDURATION\tRESULT")
	fmt.Fprintln(w, "-----\t--------\t------")
	for _, p := range record.Phases {
		result := color.GreenString("ok")
		if p.Error != "" {
			result = color.RedString("failed")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Phase, p.Duration.Round(time.Microsecond), result)
	}
	return w.Flush()
}

func statusColor(status types.RunStatus) string {
	s := string(status)
	switch status {
	case types.RunStatusSucceeded:
		return color.GreenString(s)
	case types.RunStatusFailed:
		return color.RedString(s)
	case types.RunStatusRunning:
		return color.YellowString(s)
	}
	return s
}
