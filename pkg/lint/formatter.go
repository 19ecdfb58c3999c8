package lint

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/poltergeist/wraith/pkg/types"
)

// Formatter prints findings one per line as
// SEVERITY: (rule) path[line, col]: message
type Formatter struct {
	out      io.Writer
	severity map[types.Severity]*color.Color
	rule     *color.Color
	path     *color.Color
}

// NewFormatter creates a formatter writing to out
func NewFormatter(out io.Writer, useColor bool) *Formatter {
	f := &Formatter{
		out: out,
		severity: map[types.Severity]*color.Color{
			types.SeverityError:   color.New(color.FgRed, color.Bold),
			types.SeverityWarning: color.New(color.FgYellow, color.Bold),
		},
		rule: color.New(color.FgMagenta),
		path: color.New(color.FgCyan),
	}
	for _, c := range f.colors() {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

func (f *Formatter) colors() []*color.Color {
	return []*color.Color{f.severity[types.SeverityError], f.severity[types.SeverityWarning], f.rule, f.path}
}

// Format renders one finding. display replaces the finding's file when set.
func (f *Formatter) Format(finding types.Finding, display string) string {
	if display == "" {
		display = finding.File
	}
	sev := strings.ToUpper(string(finding.Severity))
	if c, ok := f.severity[finding.Severity]; ok {
		sev = c.Sprint(sev)
	}
	return fmt.Sprintf("%s: %s %s: %s",
		sev,
		f.rule.Sprintf("(%s)", finding.Rule),
		f.path.Sprintf("%s[%d, %d]", display, finding.Line, finding.Column),
		finding.Message,
	)
}

// Print writes every finding of result
func (f *Formatter) Print(result types.LintRunResult, display string) error {
	for _, finding := range result.Failures {
		if _, err := fmt.Fprintln(f.out, f.Format(finding, display)); err != nil {
			return fmt.Errorf("failed to print findings: %w", err)
		}
	}
	return nil
}
