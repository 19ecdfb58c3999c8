// Package lint provides the static analyzer and its findings formatter
package lint

import (
	"errors"
	"fmt"
	"sort"

	"github.com/poltergeist/wraith/pkg/program"
	"github.com/poltergeist/wraith/pkg/types"
)

var (
	// ErrUnknownRule indicates a rule name outside types.KnownRules
	ErrUnknownRule = errors.New("unknown lint rule")

	// ErrInvalidRuleValue indicates a rule value that is neither bool nor number
	ErrInvalidRuleValue = errors.New("invalid lint rule value")
)

// Analyzer evaluates one file and reports findings
type Analyzer interface {
	Run(path, text string, opts types.LintOptions, prog program.Program) (types.LintRunResult, error)
}

// RuleAnalyzer evaluates the enumerated text rules.
// The rules never produce overlapping fix ranges for one file.
type RuleAnalyzer struct{}

var _ Analyzer = (*RuleAnalyzer)(nil)

// NewRuleAnalyzer creates the default analyzer
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

// Run evaluates every enabled rule against text
func (a *RuleAnalyzer) Run(path, text string, opts types.LintOptions, _ program.Program) (types.LintRunResult, error) {
	rules, err := ParseRules(opts.Rules)
	if err != nil {
		return types.LintRunResult{}, fmt.Errorf("failed to configure analyzer: %w", err)
	}

	lines := splitLines(text)
	var findings []types.Finding
	for _, rule := range rules.Rules {
		for _, f := range ruleFuncs[rule.Name](text, lines, rule.Arg) {
			f.File = path
			f.Line, f.Column = Position(text, f.Start)
			findings = append(findings, f)
		}
	}

	order := make(map[types.RuleName]int, len(types.KnownRules))
	for i, r := range types.KnownRules {
		order[r] = i
	}
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return order[findings[i].Rule] < order[findings[j].Rule]
	})

	return types.LintRunResult{
		FailureCount: len(findings),
		Failures:     findings,
	}, nil
}

// Position converts a byte offset into a 1-based line and rune column
func Position(text string, offset int) (int, int) {
	if offset > len(text) {
		offset = len(text)
	}
	line, col := 1, 1
	for _, r := range text[:offset] {
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
