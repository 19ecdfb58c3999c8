package lint_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist/wraith/pkg/lint"
	"github.com/poltergeist/wraith/pkg/patch"
	"github.com/poltergeist/wraith/pkg/types"
)

func run(t *testing.T, text string, rules map[string]interface{}) types.LintRunResult {
	t.Helper()
	res, err := lint.NewRuleAnalyzer().Run("a.ts", text, types.LintOptions{Rules: rules}, nil)
	require.NoError(t, err)
	return res
}

func fixAll(t *testing.T, text string, res types.LintRunResult) string {
	t.Helper()
	task := types.NewFileTask("a.ts", text, res.Failures)
	out, err := patch.ApplyTask(task)
	require.NoError(t, err)
	return out
}

func TestRuleAnalyzer_Rules(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		rules     map[string]interface{}
		wantRules []types.RuleName
		wantFixed string
	}{
		{
			name:      "clean file",
			text:      "const a = 1;\n",
			rules:     map[string]interface{}{"trailing-whitespace": true, "eofline": true, "indent": true, "no-consecutive-blank-lines": true, "max-line-length": 80},
			wantFixed: "const a = 1;\n",
		},
		{
			name:      "trailing whitespace",
			text:      "a = 1;  \t\nb = 2;\n",
			rules:     map[string]interface{}{"trailing-whitespace": true},
			wantRules: []types.RuleName{types.RuleTrailingWhitespace},
			wantFixed: "a = 1;\nb = 2;\n",
		},
		{
			name:      "trailing whitespace keeps CRLF",
			text:      "a;  \r\nb;\r\n",
			rules:     map[string]interface{}{"trailing-whitespace": true},
			wantRules: []types.RuleName{types.RuleTrailingWhitespace},
			wantFixed: "a;\r\nb;\r\n",
		},
		{
			name:      "eofline",
			text:      "a = 1;",
			rules:     map[string]interface{}{"eofline": true},
			wantRules: []types.RuleName{types.RuleEOFLine},
			wantFixed: "a = 1;\n",
		},
		{
			name:      "empty file has no eofline finding",
			text:      "",
			rules:     map[string]interface{}{"eofline": true},
			wantFixed: "",
		},
		{
			name:      "indent with width",
			text:      "if (x) {\n\t\treturn;\n}\n",
			rules:     map[string]interface{}{"indent": 2},
			wantRules: []types.RuleName{types.RuleIndent},
			wantFixed: "if (x) {\n    return;\n}\n",
		},
		{
			name:      "blank lines",
			text:      "a\n\n\n\nb\n",
			rules:     map[string]interface{}{"no-consecutive-blank-lines": true},
			wantRules: []types.RuleName{types.RuleNoConsecutiveBlankLines},
			wantFixed: "a\n\nb\n",
		},
		{
			name:      "blank lines allowance",
			text:      "a\n\n\n\nb\n",
			rules:     map[string]interface{}{"no-consecutive-blank-lines": 3},
			wantFixed: "a\n\n\n\nb\n",
		},
		{
			name:      "max line length has no fix",
			text:      "0123456789\n",
			rules:     map[string]interface{}{"max-line-length": 5},
			wantRules: []types.RuleName{types.RuleMaxLineLength},
			wantFixed: "0123456789\n",
		},
		{
			name:      "disabled rule",
			text:      "a  \n",
			rules:     map[string]interface{}{"trailing-whitespace": false, "eofline": true},
			wantFixed: "a  \n",
		},
		{
			name: "all rules together do not overlap",
			text: "\tlet a = 1;   \n\t  \n\n\n\n\t\tb();\t\nend",
			rules: map[string]interface{}{
				"trailing-whitespace": true, "eofline": true, "indent": 2,
				"no-consecutive-blank-lines": true, "max-line-length": 200,
			},
			wantRules: []types.RuleName{
				types.RuleIndent, types.RuleTrailingWhitespace, types.RuleTrailingWhitespace,
				types.RuleNoConsecutiveBlankLines, types.RuleIndent, types.RuleTrailingWhitespace, types.RuleEOFLine,
			},
			wantFixed: "  let a = 1;\n\n\n    b();\nend\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.text, tt.rules)

			var got []types.RuleName
			for _, f := range res.Failures {
				got = append(got, f.Rule)
				assert.Equal(t, "a.ts", f.File)
			}
			assert.Equal(t, tt.wantRules, got)
			assert.Equal(t, len(res.Failures), res.FailureCount)
			assert.Equal(t, tt.wantFixed, fixAll(t, tt.text, res))
		})
	}
}

func TestRuleAnalyzer_DefaultRules(t *testing.T) {
	res := run(t, "a  \n\n\n\nb", nil)

	var got []types.RuleName
	for _, f := range res.Failures {
		got = append(got, f.Rule)
	}
	assert.Equal(t, []types.RuleName{types.RuleTrailingWhitespace, types.RuleNoConsecutiveBlankLines, types.RuleEOFLine}, got)
}

func TestRuleAnalyzer_Errors(t *testing.T) {
	_, err := lint.NewRuleAnalyzer().Run("a.ts", "", types.LintOptions{Rules: map[string]interface{}{"semicolon": true}}, nil)
	assert.ErrorIs(t, err, lint.ErrUnknownRule)

	_, err = lint.NewRuleAnalyzer().Run("a.ts", "", types.LintOptions{Rules: map[string]interface{}{"indent": "tabs"}}, nil)
	assert.ErrorIs(t, err, lint.ErrInvalidRuleValue)
}

func TestRuleAnalyzer_Positions(t *testing.T) {
	res := run(t, "ok\nbad  \n", map[string]interface{}{"trailing-whitespace": true})
	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, 6, f.Start)
	assert.Equal(t, 8, f.End)
	assert.Equal(t, 2, f.Line)
	assert.Equal(t, 4, f.Column)
}

func TestPosition(t *testing.T) {
	tests := []struct {
		text      string
		offset    int
		line, col int
	}{
		{"abc", 0, 1, 1},
		{"abc", 3, 1, 4},
		{"a\nb", 2, 2, 1},
		{"é\nxé", 6, 2, 3},
		{"abc", 99, 1, 4},
	}
	for _, tt := range tests {
		line, col := lint.Position(tt.text, tt.offset)
		assert.Equal(t, tt.line, line, "%q@%d", tt.text, tt.offset)
		assert.Equal(t, tt.col, col, "%q@%d", tt.text, tt.offset)
	}
}

func TestParseRules_Order(t *testing.T) {
	rs, err := lint.ParseRules(map[string]interface{}{"max-line-length": true, "indent": 0.0, "eofline": true})
	require.NoError(t, err)
	assert.Equal(t, []lint.RuleConfig{
		{Name: types.RuleEOFLine},
		{Name: types.RuleIndent, Arg: lint.DefaultIndentWidth},
		{Name: types.RuleMaxLineLength, Arg: lint.DefaultMaxLineLength},
	}, rs.Rules)
	assert.True(t, rs.Enabled(types.RuleIndent))
	assert.False(t, rs.Enabled(types.RuleTrailingWhitespace))
}

func TestFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := lint.NewFormatter(&buf, false)

	res := types.LintRunResult{FailureCount: 2, Failures: []types.Finding{
		{Rule: types.RuleTrailingWhitespace, Message: "trailing whitespace", File: "/p/src/a.ts", Severity: types.SeverityError, Line: 3, Column: 14},
		{Rule: types.RuleMaxLineLength, Message: "too long", File: "/p/src/a.ts", Severity: types.SeverityWarning, Line: 9, Column: 1},
	}}
	require.NoError(t, f.Print(res, "src/a.ts"))

	assert.Equal(t,
		"ERROR: (trailing-whitespace) src/a.ts[3, 14]: trailing whitespace\n"+
			"WARNING: (max-line-length) src/a.ts[9, 1]: too long\n",
		buf.String())
}
