package lint

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/poltergeist/wraith/pkg/types"
)

// Rule defaults applied when a rule is enabled with `true`
const (
	DefaultIndentWidth   = 4
	DefaultMaxLineLength = 120
	DefaultMaxBlankLines = 1
)

// DefaultRules are enabled when the rule map is empty
var DefaultRules = map[string]interface{}{
	string(types.RuleTrailingWhitespace):      true,
	string(types.RuleEOFLine):                 true,
	string(types.RuleNoConsecutiveBlankLines): true,
}

// RuleConfig is one enabled rule with its argument
type RuleConfig struct {
	Name types.RuleName
	Arg  int
}

// RuleSet is the parsed, ordered set of enabled rules
type RuleSet struct {
	Rules []RuleConfig
}

// Enabled reports whether name is in the set
func (rs RuleSet) Enabled(name types.RuleName) bool {
	for _, r := range rs.Rules {
		if r.Name == name {
			return true
		}
	}
	return false
}

// ParseRules converts the configured rule map into a RuleSet.
// Rules are ordered as in types.KnownRules.
func ParseRules(rules map[string]interface{}) (RuleSet, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !types.IsKnownRule(name) {
			return RuleSet{}, fmt.Errorf("%w: %q", ErrUnknownRule, name)
		}
	}

	var rs RuleSet
	for _, name := range types.KnownRules {
		value, ok := rules[string(name)]
		if !ok {
			continue
		}
		arg, enabled, err := ruleArg(value)
		if err != nil {
			return RuleSet{}, fmt.Errorf("rule %q: %w", name, err)
		}
		if !enabled {
			continue
		}
		if arg <= 0 {
			arg = defaultArg(name)
		}
		rs.Rules = append(rs.Rules, RuleConfig{Name: name, Arg: arg})
	}
	return rs, nil
}

func ruleArg(value interface{}) (int, bool, error) {
	switch v := value.(type) {
	case bool:
		return 0, v, nil
	case float64:
		return int(v), true, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	}
	return 0, false, fmt.Errorf("%w: %T", ErrInvalidRuleValue, value)
}

func defaultArg(name types.RuleName) int {
	switch name {
	case types.RuleIndent:
		return DefaultIndentWidth
	case types.RuleMaxLineLength:
		return DefaultMaxLineLength
	case types.RuleNoConsecutiveBlankLines:
		return DefaultMaxBlankLines
	}
	return 0
}

// line is one line of a buffer. [start, contentEnd) is the text without the
// terminator; next is the offset of the following line.
type line struct {
	start      int
	contentEnd int
	next       int
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for start < len(text) {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			lines = append(lines, line{start: start, contentEnd: len(text), next: len(text)})
			break
		}
		end := start + nl
		contentEnd := end
		if contentEnd > start && text[contentEnd-1] == '\r' {
			contentEnd--
		}
		lines = append(lines, line{start: start, contentEnd: contentEnd, next: end + 1})
		start = end + 1
	}
	return lines
}

func isBlank(s string) bool {
	return strings.TrimLeft(s, " \t") == ""
}

type ruleFunc func(text string, lines []line, arg int) []types.Finding

var ruleFuncs = map[types.RuleName]ruleFunc{
	types.RuleTrailingWhitespace:      trailingWhitespace,
	types.RuleEOFLine:                 eofLine,
	types.RuleIndent:                  indent,
	types.RuleNoConsecutiveBlankLines: consecutiveBlankLines,
	types.RuleMaxLineLength:           maxLineLength,
}

func deletion(description string, start, end int) []types.Fix {
	return []types.Fix{{
		Description:  description,
		Replacements: []types.Replacement{{Start: start, End: end, Text: ""}},
	}}
}

func trailingWhitespace(text string, lines []line, _ int) []types.Finding {
	var out []types.Finding
	for _, l := range lines {
		content := text[l.start:l.contentEnd]
		trimmed := strings.TrimRight(content, " \t")
		if len(trimmed) == len(content) {
			continue
		}
		start := l.start + len(trimmed)
		out = append(out, types.Finding{
			Rule:     types.RuleTrailingWhitespace,
			Message:  "trailing whitespace",
			Start:    start,
			End:      l.contentEnd,
			Severity: types.SeverityError,
			Fixes:    deletion("remove trailing whitespace", start, l.contentEnd),
		})
	}
	return out
}

func eofLine(text string, _ []line, _ int) []types.Finding {
	if text == "" || strings.HasSuffix(text, "\n") {
		return nil
	}
	return []types.Finding{{
		Rule:     types.RuleEOFLine,
		Message:  "file should end with a newline",
		Start:    len(text),
		End:      len(text),
		Severity: types.SeverityError,
		Fixes: []types.Fix{{
			Description:  "insert final newline",
			Replacements: []types.Replacement{{Start: len(text), End: len(text), Text: "\n"}},
		}},
	}}
}

// indent replaces tabs in leading whitespace with width spaces each.
// Whitespace-only lines belong to trailing-whitespace.
func indent(text string, lines []line, width int) []types.Finding {
	var out []types.Finding
	for _, l := range lines {
		content := text[l.start:l.contentEnd]
		if isBlank(content) {
			continue
		}
		lead := content[:len(content)-len(strings.TrimLeft(content, " \t"))]
		if !strings.Contains(lead, "\t") {
			continue
		}
		replacement := strings.ReplaceAll(lead, "\t", strings.Repeat(" ", width))
		out = append(out, types.Finding{
			Rule:     types.RuleIndent,
			Message:  fmt.Sprintf("tab indentation, expected %d spaces per level", width),
			Start:    l.start,
			End:      l.start + len(lead),
			Severity: types.SeverityError,
			Fixes: []types.Fix{{
				Description:  "convert tabs to spaces",
				Replacements: []types.Replacement{{Start: l.start, End: l.start + len(lead), Text: replacement}},
			}},
		})
	}
	return out
}

// consecutiveBlankLines only considers truly empty lines
func consecutiveBlankLines(text string, lines []line, allowed int) []types.Finding {
	var out []types.Finding
	run := 0
	flush := func(i int) {
		if run > allowed {
			first := lines[i-run+allowed]
			last := lines[i-1]
			out = append(out, types.Finding{
				Rule:     types.RuleNoConsecutiveBlankLines,
				Message:  fmt.Sprintf("%d consecutive blank lines, at most %d allowed", run, allowed),
				Start:    first.start,
				End:      last.next,
				Severity: types.SeverityError,
				Fixes:    deletion("remove extra blank lines", first.start, last.next),
			})
		}
		run = 0
	}
	for i, l := range lines {
		if l.start == l.contentEnd && l.next > l.start {
			run++
			continue
		}
		flush(i)
	}
	flush(len(lines))
	return out
}

func maxLineLength(text string, lines []line, limit int) []types.Finding {
	var out []types.Finding
	for _, l := range lines {
		n := utf8.RuneCountInString(text[l.start:l.contentEnd])
		if n <= limit {
			continue
		}
		out = append(out, types.Finding{
			Rule:     types.RuleMaxLineLength,
			Message:  fmt.Sprintf("exceeds maximum line length of %d (%d)", limit, n),
			Start:    l.start,
			End:      l.contentEnd,
			Severity: types.SeverityWarning,
		})
	}
	return out
}
