package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// PatternMatcher matches slash-separated relative paths against glob patterns.
// "*" and "?" stop at "/", "**" spans directories, "[...]" and "[!...]" are
// character classes.
type PatternMatcher struct {
	patterns []string
	regexps  []*regexp.Regexp
}

// NewPatternMatcher compiles patterns
func NewPatternMatcher(patterns []string) (*PatternMatcher, error) {
	pm := &PatternMatcher{
		patterns: make([]string, 0, len(patterns)),
		regexps:  make([]*regexp.Regexp, 0, len(patterns)),
	}
	for _, pattern := range patterns {
		pattern = NormalizePattern(pattern)
		re, err := globToRegex(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		pm.patterns = append(pm.patterns, pattern)
		pm.regexps = append(pm.regexps, re)
	}
	return pm, nil
}

// Patterns returns the normalized patterns
func (pm *PatternMatcher) Patterns() []string {
	return pm.patterns
}

// Empty reports whether the matcher has no patterns
func (pm *PatternMatcher) Empty() bool {
	return pm == nil || len(pm.regexps) == 0
}

// Match checks if a path matches any pattern
func (pm *PatternMatcher) Match(path string) bool {
	if pm == nil {
		return false
	}
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")
	for _, re := range pm.regexps {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// MatchesDirectory reports whether a pattern names dir itself or the whole
// tree under it ("dir", "dir/", "dir/**").
func (pm *PatternMatcher) MatchesDirectory(dir string) bool {
	if pm == nil {
		return false
	}
	dir = strings.TrimPrefix(filepath.ToSlash(dir), "./")
	return pm.Match(dir) || pm.Match(dir+"/__any__")
}

func globToRegex(pattern string) (*regexp.Regexp, error) {
	var regex strings.Builder
	regex.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch c := pattern[i]; c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// "**/" matches zero or more whole directories
					regex.WriteString("(?:.*/)?")
					i += 3
				} else {
					regex.WriteString(".*")
					i += 2
				}
			} else {
				regex.WriteString("[^/]*")
				i++
			}
		case '?':
			regex.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			var class strings.Builder
			if j < len(pattern) && pattern[j] == '!' {
				class.WriteString("[^")
				j++
			} else {
				class.WriteString("[")
			}
			for j < len(pattern) && pattern[j] != ']' {
				if pattern[j] == '\\' && j+1 < len(pattern) {
					class.WriteByte(pattern[j])
					class.WriteByte(pattern[j+1])
					j += 2
					continue
				}
				class.WriteByte(pattern[j])
				j++
			}
			if j < len(pattern) {
				class.WriteByte(']')
				regex.WriteString(class.String())
				i = j + 1
			} else {
				// unclosed bracket is a literal
				regex.WriteString(`\[`)
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				regex.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				regex.WriteString(`\\`)
				i++
			}
		default:
			regex.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}

	regex.WriteString("$")
	return regexp.Compile(regex.String())
}

// IsGlobPattern checks if a string contains glob wildcards
func IsGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// NormalizePattern converts OS separators to "/", drops a leading "./" and
// turns a trailing "/" into "/**".
func NormalizePattern(pattern string) string {
	pattern = filepath.ToSlash(pattern)
	pattern = strings.TrimPrefix(pattern, "./")
	if strings.HasSuffix(pattern, "/") {
		pattern = strings.TrimSuffix(pattern, "/") + "/**"
	}
	return pattern
}
