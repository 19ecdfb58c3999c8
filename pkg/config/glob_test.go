package config_test

import (
	"testing"

	"github.com/poltergeist/wraith/pkg/config"
)

func TestPatternMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{"simple wildcard", []string{"*.ts"}, "main.ts", true},
		{"simple wildcard no match", []string{"*.ts"}, "main.js", false},
		{"wildcard stops at slash", []string{"*.ts"}, "src/main.ts", false},
		{"double wildcard", []string{"**/*.ts"}, "src/lib/main.ts", true},
		{"double wildcard root", []string{"**/*.ts"}, "main.ts", true},
		{"double wildcard middle", []string{"src/**/*.ts"}, "src/a.ts", true},
		{"double wildcard middle deep", []string{"src/**/*.ts"}, "src/a/b/c.ts", true},
		{"double wildcard prefix mismatch", []string{"src/**/*.ts"}, "lib/a.ts", false},
		{"question mark", []string{"test?.ts"}, "test1.ts", true},
		{"question mark no match", []string{"test?.ts"}, "test12.ts", false},
		{"character class", []string{"test[0-9].ts"}, "test5.ts", true},
		{"negated character class", []string{"test[!a-z].ts"}, "testa.ts", false},
		{"literal dot", []string{"a.ts"}, "abts", false},
		{"regex metachar is literal", []string{"a+b.ts"}, "a+b.ts", true},
		{"trailing slash means tree", []string{"vendor/"}, "vendor/x/y.ts", true},
		{"leading dot slash", []string{"./src/*.ts"}, "src/a.ts", true},
		{"multiple patterns", []string{"*.js", "*.ts"}, "a.ts", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := config.NewPatternMatcher(tt.patterns)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := pm.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) with %v = %v, want %v", tt.path, tt.patterns, got, tt.want)
			}
		})
	}
}

func TestPatternMatcher_MatchesDirectory(t *testing.T) {
	pm, err := config.NewPatternMatcher([]string{"dist/**", "build"})
	if err != nil {
		t.Fatal(err)
	}
	for dir, want := range map[string]bool{"dist": true, "build": true, "src": false} {
		if got := pm.MatchesDirectory(dir); got != want {
			t.Errorf("MatchesDirectory(%q) = %v, want %v", dir, got, want)
		}
	}
}

func TestPatternMatcher_NilAndEmpty(t *testing.T) {
	var pm *config.PatternMatcher
	if pm.Match("a") || !pm.Empty() {
		t.Error("nil matcher must match nothing and be empty")
	}
	empty, _ := config.NewPatternMatcher(nil)
	if !empty.Empty() {
		t.Error("expected empty matcher")
	}
}

func TestIsGlobPattern(t *testing.T) {
	if !config.IsGlobPattern("src/*.ts") || config.IsGlobPattern("src/a.ts") {
		t.Error("IsGlobPattern misclassified input")
	}
}
