// Package types provides core types and configurations for wraith
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Phase represents a step of the build pipeline
type Phase string

const (
	PhaseConfigLoad    Phase = "config-load"
	PhaseProgramCreate Phase = "program-create"
	PhaseCodegen       Phase = "codegen"
	PhaseRecompile     Phase = "recompile"
	PhaseTypeCheck     Phase = "type-check"
	PhaseAnalyze       Phase = "analyze"
	PhaseEmitPrimary   Phase = "emit-primary"
	PhaseEmitMetadata  Phase = "emit-metadata"
	PhaseDone          Phase = "done"
)

// Phases lists every pipeline phase in execution order
var Phases = []Phase{
	PhaseConfigLoad,
	PhaseProgramCreate,
	PhaseCodegen,
	PhaseRecompile,
	PhaseTypeCheck,
	PhaseAnalyze,
	PhaseEmitPrimary,
	PhaseEmitMetadata,
	PhaseDone,
}

// RunStatus represents the outcome of a pipeline run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Severity represents the severity of a finding or diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// RuleName identifies a lint rule
type RuleName string

const (
	RuleTrailingWhitespace      RuleName = "trailing-whitespace"
	RuleEOFLine                 RuleName = "eofline"
	RuleIndent                  RuleName = "indent"
	RuleNoConsecutiveBlankLines RuleName = "no-consecutive-blank-lines"
	RuleMaxLineLength           RuleName = "max-line-length"
)

// KnownRules lists every rule the analyzer can evaluate
var KnownRules = []RuleName{
	RuleTrailingWhitespace,
	RuleEOFLine,
	RuleIndent,
	RuleNoConsecutiveBlankLines,
	RuleMaxLineLength,
}

// IsKnownRule reports whether name is an enumerated rule
func IsKnownRule(name string) bool {
	for _, r := range KnownRules {
		if string(r) == name {
			return true
		}
	}
	return false
}

// MetadataFormat selects the encoding of metadata documents
type MetadataFormat string

const (
	MetadataFormatJSON    MetadataFormat = "json"
	MetadataFormatMsgpack MetadataFormat = "msgpack"
)

// Compiler option keys understood by the default program model and emitters
// Generated trees under the base path when not configured otherwise
const (
	DefaultOutDir   = "dist"
	DefaultFixesDir = "fixes"
)

const (
	OptionOutDir         = "outDir"
	OptionRootDir        = "rootDir"
	OptionOutExt         = "outExt"
	OptionDeclarationExt = "declarationExt"
	OptionSourceMap      = "sourceMap"
	OptionMetadataFormat = "metadataFormat"
	OptionBanner         = "banner"
)

// CompilerOptions is the opaque option map handed to the program model
type CompilerOptions map[string]interface{}

// String returns a string option or def when unset or not a string
func (o CompilerOptions) String(key, def string) string {
	if v, ok := o[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns a bool option or def when unset or not a bool
func (o CompilerOptions) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Keys returns the option keys in sorted order
func (o CompilerOptions) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LintOptions configures the static analyzer
type LintOptions struct {
	Rules   map[string]interface{} `json:"rules,omitempty" yaml:"rules,omitempty" toml:"rules,omitempty"`
	Exclude []string               `json:"exclude,omitempty" yaml:"exclude,omitempty" toml:"exclude,omitempty"`
}

// TemplateSpec describes one template rendered by the codegen extension
type TemplateSpec struct {
	Source string `json:"source" yaml:"source" toml:"source"`
	Output string `json:"output" yaml:"output" toml:"output"`
}

// CodegenOptions configures the template codegen extension
type CodegenOptions struct {
	Templates []TemplateSpec `json:"templates,omitempty" yaml:"templates,omitempty" toml:"templates,omitempty"`
}

// NotificationOptions represents notification preferences for watch mode
type NotificationOptions struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	Sound   bool `json:"sound" yaml:"sound" toml:"sound"`
}

// ToolOptions holds wraith-specific options from the project file
type ToolOptions struct {
	BasePath            string              `json:"basePath,omitempty" yaml:"basePath,omitempty" toml:"basePath,omitempty"`
	SkipTemplateCodegen bool                `json:"skipTemplateCodegen" yaml:"skipTemplateCodegen" toml:"skipTemplateCodegen"`
	SkipMetadataEmit    bool                `json:"skipMetadataEmit" yaml:"skipMetadataEmit" toml:"skipMetadataEmit"`
	FixesDir            string              `json:"fixesDir,omitempty" yaml:"fixesDir,omitempty" toml:"fixesDir,omitempty"`
	Lint                LintOptions         `json:"lint" yaml:"lint" toml:"lint"`
	Codegen             CodegenOptions      `json:"codegen" yaml:"codegen" toml:"codegen"`
	Notifications       NotificationOptions `json:"notifications" yaml:"notifications" toml:"notifications"`
}

// ProjectFile is the on-disk shape of a wraith project file
type ProjectFile struct {
	Files           []string        `json:"files" yaml:"files" toml:"files"`
	Include         []string        `json:"include,omitempty" yaml:"include,omitempty" toml:"include,omitempty"`
	Exclude         []string        `json:"exclude,omitempty" yaml:"exclude,omitempty" toml:"exclude,omitempty"`
	CompilerOptions CompilerOptions `json:"compilerOptions" yaml:"compilerOptions" toml:"compilerOptions"`
	ToolOptions     ToolOptions     `json:"toolOptions" yaml:"toolOptions" toml:"toolOptions"`
}

// ParsedConfig is the normalized configuration of one run
type ParsedConfig struct {
	FileNames       []string
	CompilerOptions CompilerOptions
	ToolOptions     ToolOptions
	ConfigPath      string
	ProjectDir      string
}

// Diagnostic is a report produced by the program model
type Diagnostic struct {
	File     string   `json:"file,omitempty"`
	Code     int      `json:"code"`
	Category Severity `json:"category"`
	Message  string   `json:"message"`
	Start    int      `json:"start,omitempty"`
	End      int      `json:"end,omitempty"`
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("%s WR%d: %s", d.Category, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s WR%d: %s", d.File, d.Category, d.Code, d.Message)
}

// FormatDiagnostics joins diagnostics one per line
func FormatDiagnostics(diags []Diagnostic) string {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, d.String())
	}
	return strings.Join(lines, "\n")
}

// Replacement substitutes the half-open byte range [Start, End) of the
// original buffer with Text
type Replacement struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Length returns the number of original bytes replaced
func (r Replacement) Length() int { return r.End - r.Start }

// Fix is one candidate correction for a finding
type Fix struct {
	Description  string        `json:"description,omitempty"`
	Replacements []Replacement `json:"replacements"`
}

// Finding is a single static-analysis violation
type Finding struct {
	Rule     RuleName `json:"rule"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Severity Severity `json:"severity"`
	Fixes    []Fix    `json:"fixes,omitempty"`

	// Line and Column are 1-based and locate Start
	Line   int `json:"line"`
	Column int `json:"column"`
}

// HasFix reports whether the finding carries at least one fix
func (f Finding) HasFix() bool { return len(f.Fixes) > 0 }

// LintRunResult is the analyzer output for one file
type LintRunResult struct {
	FailureCount int       `json:"failureCount"`
	Failures     []Finding `json:"failures"`
}

// FileTask collects the replacements to apply to one source file
type FileTask struct {
	Path         string
	OriginalText string
	Replacements []Replacement
}

// NewFileTask builds a task from the first fix of every finding.
// Replacements are flattened in finding order and not deduplicated.
func NewFileTask(path, text string, findings []Finding) *FileTask {
	task := &FileTask{Path: path, OriginalText: text}
	for _, f := range findings {
		if !f.HasFix() {
			continue
		}
		task.Replacements = append(task.Replacements, f.Fixes[0].Replacements...)
	}
	return task
}

// IsEmpty reports whether the task has nothing to apply
func (t *FileTask) IsEmpty() bool { return len(t.Replacements) == 0 }
