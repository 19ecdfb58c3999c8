// Package faults defines the typed errors that terminate a pipeline run
package faults

import (
	"errors"
	"fmt"

	"github.com/poltergeist/wraith/pkg/types"
)

// Kind classifies a fault
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindOptionsDiagnostic Kind = "options-diagnostic"
	KindCodegen           Kind = "codegen"
	KindPatch             Kind = "patch"
	KindIO                Kind = "io"
	KindUnknown           Kind = "unknown"
)

// Sentinel errors, one per kind, usable with errors.Is
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrOptionsDiagnostic = errors.New("compiler options are invalid")
	ErrCodegen           = errors.New("code generation failed")
	ErrPatch             = errors.New("patch failed")
	ErrIO                = errors.New("i/o failure")
)

var sentinels = map[Kind]error{
	KindConfiguration:     ErrConfiguration,
	KindOptionsDiagnostic: ErrOptionsDiagnostic,
	KindCodegen:           ErrCodegen,
	KindPatch:             ErrPatch,
	KindIO:                ErrIO,
}

// Fault is a terminal pipeline error
type Fault struct {
	Kind  Kind
	Phase types.Phase
	Path  string
	Err   error

	// Diagnostics is set for options-diagnostic faults
	Diagnostics []types.Diagnostic
}

// Error implements the error interface
func (f *Fault) Error() string {
	msg := string(f.Kind)
	if f.Phase != "" {
		msg = fmt.Sprintf("%s [%s]", msg, f.Phase)
	}
	if f.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, f.Path)
	}
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches the sentinel error of the fault's kind
func (f *Fault) Is(target error) bool {
	if s, ok := sentinels[f.Kind]; ok && s == target {
		return true
	}
	if t, ok := target.(*Fault); ok {
		return t.Kind == f.Kind && (t.Phase == "" || t.Phase == f.Phase)
	}
	return false
}

// New creates a fault of the given kind
func New(kind Kind, phase types.Phase, err error) *Fault {
	return &Fault{Kind: kind, Phase: phase, Err: err}
}

// WithPath attaches the offending file path
func (f *Fault) WithPath(path string) *Fault {
	f.Path = path
	return f
}

// Configuration wraps a config loader failure
func Configuration(err error) *Fault {
	return New(KindConfiguration, types.PhaseConfigLoad, err)
}

// OptionsDiagnostic reports fatal compiler option diagnostics
func OptionsDiagnostic(diags []types.Diagnostic) *Fault {
	return &Fault{
		Kind:        KindOptionsDiagnostic,
		Phase:       types.PhaseProgramCreate,
		Err:         fmt.Errorf("%d option diagnostic(s)", len(diags)),
		Diagnostics: diags,
	}
}

// Codegen wraps a code generation failure or panic
func Codegen(err error) *Fault {
	return New(KindCodegen, types.PhaseCodegen, err)
}

// Patch wraps a patch precondition violation for path
func Patch(path string, err error) *Fault {
	return New(KindPatch, types.PhaseAnalyze, err).WithPath(path)
}

// IO wraps a file system failure during phase
func IO(phase types.Phase, path string, err error) *Fault {
	return New(KindIO, phase, err).WithPath(path)
}

// KindOf returns the kind of the first fault in err's chain
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// PhaseOf returns the phase of the first fault in err's chain
func PhaseOf(err error) types.Phase {
	var f *Fault
	if errors.As(err, &f) {
		return f.Phase
	}
	return ""
}
