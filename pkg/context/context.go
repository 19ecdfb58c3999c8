// Package context carries run identity and pipeline phase through context.Context
package context

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/poltergeist/wraith/pkg/types"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	phaseKey
	startTimeKey
)

// UnknownRun is returned by GetRunID when no run id is present
const UnknownRun = "unknown-run"

// WithRunID adds a run ID to the context, generating one when empty
func WithRunID(parent context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(parent, runIDKey, runID)
}

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id
	}
	return UnknownRun
}

// WithPhase records the active pipeline phase
func WithPhase(parent context.Context, phase types.Phase) context.Context {
	return context.WithValue(parent, phaseKey, phase)
}

// GetPhase retrieves the active phase, or "" when none is set
func GetPhase(ctx context.Context) types.Phase {
	if p, ok := ctx.Value(phaseKey).(types.Phase); ok {
		return p
	}
	return ""
}

// WithStartTime adds the run start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the start time, reporting whether one was set
func GetStartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}

// GetDuration returns the time elapsed since the start time, or zero
func GetDuration(ctx context.Context) time.Duration {
	start, ok := GetStartTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// GenerateRunID creates a new unique run ID
func GenerateRunID() string {
	return "run_" + uuid.New().String()
}

// NewRun returns a context stamped with a fresh run ID and start time
func NewRun(parent context.Context) context.Context {
	ctx := parent
	if GetRunID(ctx) == UnknownRun {
		ctx = WithRunID(ctx, "")
	}
	return WithStartTime(ctx, time.Now())
}
