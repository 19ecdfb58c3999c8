// Package metrics records phase timings and run outcomes
package metrics

import (
	"time"

	"github.com/poltergeist/wraith/pkg/types"
)

// ResultLabel classifies the outcome of one phase
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailure ResultLabel = "failure"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder receives observations from the orchestrator
type Recorder interface {
	ObservePhaseDuration(phase types.Phase, d time.Duration)
	IncPhaseResult(phase types.Phase, result ResultLabel)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(status types.RunStatus)
	AddFindings(rule string, n int)
	AddPatchedFiles(n int)
}

// NoopRecorder discards every observation
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) ObservePhaseDuration(types.Phase, time.Duration) {}
func (NoopRecorder) IncPhaseResult(types.Phase, ResultLabel)         {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                {}
func (NoopRecorder) IncRunOutcome(types.RunStatus)                   {}
func (NoopRecorder) AddFindings(string, int)                         {}
func (NoopRecorder) AddPatchedFiles(int)                             {}
