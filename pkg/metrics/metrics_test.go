package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist/wraith/pkg/types"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObservePhaseDuration(types.PhaseAnalyze, 150*time.Millisecond)
	pr.IncPhaseResult(types.PhaseAnalyze, ResultSuccess)
	pr.IncPhaseResult(types.PhaseAnalyze, ResultSuccess)
	pr.IncPhaseResult(types.PhaseCodegen, ResultSkipped)
	pr.ObserveRunDuration(time.Second)
	pr.IncRunOutcome(types.RunStatusSucceeded)
	pr.AddFindings("eofline", 3)
	pr.AddFindings("indent", 0)
	pr.AddPatchedFiles(2)
	pr.AddPatchedFiles(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.phaseResults.WithLabelValues(string(types.PhaseAnalyze), string(ResultSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.phaseResults.WithLabelValues(string(types.PhaseCodegen), string(ResultSkipped))))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.runOutcomes.WithLabelValues(string(types.RunStatusSucceeded))))
	assert.Equal(t, 3.0, testutil.ToFloat64(pr.findings.WithLabelValues("eofline")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pr.patchedFiles))
	assert.Equal(t, 1, testutil.CollectAndCount(pr.findings))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestPrometheusRecorder_NilRegistry(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	require.NotNil(t, pr.Registry())
	pr.AddPatchedFiles(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.patchedFiles))
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncRunOutcome(types.RunStatusFailed)

	path := filepath.Join(t.TempDir(), "wraith.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `wraith_run_outcomes_total{status="failed"} 1`)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObservePhaseDuration(types.PhaseDone, time.Second)
	r.IncPhaseResult(types.PhaseDone, ResultFailure)
	r.ObserveRunDuration(time.Second)
	r.IncRunOutcome(types.RunStatusFailed)
	r.AddFindings("x", 1)
	r.AddPatchedFiles(1)
}
