package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/poltergeist/wraith/pkg/types"
)

const namespace = "wraith"

// PrometheusRecorder implements Recorder on a Prometheus registry
type PrometheusRecorder struct {
	registry      *prom.Registry
	phaseDuration *prom.HistogramVec
	phaseResults  *prom.CounterVec
	runDuration   prom.Histogram
	runOutcomes   *prom.CounterVec
	findings      *prom.CounterVec
	patchedFiles  prom.Counter
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the run metrics on reg, or on a fresh
// registry when reg is nil
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual pipeline phases",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"}),
		phaseResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "phase_results_total",
			Help:      "Phase result counts by outcome",
		}, []string{"phase", "result"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.DefBuckets,
		}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Pipeline runs by final status",
		}, []string{"status"}),
		findings: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "lint_findings_total",
			Help:      "Analyzer findings by rule",
		}, []string{"rule"}),
		patchedFiles: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "patched_files_total",
			Help:      "Files written to the fixes tree",
		}),
	}
	reg.MustRegister(pr.phaseDuration, pr.phaseResults, pr.runDuration, pr.runOutcomes, pr.findings, pr.patchedFiles)
	return pr
}

// Registry returns the registry the metrics are registered on
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

// ObservePhaseDuration records how long phase took
func (p *PrometheusRecorder) ObservePhaseDuration(phase types.Phase, d time.Duration) {
	p.phaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}

// IncPhaseResult counts one phase outcome
func (p *PrometheusRecorder) IncPhaseResult(phase types.Phase, result ResultLabel) {
	p.phaseResults.WithLabelValues(string(phase), string(result)).Inc()
}

// ObserveRunDuration records the wall time of a whole run
func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	p.runDuration.Observe(d.Seconds())
}

// IncRunOutcome counts a finished run by status
func (p *PrometheusRecorder) IncRunOutcome(status types.RunStatus) {
	p.runOutcomes.WithLabelValues(string(status)).Inc()
}

// AddFindings adds n findings for rule; non-positive n is ignored
func (p *PrometheusRecorder) AddFindings(rule string, n int) {
	if n <= 0 {
		return
	}
	p.findings.WithLabelValues(rule).Add(float64(n))
}

// AddPatchedFiles adds n fixed copies; non-positive n is ignored
func (p *PrometheusRecorder) AddPatchedFiles(n int) {
	if n <= 0 {
		return
	}
	p.patchedFiles.Add(float64(n))
}

// WriteTextfile writes the registry in the Prometheus text format, for
// pickup by a node exporter textfile collector
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
