// Package mocks provides recording test doubles for the pipeline collaborators
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/poltergeist/wraith/pkg/codegen"
	"github.com/poltergeist/wraith/pkg/config"
	"github.com/poltergeist/wraith/pkg/emit"
	"github.com/poltergeist/wraith/pkg/lint"
	"github.com/poltergeist/wraith/pkg/metrics"
	"github.com/poltergeist/wraith/pkg/program"
	"github.com/poltergeist/wraith/pkg/state"
	"github.com/poltergeist/wraith/pkg/types"
)

// CallLog is an ordered log shared between mocks so tests can assert on
// the interleaving of collaborator calls
type CallLog struct {
	mu     sync.Mutex
	events []string
}

// NewCallLog creates an empty log
func NewCallLog() *CallLog {
	return &CallLog{}
}

// Record appends an event. A nil log ignores it.
func (l *CallLog) Record(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

// Events returns a copy of the log
func (l *CallLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// LoadCall records one Load invocation
type LoadCall struct {
	Locator  string
	BasePath string
}

// MockConfigLoader returns a fixed configuration
type MockConfigLoader struct {
	mu     sync.Mutex
	config *types.ParsedConfig
	err    error
	calls  []LoadCall
	log    *CallLog
}

var _ config.Loader = (*MockConfigLoader)(nil)

// NewMockConfigLoader creates a loader returning cfg
func NewMockConfigLoader(cfg *types.ParsedConfig, log *CallLog) *MockConfigLoader {
	return &MockConfigLoader{config: cfg, log: log}
}

// Load returns a copy of the configured result with BasePath filled in
func (m *MockConfigLoader) Load(locator, basePath string) (*types.ParsedConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, LoadCall{Locator: locator, BasePath: basePath})
	m.log.Record("config.load")
	if m.err != nil {
		return nil, m.err
	}
	cfg := *m.config
	cfg.FileNames = append([]string(nil), m.config.FileNames...)
	if cfg.ToolOptions.BasePath == "" {
		cfg.ToolOptions.BasePath = basePath
	}
	return &cfg, nil
}

// SetError makes Load fail
func (m *MockConfigLoader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the recorded Load calls
func (m *MockConfigLoader) Calls() []LoadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LoadCall(nil), m.calls...)
}

// MockProgram is a fixed program whose texts were read through a host
type MockProgram struct {
	Files         []string
	Opts          types.CompilerOptions
	Texts         map[string]string
	OptionDiags   []types.Diagnostic
	SemanticDiags []types.Diagnostic
}

var _ program.Program = (*MockProgram)(nil)

func (p *MockProgram) RootFiles() []string                     { return p.Files }
func (p *MockProgram) Options() types.CompilerOptions          { return p.Opts }
func (p *MockProgram) OptionsDiagnostics() []types.Diagnostic  { return p.OptionDiags }
func (p *MockProgram) SemanticDiagnostics() []types.Diagnostic { return p.SemanticDiags }

func (p *MockProgram) SourceText(path string) (string, error) {
	text, ok := p.Texts[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", program.ErrNoSource, path)
	}
	return text, nil
}

// ProgramCall records one factory invocation
type ProgramCall struct {
	Files  []string
	HadOld bool
}

// MockProgramFactory builds MockPrograms, reading texts through the host so
// generated files appear after a rebuild
type MockProgramFactory struct {
	mu            sync.Mutex
	err           error
	optionDiags   []types.Diagnostic
	semanticDiags []types.Diagnostic
	calls         []ProgramCall
	log           *CallLog
}

// NewMockProgramFactory creates a factory
func NewMockProgramFactory(log *CallLog) *MockProgramFactory {
	return &MockProgramFactory{log: log}
}

// Create implements program.Factory
func (m *MockProgramFactory) Create(files []string, opts types.CompilerOptions, host program.Host, old program.Program) (program.Program, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ProgramCall{Files: append([]string(nil), files...), HadOld: old != nil})
	m.log.Record("program.create")
	if m.err != nil {
		return nil, m.err
	}

	p := &MockProgram{
		Files:         files,
		Opts:          opts,
		Texts:         make(map[string]string, len(files)),
		OptionDiags:   m.optionDiags,
		SemanticDiags: m.semanticDiags,
	}
	for _, f := range files {
		if data, err := host.ReadFile(f); err == nil {
			p.Texts[f] = string(data)
		}
	}
	return p, nil
}

// Factory returns Create as a program.Factory
func (m *MockProgramFactory) Factory() program.Factory {
	return m.Create
}

// SetError makes Create fail
func (m *MockProgramFactory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetOptionsDiagnostics sets the option diagnostics of created programs
func (m *MockProgramFactory) SetOptionsDiagnostics(diags []types.Diagnostic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optionDiags = diags
}

// SetSemanticDiagnostics sets the semantic diagnostics of created programs
func (m *MockProgramFactory) SetSemanticDiagnostics(diags []types.Diagnostic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.semanticDiags = diags
}

// Calls returns the recorded factory calls
func (m *MockProgramFactory) Calls() []ProgramCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProgramCall(nil), m.calls...)
}

// MockExtension runs an optional function on the codegen group
type MockExtension struct {
	mu      sync.Mutex
	fn      func(ctx context.Context, host program.Host) error
	futures []*codegen.Future
	log     *CallLog
}

var _ codegen.Extension = (*MockExtension)(nil)

// NewMockExtension creates an extension that succeeds without doing anything
func NewMockExtension(log *CallLog) *MockExtension {
	return &MockExtension{log: log}
}

// Generate runs the configured function through codegen.Go
func (m *MockExtension) Generate(ctx context.Context, _ types.ToolOptions, _ program.Program, host program.Host) *codegen.Future {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Record("codegen.generate")
	fn := m.fn
	f := codegen.Go(ctx, nil, func(ctx context.Context) error {
		if fn == nil {
			return nil
		}
		return fn(ctx, host)
	})
	m.futures = append(m.futures, f)
	return f
}

// SetFunc sets the work done by Generate
func (m *MockExtension) SetFunc(fn func(ctx context.Context, host program.Host) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
}

// SetError makes the generated future fail with err
func (m *MockExtension) SetError(err error) {
	m.SetFunc(func(context.Context, program.Host) error { return err })
}

// CallCount returns how many times Generate was called
func (m *MockExtension) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.futures)
}

// Futures returns the futures handed out by Generate
func (m *MockExtension) Futures() []*codegen.Future {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*codegen.Future(nil), m.futures...)
}

// MockAnalyzer returns configured findings per path
type MockAnalyzer struct {
	mu       sync.Mutex
	findings map[string][]types.Finding
	errs     map[string]error
	paths    []string
	texts    map[string]string
	log      *CallLog
}

var _ lint.Analyzer = (*MockAnalyzer)(nil)

// NewMockAnalyzer creates an analyzer that reports nothing
func NewMockAnalyzer(log *CallLog) *MockAnalyzer {
	return &MockAnalyzer{
		findings: make(map[string][]types.Finding),
		errs:     make(map[string]error),
		texts:    make(map[string]string),
		log:      log,
	}
}

// Run returns the findings registered for path
func (m *MockAnalyzer) Run(path, text string, _ types.LintOptions, _ program.Program) (types.LintRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	m.texts[path] = text
	m.log.Record("lint.run %s", path)
	if err := m.errs[path]; err != nil {
		return types.LintRunResult{}, err
	}
	failures := m.findings[path]
	return types.LintRunResult{FailureCount: len(failures), Failures: failures}, nil
}

// SetFindings registers findings for path
func (m *MockAnalyzer) SetFindings(path string, findings ...types.Finding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings[path] = findings
}

// SetError makes Run(path) fail
func (m *MockAnalyzer) SetError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[path] = err
}

// Paths returns the analyzed paths in call order
func (m *MockAnalyzer) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paths...)
}

// Text returns the text path was analyzed with
func (m *MockAnalyzer) Text(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts[path]
}

// MockEmitter records Emit calls and optionally delegates to a real emitter
type MockEmitter struct {
	mu       sync.Mutex
	name     string
	err      error
	delegate emit.Emitter
	calls    int
	log      *CallLog
}

var _ emit.Emitter = (*MockEmitter)(nil)

// NewMockEmitter creates an emitter logged under name
func NewMockEmitter(name string, log *CallLog) *MockEmitter {
	return &MockEmitter{name: name, log: log}
}

// Emit logs start and end events around the delegate
func (m *MockEmitter) Emit(ctx context.Context, host *emit.Host, prog program.Program) error {
	m.mu.Lock()
	m.calls++
	err, delegate := m.err, m.delegate
	m.mu.Unlock()

	m.log.Record("emit.%s.start", m.name)
	defer m.log.Record("emit.%s.end", m.name)
	if err != nil {
		return err
	}
	if delegate != nil {
		return delegate.Emit(ctx, host, prog)
	}
	return nil
}

// SetError makes Emit fail
func (m *MockEmitter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelegate forwards Emit to e
func (m *MockEmitter) SetDelegate(e emit.Emitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegate = e
}

// CallCount returns how many times Emit was called
func (m *MockEmitter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockRecorder records phase observations
type MockRecorder struct {
	mu       sync.Mutex
	phases   []types.Phase
	results  map[types.Phase]metrics.ResultLabel
	outcomes []types.RunStatus
	findings map[string]int
	patched  int
}

var _ metrics.Recorder = (*MockRecorder)(nil)

// NewMockRecorder creates an empty recorder
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		results:  make(map[types.Phase]metrics.ResultLabel),
		findings: make(map[string]int),
	}
}

func (m *MockRecorder) ObservePhaseDuration(phase types.Phase, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, phase)
}

func (m *MockRecorder) IncPhaseResult(phase types.Phase, result metrics.ResultLabel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[phase] = result
}

func (m *MockRecorder) ObserveRunDuration(time.Duration) {}

func (m *MockRecorder) IncRunOutcome(status types.RunStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, status)
}

func (m *MockRecorder) AddFindings(rule string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings[rule] += n
}

func (m *MockRecorder) AddPatchedFiles(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patched += n
}

// Phases returns the timed phases in order
func (m *MockRecorder) Phases() []types.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Phase(nil), m.phases...)
}

// Result returns the last result recorded for phase
func (m *MockRecorder) Result(phase types.Phase) metrics.ResultLabel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[phase]
}

// Outcomes returns the recorded run outcomes
func (m *MockRecorder) Outcomes() []types.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.RunStatus(nil), m.outcomes...)
}

// Findings returns the finding count recorded for rule
func (m *MockRecorder) Findings(rule string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findings[rule]
}

// Patched returns the recorded patched file count
func (m *MockRecorder) Patched() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patched
}

// MockStateStore keeps run records in memory
type MockStateStore struct {
	mu         sync.Mutex
	beginErr   error
	records    map[string]*state.RunRecord
	phases     []types.Phase
	summaries  []state.Summary
	beginCalls int
}

var _ state.Store = (*MockStateStore)(nil)

// NewMockStateStore creates an empty store
func NewMockStateStore() *MockStateStore {
	return &MockStateStore{records: make(map[string]*state.RunRecord)}
}

// Begin opens a session unless SetBeginError was called
func (m *MockStateStore) Begin(_ context.Context, basePath, runID string) (state.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginCalls++
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	rec := &state.RunRecord{RunID: runID, Status: types.RunStatusRunning, StartedAt: time.Now()}
	if prev, ok := m.records[basePath]; ok {
		rec.RunCount = prev.RunCount
		rec.FailureCount = prev.FailureCount
	}
	m.records[basePath] = rec
	return &mockSession{store: m, record: rec}, nil
}

// Read returns the record of basePath
func (m *MockStateStore) Read(basePath string) (*state.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[basePath]
	if !ok {
		return nil, state.ErrNoState
	}
	out := *rec
	return &out, nil
}

// SetBeginError makes Begin fail
func (m *MockStateStore) SetBeginError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginErr = err
}

// BeginCalls returns how many sessions were requested
func (m *MockStateStore) BeginCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beginCalls
}

// Phases returns every recorded phase across sessions
func (m *MockStateStore) Phases() []types.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Phase(nil), m.phases...)
}

// Summaries returns every Finish summary
func (m *MockStateStore) Summaries() []state.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]state.Summary(nil), m.summaries...)
}

type mockSession struct {
	store  *MockStateStore
	record *state.RunRecord
}

func (s *mockSession) RecordPhase(phase types.Phase, d time.Duration, err error) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.phases = append(s.store.phases, phase)
	rec := state.PhaseRecord{Phase: phase, Duration: d}
	if err != nil {
		rec.Error = err.Error()
	}
	s.record.Phases = append(s.record.Phases, rec)
	return nil
}

func (s *mockSession) Finish(summary state.Summary) (*state.RunRecord, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.summaries = append(s.store.summaries, summary)
	s.record.RunCount++
	s.record.Findings = summary.Findings
	s.record.PatchedFiles = summary.PatchedFiles
	s.record.Emitted = summary.Emitted
	if summary.Err != nil {
		s.record.Status = types.RunStatusFailed
		s.record.LastError = summary.Err.Error()
		s.record.FailedPhase = summary.FailedPhase
		s.record.FailureCount++
	} else {
		s.record.Status = types.RunStatusSucceeded
	}
	out := *s.record
	return &out, nil
}
