package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poltergeist/wraith/pkg/codegen"
	"github.com/poltergeist/wraith/pkg/config"
	wcontext "github.com/poltergeist/wraith/pkg/context"
	"github.com/poltergeist/wraith/pkg/emit"
	"github.com/poltergeist/wraith/pkg/faults"
	"github.com/poltergeist/wraith/pkg/fsys"
	"github.com/poltergeist/wraith/pkg/lint"
	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/metrics"
	"github.com/poltergeist/wraith/pkg/outtree"
	"github.com/poltergeist/wraith/pkg/patch"
	"github.com/poltergeist/wraith/pkg/program"
	"github.com/poltergeist/wraith/pkg/state"
	"github.com/poltergeist/wraith/pkg/types"
)

// DefaultFixesDir is the fixes root under the base path when neither the
// options nor the project file name one
const DefaultFixesDir = types.DefaultFixesDir

// ErrWorkDirRequired is returned when Options.WorkDir is empty
var ErrWorkDirRequired = errors.New("work directory is required")

// ErrNoInputs is returned when every root file lies inside the fixes root
var ErrNoInputs = errors.New("no input files outside the fixes root")

// Options configure a single orchestrator
type Options struct {
	// Project is a project file or directory, resolved against WorkDir.
	// Empty means WorkDir itself.
	Project string
	// BasePath overrides the project directory as the root for inputs
	BasePath string
	// WorkDir anchors relative paths and the mirrored fixes layout
	WorkDir string
	// FixesRoot overrides toolOptions.fixesDir
	FixesRoot string
	// Output receives lint findings and option diagnostics
	Output io.Writer
	Color  bool
}

// Dependencies are the collaborators of a run. Extension, Recorder and
// State are optional.
type Dependencies struct {
	ConfigLoader    config.Loader
	ProgramFactory  program.Factory
	Extension       codegen.Extension
	Analyzer        lint.Analyzer
	PrimaryEmitter  emit.Emitter
	MetadataEmitter emit.Emitter
	FileSystem      fsys.FileSystem
	Recorder        metrics.Recorder
	State           state.Store
}

// RunReport summarizes a run, including a failed one up to the failing phase
type RunReport struct {
	RunID               string
	ConfigPath          string
	BasePath            string
	FixesRoot           string
	Timings             map[types.Phase]time.Duration
	Findings            []types.Finding
	PatchedFiles        []string
	Emitted             []emit.Entry
	SemanticDiagnostics []types.Diagnostic
	CodegenSkipped      bool
	Record              *state.RunRecord
}

// Orchestrator sequences the pipeline phases
type Orchestrator struct {
	opts   Options
	logger logger.Logger
	deps   Dependencies
}

// New creates an orchestrator. Missing required dependencies panic.
func New(opts Options, log logger.Logger, deps Dependencies) *Orchestrator {
	if deps.ConfigLoader == nil {
		panic("ConfigLoader dependency is required")
	}
	if deps.ProgramFactory == nil {
		panic("ProgramFactory dependency is required")
	}
	if deps.Analyzer == nil {
		panic("Analyzer dependency is required")
	}
	if deps.PrimaryEmitter == nil {
		panic("PrimaryEmitter dependency is required")
	}
	if deps.MetadataEmitter == nil {
		panic("MetadataEmitter dependency is required")
	}
	if deps.FileSystem == nil {
		panic("FileSystem dependency is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	return &Orchestrator{opts: opts, logger: log, deps: deps}
}

// Run executes one pipeline run. Every fault aborts the run and is
// returned as is; the report covers the phases that completed.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	ctx = wcontext.NewRun(ctx)
	r := &run{
		o:   o,
		ctx: ctx,
		report: &RunReport{
			RunID:   wcontext.GetRunID(ctx),
			Timings: make(map[types.Phase]time.Duration),
		},
		formatter: lint.NewFormatter(o.opts.Output, o.opts.Color),
	}

	err := r.execute()

	o.deps.Recorder.ObserveRunDuration(wcontext.GetDuration(ctx))
	status := types.RunStatusSucceeded
	if err != nil {
		status = types.RunStatusFailed
	}
	o.deps.Recorder.IncRunOutcome(status)

	if r.session != nil {
		summary := state.Summary{
			Findings:     len(r.report.Findings),
			PatchedFiles: r.report.PatchedFiles,
			Emitted:      len(r.report.Emitted),
			Err:          err,
		}
		if err != nil {
			summary.FailedPhase = r.current
		}
		record, serr := r.session.Finish(summary)
		if serr != nil {
			o.logger.Warn("Failed to record run state", logger.WithError(serr))
		}
		r.report.Record = record
	}

	log := logger.WithContext(ctx, o.logger)
	if err != nil {
		log.Debug("Run failed", logger.WithError(err))
	} else {
		log.Debug("Run finished",
			logger.WithField("findings", len(r.report.Findings)),
			logger.WithField("patched", len(r.report.PatchedFiles)),
			logger.WithField("emitted", len(r.report.Emitted)))
	}
	return r.report, err
}

type run struct {
	o         *Orchestrator
	ctx       context.Context
	report    *RunReport
	formatter *lint.Formatter

	current    types.Phase
	skipped    bool
	session    state.Session
	cfg        *types.ParsedConfig
	host       program.Host
	prog       program.Program
	emitHost   *emit.Host
	fixesReady bool
}

func (r *run) execute() error {
	if err := r.phase(types.PhaseConfigLoad, r.loadConfig); err != nil {
		return err
	}
	if err := r.beginState(); err != nil {
		return err
	}

	steps := []struct {
		phase types.Phase
		fn    func(ctx context.Context) error
	}{
		{types.PhaseProgramCreate, r.createProgram},
		{types.PhaseCodegen, r.generate},
		{types.PhaseRecompile, r.recompile},
		{types.PhaseTypeCheck, r.typeCheck},
		{types.PhaseAnalyze, r.analyze},
		{types.PhaseEmitPrimary, r.emitPrimary},
		{types.PhaseEmitMetadata, r.emitMetadata},
	}
	for _, step := range steps {
		if err := r.phase(step.phase, step.fn); err != nil {
			return err
		}
	}
	r.current = types.PhaseDone
	return nil
}

// phase runs fn as the named phase, timing it and recording the outcome
func (r *run) phase(phase types.Phase, fn func(ctx context.Context) error) error {
	r.current = phase
	r.skipped = false
	ctx := wcontext.WithPhase(r.ctx, phase)
	log := logger.WithContext(ctx, r.o.logger)

	if err := ctx.Err(); err != nil {
		return err
	}

	log.Debug("Phase started")
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)

	r.report.Timings[phase] = d
	rec := r.o.deps.Recorder
	rec.ObservePhaseDuration(phase, d)
	switch {
	case err != nil:
		rec.IncPhaseResult(phase, metrics.ResultFailure)
		log.Debug("Phase failed", logger.WithError(err))
	case r.skipped:
		rec.IncPhaseResult(phase, metrics.ResultSkipped)
		log.Debug("Phase skipped")
	default:
		rec.IncPhaseResult(phase, metrics.ResultSuccess)
		log.Debug("Phase finished", logger.WithField("duration", d.String()))
	}

	if r.session != nil {
		if serr := r.session.RecordPhase(phase, d, err); serr != nil {
			log.Warn("Failed to record phase", logger.WithError(serr))
		}
	}
	return err
}

func (r *run) loadConfig(context.Context) error {
	opts := r.o.opts
	if opts.WorkDir == "" {
		return faults.Configuration(ErrWorkDirRequired)
	}

	locator := resolvePath(opts.WorkDir, opts.Project)
	basePath := ""
	if opts.BasePath != "" {
		basePath = resolvePath(opts.WorkDir, opts.BasePath)
	}

	cfg, err := r.o.deps.ConfigLoader.Load(locator, basePath)
	if err != nil {
		return faults.Configuration(err)
	}
	if cfg.ToolOptions.BasePath == "" {
		cfg.ToolOptions.BasePath = basePath
	}
	if cfg.ToolOptions.BasePath == "" {
		cfg.ToolOptions.BasePath = cfg.ProjectDir
	}
	if cfg.ToolOptions.BasePath == "" {
		cfg.ToolOptions.BasePath = opts.WorkDir
	}

	r.cfg = cfg
	r.report.ConfigPath = cfg.ConfigPath
	r.report.BasePath = cfg.ToolOptions.BasePath
	r.report.FixesRoot = r.fixesRoot()

	files := cfg.FileNames[:0:0]
	for _, name := range cfg.FileNames {
		if _, inside := within(r.report.FixesRoot, name); inside {
			r.o.logger.Debug("Skipping fixed copy", logger.WithField("file", name))
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return faults.Configuration(fmt.Errorf("%w: %s", ErrNoInputs, r.report.FixesRoot))
	}
	cfg.FileNames = files
	return nil
}

func (r *run) beginState() error {
	store := r.o.deps.State
	if store == nil {
		return nil
	}
	session, err := store.Begin(r.ctx, r.cfg.ToolOptions.BasePath, r.report.RunID)
	if err != nil {
		return faults.IO(types.PhaseConfigLoad, state.Dir(r.cfg.ToolOptions.BasePath), err)
	}
	r.session = session
	if err := session.RecordPhase(types.PhaseConfigLoad, r.report.Timings[types.PhaseConfigLoad], nil); err != nil {
		r.o.logger.Warn("Failed to record phase", logger.WithError(err))
	}
	return nil
}

func (r *run) fixesRoot() string {
	return FixesRoot(r.o.opts.WorkDir, r.o.opts.FixesRoot, r.cfg.ToolOptions)
}

// FixesRoot resolves where fixed copies go: override against workDir when
// set, else toolOptions.fixesDir (or DefaultFixesDir) against the base path
func FixesRoot(workDir, override string, tool types.ToolOptions) string {
	if override != "" {
		return resolvePath(workDir, override)
	}
	dir := tool.FixesDir
	if dir == "" {
		dir = DefaultFixesDir
	}
	return resolvePath(tool.BasePath, dir)
}

// GeneratedPaths lists the trees and files a run writes for cfg: the output
// directory, the fixes root, the state directory and codegen template outputs
func GeneratedPaths(workDir, fixesOverride string, cfg *types.ParsedConfig) []string {
	tool := cfg.ToolOptions
	paths := []string{
		emit.ResolveSettings(cfg.CompilerOptions, tool.BasePath).OutDir,
		FixesRoot(workDir, fixesOverride, tool),
		state.Dir(tool.BasePath),
	}
	for _, tpl := range tool.Codegen.Templates {
		paths = append(paths, resolvePath(tool.BasePath, tpl.Output))
	}
	return paths
}

func (r *run) createProgram(ctx context.Context) error {
	r.host = program.NewHost(r.o.deps.FileSystem)
	prog, err := r.o.deps.ProgramFactory(r.cfg.FileNames, r.cfg.CompilerOptions, r.host, nil)
	if err != nil {
		return fmt.Errorf("failed to create program: %w", err)
	}
	r.prog = prog

	if diags := prog.OptionsDiagnostics(); len(diags) > 0 {
		fmt.Fprintln(r.o.opts.Output, types.FormatDiagnostics(diags))
		return faults.OptionsDiagnostic(diags)
	}
	return nil
}

func (r *run) generate(ctx context.Context) error {
	ext := r.o.deps.Extension
	if r.cfg.ToolOptions.SkipTemplateCodegen || ext == nil {
		r.skipped = true
		r.report.CodegenSkipped = true
		return nil
	}

	future := ext.Generate(ctx, r.cfg.ToolOptions, r.prog, r.host)
	if future == nil {
		return nil
	}
	return future.Await(ctx)
}

func (r *run) recompile(ctx context.Context) error {
	prog, err := r.o.deps.ProgramFactory(r.cfg.FileNames, r.cfg.CompilerOptions, r.host, r.prog)
	if err != nil {
		return fmt.Errorf("failed to rebuild program: %w", err)
	}
	r.prog = prog
	return nil
}

func (r *run) typeCheck(ctx context.Context) error {
	diags := r.prog.SemanticDiagnostics()
	r.report.SemanticDiagnostics = diags
	log := logger.WithContext(ctx, r.o.logger)
	for _, d := range diags {
		log.Warn(d.Message,
			logger.WithField("file", d.File),
			logger.WithField("code", d.Code))
	}
	return nil
}

func (r *run) analyze(ctx context.Context) error {
	log := logger.WithContext(ctx, r.o.logger)
	lintOpts := r.cfg.ToolOptions.Lint
	basePath := r.cfg.ToolOptions.BasePath

	exclude, err := config.NewPatternMatcher(lintOpts.Exclude)
	if err != nil {
		return faults.New(faults.KindConfiguration, types.PhaseAnalyze, fmt.Errorf("invalid lint.exclude: %w", err))
	}

	perRule := make(map[types.RuleName]int)
	for _, path := range r.prog.RootFiles() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if rel, err := filepath.Rel(basePath, path); err == nil && exclude.Match(rel) {
			log.Debug("Skipping excluded file", logger.WithField("file", path))
			continue
		}

		text, err := r.prog.SourceText(path)
		if err != nil {
			log.Debug("Skipping file without source text",
				logger.WithField("file", path),
				logger.WithError(err))
			continue
		}

		result, err := r.o.deps.Analyzer.Run(path, text, lintOpts, r.prog)
		if err != nil {
			return faults.New(faults.KindConfiguration, types.PhaseAnalyze, err).WithPath(path)
		}

		if len(result.Failures) > 0 {
			if err := r.formatter.Print(result, r.display(path)); err != nil {
				return faults.IO(types.PhaseAnalyze, path, err)
			}
			log.Info("Lint findings",
				logger.WithField("file", path),
				logger.WithField("count", len(result.Failures)))
			r.report.Findings = append(r.report.Findings, result.Failures...)
			for _, f := range result.Failures {
				perRule[f.Rule]++
			}
		}

		task := types.NewFileTask(path, text, result.Failures)
		if task.IsEmpty() {
			continue
		}
		if err := r.writeFix(ctx, task); err != nil {
			return err
		}
	}

	rules := make([]string, 0, len(perRule))
	for rule := range perRule {
		rules = append(rules, string(rule))
	}
	sort.Strings(rules)
	for _, rule := range rules {
		r.o.deps.Recorder.AddFindings(rule, perRule[types.RuleName(rule)])
	}
	r.o.deps.Recorder.AddPatchedFiles(len(r.report.PatchedFiles))
	return nil
}

// writeFix patches task and writes the result under the fixes root at the
// file's path relative to the work directory
func (r *run) writeFix(ctx context.Context, task *types.FileTask) error {
	fixed, err := patch.ApplyTask(task)
	if err != nil {
		return faults.Patch(task.Path, err)
	}

	rel, err := r.mirror(task.Path)
	if err != nil {
		return faults.IO(types.PhaseAnalyze, task.Path, err)
	}

	fs := r.o.deps.FileSystem
	root := r.report.FixesRoot
	if !r.fixesReady {
		if err := outtree.EnsureDir(fs, root); err != nil {
			return faults.IO(types.PhaseAnalyze, root, fmt.Errorf("failed to create fixes root: %w", err))
		}
		r.fixesReady = true
	}

	dest := filepath.Join(root, rel)
	if err := outtree.EnsureParent(fs, root, rel); err != nil {
		return faults.IO(types.PhaseAnalyze, dest, err)
	}
	if err := fs.WriteFile(dest, []byte(fixed), fsys.FilePerm); err != nil {
		return faults.IO(types.PhaseAnalyze, dest, err)
	}

	r.report.PatchedFiles = append(r.report.PatchedFiles, dest)
	logger.WithContext(ctx, r.o.logger).Debug("Wrote fixed copy",
		logger.WithField("file", task.Path),
		logger.WithField("fixes", dest),
		logger.WithField("replacements", len(task.Replacements)))
	return nil
}

// mirror returns path relative to the work directory, or to the base path
// for files outside it
func (r *run) mirror(path string) (string, error) {
	for _, root := range []string{r.o.opts.WorkDir, r.cfg.ToolOptions.BasePath} {
		if rel, ok := within(root, path); ok {
			return rel, nil
		}
	}
	return "", fmt.Errorf("%w: %s", outtree.ErrEscapesRoot, path)
}

func (r *run) display(path string) string {
	if rel, ok := within(r.o.opts.WorkDir, path); ok {
		return filepath.ToSlash(rel)
	}
	return path
}

func (r *run) emitHostFor() *emit.Host {
	if r.emitHost == nil {
		settings := emit.ResolveSettings(r.prog.Options(), r.cfg.ToolOptions.BasePath)
		r.emitHost = emit.NewHost(r.o.deps.FileSystem, settings, r.o.logger)
	}
	return r.emitHost
}

func (r *run) emitPrimary(ctx context.Context) error {
	host := r.emitHostFor()
	err := r.o.deps.PrimaryEmitter.Emit(ctx, host, r.prog)
	r.report.Emitted = host.Manifest()
	if err != nil {
		return asFault(types.PhaseEmitPrimary, err)
	}
	return nil
}

func (r *run) emitMetadata(ctx context.Context) error {
	if r.cfg.ToolOptions.SkipMetadataEmit {
		r.skipped = true
		return nil
	}
	host := r.emitHostFor()
	err := r.o.deps.MetadataEmitter.Emit(ctx, host, r.prog)
	r.report.Emitted = host.Manifest()
	if err != nil {
		return asFault(types.PhaseEmitMetadata, err)
	}
	return nil
}

// asFault keeps existing faults and turns anything else into an IO fault
func asFault(phase types.Phase, err error) error {
	var f *faults.Fault
	if errors.As(err, &f) || errors.Is(err, context.Canceled) {
		return err
	}
	return faults.IO(phase, "", err)
}

func resolvePath(base, p string) string {
	if p == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func within(root, path string) (string, bool) {
	if root == "" {
		return "", false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
