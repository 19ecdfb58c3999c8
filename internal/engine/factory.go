package engine

import (
	"github.com/poltergeist/wraith/pkg/codegen"
	"github.com/poltergeist/wraith/pkg/config"
	"github.com/poltergeist/wraith/pkg/emit"
	"github.com/poltergeist/wraith/pkg/fsys"
	"github.com/poltergeist/wraith/pkg/lint"
	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/metrics"
	"github.com/poltergeist/wraith/pkg/program"
	"github.com/poltergeist/wraith/pkg/state"
)

// DependencyFactory creates the default collaborators of a run
type DependencyFactory struct {
	logger   logger.Logger
	fs       fsys.FileSystem
	recorder metrics.Recorder
}

// NewDependencyFactory creates a factory. A nil recorder means no metrics.
func NewDependencyFactory(log logger.Logger, recorder metrics.Recorder) *DependencyFactory {
	if log == nil {
		log = logger.Nop()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &DependencyFactory{
		logger:   log,
		fs:       fsys.NewOS(),
		recorder: recorder,
	}
}

// CreateDefaults wires every collaborator to its default implementation
func (f *DependencyFactory) CreateDefaults() Dependencies {
	return Dependencies{
		ConfigLoader:    config.NewManager(f.fs),
		ProgramFactory:  program.NewSourceProgram,
		Extension:       codegen.NewTemplateExtension(f.logger),
		Analyzer:        lint.NewRuleAnalyzer(),
		PrimaryEmitter:  emit.NewPrimaryEmitter(f.logger),
		MetadataEmitter: emit.NewMetadataEmitter(f.logger),
		FileSystem:      f.fs,
		Recorder:        f.recorder,
		State:           state.NewManager(f.logger),
	}
}

// CreateWithOverrides creates the defaults and replaces every non-nil
// field of overrides
func (f *DependencyFactory) CreateWithOverrides(overrides Dependencies) Dependencies {
	deps := f.CreateDefaults()

	if overrides.ConfigLoader != nil {
		deps.ConfigLoader = overrides.ConfigLoader
	}
	if overrides.ProgramFactory != nil {
		deps.ProgramFactory = overrides.ProgramFactory
	}
	if overrides.Extension != nil {
		deps.Extension = overrides.Extension
	}
	if overrides.Analyzer != nil {
		deps.Analyzer = overrides.Analyzer
	}
	if overrides.PrimaryEmitter != nil {
		deps.PrimaryEmitter = overrides.PrimaryEmitter
	}
	if overrides.MetadataEmitter != nil {
		deps.MetadataEmitter = overrides.MetadataEmitter
	}
	if overrides.FileSystem != nil {
		deps.FileSystem = overrides.FileSystem
	}
	if overrides.Recorder != nil {
		deps.Recorder = overrides.Recorder
	}
	if overrides.State != nil {
		deps.State = overrides.State
	}
	return deps
}
