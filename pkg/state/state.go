// Package state persists the record of the last pipeline run of a project
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/poltergeist/wraith/pkg/fsys"
	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/outtree"
	"github.com/poltergeist/wraith/pkg/types"
)

const (
	// DirName is the state directory created under the base path
	DirName = ".wraith"

	stateFile = "state.json"
	lockFile  = "state.lock"

	// DefaultLockTimeout bounds how long Begin waits for another run
	DefaultLockTimeout = 5 * time.Second

	pollInterval = 10 * time.Millisecond
)

var (
	// ErrLocked is returned when another run holds the project lock
	ErrLocked = errors.New("another run holds the project lock")

	// ErrNoState is returned when no run has been recorded yet
	ErrNoState = errors.New("no recorded run")

	// ErrFinished is returned when a session is used after Finish
	ErrFinished = errors.New("run session already finished")
)

// PhaseRecord is the outcome of one phase
type PhaseRecord struct {
	Phase    types.Phase   `json:"phase"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunRecord is the persisted state of a project
type RunRecord struct {
	RunID        string          `json:"runId"`
	Status       types.RunStatus `json:"status"`
	ProcessID    int             `json:"processId"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt,omitempty"`
	Duration     time.Duration   `json:"duration,omitempty"`
	Phases       []PhaseRecord   `json:"phases,omitempty"`
	FailedPhase  types.Phase     `json:"failedPhase,omitempty"`
	LastError    string          `json:"lastError,omitempty"`
	Findings     int             `json:"findings"`
	PatchedFiles []string        `json:"patchedFiles,omitempty"`
	Emitted      int             `json:"emitted"`
	RunCount     int             `json:"runCount"`
	FailureCount int             `json:"failureCount"`
}

// Summary carries the run results recorded by Finish
type Summary struct {
	Findings     int
	PatchedFiles []string
	Emitted      int
	Err          error
	FailedPhase  types.Phase
}

// Store opens run sessions and reads recorded runs
type Store interface {
	Begin(ctx context.Context, basePath, runID string) (Session, error)
	Read(basePath string) (*RunRecord, error)
}

// Session records one run while holding the project lock
type Session interface {
	RecordPhase(phase types.Phase, d time.Duration, err error) error
	Finish(summary Summary) (*RunRecord, error)
}

// Manager is the file backed Store
type Manager struct {
	fs          fsys.FileSystem
	logger      logger.Logger
	lockTimeout time.Duration
}

var _ Store = (*Manager)(nil)

// NewManager creates a state manager on the host file system
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		fs:          fsys.NewOS(),
		logger:      log,
		lockTimeout: DefaultLockTimeout,
	}
}

// WithLockTimeout sets how long Begin waits for the project lock
func (m *Manager) WithLockTimeout(d time.Duration) *Manager {
	m.lockTimeout = d
	return m
}

// Dir returns the state directory of basePath
func Dir(basePath string) string {
	return filepath.Join(basePath, DirName)
}

// Begin locks the project, carries the counters of the previous record
// over and persists a running record
func (m *Manager) Begin(ctx context.Context, basePath, runID string) (Session, error) {
	dir := Dir(basePath)
	if err := outtree.EnsureDir(m.fs, dir); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, pollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	record := &RunRecord{
		RunID:     runID,
		Status:    types.RunStatusRunning,
		ProcessID: os.Getpid(),
		StartedAt: time.Now(),
	}
	if prev, err := m.Read(basePath); err == nil {
		record.RunCount = prev.RunCount
		record.FailureCount = prev.FailureCount
	} else if !errors.Is(err, ErrNoState) {
		m.logger.Warn("Ignoring unreadable state file", logger.WithError(err))
	}

	s := &session{manager: m, dir: dir, lock: lock, record: record}
	if err := s.save(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

// Read loads the recorded run of basePath
func (m *Manager) Read(basePath string) (*RunRecord, error) {
	data, err := m.fs.ReadFile(filepath.Join(Dir(basePath), stateFile))
	if err != nil {
		if fsys.IsNotExist(err) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &record, nil
}

type session struct {
	manager *Manager
	dir     string
	lock    *flock.Flock

	mu       sync.Mutex
	record   *RunRecord
	finished bool
}

func (s *session) RecordPhase(phase types.Phase, d time.Duration, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrFinished
	}

	rec := PhaseRecord{Phase: phase, Duration: d}
	if err != nil {
		rec.Error = err.Error()
	}
	s.record.Phases = append(s.record.Phases, rec)
	return s.save()
}

func (s *session) Finish(summary Summary) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil, ErrFinished
	}
	s.finished = true

	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.manager.logger.Warn("Failed to release state lock", logger.WithError(err))
		}
	}()

	r := s.record
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.Findings = summary.Findings
	r.PatchedFiles = summary.PatchedFiles
	r.Emitted = summary.Emitted
	r.RunCount++
	if summary.Err != nil {
		r.Status = types.RunStatusFailed
		r.LastError = summary.Err.Error()
		r.FailedPhase = summary.FailedPhase
		r.FailureCount++
	} else {
		r.Status = types.RunStatusSucceeded
	}

	if err := s.save(); err != nil {
		return nil, err
	}
	out := *r
	return &out, nil
}

func (s *session) save() error {
	data, err := json.MarshalIndent(s.record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.manager.fs.WriteFile(filepath.Join(s.dir, stateFile), data, fsys.FilePerm); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
