package state_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist/wraith/pkg/state"
	"github.com/poltergeist/wraith/pkg/types"
)

func TestManager_ReadWithoutRun(t *testing.T) {
	m := state.NewManager(nil)
	_, err := m.Read(t.TempDir())
	assert.ErrorIs(t, err, state.ErrNoState)
}

func TestManager_BeginWritesRunningRecord(t *testing.T) {
	base := t.TempDir()
	m := state.NewManager(nil)

	s, err := m.Begin(context.Background(), base, "run_1")
	require.NoError(t, err)

	rec, err := m.Read(base)
	require.NoError(t, err)
	assert.Equal(t, "run_1", rec.RunID)
	assert.Equal(t, types.RunStatusRunning, rec.Status)
	assert.Equal(t, os.Getpid(), rec.ProcessID)

	_, err = s.Finish(state.Summary{})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, state.DirName, "state.json"))
	assert.NoError(t, err)
}

func TestManager_FinishRecordsOutcome(t *testing.T) {
	base := t.TempDir()
	m := state.NewManager(nil)
	ctx := context.Background()

	s, err := m.Begin(ctx, base, "run_a")
	require.NoError(t, err)
	require.NoError(t, s.RecordPhase(types.PhaseConfigLoad, 5*time.Millisecond, nil))
	require.NoError(t, s.RecordPhase(types.PhaseAnalyze, 7*time.Millisecond, nil))

	rec, err := s.Finish(state.Summary{Findings: 3, PatchedFiles: []string{"/fixes/a.ts"}, Emitted: 4})
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusSucceeded, rec.Status)
	assert.Equal(t, 1, rec.RunCount)
	assert.Equal(t, 0, rec.FailureCount)
	assert.Equal(t, 3, rec.Findings)
	assert.Equal(t, 4, rec.Emitted)
	require.Len(t, rec.Phases, 2)
	assert.Equal(t, types.PhaseAnalyze, rec.Phases[1].Phase)

	s, err = m.Begin(ctx, base, "run_b")
	require.NoError(t, err)
	require.NoError(t, s.RecordPhase(types.PhaseConfigLoad, time.Millisecond, errors.New("bad config")))
	rec, err = s.Finish(state.Summary{Err: errors.New("bad config"), FailedPhase: types.PhaseConfigLoad})
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusFailed, rec.Status)
	assert.Equal(t, 2, rec.RunCount)
	assert.Equal(t, 1, rec.FailureCount)
	assert.Equal(t, "bad config", rec.LastError)
	assert.Equal(t, types.PhaseConfigLoad, rec.FailedPhase)
	assert.Equal(t, "bad config", rec.Phases[0].Error)

	persisted, err := m.Read(base)
	require.NoError(t, err)
	assert.Equal(t, rec.RunID, persisted.RunID)
	assert.Equal(t, rec.FailureCount, persisted.FailureCount)
}

func TestManager_SecondRunIsLockedOut(t *testing.T) {
	base := t.TempDir()
	m := state.NewManager(nil).WithLockTimeout(50 * time.Millisecond)
	ctx := context.Background()

	first, err := m.Begin(ctx, base, "run_1")
	require.NoError(t, err)

	_, err = m.Begin(ctx, base, "run_2")
	assert.ErrorIs(t, err, state.ErrLocked)

	_, err = first.Finish(state.Summary{})
	require.NoError(t, err)

	second, err := m.Begin(ctx, base, "run_2")
	require.NoError(t, err)
	_, err = second.Finish(state.Summary{})
	require.NoError(t, err)
}

func TestSession_UseAfterFinish(t *testing.T) {
	m := state.NewManager(nil)
	s, err := m.Begin(context.Background(), t.TempDir(), "run_1")
	require.NoError(t, err)

	_, err = s.Finish(state.Summary{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.RecordPhase(types.PhaseDone, 0, nil), state.ErrFinished)
	_, err = s.Finish(state.Summary{})
	assert.ErrorIs(t, err, state.ErrFinished)
}

func TestManager_CorruptStateIsReplaced(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(state.Dir(base), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(state.Dir(base), "state.json"), []byte("{"), 0o644))

	m := state.NewManager(nil)
	_, err := m.Read(base)
	require.Error(t, err)
	assert.NotErrorIs(t, err, state.ErrNoState)

	s, err := m.Begin(context.Background(), base, "run_1")
	require.NoError(t, err)
	rec, err := s.Finish(state.Summary{})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RunCount)
}
