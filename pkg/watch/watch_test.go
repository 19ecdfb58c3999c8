package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events chan fsnotify.Event
	errs   chan error

	mu     sync.Mutex
	added  []string
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan fsnotify.Event, 16), errs: make(chan error, 1)}
}

func (s *fakeSource) Events() <-chan fsnotify.Event { return s.events }
func (s *fakeSource) Errors() <-chan error          { return s.errs }

func (s *fakeSource) Add(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, path)
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) Added() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.added...)
}

type harness struct {
	source  *fakeSource
	results chan Result
	cancel  context.CancelFunc
	done    chan error
}

func start(t *testing.T, root string, ignore []string, run RunFunc) *harness {
	t.Helper()
	h := &harness{source: newFakeSource(), results: make(chan Result, 16), done: make(chan error, 1)}
	w := NewWithSource(Options{
		Root:     root,
		Ignore:   ignore,
		Debounce: 20 * time.Millisecond,
		OnResult: func(r Result) { h.results <- r },
	}, run, h.source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Error("watcher did not stop")
		}
	})
	return h
}

func (h *harness) next(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-h.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a run")
		return Result{}
	}
}

func (h *harness) none(t *testing.T) {
	t.Helper()
	select {
	case r := <-h.results:
		t.Fatalf("unexpected run %d with %v", r.Run, r.Changed)
	case <-time.After(100 * time.Millisecond):
	}
}

func noop(context.Context, []string) error { return nil }

func TestWatcher_InitialRunThenDebouncedBurst(t *testing.T) {
	root := t.TempDir()
	h := start(t, root, nil, noop)

	first := h.next(t)
	assert.Equal(t, 1, first.Run)
	assert.Empty(t, first.Changed)
	assert.Equal(t, []string{root}, h.source.Added())

	a := filepath.Join(root, "a.ts")
	b := filepath.Join(root, "b.ts")
	h.source.events <- fsnotify.Event{Name: b, Op: fsnotify.Write}
	h.source.events <- fsnotify.Event{Name: a, Op: fsnotify.Write}
	h.source.events <- fsnotify.Event{Name: a, Op: fsnotify.Write}

	second := h.next(t)
	assert.Equal(t, 2, second.Run)
	assert.Equal(t, []string{a, b}, second.Changed)
	h.none(t)
}

func TestWatcher_IgnoredEvents(t *testing.T) {
	root := t.TempDir()
	dist := filepath.Join(root, "dist")
	h := start(t, root, []string{dist}, noop)
	h.next(t)

	h.source.events <- fsnotify.Event{Name: filepath.Join(dist, "a.js"), Op: fsnotify.Write}
	h.source.events <- fsnotify.Event{Name: filepath.Join(root, ".wraith", "state.json"), Op: fsnotify.Write}
	h.source.events <- fsnotify.Event{Name: filepath.Join(root, "node_modules", "x.js"), Op: fsnotify.Create}
	h.source.events <- fsnotify.Event{Name: filepath.Join(root, ".a.ts.tmp-123"), Op: fsnotify.Create}
	h.source.events <- fsnotify.Event{Name: filepath.Join(root, "a.ts"), Op: fsnotify.Chmod}
	h.none(t)
}

func TestWatcher_GeneratedFileRewritesDoNotRetrigger(t *testing.T) {
	root := t.TempDir()
	generated := filepath.Join(root, "src", "index.ts")
	ready := make(chan struct{})
	var h *harness
	h = start(t, root, []string{generated}, func(context.Context, []string) error {
		<-ready
		h.source.events <- fsnotify.Event{Name: filepath.Join(root, "src", ".index.ts.tmp-42"), Op: fsnotify.Create}
		h.source.events <- fsnotify.Event{Name: generated, Op: fsnotify.Create}
		h.source.events <- fsnotify.Event{Name: generated, Op: fsnotify.Write}
		return nil
	})
	close(ready)

	assert.Equal(t, 1, h.next(t).Run)
	h.none(t)

	h.source.events <- fsnotify.Event{Name: filepath.Join(root, "src", "a.ts"), Op: fsnotify.Write}
	r := h.next(t)
	assert.Equal(t, 2, r.Run)
	assert.Equal(t, []string{filepath.Join(root, "src", "a.ts")}, r.Changed)
	h.none(t)
}

func TestWatcher_RunErrorsDoNotStopTheLoop(t *testing.T) {
	root := t.TempDir()
	boom := errors.New("compilation failed")
	calls := 0
	h := start(t, root, nil, func(context.Context, []string) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, h.next(t).Err, boom)

	h.source.events <- fsnotify.Event{Name: filepath.Join(root, "a.ts"), Op: fsnotify.Write}
	r := h.next(t)
	assert.Equal(t, 2, r.Run)
	assert.NoError(t, r.Err)
}

func TestWatcher_ChangesDuringRunAreCoalesced(t *testing.T) {
	root := t.TempDir()
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	active := 0
	maxActive := 0
	calls := 0

	h := start(t, root, nil, func(context.Context, []string) error {
		mu.Lock()
		calls++
		n := calls
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		if n == 2 {
			close(started)
			<-release
		}

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})
	h.next(t)

	h.source.events <- fsnotify.Event{Name: filepath.Join(root, "a.ts"), Op: fsnotify.Write}
	<-started
	h.source.events <- fsnotify.Event{Name: filepath.Join(root, "c.ts"), Op: fsnotify.Write}
	h.source.events <- fsnotify.Event{Name: filepath.Join(root, "d.ts"), Op: fsnotify.Write}
	time.Sleep(50 * time.Millisecond)
	close(release)

	assert.Equal(t, []string{filepath.Join(root, "a.ts")}, h.next(t).Changed)
	third := h.next(t)
	assert.Equal(t, 3, third.Run)
	assert.Equal(t, []string{filepath.Join(root, "c.ts"), filepath.Join(root, "d.ts")}, third.Changed)
	h.none(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxActive)
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	h := start(t, root, nil, noop)
	h.next(t)

	sub := filepath.Join(root, "gen", "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	h.source.events <- fsnotify.Event{Name: filepath.Join(root, "gen"), Op: fsnotify.Create}
	h.next(t)

	assert.Equal(t, []string{root, filepath.Join(root, "gen"), sub}, h.source.Added())
}

func TestDirectories(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"a/b", ".git/objects", "node_modules/x", "dist/src", ".wraith"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "f.ts"), nil, 0o644))

	dirs, err := Directories(root, []string{filepath.Join(root, "dist")})
	require.NoError(t, err)
	assert.Equal(t, []string{root, filepath.Join(root, "a"), filepath.Join(root, "a", "b")}, dirs)

	_, err = Directories(filepath.Join(root, "missing"), nil)
	assert.Error(t, err)
}
