// Package watch re-runs the pipeline when project files change
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poltergeist/wraith/pkg/logger"
)

// DefaultDebounce is the quiet period before a run starts
const DefaultDebounce = 300 * time.Millisecond

var skipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	".wraith":      true,
	"node_modules": true,
}

// RunFunc runs the pipeline once; changed lists the paths that triggered it
type RunFunc func(ctx context.Context, changed []string) error

// Result describes one completed run
type Result struct {
	Run      int
	Changed  []string
	Duration time.Duration
	Err      error
}

// Source delivers file events
type Source interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Add(path string) error
	Close() error
}

// Options configures a Watcher
type Options struct {
	// Root is watched recursively
	Root string
	// Extra are additional files or directories to watch, e.g. a config file
	// outside Root
	Extra []string
	// Ignore lists directories whose events never trigger a run
	Ignore   []string
	Debounce time.Duration
	// OnResult is called after every run
	OnResult func(Result)
}

// Watcher runs the pipeline once, then again after every burst of changes.
// Runs never overlap; changes seen during a run are coalesced into the next one.
type Watcher struct {
	opts   Options
	run    RunFunc
	logger logger.Logger
	source Source

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
	runs    int
}

// New creates a watcher backed by fsnotify
func New(opts Options, run RunFunc, log logger.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return NewWithSource(opts, run, &fsnotifySource{w: fw}, log), nil
}

// NewWithSource creates a watcher reading events from source
func NewWithSource(opts Options, run RunFunc, source Source, log logger.Logger) *Watcher {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	ignore := make([]string, 0, len(opts.Ignore))
	for _, dir := range opts.Ignore {
		if dir != "" {
			ignore = append(ignore, filepath.Clean(dir))
		}
	}
	opts.Ignore = ignore

	return &Watcher{
		opts:    opts,
		run:     run,
		logger:  log,
		source:  source,
		pending: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Runs reports how many runs have completed
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// Run watches until ctx is cancelled. Run errors are reported through
// OnResult and never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.source.Close(); err != nil {
			w.logger.Warn("Error closing file watcher", logger.WithError(err))
		}
	}()

	dirs, err := Directories(w.opts.Root, w.opts.Ignore)
	if err != nil {
		return err
	}
	for _, dir := range append(dirs, w.opts.Extra...) {
		if err := w.source.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.logger.Info("Watching for changes",
		logger.WithField("root", w.opts.Root),
		logger.WithField("directories", len(dirs)))

	go w.collect(ctx)

	w.runOnce(ctx, nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.wake:
		}

		timer := time.NewTimer(w.opts.Debounce)
	quiet:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-w.wake:
				timer.Reset(w.opts.Debounce)
			case <-timer.C:
				break quiet
			}
		}

		w.runOnce(ctx, w.takePending())
	}
}

func (w *Watcher) runOnce(ctx context.Context, changed []string) {
	start := time.Now()
	err := w.run(ctx, changed)

	w.mu.Lock()
	w.runs++
	n := w.runs
	w.mu.Unlock()

	result := Result{Run: n, Changed: changed, Duration: time.Since(start), Err: err}
	if err != nil {
		w.logger.Error("Run failed", logger.WithField("run", n), logger.WithError(err))
	} else {
		w.logger.Debug("Run finished", logger.WithField("run", n), logger.WithField("changed", len(changed)))
	}
	if w.opts.OnResult != nil {
		w.opts.OnResult(result)
	}
}

func (w *Watcher) collect(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("File watcher panic recovered", logger.WithField("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.source.Events():
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.source.Errors():
			if !ok {
				return
			}
			w.logger.Error("File watcher error", logger.WithError(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || w.Ignored(event.Name) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if dirs, err := Directories(event.Name, w.opts.Ignore); err == nil {
			for _, dir := range dirs {
				if err := w.source.Add(dir); err != nil {
					w.logger.Warn("Failed to watch new directory",
						logger.WithField("path", dir),
						logger.WithError(err))
				}
			}
		}
	}

	w.logger.Debug("File event", logger.WithField("event", event.String()))

	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0, len(w.pending))
	for path := range w.pending {
		changed = append(changed, path)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(changed)
	return changed
}

// Ignored reports whether events for path are dropped
func (w *Watcher) Ignored(path string) bool {
	path = filepath.Clean(path)
	for _, dir := range w.opts.Ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if skipDirs[part] {
			return true
		}
	}
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && strings.Contains(base, ".tmp-")
}

// Directories lists root and every directory below it, minus version
// control, dependency and ignored trees. A root that is not a directory
// yields nothing.
func Directories(root string, ignore []string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		clean := filepath.Clean(path)
		for _, dir := range ignore {
			if clean == filepath.Clean(dir) {
				return filepath.SkipDir
			}
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return dirs, nil
}

type fsnotifySource struct {
	w *fsnotify.Watcher
}

func (s *fsnotifySource) Events() <-chan fsnotify.Event { return s.w.Events }
func (s *fsnotifySource) Errors() <-chan error          { return s.w.Errors }
func (s *fsnotifySource) Add(path string) error         { return s.w.Add(path) }
func (s *fsnotifySource) Close() error                  { return s.w.Close() }
