// Package codegen runs template code generation ahead of the program rebuild
package codegen

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/poltergeist/wraith/pkg/faults"
	"github.com/poltergeist/wraith/pkg/logger"
)

// Future is the pending outcome of a code generation run.
// It resolves exactly once; every Await after resolution returns the same
// value.
type Future struct {
	done    chan struct{}
	once    sync.Once
	err     *faults.Fault
	awaited atomic.Int32
}

// NewFuture returns a pending future
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that already holds err
func Resolved(err error) *Future {
	f := NewFuture()
	f.Resolve(err)
	return f
}

// Resolve settles the future. Later calls are ignored.
func (f *Future) Resolve(err error) {
	f.once.Do(func() {
		f.err = asCodegenFault(err)
		close(f.done)
	})
}

// Done is closed once the future resolves
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx is cancelled.
// It returns nil on success and a Codegen fault otherwise.
func (f *Future) Await(ctx context.Context) error {
	f.awaited.Add(1)
	select {
	case <-f.done:
		if f.err == nil {
			return nil
		}
		return f.err
	case <-ctx.Done():
		return faults.Codegen(ctx.Err())
	}
}

// Awaits reports how many times Await was called
func (f *Future) Awaits() int {
	return int(f.awaited.Load())
}

func asCodegenFault(err error) *faults.Fault {
	if err == nil {
		return nil
	}
	var fault *faults.Fault
	if errors.As(err, &fault) && fault.Kind == faults.KindCodegen {
		return fault
	}
	return faults.Codegen(err)
}

// Go runs fn on a panic-safe group and returns a future for its outcome
func Go(ctx context.Context, log logger.Logger, fn func(ctx context.Context) error) *Future {
	f := NewFuture()
	group, gctx := NewSafeGroup(ctx, log)
	group.Go(func() error {
		return fn(gctx)
	})
	go func() {
		f.Resolve(group.Wait())
	}()
	return f
}
