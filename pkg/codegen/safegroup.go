package codegen

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/poltergeist/wraith/pkg/logger"
)

// ErrPanic marks an error converted from a recovered panic
var ErrPanic = errors.New("goroutine panic")

// SafeGroup wraps errgroup.Group with panic recovery
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a new SafeGroup with panic recovery
func NewSafeGroup(ctx context.Context, log logger.Logger) (*SafeGroup, context.Context) {
	if log == nil {
		log = logger.Nop()
	}
	g, ctx := errgroup.WithContext(ctx)
	return &SafeGroup{
		group:  g,
		logger: log,
	}, ctx
}

// Go runs fn in a new goroutine. A panic is converted to an error wrapping
// ErrPanic and logged with its stack trace.
func (sg *SafeGroup) Go(fn func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("Goroutine panic recovered",
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		return fn()
	})
}

// SetLimit sets the maximum number of concurrent goroutines
func (sg *SafeGroup) SetLimit(n int) {
	sg.group.SetLimit(n)
}

// Wait blocks until all goroutines have completed and returns the first error
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}
