// Package routine runs background goroutines with panic recovery and
// tracks them so owners can wait for shutdown.
package routine

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// Runner starts goroutines that log instead of crashing the process when
// they panic.
type Runner struct {
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// New creates a Runner logging recovered panics to logger.
func New(logger zerolog.Logger) *Runner {
	return &Runner{logger: logger}
}

// GoWithContext executes fn with ctx in a new goroutine. The name is
// attached to panic logs.
func (r *Runner) GoWithContext(ctx context.Context, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.recover(name)
		fn(ctx)
	}()
}

// Wait blocks until every goroutine started by this runner has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) recover(name string) {
	if rec := recover(); rec != nil {
		r.logger.Error().
			Str("routine", name).
			Interface("panic", rec).
			Str("stack", string(debug.Stack())).
			Msg("Goroutine panicked")
	}
}
