package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/ehrops/pkg/observability"
)

// Runner executes background tasks and tracks them so callers can drain on shutdown.
type Runner struct {
	logger *observability.Logger
	wg     sync.WaitGroup
}

// NewRunner creates a Runner that logs task failures to logger
func NewRunner(logger *observability.Logger) *Runner {
	return &Runner{logger: observability.OrNop(logger)}
}

// Go executes fn in a goroutine with:
// - a context detached from parentCtx cancellation but carrying its values
// - panic recovery
// - timeout enforcement
// - error logging
//
// Use this instead of bare `go func()` for work that must outlive the caller.
func (r *Runner) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"stack": string(debug.Stack()),
				}).Errorf("panic in background task: %v", rec)
			}
		}()

		if err := fn(ctx); err != nil {
			r.logger.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
}

// Wait blocks until all started tasks finish or timeout elapses
func (r *Runner) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("background tasks still running after %v", timeout)
	}
}
