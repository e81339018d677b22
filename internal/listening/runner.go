package listening

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner executes fire-and-forget work such as profile learning. Tasks run
// on a context owned by the runner, never on the caller's, so a finished or
// cancelled segment does not abort them. Errors and panics are logged and
// swallowed.
type Runner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRunner returns a runner whose tasks are each bounded by timeout. Zero
// means unbounded.
func NewRunner(timeout time.Duration) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{ctx: ctx, cancel: cancel, timeout: timeout}
}

// Go starts fn. It reports false when the runner is shutting down and the
// task was not started.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		slog.Warn("listening: runner closed, dropping task", "task", name)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx := r.ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		if err := run(ctx, fn); err != nil {
			slog.Error("listening: background task failed", "task", name, "err", err)
		}
	}()
	return true
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Shutdown stops accepting tasks and waits for running ones until ctx is
// done, at which point their contexts are cancelled.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return fmt.Errorf("listening: runner shutdown: %w", ctx.Err())
	}
}
