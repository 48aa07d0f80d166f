// Package scheduler runs named background tasks on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task is one scheduled unit of work. It should honor ctx cancellation.
type Task func(ctx context.Context) error

// Runner invokes a task periodically until its context is cancelled. The task
// itself decides what happens when a tick arrives while a previous run is
// still active (the segmentation service skips such runs).
type Runner struct {
	name     string
	interval time.Duration
	task     Task
	lg       *zap.Logger

	done chan struct{}
}

// New creates a Runner. Call Start to begin ticking.
func New(name string, interval time.Duration, task Task, lg *zap.Logger) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		task:     task,
		lg:       lg.With(zap.String("task", name)),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker goroutine. The first run happens after one full
// interval, not immediately. Cancelling ctx stops the runner; Wait blocks
// until the in-flight run (if any) returns.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the runner goroutine has exited.
func (r *Runner) Wait() {
	<-r.done
}

func (r *Runner) runOnce(ctx context.Context) {
	started := time.Now()
	if err := r.task(ctx); err != nil {
		r.lg.Error("scheduled run failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return
	}
	r.lg.Debug("scheduled run finished", zap.Duration("elapsed", time.Since(started)))
}
