package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner executes fire-and-forget side effects on a bounded goroutine pool.
// Tasks run detached from the submitting request's context so an HTTP
// response never waits on them, each under its own deadline. A panicking
// task is logged, never propagated.
type Runner struct {
	sem     chan struct{}
	timeout time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func NewRunner(maxConcurrent int, timeout time.Duration) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runner{
		sem:     make(chan struct{}, maxConcurrent),
		timeout: timeout,
	}
}

// Submit schedules fn. After Close the task is dropped with a log entry
// rather than run on a shutting-down process.
func (r *Runner) Submit(name string, fn func(context.Context)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		slog.Warn("task_dropped_after_close", "task", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("task_panicked", "task", name, "panic", rec)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Close waits for in-flight tasks and rejects new ones.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
