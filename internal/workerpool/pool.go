// Package workerpool runs a wave of independent checks concurrently on a
// semaphore-bounded pool (spec.md §5). Adapted from the teacher's
// internal/worker_pool, generalised from a fixed LLM-call-rate-limit
// default of 2 to a runtime.NumCPU()-based default suited to running
// shell commands.
package workerpool

import (
	"context"
	"runtime"
	"sync"
)

// Task is a unit of work submitted to the pool.
type Task func(ctx context.Context) (interface{}, error)

// Result is one task's outcome.
type Result struct {
	Value interface{}
	Error error
}

// Pool executes tasks concurrently with semaphore-based limiting.
type Pool struct {
	maxWorkers int
	semaphore  chan struct{}
}

// New creates a worker pool. maxWorkers <= 0 defaults to runtime.NumCPU().
func New(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	return &Pool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Run executes all tasks concurrently, bounded by the pool's worker count,
// and returns their results in the same order as the input. If ctx is
// cancelled before a task acquires a slot, that task's Result carries
// ctx.Err() and the underlying task function is never invoked.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return []Result{}
	}

	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task) {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				results[index] = Result{Error: err}
				return
			}
			select {
			case p.semaphore <- struct{}{}:
				defer func() { <-p.semaphore }()
			case <-ctx.Done():
				results[index] = Result{Error: ctx.Err()}
				return
			}

			value, err := t(ctx)
			results[index] = Result{Value: value, Error: err}
		}(i, task)
	}

	wg.Wait()
	return results
}

// MaxWorkers returns the pool's worker cap.
func (p *Pool) MaxWorkers() int {
	return p.maxWorkers
}
