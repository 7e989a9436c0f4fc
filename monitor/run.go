package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/innoscope/innoscope/errors"
)

// Run is a scoped run context for one pipeline invocation. It guarantees the
// registry records a completion on every exit path without the pipeline
// knowing registry internals. Acquire with StartRun (or use RunPipeline for
// the full bracket), report progress with AddProcessedItems, finish with
// Complete.
type Run struct {
	registry  *Registry
	name      string
	startedAt time.Time
	items     atomic.Int64
	once      sync.Once
}

// StartRun records a running transition for the pipeline and returns the run
// context. The caller must eventually call Complete exactly once; extra calls
// are ignored.
func (r *Registry) StartRun(name string) *Run {
	run := &Run{
		registry:  r,
		name:      name,
		startedAt: r.clock(),
	}
	r.StartJob(name)
	return run
}

// AddProcessedItems accumulates the item count incrementally, so long-running
// pipelines report partial progress across many increments.
func (run *Run) AddProcessedItems(count int) {
	run.items.Add(int64(count))
}

// ItemsProcessed returns the count accumulated so far.
func (run *Run) ItemsProcessed() int {
	return int(run.items.Load())
}

// Complete records the outcome: success when err is nil, failure with the
// error message otherwise. Idempotent; only the first call takes effect.
func (run *Run) Complete(err error) {
	run.once.Do(func() {
		runtime := run.registry.clock().Sub(run.startedAt).Seconds()
		if err == nil {
			run.registry.CompleteJob(run.name, true, runtime, run.ItemsProcessed(), "")
		} else {
			run.registry.CompleteJob(run.name, false, runtime, run.ItemsProcessed(), err.Error())
		}
	})
}

// RunPipeline executes fn inside a scoped run context. The registry observes
// every exit path: a nil error records success, a returned error records
// failure and is passed back to the caller, and a panic records failure and
// re-panics — the run context never swallows the pipeline's failure.
func (r *Registry) RunPipeline(ctx context.Context, name string, fn func(ctx context.Context, run *Run) error) error {
	run := r.StartRun(name)

	defer func() {
		if p := recover(); p != nil {
			run.Complete(errors.Newf("panic: %v", p))
			panic(p)
		}
	}()

	err := fn(ctx, run)
	run.Complete(err)
	return err
}
