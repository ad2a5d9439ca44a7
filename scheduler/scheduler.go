package scheduler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// Scheduler runs a closure with an optional precondition signal, producing
// a completion signal, backed by worker.DynamicWorkerPool for parallel
// per-frame CPU prep work. Completion is reported through an external
// Signal rather than pool.Wait(), since pool.Wait() blocks until the whole
// pool idles out — unsuitable for a frame-rate workload where new tasks
// keep arriving. Scheduler.Run submits one DynamicWorkerPool task to do the
// actual work, and a per-call Signal reports that one task's completion.
type Scheduler struct {
	pool   worker.DynamicWorkerPool
	nextID atomic.Uint64
}

// New constructs a Scheduler backed by a DynamicWorkerPool: workers
// goroutines, a queue depth generous enough to absorb a frame's worth of
// setup fan-out without SubmitTask blocking, and an idle-timeout after
// which idle workers exit.
func New(workers int, queueSize int, idleTimeout time.Duration) *Scheduler {
	return &Scheduler{
		pool: worker.NewDynamicWorkerPool(workers, queueSize, idleTimeout),
	}
}

// Run schedules fn to execute on the worker pool once pre fires (pre may
// be nil, meaning "run immediately"). It returns a Signal that fires once
// fn has returned. The renderer facade's push calls Run twice per job,
// chaining the second call's precondition to the first call's completion
// signal.
func (s *Scheduler) Run(pre *Signal, fn func()) *Signal {
	sig := NewSignal()
	id := s.nextID.Add(1)

	go func() {
		if pre != nil {
			pre.Wait()
		}

		done := make(chan struct{})
		s.pool.SubmitTask(worker.Task{
			ID: fmt.Sprintf("job-%d", id),
			Do: func() (any, error) {
				defer close(done)
				fn()
				return nil, nil
			},
		})
		<-done
		sig.Complete()
	}()

	return sig
}

// RunNow executes fn on the worker pool with no precondition, equivalent
// to Run(nil, fn).
func (s *Scheduler) RunNow(fn func()) *Signal {
	return s.Run(nil, fn)
}
