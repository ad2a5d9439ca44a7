// Package renderthread implements the render thread: the single goroutine
// that owns the driver context, drains the command queue, executes each
// job, recycles it, and ticks the profiler at swap.
//
// The drain loop runs on a dedicated goroutine, with a WaitGroup the owner
// waits on for a clean exit and a defer/recover panic boundary around each
// job's Execute: a panicking job is logged and the loop goes on to the next
// job, so one bad job can't kill the pipeline.
package renderthread

import (
	"log"
	"runtime/debug"
	"sync"

	"github.com/loopworks/renderpipe/driver"
	"github.com/loopworks/renderpipe/queue"
)

// RenderThread owns the driver context and drains jobs from q until a
// ShutdownJob sets the shutdown flag via OnShutdown (renderjob.ShutdownJob
// wires that callback).
type RenderThread struct {
	drv driver.Driver
	q   *queue.Queue

	shutdown  sync.Once
	done      chan struct{}
	finished  chan struct{}
	wg        sync.WaitGroup
}

// New creates a RenderThread bound to drv and draining from q. The
// goroutine that Start launches runs the init function and owns the
// driver's thread affinity for the rest of the process's life; exactly one
// such thread exists per renderer instance.
func New(drv driver.Driver, q *queue.Queue) *RenderThread {
	return &RenderThread{
		drv:      drv,
		q:        q,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// InitFunc performs driver initialization on the render-thread goroutine
// itself, since the driver's thread guard binds to whichever goroutine
// calls Init.
type InitFunc func() error

// Start launches the drain loop on a new goroutine and returns
// immediately. initFn runs first, on the new goroutine, before the drain
// loop begins popping jobs.
func (rt *RenderThread) Start(initFn InitFunc) {
	rt.wg.Add(1)
	go rt.run(initFn)
}

func (rt *RenderThread) run(initFn InitFunc) {
	defer rt.wg.Done()
	defer close(rt.finished)

	if initFn != nil {
		if err := initFn(); err != nil {
			log.Printf("renderthread: init failed: %v", err)
			return
		}
	}

	for {
		select {
		case <-rt.done:
			return
		default:
		}

		job := rt.q.Pop()
		rt.executeSafely(job)

		select {
		case <-rt.done:
			return
		default:
		}
	}
}

// executeSafely runs one job's Execute with a panic boundary: a panicking
// job is logged with its stack and does not bring down the render thread
// or the process.
func (rt *RenderThread) executeSafely(job queue.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("renderthread: job panicked: %v\n%s", r, debug.Stack())
		}
	}()
	job.Execute()
}

// RequestShutdown is called by the ShutdownJob's Execute (via the callback
// renderjob.ShutdownJob.OnShutdown is wired to) to flag that the drain
// loop should exit after this iteration. Idempotent.
func (rt *RenderThread) RequestShutdown() {
	rt.shutdown.Do(func() {
		close(rt.done)
	})
}

// Finished returns a channel closed once the drain loop has exited, for a
// destructor to wait on during shutdown.
func (rt *RenderThread) Finished() <-chan struct{} {
	return rt.finished
}

// Wait blocks until the drain loop goroutine has fully returned.
func (rt *RenderThread) Wait() {
	rt.wg.Wait()
}
