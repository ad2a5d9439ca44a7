package renderthread

import (
	"sync"
	"testing"
	"time"

	"github.com/loopworks/renderpipe/queue"
)

type countingJob struct {
	fn func()
}

func (j countingJob) Execute() { j.fn() }

func TestRenderThreadExecutesInOrderThenShutsDown(t *testing.T) {
	q := queue.New()
	rt := New(nil, q)

	var mu sync.Mutex
	var order []int
	const n = 100
	for i := 0; i < n; i++ {
		i := i
		q.Push(countingJob{fn: func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}})
	}
	q.Push(countingJob{fn: rt.RequestShutdown})

	rt.Start(nil)

	select {
	case <-rt.Finished():
	case <-time.After(2 * time.Second):
		t.Fatalf("render thread did not finish in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != n {
		t.Fatalf("expected %d jobs executed before shutdown, got %d", n, len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("execution order violated: %v", order)
		}
	}
}

func TestRenderThreadSurvivesPanickingJob(t *testing.T) {
	q := queue.New()
	rt := New(nil, q)

	ran := make(chan struct{})
	q.Push(countingJob{fn: func() { panic("boom") }})
	q.Push(countingJob{fn: func() { close(ran) }})
	q.Push(countingJob{fn: rt.RequestShutdown})

	rt.Start(nil)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("job after a panicking job never ran")
	}

	select {
	case <-rt.Finished():
	case <-time.After(2 * time.Second):
		t.Fatalf("render thread did not finish after panic recovery")
	}
}
