package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSignalCompleteIsIdempotent(t *testing.T) {
	s := NewSignal()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Complete()
		}()
	}
	wg.Wait()
	if !s.Fired() {
		t.Fatalf("expected signal to be fired")
	}
}

func TestSchedulerRunOrdersOnPrecondition(t *testing.T) {
	sched := New(4, 64, time.Second)

	var order []int
	var mu sync.Mutex
	prev := Completed()
	for i := 0; i < 20; i++ {
		i := i
		pre := prev
		prev = sched.Run(pre, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	prev.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 20 {
		t.Fatalf("expected 20 completions, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("chained Run did not preserve order: got %v", order)
		}
	}
}

func TestSchedulerRunConcurrentFanOut(t *testing.T) {
	sched := New(4, 64, time.Second)

	var counter atomic.Int64
	var sigs []*Signal
	for i := 0; i < 50; i++ {
		sigs = append(sigs, sched.RunNow(func() {
			counter.Add(1)
		}))
	}
	for _, s := range sigs {
		s.Wait()
	}
	if counter.Load() != 50 {
		t.Fatalf("expected 50 completed tasks, got %d", counter.Load())
	}
}
