package driver

import (
	"sync"
	"testing"
)

func TestThreadGuardAllowsOwner(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var g threadGuard
		g.Bind()
		g.Check() // must not panic: same goroutine that bound it
	}()
	<-done
}

func TestThreadGuardRejectsOtherGoroutine(t *testing.T) {
	var g threadGuard
	bound := make(chan struct{})
	release := make(chan struct{})
	go func() {
		g.Bind()
		close(bound)
		<-release
	}()
	<-bound
	defer close(release)

	var wg sync.WaitGroup
	wg.Add(1)
	var panicked bool
	go func() {
		defer wg.Done()
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		g.Check()
	}()
	wg.Wait()

	if !panicked {
		t.Fatalf("expected Check from a different goroutine to panic")
	}
}

func TestThreadGuardRejectsBeforeBind(t *testing.T) {
	var g threadGuard
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Check before Bind to panic")
		}
	}()
	g.Check()
}
