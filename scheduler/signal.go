// Package scheduler implements the fork-join job scheduler the render
// pipeline uses for setup fan-out: run a closure with an optional
// precondition Signal, producing a completion Signal; wait on a Signal.
package scheduler

import "sync"

// Signal is a scheduler primitive representing "task(s) complete": tasks
// wait on one as a precondition and produce one on completion. A Signal is
// single-fire; Complete is idempotent.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unfired Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// completedSignal is a Signal that is already fired, used as the
// precondition for the very first submission (there is no prior push to
// wait on).
var completedSignal = func() *Signal {
	s := NewSignal()
	s.Complete()
	return s
}()

// Completed returns a Signal that is already fired.
func Completed() *Signal { return completedSignal }

// Complete fires the signal, waking all current and future Wait callers.
// Safe to call more than once or concurrently; only the first call has an
// effect.
func (s *Signal) Complete() {
	s.once.Do(func() { close(s.ch) })
}

// Wait blocks until the signal fires.
func (s *Signal) Wait() {
	<-s.ch
}

// Fired reports whether the signal has already fired, without blocking.
func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
