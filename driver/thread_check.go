package driver

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
)

// getGoroutineID extracts the calling goroutine's id from the header line
// of runtime.Stack. Go has no public goroutine-local-storage API; parsing
// the stack trace's "goroutine N [...]" prefix is the idiomatic workaround
// used throughout this module's pack for thread-affinity assertions.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if idx := bytes.Index(b, []byte(prefix)); idx >= 0 {
		b = b[idx+len(prefix):]
	}
	if sp := bytes.IndexByte(b, ' '); sp >= 0 {
		b = b[:sp]
	}

	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// threadGuard asserts that every call into a Driver happens on the single
// goroutine that owns the graphics context. Bind is called once, from
// Init; Check panics otherwise.
type threadGuard struct {
	owner atomic.Uint64
	bound atomic.Bool
}

// Bind records the calling goroutine as the render thread. Must be called
// exactly once, from Init.
func (g *threadGuard) Bind() {
	g.owner.Store(getGoroutineID())
	g.bound.Store(true)
}

// Check panics if the calling goroutine is not the bound render thread.
func (g *threadGuard) Check() {
	if !g.bound.Load() {
		panic("driver: method called before Init bound the render thread")
	}
	if got := getGoroutineID(); got != g.owner.Load() {
		panic("driver: method called off the render thread")
	}
}
