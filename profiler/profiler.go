// Package profiler implements a GPU timer-query profiler: a per-frame list
// of timestamp queries, a free pool of query handles, and a 3-slot history
// ring the producer side reads completed frames from.
package profiler

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/loopworks/renderpipe/driver"
	"github.com/loopworks/renderpipe/handle"
)

// GpuQuery is one begin/end timestamp record within a frame.
type GpuQuery struct {
	Handle    handle.Handle
	Name      string
	IsEnd     bool
	Timestamp uint64
}

// Frame is an ordered sequence of GpuQuery records captured between two
// swaps.
type Frame []GpuQuery

const historySlots = 3

// Profiler owns the free query pool, the in-progress frame's records, and
// the 3-slot single-producer/single-consumer history ring. BeginQuery,
// EndQuery, and Tick run on the render thread; GetResults runs on the
// producer side. Cursors are manipulated with atomic increments since
// exactly one reader and one writer exist.
type Profiler struct {
	drv driver.Driver

	pool    []handle.Handle
	current Frame

	history     [historySlots]Frame
	writeCursor atomic.Uint64
	readCursor  atomic.Uint64

	// StatsLogger, when non-nil, is invoked once per Tick with the number
	// of queries resolved that frame.
	StatsLogger func(resolvedQueries int)
}

// New creates a Profiler that resolves timestamp queries through drv.
func New(drv driver.Driver) *Profiler {
	return &Profiler{drv: drv}
}

func (p *Profiler) allocQuery() (handle.Handle, error) {
	if n := len(p.pool); n > 0 {
		h := p.pool[n-1]
		p.pool = p.pool[:n-1]
		return h, nil
	}
	return p.drv.CreateQuery()
}

// BeginQuery allocates a timestamp query (from the pool or the driver),
// emits a timestamp, and appends a begin record. Render thread only.
func (p *Profiler) BeginQuery(name string) error {
	h, err := p.allocQuery()
	if err != nil {
		return err
	}
	p.drv.QueryTimestamp(h)
	p.current = append(p.current, GpuQuery{Handle: h, Name: name, IsEnd: false})
	return nil
}

// EndQuery allocates a timestamp query, emits a timestamp, and appends an
// end record paired with the most recent unmatched BeginQuery. Render
// thread only.
func (p *Profiler) EndQuery() error {
	h, err := p.allocQuery()
	if err != nil {
		return err
	}
	name := ""
	depth := 0
	for i := len(p.current) - 1; i >= 0; i-- {
		if p.current[i].IsEnd {
			depth++
			continue
		}
		if depth == 0 {
			name = p.current[i].Name
			break
		}
		depth--
	}
	p.drv.QueryTimestamp(h)
	p.current = append(p.current, GpuQuery{Handle: h, Name: name, IsEnd: true})
	return nil
}

// Tick is called from the swap job. It resolves every record's timestamp,
// returns each query handle to the pool, and — subject to back-pressure —
// rotates the completed frame into the history ring. writeCursor is
// incremented exactly once per admitted frame.
func (p *Profiler) Tick() {
	resolved := 0
	for i := range p.current {
		q := &p.current[i]
		if ts, ok := p.drv.GetQueryResult(q.Handle); ok {
			q.Timestamp = ts
			resolved++
		}
		p.pool = append(p.pool, q.Handle)
	}

	write := p.writeCursor.Load()
	read := p.readCursor.Load()
	if write-read < historySlots {
		p.history[write%historySlots] = p.current
		p.writeCursor.Store(write + 1) // increment exactly once — see doc above
	}
	// else: back-pressure — a frame whose timings cannot be stored because
	// the history ring is full is silently dropped.

	p.current = nil

	if p.StatsLogger != nil {
		p.StatsLogger(resolved)
	}
}

// GetResults is the producer-side read: if a completed frame is waiting,
// it is copied into out, the read cursor advances by one, and true is
// returned. Never blocks.
func (p *Profiler) GetResults(out *Frame) bool {
	read := p.readCursor.Load()
	write := p.writeCursor.Load()
	if read >= write {
		return false
	}
	*out = p.history[read%historySlots]
	p.readCursor.Store(read + 1)
	return true
}

// DefaultStatsLogger logs resolved-query counts as a plain log.Printf line,
// gated by a minimum duration between log lines rather than a ticker,
// since Tick's cadence is driven by frame swaps, not a timer.
func DefaultStatsLogger(interval time.Duration) func(int) {
	var last time.Time
	var total int
	return func(resolved int) {
		total += resolved
		if time.Since(last) < interval {
			return
		}
		log.Printf("profiler: resolved %d gpu queries in the last %s", total, interval)
		total = 0
		last = time.Now()
	}
}
