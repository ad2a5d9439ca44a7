package transientbuf

import (
	"sync"
	"testing"

	"github.com/loopworks/renderpipe/handle"
)

func newTestBuffer(size uint64) *Buffer {
	return New(handle.Handle{}, size, make([]byte, size))
}

func TestAllocAscendingOffsetsThenOverflow(t *testing.T) {
	const mib = 1 << 20
	b := newTestBuffer(60 * mib)

	var lastOffset uint64
	for i := 0; i < 60; i++ {
		s := b.Alloc(mib)
		if !s.Valid() {
			t.Fatalf("alloc %d should have succeeded", i)
		}
		if i > 0 && s.Offset <= lastOffset {
			t.Fatalf("offsets must be ascending: got %d after %d", s.Offset, lastOffset)
		}
		lastOffset = s.Offset
	}

	overflow := b.Alloc(mib)
	if overflow.Valid() {
		t.Fatalf("61st allocation should overflow the 60 MiB budget")
	}

	b.Reset()
	first := b.Alloc(mib)
	if !first.Valid() || first.Offset != 0 {
		t.Fatalf("after Reset, first alloc should start at offset 0, got %+v", first)
	}
}

func TestAllocConcurrentNeverOverlaps(t *testing.T) {
	const size = 1 << 20
	const n = 256
	b := newTestBuffer(size * n)

	slices := make([]Slice, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slices[i] = b.Alloc(size)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, s := range slices {
		if !s.Valid() {
			t.Fatalf("unexpected overflow with exactly-sized budget")
		}
		if seen[s.Offset] {
			t.Fatalf("duplicate offset allocated concurrently: %d", s.Offset)
		}
		seen[s.Offset] = true
	}
}
