package handle

import "sync"

// slot tracks one index's current generation and whether it is in use.
type slot struct {
	epoch Epoch
	free  bool
}

// Allocator hands out and reclaims Handles for a single Kind. Alloc and
// Free are safe to call from any goroutine; they never touch driver state —
// actual GPU resource creation/destruction happens later, inside a
// creation/destruction job's Execute on the render thread.
type Allocator struct {
	mu       sync.Mutex
	kind     Kind
	slots    []slot
	freeList []Index
}

// NewAllocator creates an empty Allocator for the given resource Kind.
func NewAllocator(kind Kind) *Allocator {
	return &Allocator{kind: kind}
}

// Alloc reserves a new Handle. It reuses a freed slot's index when one is
// available, bumping that slot's epoch so any previously issued Handle for
// the same index compares invalid.
func (a *Allocator) Alloc() Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.freeList); n > 0 {
		idx := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		a.slots[idx].epoch++
		a.slots[idx].free = false
		return Handle{index: idx, epoch: a.slots[idx].epoch}
	}

	idx := Index(len(a.slots))
	a.slots = append(a.slots, slot{epoch: 1})
	return Handle{index: idx, epoch: 1}
}

// Free returns a Handle's slot to the pool. From this point IsLive reports
// false for h, since the slot is marked free. The slot's epoch is left
// untouched here and bumped on the next Alloc that reuses it, so h also
// never matches the handle issued for the reused slot.
func (a *Allocator) Free(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(h.index) >= len(a.slots) {
		return
	}
	s := &a.slots[h.index]
	if s.free || s.epoch != h.epoch {
		return
	}
	s.free = true
	a.freeList = append(a.freeList, h.index)
}

// IsLive reports whether h still refers to its originally allocated slot —
// i.e. the slot has not been freed and reallocated since h was issued.
func (a *Allocator) IsLive(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !h.IsValid() || int(h.index) >= len(a.slots) {
		return false
	}
	s := a.slots[h.index]
	return !s.free && s.epoch == h.epoch
}

// Kind returns the resource kind this allocator manages.
func (a *Allocator) Kind() Kind { return a.kind }
