// Package transientbuf implements a single persistently-mapped upload
// buffer that producers bump-allocate per-frame vertex/index/uniform data
// from, reset by the render thread at swap.
//
// The bump offset is an atomic fetch-add rather than a plain read-modify-
// write, since producer goroutines allocate concurrently; Reset is only
// ever called from the render thread's swap job while producers are
// blocked in Renderer.Frame() on the frame semaphore, so no producer can be
// mid-allocation when Reset runs.
package transientbuf

import (
	"sync/atomic"

	"github.com/loopworks/renderpipe/handle"
)

// Slice is a bump-allocated view into the transient buffer: the backing
// buffer handle, a byte offset and size, and the host pointer the caller
// writes through. A zero-sized Slice (Size == 0, Host == nil) signals
// budget exhaustion.
type Slice struct {
	Buffer handle.Handle
	Offset uint64
	Size   uint64
	Host   []byte
}

// Valid reports whether this Slice represents a successful allocation.
func (s Slice) Valid() bool { return s.Size > 0 }

// Buffer is the fixed-size, persistently-mapped transient upload buffer.
type Buffer struct {
	bufferHandle handle.Handle
	size         uint64
	host         []byte
	offset       atomic.Uint64
}

// New creates a transient Buffer of the given size backed by host, the
// driver's persistent-mapping host view for bufferHandle (see
// driver.Driver.Map). host must be at least size bytes.
func New(bufferHandle handle.Handle, size uint64, host []byte) *Buffer {
	return &Buffer{
		bufferHandle: bufferHandle,
		size:         size,
		host:         host,
	}
}

// Alloc bump-allocates n bytes for the current frame. Safe to call from
// any producer goroutine concurrently; the bump pointer is advanced with a
// single atomic fetch-add, so concurrent allocators never observe
// overlapping ranges. Returns a zero Slice if the frame's budget is
// exhausted; the buffer never wraps around within a frame.
func (b *Buffer) Alloc(n uint64) Slice {
	if n == 0 {
		return Slice{Buffer: b.bufferHandle}
	}

	newOffset := b.offset.Add(n)
	start := newOffset - n
	if newOffset > b.size {
		// Budget exhausted for this frame. Note we do not roll back the
		// bump pointer past b.size; Reset is the only path back to 0, and
		// further Allocs this frame will also (harmlessly) overflow.
		return Slice{}
	}

	return Slice{
		Buffer: b.bufferHandle,
		Offset: start,
		Size:   n,
		Host:   b.host[start : start+n],
	}
}

// Reset rewinds the bump pointer to 0. Must only be called from the render
// thread's swap job, before that job signals the frame semaphore, so a
// producer blocked in Frame() resumes only after the reset — see the
// package doc.
func (b *Buffer) Reset() {
	b.offset.Store(0)
}

// Offset returns the current bump offset, for tests and diagnostics.
func (b *Buffer) Offset() uint64 {
	return b.offset.Load()
}

// Handle returns the backing buffer handle, for flushing the mapped range
// at swap.
func (b *Buffer) Handle() handle.Handle {
	return b.bufferHandle
}

// Size returns the buffer's total byte capacity.
func (b *Buffer) Size() uint64 {
	return b.size
}
