package profiler

import (
	"testing"

	"github.com/loopworks/renderpipe/driver"
	"github.com/loopworks/renderpipe/handle"
)

// fakeDriver is a minimal in-memory driver.Driver used only to exercise
// the profiler's query bookkeeping without a real GPU context — the
// query-related subset matters here, everything else is a no-op.
type fakeDriver struct {
	alloc   *handle.Allocator
	results map[handle.Index]uint64
	nextTS  uint64
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{alloc: handle.NewAllocator(handle.KindQuery), results: map[handle.Index]uint64{}}
}

func (f *fakeDriver) Preinit(driver.Allocators)                                         {}
func (f *fakeDriver) Init(driver.WindowHandle, int, int, driver.PresentMode, driver.MSAASampleCount) error {
	return nil
}
func (f *fakeDriver) Shutdown()        {}
func (f *fakeDriver) CheckThread()     {}
func (f *fakeDriver) SwapBuffers() error { return nil }
func (f *fakeDriver) Resize(int, int)  {}

func (f *fakeDriver) CreateBuffer(handle.Handle, driver.BufferFlags, int, []byte) error { return nil }
func (f *fakeDriver) UpdateBuffer(handle.Handle, int, []byte) error                     { return nil }
func (f *fakeDriver) DestroyBuffer(handle.Handle)                                       {}

func (f *fakeDriver) CreateTexture(handle.Handle, uint32, uint32, uint32, driver.TextureFormat, driver.BufferFlags, []byte) error {
	return nil
}
func (f *fakeDriver) DestroyTexture(handle.Handle) {}

func (f *fakeDriver) CreateProgram(handle.Handle, string, string) error { return nil }
func (f *fakeDriver) DestroyProgram(handle.Handle)                     {}

func (f *fakeDriver) CreateFramebuffer(handle.Handle, int, int) error { return nil }
func (f *fakeDriver) DestroyFramebuffer(handle.Handle)                {}

func (f *fakeDriver) Map(handle.Handle, int, int, driver.BufferFlags) ([]byte, error) { return nil, nil }
func (f *fakeDriver) FlushMappedRange(handle.Handle, int, int)                        {}

func (f *fakeDriver) BindUniformBuffer(int, handle.Handle, int, int) {}

func (f *fakeDriver) CreateQuery() (handle.Handle, error) { return f.alloc.Alloc(), nil }
func (f *fakeDriver) DestroyQuery(h handle.Handle)        { f.alloc.Free(h) }
func (f *fakeDriver) QueryTimestamp(h handle.Handle) {
	f.nextTS++
	f.results[h.Index()] = f.nextTS
}
func (f *fakeDriver) GetQueryResult(h handle.Handle) (uint64, bool) {
	v, ok := f.results[h.Index()]
	return v, ok
}

func (f *fakeDriver) PushDebugGroup(string) {}
func (f *fakeDriver) PopDebugGroup()        {}
func (f *fakeDriver) StartCapture()         {}
func (f *fakeDriver) StopCapture()          {}

var _ driver.Driver = (*fakeDriver)(nil)

func TestProfilerRingBackPressure(t *testing.T) {
	drv := newFakeDriver()
	p := New(drv)

	// Produce 10 frames without ever reading (spec S4).
	for i := 0; i < 10; i++ {
		if err := p.BeginQuery("frame"); err != nil {
			t.Fatalf("BeginQuery: %v", err)
		}
		if err := p.EndQuery(); err != nil {
			t.Fatalf("EndQuery: %v", err)
		}
		p.Tick()
	}

	if p.writeCursor.Load() != historySlots {
		t.Fatalf("write cursor should stop advancing at 3 unread frames, got %d", p.writeCursor.Load())
	}

	var out Frame
	if !p.GetResults(&out) {
		t.Fatalf("expected a result to be available")
	}
	if p.readCursor.Load() != 1 {
		t.Fatalf("read cursor should advance by exactly 1, got %d", p.readCursor.Load())
	}

	// One slot became writable: drive one more frame through and confirm
	// write now advances again.
	if err := p.BeginQuery("frame"); err != nil {
		t.Fatalf("BeginQuery: %v", err)
	}
	if err := p.EndQuery(); err != nil {
		t.Fatalf("EndQuery: %v", err)
	}
	p.Tick()
	if p.writeCursor.Load() != historySlots+1 {
		t.Fatalf("expected write cursor to advance once the read freed a slot, got %d", p.writeCursor.Load())
	}
}

func TestProfilerNoResultReturnedTwice(t *testing.T) {
	drv := newFakeDriver()
	p := New(drv)

	for i := 0; i < 3; i++ {
		_ = p.BeginQuery("x")
		_ = p.EndQuery()
		p.Tick()
	}

	seen := 0
	var out Frame
	for p.GetResults(&out) {
		seen++
	}
	if seen != 3 {
		t.Fatalf("expected exactly 3 results, got %d", seen)
	}
	if p.GetResults(&out) {
		t.Fatalf("GetResults should return false once drained")
	}
}
