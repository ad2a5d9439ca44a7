// Package renderjob implements RenderJob: the polymorphic unit of work that
// flows producer -> scheduler setup -> command queue -> render-thread
// execute. It is modeled as a capability set {Setup(), Execute()} rather
// than a tagged variant — the natural Go shape for this is an interface,
// and each concrete job below is a small struct closing over exactly the
// state its setup/execute phases need.
package renderjob

import (
	"log"

	"github.com/loopworks/renderpipe/common"
	"github.com/loopworks/renderpipe/driver"
	"github.com/loopworks/renderpipe/handle"
	"github.com/loopworks/renderpipe/profiler"
	"github.com/loopworks/renderpipe/transientbuf"
)

// RenderJob is the unit the scheduler and command queue move around: a
// producer-side Setup phase and a render-thread Execute phase. Created by
// the facade on the producer thread; Setup runs on a scheduler worker,
// Execute runs on the render thread, which discards the job afterward.
type RenderJob interface {
	Setup()
	Execute()
}

// CreateBufferJob creates a GPU buffer for a handle already reserved by
// the facade. Setup is a no-op: buffer creation needs no producer-side
// preparation beyond what the facade already copied into the job.
type CreateBufferJob struct {
	Driver  driver.Driver
	Handle  handle.Handle
	Flags   driver.BufferFlags
	Size    int
	Initial common.MemRef
}

func (j *CreateBufferJob) Setup() {}

func (j *CreateBufferJob) Execute() {
	if err := j.Driver.CreateBuffer(j.Handle, j.Flags, j.Size, j.Initial.Data); err != nil {
		log.Printf("renderjob: create buffer %v failed: %v", j.Handle, err)
	}
}

// CreateTextureJob creates a GPU texture, optionally uploading initial
// pixel data decoded synchronously on the producer thread by loadTexture.
type CreateTextureJob struct {
	Driver                driver.Driver
	Handle                handle.Handle
	Width, Height, Depth  uint32
	Format                driver.TextureFormat
	Flags                 driver.BufferFlags
	Initial               common.MemRef
}

func (j *CreateTextureJob) Setup() {}

func (j *CreateTextureJob) Execute() {
	if err := j.Driver.CreateTexture(j.Handle, j.Width, j.Height, j.Depth, j.Format, j.Flags, j.Initial.Data); err != nil {
		log.Printf("renderjob: create texture %v failed: %v", j.Handle, err)
	}
}

// CreateProgramJob compiles a shader program. Shader text parsing and the
// define table itself live outside this package; this job only invokes the
// driver with already-resolved source strings — resolving defines into
// source text happens in Setup, on a worker. Since Setup fans out across
// workers, the define table it reads from must be frozen before any
// CreateProgramJob's Setup can run; see renderer.renderer.tablesFrozen.
type CreateProgramJob struct {
	Driver               driver.Driver
	Handle               handle.Handle
	ResolveSource         func() (vertexSrc, fragmentSrc string)
	vertexSrc, fragmentSrc string
}

func (j *CreateProgramJob) Setup() {
	if j.ResolveSource != nil {
		j.vertexSrc, j.fragmentSrc = j.ResolveSource()
	}
}

func (j *CreateProgramJob) Execute() {
	if err := j.Driver.CreateProgram(j.Handle, j.vertexSrc, j.fragmentSrc); err != nil {
		log.Printf("renderjob: create program %v failed: %v", j.Handle, err)
	}
}

// CreateFramebufferJob creates a framebuffer-sized render target.
type CreateFramebufferJob struct {
	Driver        driver.Driver
	Handle        handle.Handle
	Width, Height int
}

func (j *CreateFramebufferJob) Setup() {}

func (j *CreateFramebufferJob) Execute() {
	if err := j.Driver.CreateFramebuffer(j.Handle, j.Width, j.Height); err != nil {
		log.Printf("renderjob: create framebuffer %v failed: %v", j.Handle, err)
	}
}

// DestroyJob destroys a resource of any kind previously created by a
// create job of the matching kind.
type DestroyJob struct {
	Driver driver.Driver
	Kind   handle.Kind
	Handle handle.Handle
}

func (j *DestroyJob) Setup() {}

func (j *DestroyJob) Execute() {
	switch j.Kind {
	case handle.KindBuffer:
		j.Driver.DestroyBuffer(j.Handle)
	case handle.KindTexture:
		j.Driver.DestroyTexture(j.Handle)
	case handle.KindProgram:
		j.Driver.DestroyProgram(j.Handle)
	case handle.KindFramebuffer:
		j.Driver.DestroyFramebuffer(j.Handle)
	case handle.KindQuery:
		j.Driver.DestroyQuery(j.Handle)
	}
}

// UploadGlobalStateJob mirrors a GlobalState snapshot into the driver's
// uniform buffer. The facade copies the value into itself synchronously at
// SetGlobalState time, so Setup here just captures that already-copied
// snapshot's bytes; Execute performs the actual upload.
type UploadGlobalStateJob struct {
	Driver       driver.Driver
	UniformBuf   handle.Handle
	StateBytes   func() []byte
	snapshot     []byte
}

func (j *UploadGlobalStateJob) Setup() {
	if j.StateBytes != nil {
		b := j.StateBytes()
		j.snapshot = append([]byte(nil), b...)
	}
}

func (j *UploadGlobalStateJob) Execute() {
	if j.snapshot == nil {
		return
	}
	if err := j.Driver.UpdateBuffer(j.UniformBuf, 0, j.snapshot); err != nil {
		log.Printf("renderjob: upload global state failed: %v", err)
	}
}

// BeginQueryJob / EndQueryJob wrap the profiler's begin/end calls, which
// must happen on the render thread.
type BeginQueryJob struct {
	Profiler *profiler.Profiler
	Name     string
}

func (j *BeginQueryJob) Setup() {}
func (j *BeginQueryJob) Execute() {
	if err := j.Profiler.BeginQuery(j.Name); err != nil {
		log.Printf("renderjob: begin query %q failed: %v", j.Name, err)
	}
}

type EndQueryJob struct {
	Profiler *profiler.Profiler
}

func (j *EndQueryJob) Setup() {}
func (j *EndQueryJob) Execute() {
	if err := j.Profiler.EndQuery(); err != nil {
		log.Printf("renderjob: end query failed: %v", err)
	}
}

// SwapJob is the once-per-frame job the facade pushes from Frame(): it
// flips buffers, advances the profiler, resets the transient allocator,
// and only then signals the frame semaphore, in that order.
type SwapJob struct {
	Driver    driver.Driver
	Profiler  *profiler.Profiler
	Transient *transientbuf.Buffer
	FrameSem  chan struct{}
}

func (j *SwapJob) Setup() {}

func (j *SwapJob) Execute() {
	if used := j.Transient.Offset(); used > 0 {
		flushed := used
		if size := j.Transient.Size(); flushed > size {
			flushed = size
		}
		j.Driver.FlushMappedRange(j.Transient.Handle(), 0, int(flushed))
	}

	if err := j.Driver.SwapBuffers(); err != nil {
		log.Printf("renderjob: swap buffers failed: %v", err)
	}
	j.Profiler.Tick()
	j.Transient.Reset()

	// Signal after the reset so a producer that was blocked in Frame()
	// never observes a pre-reset offset once it wakes.
	select {
	case j.FrameSem <- struct{}{}:
	default:
		// Frame semaphore is already at its max of 2 tokens; a third
		// signal is simply dropped.
	}
}

// ShutdownJob is the cooperative poison pill: its Execute sets the render
// loop's shutdown flag; the queue drain loop checks the flag each
// iteration and exits after this job runs.
type ShutdownJob struct {
	OnShutdown func()
}

func (j *ShutdownJob) Setup() {}
func (j *ShutdownJob) Execute() {
	if j.OnShutdown != nil {
		j.OnShutdown()
	}
}

// RunInRenderThreadJob runs an arbitrary producer-supplied closure on the
// render thread.
type RunInRenderThreadJob struct {
	Fn func()
}

func (j *RunInRenderThreadJob) Setup() {}
func (j *RunInRenderThreadJob) Execute() {
	if j.Fn != nil {
		j.Fn()
	}
}

var (
	_ RenderJob = (*CreateBufferJob)(nil)
	_ RenderJob = (*CreateTextureJob)(nil)
	_ RenderJob = (*CreateProgramJob)(nil)
	_ RenderJob = (*CreateFramebufferJob)(nil)
	_ RenderJob = (*DestroyJob)(nil)
	_ RenderJob = (*UploadGlobalStateJob)(nil)
	_ RenderJob = (*BeginQueryJob)(nil)
	_ RenderJob = (*EndQueryJob)(nil)
	_ RenderJob = (*SwapJob)(nil)
	_ RenderJob = (*ShutdownJob)(nil)
	_ RenderJob = (*RunInRenderThreadJob)(nil)
)
