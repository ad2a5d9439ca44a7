// Package renderer implements the public API that pipeline code uses to
// allocate resources, enqueue jobs, push the swap, and wait on the frame
// semaphore.
//
// The shape here is interface-plus-impl-plus-functional-options: a
// Renderer interface, a private renderer struct, New(options...). The
// operations are resource-kind-generic: buffers, textures, programs, and
// framebuffers share one allocate/create/destroy vocabulary.
package renderer

import (
	"fmt"
	"log"
	"sync"

	"github.com/loopworks/renderpipe/common"
	"github.com/loopworks/renderpipe/driver"
	"github.com/loopworks/renderpipe/handle"
	"github.com/loopworks/renderpipe/profiler"
	"github.com/loopworks/renderpipe/queue"
	"github.com/loopworks/renderpipe/renderjob"
	"github.com/loopworks/renderpipe/renderthread"
	"github.com/loopworks/renderpipe/scheduler"
	"github.com/loopworks/renderpipe/transientbuf"
)

// Renderer is the producer-facing API surface of the render pipeline.
type Renderer interface {
	Allocate(n int) common.MemRef
	Free(mem *common.MemRef)

	CreateBuffer(mem common.MemRef, flags driver.BufferFlags) handle.Handle
	CreateTexture(width, height, depth uint32, format driver.TextureFormat, flags driver.BufferFlags, mem common.MemRef, name string) handle.Handle
	LoadTexture(mem common.MemRef, flags driver.BufferFlags, name string) (handle.Handle, common.TextureHeader)
	CreateProgram(resolveSource func() (vertexSrc, fragmentSrc string)) handle.Handle
	CreateFramebuffer(width, height int) handle.Handle
	Destroy(kind handle.Kind, h handle.Handle)

	AllocTransient(bytes uint64) transientbuf.Slice

	SetGlobalState(s common.GlobalState)
	GetGlobalState() common.GlobalState

	BeginProfileBlock(name string)
	EndProfileBlock()
	GetGPUTimings(out *profiler.Frame) bool
	StartCapture()
	StopCapture()

	// RegisterLayer and RegisterShaderDefine intern layer/shader-define
	// names into dense indices. Writers must not contend: call these only
	// during initialization or under external synchronization. Both tables
	// are frozen the first time Frame is called, since CreateProgram's
	// Setup phase fans out across worker goroutines and reads whichever
	// defines were registered by then; see DESIGN.md for the rationale.
	RegisterLayer(name string) int
	RegisterShaderDefine(name string) int

	RunInRenderThread(fn func())

	// Resize reconfigures the swapchain for a new framebuffer size, on the
	// render thread. Safe to call from the window's resize callback.
	Resize(width, height int)

	// Frame pushes the swap job, blocks on the frame semaphore, then waits
	// for every job submitted before this call to have been pushed to the
	// command queue. Infallible.
	Frame()

	// Shutdown issues the poison-pill shutdown job, waits for all
	// previously submitted jobs to execute, then waits for the render
	// thread to finish.
	Shutdown()
}

const defaultTransientSize = 64 * 1024 * 1024 // 64 MiB per frame's transient budget

type renderer struct {
	mu sync.Mutex

	drv  driver.Driver
	q    *queue.Queue
	sch  *scheduler.Scheduler
	rt   *renderthread.RenderThread
	prof *profiler.Profiler

	allocators driver.Allocators

	transient       *transientbuf.Buffer
	transientBufH   handle.Handle
	globalStateBuf  handle.Handle
	globalState     common.GlobalState

	// lastExecJob is the signal of the most recently pushed job, used as
	// the next push's setup precondition and as the wait target at
	// Frame()/Shutdown(). In principle only the single producer timeline
	// writes this, but it's guarded with mu anyway since real callers may
	// issue facade calls from more than one goroutine.
	lastExecJob *scheduler.Signal

	frameSem chan struct{}

	layersMu      sync.Mutex
	layers        map[string]int
	shaderDefines map[string]int
	tablesFrozen  bool

	windowHandle  driver.WindowHandle
	present       driver.PresentMode
	samples       driver.MSAASampleCount
	width, height int
	workers       int
}

// New constructs a Renderer and starts its render thread. The driver is
// initialized on the render-thread goroutine itself (its thread guard
// binds to whichever goroutine calls Init); New returns once that
// initialization has finished.
func New(options ...Option) Renderer {
	r := &renderer{
		layers:        make(map[string]int),
		shaderDefines: make(map[string]int),
		present:       driver.PresentModeVSync,
		samples:       driver.MSAAOff,
		width:         1280,
		height:        720,
		workers:       4,
	}
	for _, opt := range options {
		opt(r)
	}

	r.allocators = driver.Allocators{
		Buffer:      handle.NewAllocator(handle.KindBuffer),
		Texture:     handle.NewAllocator(handle.KindTexture),
		Program:     handle.NewAllocator(handle.KindProgram),
		Framebuffer: handle.NewAllocator(handle.KindFramebuffer),
		Query:       handle.NewAllocator(handle.KindQuery),
	}

	if r.drv == nil {
		r.drv = driver.NewWGPUDriver()
	}
	r.drv.Preinit(r.allocators)

	r.q = queue.New()
	r.sch = scheduler.New(r.workers, 256, defaultIdleTimeout)
	r.prof = profiler.New(r.drv)
	r.rt = renderthread.New(r.drv, r.q)

	// Frame semaphore starts at its max value of 2: a counting semaphore
	// with initial count 2, max 2. This caps CPU render-ahead at two
	// frames before Frame() blocks.
	r.frameSem = make(chan struct{}, 2)
	r.frameSem <- struct{}{}
	r.frameSem <- struct{}{}

	r.lastExecJob = scheduler.Completed()
	r.globalState = common.NewGlobalState()

	r.transientBufH = r.allocators.Buffer.Alloc()
	r.globalStateBuf = r.allocators.Buffer.Alloc()

	ready := make(chan struct{})
	r.rt.Start(func() error {
		defer close(ready)
		if err := r.drv.Init(r.windowHandle, r.width, r.height, r.present, r.samples); err != nil {
			return fmt.Errorf("driver init: %w", err)
		}
		if err := r.drv.CreateBuffer(r.transientBufH, driver.BufferFlagPersistent|driver.BufferFlagMapWrite|driver.BufferFlagMapFlushExplicit, defaultTransientSize, nil); err != nil {
			return fmt.Errorf("create transient buffer: %w", err)
		}
		host, err := r.drv.Map(r.transientBufH, 0, defaultTransientSize, driver.BufferFlagMapWrite)
		if err != nil {
			return fmt.Errorf("map transient buffer: %w", err)
		}
		r.transient = transientbuf.New(r.transientBufH, defaultTransientSize, host)

		gsBytes := r.globalState.Bytes()
		if err := r.drv.CreateBuffer(r.globalStateBuf, driver.BufferFlagDynamicStorage, len(gsBytes), gsBytes); err != nil {
			return fmt.Errorf("create global state buffer: %w", err)
		}
		r.drv.BindUniformBuffer(0, r.globalStateBuf, 0, len(gsBytes))
		return nil
	})
	<-ready

	return r
}

// push implements the two-task dance that keeps queue order equal to
// submission order even though setups fan out across workers: T_setup
// depends on lastExecJob, T_push depends on T_setup, and lastExecJob is
// replaced by T_push's signal.
func (r *renderer) push(job renderjob.RenderJob) {
	r.mu.Lock()
	precondition := r.lastExecJob
	r.mu.Unlock()

	setupDone := r.sch.Run(precondition, job.Setup)
	pushDone := r.sch.Run(setupDone, func() {
		r.q.Push(job)
	})

	r.mu.Lock()
	r.lastExecJob = pushDone
	r.mu.Unlock()
}

func (r *renderer) Allocate(n int) common.MemRef {
	return common.Allocate(make([]byte, n))
}

func (r *renderer) Free(mem *common.MemRef) {
	mem.Free()
}

func (r *renderer) CreateBuffer(mem common.MemRef, flags driver.BufferFlags) handle.Handle {
	h := r.allocators.Buffer.Alloc()
	r.push(&renderjob.CreateBufferJob{Driver: r.drv, Handle: h, Flags: flags, Size: mem.Size, Initial: mem})
	return h
}

func (r *renderer) CreateTexture(width, height, depth uint32, format driver.TextureFormat, flags driver.BufferFlags, mem common.MemRef, name string) handle.Handle {
	h := r.allocators.Texture.Alloc()
	r.push(&renderjob.CreateTextureJob{Driver: r.drv, Handle: h, Width: width, Height: height, Depth: depth, Format: format, Flags: flags, Initial: mem})
	return h
}

func (r *renderer) LoadTexture(mem common.MemRef, flags driver.BufferFlags, name string) (handle.Handle, common.TextureHeader) {
	header, pixels, err := common.DecodeTextureHeader(mem)
	if err != nil {
		log.Printf("renderer: loadTexture %q failed to decode header: %v", name, err)
		return handle.Invalid, common.TextureHeader{}
	}
	h := r.allocators.Texture.Alloc()
	r.push(&renderjob.CreateTextureJob{
		Driver: r.drv, Handle: h, Width: header.Width, Height: header.Height, Depth: 1,
		Format: driver.TextureFormatRGBA8Unorm, Flags: flags, Initial: common.Allocate(pixels),
	})
	return h, header
}

func (r *renderer) CreateProgram(resolveSource func() (vertexSrc, fragmentSrc string)) handle.Handle {
	h := r.allocators.Program.Alloc()
	r.push(&renderjob.CreateProgramJob{Driver: r.drv, Handle: h, ResolveSource: resolveSource})
	return h
}

func (r *renderer) CreateFramebuffer(width, height int) handle.Handle {
	h := r.allocators.Framebuffer.Alloc()
	r.push(&renderjob.CreateFramebufferJob{Driver: r.drv, Handle: h, Width: width, Height: height})
	return h
}

func (r *renderer) Destroy(kind handle.Kind, h handle.Handle) {
	var alloc *handle.Allocator
	switch kind {
	case handle.KindBuffer:
		alloc = r.allocators.Buffer
	case handle.KindTexture:
		alloc = r.allocators.Texture
	case handle.KindProgram:
		alloc = r.allocators.Program
	case handle.KindFramebuffer:
		alloc = r.allocators.Framebuffer
	case handle.KindQuery:
		alloc = r.allocators.Query
	}
	if alloc != nil {
		alloc.Free(h)
	}
	r.push(&renderjob.DestroyJob{Driver: r.drv, Kind: kind, Handle: h})
}

// AllocTransient bump-allocates from the transient buffer on the calling
// (producer) thread. Returns a zero-sized slice if the frame's budget is
// exhausted.
func (r *renderer) AllocTransient(bytes uint64) transientbuf.Slice {
	return r.transient.Alloc(bytes)
}

func (r *renderer) SetGlobalState(s common.GlobalState) {
	r.mu.Lock()
	r.globalState = s
	r.mu.Unlock()

	r.push(&renderjob.UploadGlobalStateJob{
		Driver:     r.drv,
		UniformBuf: r.globalStateBuf,
		StateBytes: func() []byte {
			r.mu.Lock()
			defer r.mu.Unlock()
			snap := r.globalState
			return snap.Bytes()
		},
	})
}

func (r *renderer) GetGlobalState() common.GlobalState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globalState
}

func (r *renderer) BeginProfileBlock(name string) {
	r.push(&renderjob.BeginQueryJob{Profiler: r.prof, Name: name})
}

func (r *renderer) EndProfileBlock() {
	r.push(&renderjob.EndQueryJob{Profiler: r.prof})
}

func (r *renderer) GetGPUTimings(out *profiler.Frame) bool {
	return r.prof.GetResults(out)
}

func (r *renderer) StartCapture() {
	r.push(&renderjob.RunInRenderThreadJob{Fn: r.drv.StartCapture})
}

func (r *renderer) StopCapture() {
	r.push(&renderjob.RunInRenderThreadJob{Fn: r.drv.StopCapture})
}

const (
	maxLayers        = 64
	maxShaderDefines  = 256
)

func (r *renderer) RegisterLayer(name string) int {
	r.layersMu.Lock()
	defer r.layersMu.Unlock()
	if r.tablesFrozen {
		log.Printf("renderer: RegisterLayer(%q) called after the table was frozen at first Frame()", name)
		return -1
	}
	if idx, ok := r.layers[name]; ok {
		return idx
	}
	if len(r.layers) >= maxLayers {
		log.Printf("renderer: too many layers, %q not registered", name)
		return -1
	}
	idx := len(r.layers)
	r.layers[name] = idx
	return idx
}

func (r *renderer) RegisterShaderDefine(name string) int {
	r.layersMu.Lock()
	defer r.layersMu.Unlock()
	if r.tablesFrozen {
		log.Printf("renderer: RegisterShaderDefine(%q) called after the table was frozen at first Frame()", name)
		return -1
	}
	if idx, ok := r.shaderDefines[name]; ok {
		return idx
	}
	if len(r.shaderDefines) >= maxShaderDefines {
		log.Printf("renderer: too many shader defines, %q not registered", name)
		return -1
	}
	idx := len(r.shaderDefines)
	r.shaderDefines[name] = idx
	return idx
}

func (r *renderer) RunInRenderThread(fn func()) {
	r.push(&renderjob.RunInRenderThreadJob{Fn: fn})
}

func (r *renderer) Resize(width, height int) {
	r.push(&renderjob.RunInRenderThreadJob{Fn: func() {
		r.drv.Resize(width, height)
	}})
}

func (r *renderer) Frame() {
	r.layersMu.Lock()
	r.tablesFrozen = true
	r.layersMu.Unlock()

	r.push(&renderjob.SwapJob{Driver: r.drv, Profiler: r.prof, Transient: r.transient, FrameSem: r.frameSem})

	<-r.frameSem

	r.mu.Lock()
	wait := r.lastExecJob
	r.mu.Unlock()
	wait.Wait()
}

func (r *renderer) Shutdown() {
	r.push(&renderjob.ShutdownJob{OnShutdown: r.rt.RequestShutdown})

	r.mu.Lock()
	wait := r.lastExecJob
	r.mu.Unlock()
	wait.Wait()

	<-r.rt.Finished()
	r.rt.Wait()
}

var _ Renderer = (*renderer)(nil)
