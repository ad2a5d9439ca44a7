// Package driver defines the opaque graphics-driver capability set the
// render pipeline treats as an external collaborator: program, buffer,
// texture, and framebuffer lifecycle, binding, drawing, mapping, and
// timestamp queries. Every method except Preinit must be called from the
// render thread; concrete implementations wrap this requirement with a
// checkThread assertion (see thread_check.go).
package driver

import "github.com/loopworks/renderpipe/handle"

// BufferFlags mirrors the OpenGL-era flag set: DYNAMIC_STORAGE, PERSISTENT,
// MAP_WRITE, MAP_FLUSH_EXPLICIT. WebGPU has no literal equivalent (see the
// Map doc below); a wgpu-backed Driver maps these onto CreateBuffer usage
// flags plus a transient-buffer host-slice approximation (see
// wgpu_driver.go).
type BufferFlags uint32

const (
	BufferFlagDynamicStorage BufferFlags = 1 << iota
	BufferFlagPersistent
	BufferFlagMapWrite
	BufferFlagMapFlushExplicit
)

// PresentMode selects how the swapchain paces frame delivery.
type PresentMode int

const (
	PresentModeVSync PresentMode = iota
	PresentModeUncapped
)

// MSAASampleCount is the multisample count for the main render target.
type MSAASampleCount int

const (
	MSAAOff MSAASampleCount = 1
	MSAA4x  MSAASampleCount = 4
	MSAA8x  MSAASampleCount = 8
	MSAA16x MSAASampleCount = 16
)

// Driver is the opaque capability set consumed by render jobs. All calls
// except Preinit require the caller to be on the render thread.
type Driver interface {
	// Preinit hands the driver the per-kind handle allocators. Called once,
	// before Init, from the owning goroutine before the render thread
	// starts.
	Preinit(allocators Allocators)

	// Init creates the graphics context against the given native window
	// handle and configures the default framebuffer.
	Init(windowHandle WindowHandle, width, height int, present PresentMode, samples MSAASampleCount) error

	// Shutdown tears down all driver-owned resources. Must be the last
	// call made on the render thread.
	Shutdown()

	// CheckThread panics if called from any goroutine other than the one
	// that called Init. Every Driver method other than Preinit and Init
	// calls this first.
	CheckThread()

	// SwapBuffers presents the current frame and acquires the next
	// swapchain image.
	SwapBuffers() error

	// Resize reconfigures the swapchain and depth/MSAA targets for a new
	// framebuffer size.
	Resize(width, height int)

	CreateBuffer(h handle.Handle, flags BufferFlags, size int, initial []byte) error
	UpdateBuffer(h handle.Handle, offset int, data []byte) error
	DestroyBuffer(h handle.Handle)

	CreateTexture(h handle.Handle, width, height, depth uint32, format TextureFormat, flags BufferFlags, initial []byte) error
	DestroyTexture(h handle.Handle)

	CreateProgram(h handle.Handle, vertexSrc, fragmentSrc string) error
	DestroyProgram(h handle.Handle)

	CreateFramebuffer(h handle.Handle, width, height int) error
	DestroyFramebuffer(h handle.Handle)

	// Map returns a host-visible view of a PERSISTENT|MAP_WRITE buffer's
	// contents, sized size starting at offset. Flushing is explicit: the
	// driver does not observe writes through the returned slice until
	// FlushMappedRange is called.
	Map(h handle.Handle, offset, size int, flags BufferFlags) ([]byte, error)
	FlushMappedRange(h handle.Handle, offset, size int)

	BindUniformBuffer(binding int, h handle.Handle, offset, size int)

	CreateQuery() (handle.Handle, error)
	DestroyQuery(h handle.Handle)
	QueryTimestamp(h handle.Handle)
	// GetQueryResult reports the resolved timestamp (driver ticks) for h.
	// The bool is false if the result is not yet available.
	GetQueryResult(h handle.Handle) (uint64, bool)

	PushDebugGroup(name string)
	PopDebugGroup()

	StartCapture()
	StopCapture()
}

// Allocators bundles the per-kind handle allocators the renderer facade
// issues handles from. The wgpu-backed driver does not check incoming
// handles against them; it uses only Query, to issue handles in
// CreateQuery.
type Allocators struct {
	Buffer      *handle.Allocator
	Texture     *handle.Allocator
	Program     *handle.Allocator
	Framebuffer *handle.Allocator
	Query       *handle.Allocator
}

// WindowHandle is the opaque native window handle passed to Init; platform
// window creation lives in the window package, which supplies this value
// via Window.SurfaceDescriptor.
type WindowHandle any

// TextureFormat names a pixel format the driver can create a texture with.
type TextureFormat int

const (
	TextureFormatRGBA8Unorm TextureFormat = iota
	TextureFormatDepth24Plus
	TextureFormatDepth32Float
)
