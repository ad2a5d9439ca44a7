// Package window provides platform windowing: a GLFW-backed surface the
// driver presents into, trimmed to the subset the render pipeline actually
// touches (resize/update/close/running plus the WebGPU surface descriptor).
// Input handling (keyboard, scroll, mouse) is an external collaborator and
// is not implemented here.
package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window wraps a platform-specific window implementation with the surface
// lifecycle the driver and render thread need.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the window is resized.
	SetResizeCallback(callback func(width, height int))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for
	// creating a WebGPU surface. Satisfies the driver package's
	// windowSurfaceSource interface structurally.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	IsRunning() bool

	// Close closes the window and releases platform resources.
	Close() error

	// ProcessMessages runs the window message loop. Blocks until the
	// window is closed. Calls the update callback each iteration.
	ProcessMessages()

	// Width returns the current window client area width in pixels.
	Width() int

	// Height returns the current window client area height in pixels.
	Height() int
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title string

	maxWidth  int
	maxHeight int
	minWidth  int
	minHeight int

	width  int
	height int

	internalWindow any

	onUpdate func()
	onResize func(width, height int)
}

var _ Window = &engineWindow{}

// New creates a new Window with the specified options. Applies default
// values first, then each option in order, then spawns the platform window.
func New(options ...Option) Window {
	w := &engineWindow{
		title:     "renderpipe",
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  320,
		minHeight: 240,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		panic(fmt.Sprintf("failed to create platform window: %v", err))
	}
	return w
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if succ := platformProcessMessages(w); !succ {
			break
		}

		if w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}
