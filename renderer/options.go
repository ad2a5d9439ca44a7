package renderer

import (
	"time"

	"github.com/loopworks/renderpipe/common"
	"github.com/loopworks/renderpipe/driver"
)

// defaultIdleTimeout is how long a scheduler worker sits idle before the
// pool lets it exit.
const defaultIdleTimeout = 5 * time.Second

// Option configures a Renderer at construction time.
type Option func(*renderer)

// WithDriver overrides the default WGPU-backed driver, primarily for tests.
func WithDriver(drv driver.Driver) Option {
	return func(r *renderer) { r.drv = drv }
}

// WithWindowHandle supplies the native window handle passed to Driver.Init.
func WithWindowHandle(h driver.WindowHandle) Option {
	return func(r *renderer) { r.windowHandle = h }
}

// WithSize sets the initial framebuffer size. A zero width or height leaves
// that dimension's default in place.
func WithSize(width, height int) Option {
	return func(r *renderer) {
		r.width = common.Coalesce(width, r.width)
		r.height = common.Coalesce(height, r.height)
	}
}

// WithPresentMode selects vsync vs. uncapped presentation.
func WithPresentMode(mode driver.PresentMode) Option {
	return func(r *renderer) { r.present = mode }
}

// WithMSAA sets the main render target's multisample count.
func WithMSAA(samples driver.MSAASampleCount) Option {
	return func(r *renderer) { r.samples = samples }
}

// WithWorkers sets the scheduler's worker-pool size. n == 0 leaves the
// default in place.
func WithWorkers(n int) Option {
	return func(r *renderer) {
		r.workers = common.Coalesce(n, r.workers)
	}
}
