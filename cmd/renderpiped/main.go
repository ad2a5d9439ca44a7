// Command renderpiped is the composition root: it opens a window, spins up
// a Renderer against it, and runs the message loop until the window closes,
// tearing the renderer down cleanly on exit.
package main

import (
	"flag"
	"log"

	"github.com/loopworks/renderpipe/driver"
	"github.com/loopworks/renderpipe/renderer"
	"github.com/loopworks/renderpipe/window"
)

func main() {
	noVsync := flag.Bool("no_vsync", false, "disable vsync (uncapped present mode)")
	width := flag.Int("width", 1280, "initial window width in pixels")
	height := flag.Int("height", 720, "initial window height in pixels")
	msaa := flag.Int("msaa", 1, "MSAA sample count (1, 4, 8, or 16)")
	flag.Parse()

	present := driver.PresentModeVSync
	if *noVsync {
		present = driver.PresentModeUncapped
	}

	samples := driver.MSAASampleCount(*msaa)
	switch samples {
	case driver.MSAAOff, driver.MSAA4x, driver.MSAA8x, driver.MSAA16x:
	default:
		log.Printf("renderpiped: unsupported -msaa=%d, falling back to 1", *msaa)
		samples = driver.MSAAOff
	}

	win := window.New(
		window.WithTitle("renderpiped"),
		window.WithSize(*width, *height),
	)

	r := renderer.New(
		renderer.WithWindowHandle(win),
		renderer.WithSize(win.Width(), win.Height()),
		renderer.WithPresentMode(present),
		renderer.WithMSAA(samples),
	)
	defer r.Shutdown()

	win.SetResizeCallback(func(w, h int) {
		r.Resize(w, h)
	})
	win.SetUpdateCallback(func() {
		r.Frame()
	})

	win.ProcessMessages()
}
