package window

import "github.com/loopworks/renderpipe/common"

// Option is a functional option for configuring an engineWindow.
type Option func(w *engineWindow)

// WithTitle sets the window title displayed in the title bar.
func WithTitle(title string) Option {
	return func(w *engineWindow) { w.title = title }
}

// WithMaxSize sets the maximum allowed window dimensions. A zero width or
// height leaves that dimension's existing default in place, so callers can
// override just one axis.
func WithMaxSize(maxWidth, maxHeight int) Option {
	return func(w *engineWindow) {
		w.maxWidth = common.Coalesce(maxWidth, w.maxWidth)
		w.maxHeight = common.Coalesce(maxHeight, w.maxHeight)
	}
}

// WithMinSize sets the minimum allowed window dimensions, same zero-leaves-
// default behavior as WithMaxSize.
func WithMinSize(minWidth, minHeight int) Option {
	return func(w *engineWindow) {
		w.minWidth = common.Coalesce(minWidth, w.minWidth)
		w.minHeight = common.Coalesce(minHeight, w.minHeight)
	}
}

// WithSize sets the initial window dimensions, same zero-leaves-default
// behavior as WithMaxSize.
func WithSize(width, height int) Option {
	return func(w *engineWindow) {
		w.width = common.Coalesce(width, w.width)
		w.height = common.Coalesce(height, w.height)
	}
}
