package window

import "testing"

// These only exercise the functional-option closures directly against a
// bare engineWindow; New() itself requires a real platform display (GLFW)
// and is not exercised here, matching the absence of windowing tests in
// the upstream engine package this was adapted from.
func TestOptionsApplyToWindow(t *testing.T) {
	w := &engineWindow{}
	for _, opt := range []Option{
		WithTitle("test"),
		WithSize(800, 600),
		WithMinSize(100, 100),
		WithMaxSize(2000, 2000),
	} {
		opt(w)
	}

	if w.title != "test" {
		t.Fatalf("expected title to be set, got %q", w.title)
	}
	if w.width != 800 || w.height != 600 {
		t.Fatalf("expected size 800x600, got %dx%d", w.width, w.height)
	}
	if w.minWidth != 100 || w.minHeight != 100 {
		t.Fatalf("expected min size 100x100, got %dx%d", w.minWidth, w.minHeight)
	}
	if w.maxWidth != 2000 || w.maxHeight != 2000 {
		t.Fatalf("expected max size 2000x2000, got %dx%d", w.maxWidth, w.maxHeight)
	}
}
