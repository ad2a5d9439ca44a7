// Package common contains plain data types shared across the render
// pipeline. They are not interface-wrapped structs, just commonly used
// data-types, the same convention the rest of this module's ambient stack
// follows.
package common

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
)

// MemRef is an owned staging buffer used to hand data to a job without the
// caller's lifetime concerns.
type MemRef struct {
	// Data is the staged byte payload.
	Data []byte
	// Size is the number of valid bytes in Data.
	Size int
	// Owned reports whether this MemRef's backing array was allocated by
	// Allocate (true) or is merely aliasing caller-provided memory (false).
	Owned bool
}

// Allocate copies src into a new owned MemRef.
func Allocate(src []byte) MemRef {
	data := make([]byte, len(src))
	copy(data, src)
	return MemRef{Data: data, Size: len(data), Owned: true}
}

// Copy overwrites m's contents with src, reallocating if src is larger than
// m's current capacity.
func (m *MemRef) Copy(src []byte) {
	if cap(m.Data) < len(src) {
		m.Data = make([]byte, len(src))
	} else {
		m.Data = m.Data[:len(src)]
	}
	copy(m.Data, src)
	m.Size = len(src)
}

// Free releases m's backing storage. After Free, m must not be used.
func (m *MemRef) Free() {
	m.Data = nil
	m.Size = 0
	m.Owned = false
}

// GlobalState is the POD pipeline-global uniform block mirrored to a GPU
// uniform buffer at binding 0: view/projection matrices, light parameters,
// and the current viewport size. Matrices are column-major float32[16].
type GlobalState struct {
	ViewMatrix [16]float32
	ProjMatrix [16]float32
	LightColor [4]float32
	LightDir   [4]float32
	ViewportW  uint32
	ViewportH  uint32
	_pad0      uint32
	_pad1      uint32
}

// NewGlobalState returns a GlobalState with identity view/projection
// matrices and zeroed lighting, a valid default to upload before the
// caller's first real SetGlobalState call.
func NewGlobalState() GlobalState {
	var s GlobalState
	Identity(s.ViewMatrix[:])
	Identity(s.ProjMatrix[:])
	return s
}

// Bytes reinterprets the GlobalState as the raw bytes the driver's
// BindUniformBuffer/update call expects.
func (s *GlobalState) Bytes() []byte {
	return StructToBytes(s)
}

// TextureHeader describes a decoded texture's dimensions. DecodeTextureHeader
// populates it synchronously so a LoadTexture caller has the info available
// immediately.
type TextureHeader struct {
	Width  uint32
	Height uint32
}

// DecodeTextureHeader decodes mem's image data (PNG or JPEG) to raw RGBA
// pixels and its header info. This runs synchronously on the calling
// (producer) thread, before any job is scheduled, so the caller has
// Width/Height in hand immediately.
func DecodeTextureHeader(mem MemRef) (TextureHeader, []byte, error) {
	img, _, err := image.Decode(bytes.NewReader(mem.Data))
	if err != nil {
		return TextureHeader{}, nil, fmt.Errorf("decode texture: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	return TextureHeader{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, rgba.Pix, nil
}
