// Package handle implements the opaque resource-handle model: a small
// integer identity plus a validity (epoch) bit. Allocation is safe from any
// goroutine, and a handle is live in its Allocator as soon as it is issued;
// the GPU resource behind it is created later, when the creation job that
// reserved it runs on the render thread.
package handle

import "fmt"

// Index identifies the slot in a Kind's allocator.
type Index = uint32

// Epoch is the generation counter. A handle is live only if its epoch
// matches the allocator's current epoch for that slot; this prevents a
// stale handle from a destroyed-and-reused slot being mistaken as live.
type Epoch = uint32

// Kind distinguishes the resource families the driver capability set
// manages. Handles of different kinds are never comparable in practice
// because each Kind has its own Allocator instance.
type Kind int

const (
	KindBuffer Kind = iota
	KindTexture
	KindProgram
	KindFramebuffer
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindTexture:
		return "texture"
	case KindProgram:
		return "program"
	case KindFramebuffer:
		return "framebuffer"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Handle is an opaque resource identifier: an index into an Allocator's
// slot table plus the epoch the slot had when this handle was issued.
type Handle struct {
	index Index
	epoch Epoch
}

// Invalid is the zero handle; no Allocator ever issues it, since epochs
// start at 1.
var Invalid = Handle{}

// Index returns the slot index this handle refers to.
func (h Handle) Index() Index { return h.index }

// Epoch returns the generation this handle was issued against.
func (h Handle) Epoch() Epoch { return h.epoch }

// IsValid reports whether this handle is anything other than the zero
// value. It does not, by itself, prove the resource is still live — use
// Allocator.IsLive for that, since a handle can go stale after a destroy.
func (h Handle) IsValid() bool { return h.epoch != 0 }

func (h Handle) String() string {
	return fmt.Sprintf("Handle(%d,%d)", h.index, h.epoch)
}
