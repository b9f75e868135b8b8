// Package pmm implements the physical page-frame allocator: a set of
// bitmap-backed PhysicalRegions constructed from the released boot memory
// map, serving allocate/free requests with a rotating per-region hint.
package pmm

import (
	"math"

	"github.com/nexuskernel/nexus/kernel/mem"
)

// Frame identifies a fixed-size (mem.PageSize) aligned physical page by its
// page index (physical address >> mem.PageShift).
type Frame uint64

// InvalidFrame is returned by allocators that fail to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// IsValid reports whether f is a real frame, as opposed to InvalidFrame.
func (f Frame) IsValid() bool { return f != InvalidFrame }

// Address returns the physical address of this frame.
func (f Frame) Address() uintptr { return uintptr(f) << mem.PageShift }

// FrameFromAddress returns the Frame containing the given physical address.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
