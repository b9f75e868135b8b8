package pmm

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Region is a contiguous run of page frames backed by a single allocation
// bitmap (one bit per frame, set == allocated), a free-count, and a rotating
// search hint. Region.lock is interrupt-safe in a real kernel (acquired with
// interrupts disabled so an interrupt handler can't deadlock against a
// region-holding thread); this package models that with a plain mutex and
// leaves disabling interrupts to the caller's CPU collaborator.
type Region struct {
	mu sync.Mutex

	base      Frame
	pageCount uint32
	bitmap    *bitset.BitSet
	freeCount uint32
	hint      uint32
}

// NewRegion constructs a Region covering pageCount frames starting at base,
// entirely free.
func NewRegion(base Frame, pageCount uint32) *Region {
	return &Region{
		base:      base,
		pageCount: pageCount,
		bitmap:    bitset.New(uint(pageCount)),
		freeCount: pageCount,
	}
}

// Base returns the first frame covered by this region.
func (r *Region) Base() Frame { return r.base }

// PageCount returns the number of frames covered by this region.
func (r *Region) PageCount() uint32 { return r.pageCount }

// FreeCount returns the number of currently unallocated frames, satisfying
// the invariant popcount(bitmap) + FreeCount() == PageCount().
func (r *Region) FreeCount() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freeCount
}

// Contains reports whether f falls within this region's frame range.
func (r *Region) Contains(f Frame) bool {
	return f >= r.base && f < r.base+Frame(r.pageCount)
}

// Allocate finds the first clear bit at-or-after the rotating hint, marks it
// allocated, and returns the corresponding frame. The second return value is
// false if the region is full.
func (r *Region) Allocate() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.freeCount == 0 {
		return InvalidFrame, false
	}

	idx, ok := r.bitmap.NextClear(uint(r.hint))
	if !ok || idx >= uint(r.pageCount) {
		idx, ok = r.bitmap.NextClear(0)
		if !ok || idx >= uint(r.pageCount) {
			return InvalidFrame, false
		}
	}

	r.bitmap.Set(idx)
	r.freeCount--

	r.hint = uint32(idx) + 1
	if r.hint >= r.pageCount {
		r.hint = 0
	}

	return r.base + Frame(idx), true
}

// Free releases a previously allocated frame back to the region. It panics
// (via panicFn) if the frame was not allocated (double-free) — spec.md §7
// names this a fatal invariant violation.
func (r *Region) Free(f Frame) {
	if !r.Contains(f) {
		return
	}

	r.mu.Lock()
	idx := uint(f - r.base)
	alreadyFree := !r.bitmap.Test(idx)
	if !alreadyFree {
		r.bitmap.Clear(idx)
		r.freeCount++
	}
	r.mu.Unlock()

	if alreadyFree {
		panicFn(errDoubleFree)
	}
}
