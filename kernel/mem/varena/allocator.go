package varena

import (
	"sync"

	"github.com/google/btree"

	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/mem"
)

const btreeDegree = 32

var (
	errZeroLengthAllocation = &kernel.Error{Module: "varena", Message: "allocation length must be non-zero"}
	errLengthOverflow       = &kernel.Error{Module: "varena", Message: "allocation length overflows the address space"}
	errOutOfSpace           = &kernel.Error{Module: "varena", Message: "no free gap large enough for the request"}
	errEmptyRange           = &kernel.Error{Module: "varena", Message: "requested range must be non-empty"}
	errRangeOutOfBounds     = &kernel.Error{Module: "varena", Message: "requested range falls outside this allocator's base range"}
	errRangeAlreadyAllocated = &kernel.Error{Module: "varena", Message: "requested range overlaps an already allocated range"}
	errRangeNotAllocated    = &kernel.Error{Module: "varena", Message: "range is not currently allocated"}

	// panicFn is mocked by tests; see kernel/mem/bootmem for the rationale
	// behind both the explicit-return-after-panicFn idiom used throughout
	// this package and the concrete *kernel.Error signature.
	panicFn = func(err *kernel.Error) { kernel.Panic(err) }
)

// Allocator hands out non-overlapping, page-aligned virtual address ranges
// carved out of a fixed base Range, merging newly allocated ranges with
// adjacent ones to keep the bookkeeping compact.
type Allocator struct {
	mu        sync.Mutex
	base      Range
	allocated *btree.BTreeG[Range]
}

// NewAllocator constructs an Allocator that serves requests out of base.
func NewAllocator(base Range) *Allocator {
	return &Allocator{
		base:      base,
		allocated: btree.NewG(btreeDegree, lessRange),
	}
}

// Reset discards every tracked allocation and rebinds the allocator to a new
// base range.
func (a *Allocator) Reset(base Range) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.base = base
	a.allocated = btree.NewG(btreeDegree, lessRange)
}

func (a *Allocator) containsAddr(addr uintptr) bool {
	return a.base.Contains(addr)
}

func (a *Allocator) containsRange(r Range) bool {
	return a.base.Begin <= r.Begin && r.End() <= a.base.End() && r.End() > r.Begin
}

// IsAllocated reports whether addr falls inside a currently allocated range.
func (a *Allocator) IsAllocated(addr uintptr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.containsAddr(addr) {
		return false
	}

	var (
		owner Range
		found bool
	)
	a.allocated.DescendLessOrEqual(Range{Begin: addr}, func(item Range) bool {
		owner, found = item, true
		return false
	})

	return found && owner.Contains(addr)
}

// predecessorAndSuccessor returns the allocated range (if any) with the
// largest Begin <= at, and the allocated range (if any) with the smallest
// Begin >= at.
func (a *Allocator) predecessorAndSuccessor(at uintptr) (pred, succ *Range, predOK, succOK bool) {
	var predRange, succRange Range

	a.allocated.DescendLessOrEqual(Range{Begin: at}, func(item Range) bool {
		predRange, predOK = item, true
		return false
	})
	a.allocated.AscendGreaterOrEqual(Range{Begin: at}, func(item Range) bool {
		succRange, succOK = item, true
		return false
	})

	if predOK {
		pred = &predRange
	}
	if succOK {
		succ = &succRange
	}
	return
}

// mergeAndEmplace inserts newRange, absorbing before and/or after into it
// when they touch it exactly, matching the original allocator's
// merge_and_emplace three-way decision.
func (a *Allocator) mergeAndEmplace(before, after *Range, newRange Range) {
	beforeMergeable := before != nil && before.End() == newRange.Begin
	afterMergeable := after != nil && after.Begin == newRange.End()

	switch {
	case beforeMergeable && afterMergeable:
		merged := Range{Begin: before.Begin, Length: after.End() - before.Begin}
		a.allocated.Delete(*before)
		a.allocated.Delete(*after)
		a.allocated.ReplaceOrInsert(merged)
	case beforeMergeable:
		merged := Range{Begin: before.Begin, Length: newRange.End() - before.Begin}
		a.allocated.Delete(*before)
		a.allocated.ReplaceOrInsert(merged)
	case afterMergeable:
		merged := Range{Begin: newRange.Begin, Length: after.End() - newRange.Begin}
		a.allocated.Delete(*after)
		a.allocated.ReplaceOrInsert(merged)
	default:
		a.allocated.ReplaceOrInsert(newRange)
	}
}

// Allocate finds the lowest gap of at least length bytes (rounded up to a
// whole number of pages), aligned to alignment (which is itself raised to
// at least a page if smaller), and marks it allocated.
func (a *Allocator) Allocate(length, alignment uintptr) (Range, *kernel.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if length == 0 {
		panicFn(errZeroLengthAllocation)
		return Range{}, errZeroLengthAllocation
	}
	if alignment < uintptr(mem.PageSize) {
		alignment = uintptr(mem.PageSize)
	}

	length = roundUpPage(length)
	if length == 0 {
		panicFn(errLengthOverflow)
		return Range{}, errLengthOverflow
	}

	var (
		before, after *Range
		prev          *Range
		allocated     Range
		found         bool
		gapBegin      = a.base.Begin
	)

	a.allocated.Ascend(func(item Range) bool {
		it := item
		candidate := alignUp(gapBegin, alignment)

		if candidate >= gapBegin && candidate+length > candidate && candidate+length <= it.Begin {
			allocated = Range{Begin: candidate, Length: length}
			before, after, found = prev, &it, true
			return false
		}

		prev = &it
		gapBegin = it.End()
		return true
	})

	if !found {
		candidate := alignUp(gapBegin, alignment)
		if candidate < gapBegin || candidate+length <= candidate || candidate+length > a.base.End() {
			panicFn(errOutOfSpace)
			return Range{}, errOutOfSpace
		}
		allocated = Range{Begin: candidate, Length: length}
		before, after = prev, nil
	}

	a.mergeAndEmplace(before, after, allocated)
	return allocated, nil
}

// AllocateRange marks the exact (page-rounded) requested range as allocated,
// failing if any part of it overlaps an existing allocation or falls outside
// the allocator's base range.
func (a *Allocator) AllocateRange(requested Range) (Range, *kernel.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if requested.empty() {
		panicFn(errEmptyRange)
		return Range{}, errEmptyRange
	}

	begin := roundDownPage(requested.Begin)
	length := roundUpPage(requested.Length + requested.Begin - begin)
	r := Range{Begin: begin, Length: length}

	if !a.containsRange(r) {
		panicFn(errRangeOutOfBounds)
		return Range{}, errRangeOutOfBounds
	}

	pred, succ, predOK, succOK := a.predecessorAndSuccessor(r.Begin)

	if succOK && succ.Begin < r.End() {
		panicFn(errRangeAlreadyAllocated)
		return Range{}, errRangeAlreadyAllocated
	}
	if predOK && pred.End() > r.Begin {
		panicFn(errRangeAlreadyAllocated)
		return Range{}, errRangeAlreadyAllocated
	}

	a.mergeAndEmplace(pred, succ, r)
	return r, nil
}

// Deallocate releases the exact range previously returned by Allocate or
// AllocateRange, splitting its owning allocated range around it.
func (a *Allocator) Deallocate(r Range) *kernel.Error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.containsRange(r) {
		panicFn(errRangeOutOfBounds)
		return errRangeOutOfBounds
	}

	var (
		owner Range
		found bool
	)
	a.allocated.DescendLessOrEqual(Range{Begin: r.Begin}, func(item Range) bool {
		owner, found = item, true
		return false
	})

	if !found || !owner.containsRange(r) {
		panicFn(errRangeNotAllocated)
		return errRangeNotAllocated
	}

	before := Range{Begin: owner.Begin, Length: r.Begin - owner.Begin}
	after := Range{Begin: r.End(), Length: owner.End() - r.End()}

	a.allocated.Delete(owner)
	if !before.empty() {
		a.allocated.ReplaceOrInsert(before)
	}
	if !after.empty() {
		a.allocated.ReplaceOrInsert(after)
	}

	return nil
}

// Contains reports whether addr falls inside the allocator's base range.
func (a *Allocator) Contains(addr uintptr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.containsAddr(addr)
}
