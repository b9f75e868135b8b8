package pmm

import (
	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/mem"
	"github.com/nexuskernel/nexus/kernel/mem/bootmem"
)

var (
	errDoubleFree  = &kernel.Error{Module: "pmm", Message: "double-free of a physical frame"}
	errOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}

	// panicFn is mocked by tests; see kernel/mem/bootmem for the rationale
	// behind both the explicit-return-after-panicFn idiom used throughout
	// this package and the concrete *kernel.Error signature below.
	panicFn = func(err *kernel.Error) { kernel.Panic(err) }

	// zeroFrameFn maps a frame into scratch virtual memory and clears it.
	// The default is a no-op: zeroing a frame requires a working virtual
	// memory subsystem (kernel/mem/vmm), which is wired in by SetZeroer once
	// the address space core is up; until then frames are handed out
	// unzeroed, matching how gopher-os bootstraps pmm before vmm.
	zeroFrameFn = func(Frame) {}
)

// SetZeroer installs the function Allocate uses to clear a freshly allocated
// frame before handing it to the caller, per spec.md §4.B ("zero the
// returned frame (by temporary mapping) before returning").
func SetZeroer(fn func(Frame)) {
	if fn == nil {
		fn = func(Frame) {}
	}
	zeroFrameFn = fn
}

// Allocator aggregates the PhysicalRegions carved out of the released boot
// memory map and serves Allocate/Free requests across them in order.
type Allocator struct {
	regions []*Region
}

// NewAllocator builds an Allocator directly from a set of regions, typically
// produced by NewFromMemoryMap.
func NewAllocator(regions []*Region) *Allocator {
	return &Allocator{regions: regions}
}

// archPhysicalCeiling bounds the highest physical address pmm will manage;
// frames above it are left for drivers doing their own DMA-region handling.
// 2^52 covers every x86-64 implementation's maximum physical address width
// with headroom, while still excluding the non-canonical/MMIO tail.
const archPhysicalCeiling = uint64(1) << 52

// NewFromMemoryMap builds one Region per FREE entry of mm, after trimming
// each entry to page alignment and clamping it below archPhysicalCeiling.
// Entries that vanish after trimming/clamping are skipped.
func NewFromMemoryMap(mm bootmem.MemoryMap) *Allocator {
	pageSize := uint64(mem.PageSize)
	var regions []*Region

	for _, r := range mm.Ranges() {
		if r.Type != bootmem.Free {
			continue
		}

		begin := (r.Begin + pageSize - 1) &^ (pageSize - 1)
		end := r.End() &^ (pageSize - 1)
		if end > archPhysicalCeiling {
			end = archPhysicalCeiling
		}
		if end <= begin {
			continue
		}

		pageCount := (end - begin) / pageSize
		if pageCount == 0 {
			continue
		}

		regions = append(regions, NewRegion(Frame(begin/pageSize), uint32(pageCount)))
	}

	return NewAllocator(regions)
}

// Allocate scans regions in order for the first available frame, zeroes it,
// and returns it. Running out of memory across every region is a fatal
// invariant violation (spec.md §4.B/§7).
func (a *Allocator) Allocate() Frame {
	for _, region := range a.regions {
		if f, ok := region.Allocate(); ok {
			zeroFrameFn(f)
			return f
		}
	}

	panicFn(errOutOfMemory)
	return InvalidFrame
}

// Free locates the region owning f (containment test) and releases it back.
// Freeing a frame that belongs to no region is a silent no-op (it was never
// ours to manage, e.g. a reserved/MMIO address); freeing an already-free
// frame within an owned region panics (double free).
func (a *Allocator) Free(f Frame) {
	for _, region := range a.regions {
		if region.Contains(f) {
			region.Free(f)
			return
		}
	}
}

// TotalPages returns the total number of frames this allocator manages
// across every region.
func (a *Allocator) TotalPages() uint64 {
	var total uint64
	for _, region := range a.regions {
		total += uint64(region.PageCount())
	}
	return total
}

// FreePages returns the number of currently unallocated frames across every
// region.
func (a *Allocator) FreePages() uint64 {
	var free uint64
	for _, region := range a.regions {
		free += uint64(region.FreeCount())
	}
	return free
}
