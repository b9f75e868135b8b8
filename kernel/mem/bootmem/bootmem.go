// Package bootmem implements the boot-time physical memory allocator: the
// single consumer of the bootloader-provided memory map that carves out the
// kernel image, initial heap and boot modules before the real physical page
// allocator (kernel/mem/pmm) exists.
package bootmem

import (
	"sort"

	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/hal/multiboot"
	"github.com/nexuskernel/nexus/kernel/mem"
)

// RangeType tags the purpose of a PhysicalRange.
type RangeType uint8

const (
	// Free indicates memory available for reservation/allocation.
	Free RangeType = iota
	// Reserved indicates memory the platform claims permanently.
	Reserved
	// Bad indicates memory reported defective by the firmware.
	Bad
	// GenericBootallocReserved tags a range reserved by a caller with no
	// more specific tag.
	GenericBootallocReserved
	// KernelImage tags the range occupied by the loaded kernel image.
	KernelImage
	// KernelModule tags a range occupied by a boot module (initrd, etc).
	KernelModule
	// InitialHeapBlock tags the range reserved for the initial heap.
	InitialHeapBlock
)

// String returns a human-readable name, used by early boot logging.
func (t RangeType) String() string {
	switch t {
	case Free:
		return "FREE"
	case Reserved:
		return "RESERVED"
	case Bad:
		return "BAD"
	case GenericBootallocReserved:
		return "GENERIC_BOOTALLOC_RESERVED"
	case KernelImage:
		return "KERNEL_IMAGE"
	case KernelModule:
		return "KERNEL_MODULE"
	case InitialHeapBlock:
		return "INITIAL_HEAP_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// PhysicalRange is a half-open, page-aligned physical address range tagged
// with its purpose.
type PhysicalRange struct {
	Begin  uint64
	Length uint64
	Type   RangeType
}

// End returns the exclusive end address of the range.
func (r PhysicalRange) End() uint64 { return r.Begin + r.Length }

func (r PhysicalRange) empty() bool { return r.Length == 0 }

// touches reports whether r and other are adjacent or overlapping, i.e.
// candidates for merging when they share a type.
func (r PhysicalRange) touches(other PhysicalRange) bool {
	return r.Begin <= other.End() && other.Begin <= r.End()
}

// MemoryMap is an ordered, non-overlapping, merged sequence of
// PhysicalRanges, sorted by Begin.
type MemoryMap struct {
	ranges []PhysicalRange
}

// NewMemoryMap builds a MemoryMap from an arbitrary (but non-overlapping)
// set of ranges, sorting and merging adjacent same-type entries so the
// invariant in spec §8 ("Boot allocator map invariant") holds immediately.
func NewMemoryMap(ranges []PhysicalRange) MemoryMap {
	cp := make([]PhysicalRange, len(ranges))
	copy(cp, ranges)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Begin < cp[j].Begin })

	mm := MemoryMap{ranges: cp}
	mm.mergeAll()
	return mm
}

// Ranges returns the current ranges in ascending order. The returned slice
// must not be mutated by the caller.
func (mm *MemoryMap) Ranges() []PhysicalRange { return mm.ranges }

// mergeAll collapses every pair of adjacent same-type ranges in the map.
// Called after construction and after every shatter.
func (mm *MemoryMap) mergeAll() {
	out := mm.ranges[:0:0]
	for _, r := range mm.ranges {
		if r.empty() {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Type == r.Type && out[n-1].touches(r) {
			out[n-1].Length = r.End() - out[n-1].Begin
			continue
		}
		out = append(out, r)
	}
	mm.ranges = out
}

// Allocator is the single boot-time instance that hands out physical
// reservations against a MemoryMap. Once Release is called, further
// reservations panic.
type Allocator struct {
	mm       MemoryMap
	released bool
}

// NewAllocator constructs an Allocator over a pre-built MemoryMap, typically
// produed by FromMultiboot.
func NewAllocator(mm MemoryMap) *Allocator {
	return &Allocator{mm: mm}
}

// FromMultiboot builds a MemoryMap by visiting every region reported by the
// bootloader via kernel/hal/multiboot, mapping multiboot's type enum onto
// RangeType. multiboot.SetInfoPtr must already have been called.
func FromMultiboot() MemoryMap {
	var ranges []PhysicalRange
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		ranges = append(ranges, PhysicalRange{
			Begin:  entry.PhysAddress,
			Length: entry.Length,
			Type:   rangeTypeFromMultiboot(entry.Type),
		})
		return true
	})
	return NewMemoryMap(ranges)
}

func rangeTypeFromMultiboot(t multiboot.MemoryEntryType) RangeType {
	if t == multiboot.MemAvailable {
		return Free
	}
	return Reserved
}

var (
	errOverflow     = &kernel.Error{Module: "bootmem", Message: "reservation size overflows address space"}
	errBadWindow    = &kernel.Error{Module: "bootmem", Message: "lower bound must be strictly less than upper bound"}
	errWindowTooBig = &kernel.Error{Module: "bootmem", Message: "requested size does not fit inside the search window"}
	errNoGap        = &kernel.Error{Module: "bootmem", Message: "no free range large enough for the request"}
	errReleased     = &kernel.Error{Module: "bootmem", Message: "reserve called after release"}

	// panicFn is mocked by tests; production code relies on kernel.Panic
	// never returning, so every call site below still follows it with an
	// explicit return for the benefit of a test-installed mock that does.
	// It is given the concrete *kernel.Error signature (rather than just
	// aliasing kernel.Panic, whose parameter is interface{}) so a test can
	// assign a func(*kernel.Error) literal in its place.
	panicFn = func(err *kernel.Error) { kernel.Panic(err) }
)

// ReserveAt reserves exactly [addr, addr+pageCount*PageSize) and tags it.
// It panics (see spec.md §7) if that exact window cannot be satisfied.
func (a *Allocator) ReserveAt(addr uint64, pageCount uint64, tag RangeType) uint64 {
	bytes := pageCount * uint64(mem.PageSize)
	return a.ReserveContiguous(pageCount, addr, addr+bytes, tag)
}

// ReserveContiguous finds the lowest suitable FREE gap inside [lower, upper)
// and reserves pageCount pages from it, returning the reservation's start
// address. It panics on any invariant violation: lower >= upper, overflow,
// a window smaller than the request, or no suitable FREE gap.
func (a *Allocator) ReserveContiguous(pageCount uint64, lower, upper uint64, tag RangeType) uint64 {
	if a.released {
		panicFn(errReleased)
		return 0
	}

	bytes := pageCount * uint64(mem.PageSize)

	if lower >= upper {
		panicFn(errBadWindow)
		return 0
	}
	if lower+bytes < lower {
		panicFn(errOverflow)
		return 0
	}
	if lower+bytes > upper {
		panicFn(errWindowTooBig)
		return 0
	}

	ranges := a.mm.ranges
	for i, r := range ranges {
		if r.End() <= lower {
			continue
		}
		if r.Begin >= upper {
			break
		}

		placeAddr := r.Begin
		if lower > placeAddr {
			placeAddr = lower
		}

		if placeAddr+bytes > upper {
			break
		}
		if r.Type != Free || placeAddr+bytes > r.End() {
			continue
		}

		a.shatterAt(i, PhysicalRange{Begin: placeAddr, Length: bytes, Type: tag})
		return placeAddr
	}

	panicFn(errNoGap)
	return 0
}

// shatterAt replaces the FREE range at index i with up to three pieces:
// the unallocated prefix, the newly tagged allocation, and the unallocated
// suffix, then re-merges the map around the shatter point.
func (a *Allocator) shatterAt(i int, allocated PhysicalRange) {
	victim := a.mm.ranges[i]

	pieces := make([]PhysicalRange, 0, 3)
	if before := (PhysicalRange{Begin: victim.Begin, Length: allocated.Begin - victim.Begin, Type: Free}); !before.empty() {
		pieces = append(pieces, before)
	}
	pieces = append(pieces, allocated)
	if after := (PhysicalRange{Begin: allocated.End(), Length: victim.End() - allocated.End(), Type: Free}); !after.empty() {
		pieces = append(pieces, after)
	}

	rebuilt := make([]PhysicalRange, 0, len(a.mm.ranges)+len(pieces))
	rebuilt = append(rebuilt, a.mm.ranges[:i]...)
	rebuilt = append(rebuilt, pieces...)
	rebuilt = append(rebuilt, a.mm.ranges[i+1:]...)

	a.mm.ranges = rebuilt
	a.mm.mergeAll()
}

// Release drops the allocator, returning the final MemoryMap. Any further
// call to ReserveAt/ReserveContiguous on this allocator panics.
func (a *Allocator) Release() MemoryMap {
	a.released = true
	return a.mm
}
