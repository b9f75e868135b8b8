package vmm

import (
	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/kfmt/early"
	"github.com/nexuskernel/nexus/kernel/mem"
	"github.com/nexuskernel/nexus/kernel/mem/pmm"
)

var (
	// frameAllocator points to a frame allocator function registered via
	// SetFrameAllocator. It backs every Map/MapTemporary call made below
	// (fault resolution, frame zeroing) that needs to allocate page
	// table frames along the way.
	frameAllocator FrameAllocatorFn

	// panicFn is mocked by tests; see kernel/mem/bootmem for the rationale
	// behind both the explicit-return-after-panicFn idiom used below and
	// the concrete *kernel.Error signature.
	panicFn = func(err *kernel.Error) { kernel.Panic(err) }

	// ReservedZeroedFrame holds the physical frame reserved and zeroed by
	// reserveZeroedFrame. Nothing in this package maps pages against it.
	ReservedZeroedFrame pmm.Frame

	// protectReservedZeroedPage becomes true once ReservedZeroedFrame has
	// been reserved. Map and MapTemporary do not consult it, so nothing in
	// this package rejects an RW mapping of that frame.
	protectReservedZeroedPage bool
)

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// HandlePageFault services a page fault reported by the interrupt fabric for
// faultAddress. It resolves copy-on-write faults transparently (returning
// true so the faulting instruction can be retried) and reports every other
// fault as non-recoverable via panicFn, returning false.
func HandlePageFault(faultAddress uintptr, errorCode uint64) bool {
	var (
		faultPage = PageFromAddress(faultAddress)
		pageEntry *pageTableEntry
	)

	// Locate the last-level entry for the faulting page, if present.
	walk(faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		nextIsPresent := pte.HasFlags(FlagPresent)

		if pteLevel == pageLevels-1 && nextIsPresent {
			pageEntry = pte
		}

		return nextIsPresent
	})

	// CoW is supported for RO pages with the CoW flag set.
	if pageEntry != nil && !pageEntry.HasFlags(FlagRW) && pageEntry.HasFlags(FlagCopyOnWrite) {
		copyFrame, err := frameAllocator()
		if err != nil {
			reportFault(faultAddress, errorCode, err)
			return false
		}

		tmpPage, err := mapTemporaryFn(copyFrame, frameAllocator)
		if err != nil {
			reportFault(faultAddress, errorCode, err)
			return false
		}

		mem.Memcopy(faultPage.Address(), tmpPage.Address(), mem.PageSize)
		unmapFn(tmpPage)

		pageEntry.ClearFlags(FlagCopyOnWrite)
		pageEntry.SetFlags(FlagPresent | FlagRW)
		pageEntry.SetFrame(copyFrame)
		flushTLBEntryFn(faultPage.Address())

		return true
	}

	reportFault(faultAddress, errorCode, ErrInvalidMapping)
	return false
}

func reportFault(faultAddress uintptr, errorCode uint64, err *kernel.Error) {
	early.Printf("\npage fault at 0x%16x, reason: ", faultAddress)
	switch errorCode {
	case 0:
		early.Printf("read from non-present page")
	case 1:
		early.Printf("page protection violation (read)")
	case 2:
		early.Printf("write to non-present page")
	case 3:
		early.Printf("page protection violation (write)")
	case 4:
		early.Printf("fault in user-mode")
	case 8:
		early.Printf("page table has reserved bit set")
	case 16:
		early.Printf("instruction fetch")
	default:
		early.Printf("unknown (code %d)", errorCode)
	}
	early.Printf("\n")

	panicFn(err)
}

// reserveZeroedFrame reserves a physical frame to be shared, via
// FlagCopyOnWrite, by every lazily-allocated page until it is first written.
func reserveZeroedFrame() *kernel.Error {
	var err *kernel.Error

	if ReservedZeroedFrame, err = frameAllocator(); err != nil {
		return err
	}

	tempPage, err := mapTemporaryFn(ReservedZeroedFrame, frameAllocator)
	if err != nil {
		return err
	}
	mem.Memset(tempPage.Address(), 0, mem.PageSize)
	unmapFn(tempPage)

	protectReservedZeroedPage = true
	return nil
}

// Init initializes the vmm package by reserving the shared zeroed frame used
// for lazy allocation. Fault-handler registration with the interrupt fabric
// happens separately, once that subsystem is brought up.
func Init() *kernel.Error {
	return reserveZeroedFrame()
}
