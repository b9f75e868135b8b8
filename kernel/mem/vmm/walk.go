package vmm

import (
	"unsafe"

	"github.com/nexuskernel/nexus/kernel/mem"
)

// ptePtrFn returns a pointer to the supplied entry address. It is
// substituted by tests so walk() can be exercised without a real MMU behind
// it. When compiling the kernel this function is automatically inlined.
var ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(entryAddr)
}

// pageTableWalker is called by walk with the page table entry that
// corresponds to each paging level in turn. If it returns false the walk is
// aborted without visiting the remaining levels.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address using the
// recursive self-mapping installed in the last PML4 entry: the page tables
// at every level are reachable as ordinary memory by repeatedly indexing
// through that self-reference, without ever needing to know their physical
// addresses.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
		ok                               bool
	)

	// tableAddr starts out as the recursively-mapped virtual address of
	// the top-most page table (see pdtVirtualAddr).
	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		// Extract the bits of the virtual address that index into this
		// level's page table.
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)

		// Offsetting the table's virtual address by one pointer-sized
		// slot per entryIndex yields the entry's own virtual address.
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if ok = walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))); !ok {
			return
		}

		// Add one more level of recursive indirection so the next loop
		// iteration addresses the table that this entry points to.
		entryAddr <<= pageLevelBits[level]
	}
}
