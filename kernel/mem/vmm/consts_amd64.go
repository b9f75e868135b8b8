package vmm

// This file collects the amd64 4-level paging layout constants: PML4, PDPT,
// PDT and PT each index 512 entries using 9 bits of the virtual address, with
// the low 12 bits selecting the byte offset inside the final 4K page.
const (
	pageLevels = 4

	// ptePhysPageMask isolates the physical frame address bits of a page
	// table entry, excluding the low flag bits and the NX bit.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// tempMappingAddr is a fixed, always-free virtual address used to map
	// a single physical frame in and out of the address space on demand
	// (zeroing a fresh frame, editing an inactive page table, CoW
	// resolution). It occupies the last page of PML4 slot 510, just below
	// the recursively-mapped PDT window in slot 511.
	tempMappingAddr = uintptr(0xffffff7ffffff000)

	// pdtVirtualAddr is the virtual address of the currently active PML4
	// itself, obtained by setting every index in the page-walk to
	// pdtRecursiveIndex. Dereferencing through this address lets walk()
	// reach every page table at every level without knowing their
	// physical addresses up front.
	pdtVirtualAddr = ^uintptr(0) &^ (uintptr(1)<<12 - 1)

	pdtRecursiveIndex = 511
)

var (
	pageLevelBits   = [pageLevels]uint8{9, 9, 9, 9}
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uintptr

// Page table entry flags shared by every paging level.
const (
	FlagPresent             PageTableEntryFlag = 1 << 0
	FlagRW                  PageTableEntryFlag = 1 << 1
	FlagUserAccessible      PageTableEntryFlag = 1 << 2
	FlagWriteThroughCaching PageTableEntryFlag = 1 << 3
	FlagDoNotCache          PageTableEntryFlag = 1 << 4
	FlagAccessed            PageTableEntryFlag = 1 << 5
	FlagDirty               PageTableEntryFlag = 1 << 6
	FlagHugePage            PageTableEntryFlag = 1 << 7
	FlagGlobal              PageTableEntryFlag = 1 << 8

	// FlagCopyOnWrite is stored in one of the entry's OS-available bits
	// (9-11) and is only meaningful while FlagRW is clear.
	FlagCopyOnWrite PageTableEntryFlag = 1 << 9

	// FlagNoExecute occupies the top bit of the entry (bit 63) and
	// requires the NX feature/EFER.NXE to be enabled.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
