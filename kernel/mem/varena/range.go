// Package varena implements the virtual address-range allocator: a
// gap-scan-and-merge bookkeeper over an arbitrary virtual address window,
// handing out page-aligned Ranges on request and tracking which of them are
// currently in use. It never touches page tables itself; callers pair every
// successful Allocate with their own vmm.Map/Unmap calls.
package varena

import "github.com/nexuskernel/nexus/kernel/mem"

// Range is a half-open [Begin, Begin+Length) virtual address interval.
type Range struct {
	Begin  uintptr
	Length uintptr
}

// End returns the exclusive end address of the range.
func (r Range) End() uintptr { return r.Begin + r.Length }

func (r Range) empty() bool { return r.Length == 0 }

// Contains reports whether addr falls within r.
func (r Range) Contains(addr uintptr) bool {
	return addr >= r.Begin && addr < r.End()
}

// containsRange reports whether r fully covers other.
func (r Range) containsRange(other Range) bool {
	return r.Begin <= other.Begin && other.End() <= r.End()
}

func lessRange(a, b Range) bool { return a.Begin < b.Begin }

func roundUpPage(x uintptr) uintptr {
	pageSize := uintptr(mem.PageSize)
	return (x + pageSize - 1) &^ (pageSize - 1)
}

func roundDownPage(x uintptr) uintptr {
	pageSize := uintptr(mem.PageSize)
	return x &^ (pageSize - 1)
}

func alignUp(x, alignment uintptr) uintptr {
	return (x + alignment - 1) &^ (alignment - 1)
}
