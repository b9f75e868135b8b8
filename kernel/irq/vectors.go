package irq

import (
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/nexuskernel/nexus/kernel"
)

var (
	errVectorInUse    = &kernel.Error{Module: "irq", Message: "vector is already allocated"}
	errVectorNotInUse = &kernel.Error{Module: "irq", Message: "vector is not currently allocated"}
	errNoFreeVector   = &kernel.Error{Module: "irq", Message: "no free vector available"}

	// panicFn is mocked by tests; see kernel/mem/bootmem for the
	// rationale behind the explicit-return-after-panicFn idiom and the
	// concrete *kernel.Error signature.
	panicFn = func(err *kernel.Error) { kernel.Panic(err) }
)

// VectorAllocator tracks which of the 256 interrupt vectors are currently
// claimed by a handler, backed by a single allocation bitmap (one bit per
// vector, set == allocated).
type VectorAllocator struct {
	mu  sync.Mutex
	bit *bitset.BitSet
}

// NewVectorAllocator returns a VectorAllocator with every vector free.
func NewVectorAllocator() *VectorAllocator {
	return &VectorAllocator{bit: bitset.New(entryCount)}
}

// AllocateVector claims an exact vector, panicking if it is already in use.
func (v *VectorAllocator) AllocateVector(vector uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.bit.Test(uint(vector)) {
		panicFn(errVectorInUse)
		return
	}
	v.bit.Set(uint(vector))
}

// AllocateAny claims the lowest free vector at or after
// dynamicAllocationBase, panicking if none remain.
func (v *VectorAllocator) AllocateAny() uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()

	for vec := uint(dynamicAllocationBase); vec < entryCount; vec++ {
		if !v.bit.Test(vec) {
			v.bit.Set(vec)
			return uint16(vec)
		}
	}

	panicFn(errNoFreeVector)
	return AnyVector
}

// AllocateRange claims every vector in [begin, end), panicking (and rolling
// back any vectors already claimed by this call) if one of them is in use.
func (v *VectorAllocator) AllocateRange(begin, end uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for vec := begin; vec < end; vec++ {
		if v.bit.Test(uint(vec)) {
			for already := begin; already < vec; already++ {
				v.bit.Clear(uint(already))
			}
			panicFn(errVectorInUse)
			return
		}
		v.bit.Set(uint(vec))
	}
}

// FreeVector releases a previously claimed vector, panicking if it was not
// allocated.
func (v *VectorAllocator) FreeVector(vector uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.bit.Test(uint(vector)) {
		panicFn(errVectorNotInUse)
		return
	}
	v.bit.Clear(uint(vector))
}

// FreeRange releases every vector in [begin, end).
func (v *VectorAllocator) FreeRange(begin, end uint16) {
	for vec := begin; vec < end; vec++ {
		v.FreeVector(vec)
	}
}

// IsAllocated reports whether vector is currently claimed.
func (v *VectorAllocator) IsAllocated(vector uint16) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bit.Test(uint(vector))
}
