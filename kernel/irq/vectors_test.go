package irq

import (
	"testing"

	"github.com/nexuskernel/nexus/kernel"
)

func withMockPanic(t *testing.T) *bool {
	t.Helper()
	origPanicFn := panicFn
	called := false
	panicFn = func(_ *kernel.Error) { called = true }
	t.Cleanup(func() { panicFn = origPanicFn })
	return &called
}

func TestVectorAllocatorAllocateAndFree(t *testing.T) {
	v := NewVectorAllocator()

	v.AllocateVector(40)
	if !v.IsAllocated(40) {
		t.Fatal("expected vector 40 to be allocated")
	}

	v.FreeVector(40)
	if v.IsAllocated(40) {
		t.Fatal("expected vector 40 to be free after FreeVector")
	}
}

func TestVectorAllocatorDoubleAllocatePanics(t *testing.T) {
	called := withMockPanic(t)
	v := NewVectorAllocator()

	v.AllocateVector(40)
	v.AllocateVector(40)

	if !*called {
		t.Fatal("expected panicFn to be invoked on double allocation")
	}
}

func TestVectorAllocatorFreeUnallocatedPanics(t *testing.T) {
	called := withMockPanic(t)
	v := NewVectorAllocator()

	v.FreeVector(40)

	if !*called {
		t.Fatal("expected panicFn to be invoked on freeing an unallocated vector")
	}
}

func TestVectorAllocatorAllocateAnyStartsAtDynamicBase(t *testing.T) {
	v := NewVectorAllocator()

	got := v.AllocateAny()
	if got != dynamicAllocationBase {
		t.Fatalf("expected first AllocateAny to return %d, got %d", dynamicAllocationBase, got)
	}

	got2 := v.AllocateAny()
	if got2 != dynamicAllocationBase+1 {
		t.Fatalf("expected second AllocateAny to return %d, got %d", dynamicAllocationBase+1, got2)
	}
}

func TestVectorAllocatorAllocateAnyExhaustedPanics(t *testing.T) {
	called := withMockPanic(t)
	v := NewVectorAllocator()

	for vec := uint(dynamicAllocationBase); vec < entryCount; vec++ {
		v.bit.Set(vec)
	}

	v.AllocateAny()

	if !*called {
		t.Fatal("expected panicFn when no free vector remains")
	}
}

func TestVectorAllocatorAllocateRangeRollsBackOnConflict(t *testing.T) {
	called := withMockPanic(t)
	v := NewVectorAllocator()

	v.AllocateVector(45)

	v.AllocateRange(40, 50)

	if !*called {
		t.Fatal("expected panicFn on range conflict")
	}
	for vec := uint16(40); vec < 45; vec++ {
		if v.IsAllocated(vec) {
			t.Fatalf("expected vector %d to be rolled back after conflict", vec)
		}
	}
}

func TestVectorAllocatorFreeRange(t *testing.T) {
	v := NewVectorAllocator()
	v.AllocateRange(40, 50)

	v.FreeRange(40, 50)

	for vec := uint16(40); vec < 50; vec++ {
		if v.IsAllocated(vec) {
			t.Fatalf("expected vector %d to be free after FreeRange", vec)
		}
	}
}
