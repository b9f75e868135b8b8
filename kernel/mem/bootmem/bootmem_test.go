package bootmem

import (
	"reflect"
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

func TestReserveContiguousShatter(t *testing.T) {
	mm := NewMemoryMap([]PhysicalRange{
		{Begin: 0x0000, Length: 0x2000, Type: GenericBootallocReserved},
		{Begin: 0x4000, Length: 0x1000, Type: Reserved},
		{Begin: 0x5000, Length: 0x1000, Type: Free},
		{Begin: 0x6000, Length: 0x1000, Type: Bad},
	})

	alloc := NewAllocator(mm)

	got := alloc.ReserveContiguous(1, 0x5000, 0xF000, GenericBootallocReserved)
	if got != 0x5000 {
		t.Fatalf("expected reservation at 0x5000; got 0x%x", got)
	}

	want := []PhysicalRange{
		{Begin: 0x0000, Length: 0x2000, Type: GenericBootallocReserved},
		{Begin: 0x4000, Length: 0x1000, Type: Reserved},
		{Begin: 0x5000, Length: 0x1000, Type: GenericBootallocReserved},
		{Begin: 0x6000, Length: 0x1000, Type: Bad},
	}
	if got := alloc.mm.Ranges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected post-shatter map:\n%+v\ngot:\n%+v", want, got)
	}
}

func TestReserveAtExactFit(t *testing.T) {
	mm := NewMemoryMap([]PhysicalRange{
		{Begin: 0x0, Length: 0x3000, Type: Free},
	})
	alloc := NewAllocator(mm)

	got := alloc.ReserveAt(0x1000, 1, KernelImage)
	if got != 0x1000 {
		t.Fatalf("expected reservation at 0x1000; got 0x%x", got)
	}

	want := []PhysicalRange{
		{Begin: 0x0, Length: 0x1000, Type: Free},
		{Begin: 0x1000, Length: 0x1000, Type: KernelImage},
		{Begin: 0x2000, Length: 0x1000, Type: Free},
	}
	if got := alloc.mm.Ranges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected map:\n%+v\ngot:\n%+v", want, got)
	}
}

func TestReserveContiguousExactWindowSucceeds(t *testing.T) {
	mm := NewMemoryMap([]PhysicalRange{
		{Begin: 0x0, Length: 0x1000, Type: Free},
	})
	alloc := NewAllocator(mm)

	if got := alloc.ReserveContiguous(1, 0x0, 0x1000, KernelModule); got != 0x0 {
		t.Fatalf("expected reservation at 0x0; got 0x%x", got)
	}
	if residue := alloc.mm.Ranges(); len(residue) != 1 || residue[0].Type != KernelModule {
		t.Fatalf("expected no residue after an exact-fit reservation; got %+v", residue)
	}
}

func TestReserveContiguousWindowTooSmallPanics(t *testing.T) {
	called := withMockPanic(t)

	mm := NewMemoryMap([]PhysicalRange{
		{Begin: 0x0, Length: 0x2000, Type: Free},
	})
	alloc := NewAllocator(mm)

	alloc.ReserveContiguous(1, 0x0, 0xFFF, GenericBootallocReserved)

	if !*called {
		t.Fatal("expected ReserveContiguous to panic when lower+size > upper")
	}
}

func TestReserveContiguousNoSuitableGapPanics(t *testing.T) {
	called := withMockPanic(t)

	mm := NewMemoryMap([]PhysicalRange{
		{Begin: 0x0, Length: 0x1000, Type: Reserved},
	})
	alloc := NewAllocator(mm)

	alloc.ReserveContiguous(1, 0x0, 0x1000, GenericBootallocReserved)

	if !*called {
		t.Fatal("expected ReserveContiguous to panic when no FREE range satisfies the request")
	}
}

func TestReserveAfterReleasePanics(t *testing.T) {
	called := withMockPanic(t)

	mm := NewMemoryMap([]PhysicalRange{{Begin: 0x0, Length: 0x1000, Type: Free}})
	alloc := NewAllocator(mm)
	alloc.Release()

	alloc.ReserveAt(0x0, 1, GenericBootallocReserved)

	if !*called {
		t.Fatal("expected a reservation after Release to panic")
	}
}

func TestNewMemoryMapMergesAdjacentSameType(t *testing.T) {
	mm := NewMemoryMap([]PhysicalRange{
		{Begin: 0x2000, Length: 0x1000, Type: Free},
		{Begin: 0x0000, Length: 0x1000, Type: Free},
		{Begin: 0x1000, Length: 0x1000, Type: Free},
	})

	want := []PhysicalRange{{Begin: 0x0, Length: 0x3000, Type: Free}}
	if got := mm.Ranges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected a single merged range; got %+v", got)
	}
}
