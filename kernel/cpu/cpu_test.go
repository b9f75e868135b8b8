package cpu

import "testing"

type fakeCPU struct {
	id  ID
	cr2 uintptr
	cr3 uintptr
}

func (f *fakeCPU) ReadCR2() uintptr          { return f.cr2 }
func (f *fakeCPU) ReadCR3() uintptr          { return f.cr3 }
func (f *fakeCPU) WriteCR3(addr uintptr)     { f.cr3 = addr }
func (f *fakeCPU) ID() ID                    { return f.id }
func (f *fakeCPU) EnableInterrupts()         {}
func (f *fakeCPU) DisableInterrupts() bool   { return true }
func (f *fakeCPU) ReadMSR(uint32) uint64     { return 0 }
func (f *fakeCPU) WriteMSR(uint32, uint64)   {}
func (f *fakeCPU) CPUID(uint32, uint32) (uint32, uint32, uint32, uint32) {
	return 0, 0, 0, 0
}
func (f *fakeCPU) Halt()                        {}
func (f *fakeCPU) FlushTLBEntry(uintptr)        {}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeCPU{id: 0}, &fakeCPU{id: 1}

	r.Register(a)
	r.Register(b)

	if got := r.Count(); got != 2 {
		t.Fatalf("expected 2 registered CPUs; got %d", got)
	}

	if got, ok := r.Lookup(1); !ok || got != CPU(b) {
		t.Fatalf("expected Lookup(1) to return b; got %v, ok=%v", got, ok)
	}

	if _, ok := r.Lookup(99); ok {
		t.Fatal("expected Lookup of an unregistered ID to fail")
	}
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected registering a duplicate ID to panic")
		}
	}()

	r := NewRegistry()
	r.Register(&fakeCPU{id: 0})
	r.Register(&fakeCPU{id: 0})
}

func TestRegistryOthersExcludesSelf(t *testing.T) {
	r := NewRegistry()
	a, b, c := &fakeCPU{id: 0}, &fakeCPU{id: 1}, &fakeCPU{id: 2}
	r.Register(a)
	r.Register(b)
	r.Register(c)

	others := r.Others(1)
	if len(others) != 2 {
		t.Fatalf("expected 2 other CPUs; got %d", len(others))
	}
	for _, o := range others {
		if o.ID() == 1 {
			t.Fatal("expected Others to exclude the given ID")
		}
	}
}

func TestRegistryAllPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	ids := []ID{3, 1, 2}
	for _, id := range ids {
		r.Register(&fakeCPU{id: id})
	}

	all := r.All()
	if len(all) != len(ids) {
		t.Fatalf("expected %d CPUs; got %d", len(ids), len(all))
	}
	for i, c := range all {
		if c.ID() != ids[i] {
			t.Errorf("expected position %d to be CPU %d; got %d", i, ids[i], c.ID())
		}
	}
}
