package irq

import "testing"

func TestDispatcherRegisterMonoExactVector(t *testing.T) {
	d := NewDispatcher(NewVectorAllocator())

	var got uint16
	d.RegisterMono(60, func(frame *Frame, regs *Regs) { got = 60 })

	if !d.Dispatch(60, nil, nil) {
		t.Fatal("expected Dispatch to report a registered handler")
	}
	if got != 60 {
		t.Fatalf("expected handler to run, got = %d", got)
	}
}

func TestDispatcherRegisterMonoAnyVector(t *testing.T) {
	d := NewDispatcher(NewVectorAllocator())

	vec := d.RegisterMono(AnyVector, func(frame *Frame, regs *Regs) {})
	if vec != dynamicAllocationBase {
		t.Fatalf("expected AnyVector to resolve to %d, got %d", dynamicAllocationBase, vec)
	}
	if !d.vectors.IsAllocated(vec) {
		t.Fatal("expected the resolved vector to be marked allocated")
	}
}

func TestDispatcherRegisterRange(t *testing.T) {
	d := NewDispatcher(NewVectorAllocator())

	calls := 0
	d.RegisterRange(70, 75, func(frame *Frame, regs *Regs) { calls++ })

	for vec := uint16(70); vec < 75; vec++ {
		if !d.Dispatch(vec, nil, nil) {
			t.Fatalf("expected vector %d to be dispatched", vec)
		}
	}
	if calls != 5 {
		t.Fatalf("expected 5 calls, got %d", calls)
	}
}

func TestDispatcherDispatchUnregisteredVectorReturnsFalse(t *testing.T) {
	d := NewDispatcher(NewVectorAllocator())

	if d.Dispatch(99, nil, nil) {
		t.Fatal("expected Dispatch to report no handler registered")
	}
}

func TestDispatcherUnregisterFreesVector(t *testing.T) {
	d := NewDispatcher(NewVectorAllocator())

	d.RegisterMono(60, func(frame *Frame, regs *Regs) {})
	d.Unregister(60)

	if d.vectors.IsAllocated(60) {
		t.Fatal("expected vector to be freed after Unregister")
	}
	if d.Dispatch(60, nil, nil) {
		t.Fatal("expected Dispatch to report no handler after Unregister")
	}
}

func TestDynamicHandlerAllocateAndFree(t *testing.T) {
	vectors := NewVectorAllocator()
	d := NewDynamicHandler(vectors)

	vec := d.AllocateOne(AnyVector)
	if !vectors.IsAllocated(vec) {
		t.Fatal("expected allocated vector to be marked in the shared allocator")
	}

	d.FreeOne(vec)
	if vectors.IsAllocated(vec) {
		t.Fatal("expected vector to be freed")
	}
}
