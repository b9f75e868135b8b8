package irq

import (
	"testing"

	"github.com/nexuskernel/nexus/kernel/cpu"
)

type fakeIPICPU struct {
	id cpu.ID
}

func (f *fakeIPICPU) ReadCR2() uintptr        { return 0 }
func (f *fakeIPICPU) ReadCR3() uintptr        { return 0 }
func (f *fakeIPICPU) WriteCR3(uintptr)        {}
func (f *fakeIPICPU) ID() cpu.ID              { return f.id }
func (f *fakeIPICPU) EnableInterrupts()       {}
func (f *fakeIPICPU) DisableInterrupts() bool { return true }
func (f *fakeIPICPU) ReadMSR(uint32) uint64   { return 0 }
func (f *fakeIPICPU) WriteMSR(uint32, uint64) {}
func (f *fakeIPICPU) CPUID(uint32, uint32) (uint32, uint32, uint32, uint32) {
	return 0, 0, 0, 0
}
func (f *fakeIPICPU) Halt()                 {}
func (f *fakeIPICPU) FlushTLBEntry(uintptr) {}

type fakeTransmitter struct {
	sentTo []cpu.ID
}

func (t *fakeTransmitter) SendIPI(dest cpu.ID) { t.sentTo = append(t.sentTo, dest) }

type fakeIPIController struct {
	eoiCount int
}

func (c *fakeIPIController) EndOfInterrupt(uint8) { c.eoiCount++ }

func TestIPICommunicatorBroadcastSendsToEveryOtherOnlineCPU(t *testing.T) {
	origCur := cpu.Current
	defer func() { cpu.Current = origCur }()

	self := &fakeIPICPU{id: 0}
	cpu.Current = func() cpu.CPU { return self }

	registry := cpu.NewRegistry()
	registry.Register(self)
	registry.Register(&fakeIPICPU{id: 1})
	registry.Register(&fakeIPICPU{id: 2})

	transmitter := &fakeTransmitter{}
	d := NewDispatcher(NewVectorAllocator())
	comm := NewIPICommunicator(d, transmitter, registry, &fakeIPIController{}, nil)

	comm.Broadcast()

	if len(transmitter.sentTo) != 2 {
		t.Fatalf("expected 2 IPIs sent, got %d: %v", len(transmitter.sentTo), transmitter.sentTo)
	}
}

func TestIPICommunicatorHandleInterruptAcksAndEOIs(t *testing.T) {
	acked := false
	ctl := &fakeIPIController{}
	d := NewDispatcher(NewVectorAllocator())
	NewIPICommunicator(d, nil, nil, ctl, func() { acked = true })

	if !d.Dispatch(IPIVector, nil, nil) {
		t.Fatal("expected the IPI vector to have a registered handler")
	}
	if !acked {
		t.Fatal("expected ack callback to run")
	}
	if ctl.eoiCount != 1 {
		t.Fatalf("expected one EndOfInterrupt call, got %d", ctl.eoiCount)
	}
}

func TestIPICommunicatorBroadcastNoRegistryIsNoop(t *testing.T) {
	transmitter := &fakeTransmitter{}
	d := NewDispatcher(NewVectorAllocator())
	comm := NewIPICommunicator(d, transmitter, nil, &fakeIPIController{}, nil)

	comm.Broadcast()

	if len(transmitter.sentTo) != 0 {
		t.Fatalf("expected no IPIs sent without a registry, got %v", transmitter.sentTo)
	}
}
