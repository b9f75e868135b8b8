package irq

import "github.com/nexuskernel/nexus/kernel/cpu"

// IPITransmitter delivers a physical inter-processor interrupt to a single
// destination processor, ordinarily a thin wrapper over the local APIC's
// interrupt command register.
type IPITransmitter interface {
	SendIPI(dest cpu.ID)
}

// IPICommunicator claims IPIVector as a Mono handler and fans incoming
// cross-CPU interrupts out to a single ack callback — in this kernel, always
// kernel/mem/vmm's per-AddressSpace TLB shootdown acknowledgement, wired in
// at boot via vmm.SetIPISender/AddressSpace.AckShootdown without kernel/irq
// importing kernel/mem/vmm directly.
type IPICommunicator struct {
	transmitter IPITransmitter
	registry    *cpu.Registry
	controller  interface{ EndOfInterrupt(uint8) }
	ack         func()
}

// NewIPICommunicator registers the IPIVector Mono handler on dispatcher and
// returns a communicator that can broadcast to every other online
// processor. ack is invoked on the receiving core for every IPI delivered;
// controller acknowledges the local interrupt controller once ack returns.
func NewIPICommunicator(dispatcher *Dispatcher, transmitter IPITransmitter, registry *cpu.Registry, controller interface{ EndOfInterrupt(uint8) }, ack func()) *IPICommunicator {
	c := &IPICommunicator{
		transmitter: transmitter,
		registry:    registry,
		controller:  controller,
		ack:         ack,
	}
	dispatcher.RegisterMono(IPIVector, c.handleInterrupt)
	return c
}

func (c *IPICommunicator) handleInterrupt(frame *Frame, regs *Regs) {
	if c.ack != nil {
		c.ack()
	}
	if c.controller != nil {
		c.controller.EndOfInterrupt(uint8(IPIVector))
	}
}

// Broadcast sends the IPI vector to every other online processor. Its
// signature (no arguments, no return value) matches what
// kernel/mem/vmm.SetIPISender expects, so callers typically wire it in as
// vmm.SetIPISender(communicator.Broadcast).
func (c *IPICommunicator) Broadcast() {
	if c.registry == nil || c.transmitter == nil {
		return
	}

	self := cpu.Current().ID()
	for _, target := range c.registry.Others(self) {
		c.transmitter.SendIPI(target.ID())
	}
}
