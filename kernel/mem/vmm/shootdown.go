package vmm

import (
	"sync/atomic"

	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/cpu"
)

// shootdownTimeoutSpins bounds how long a requester busy-waits for remote
// acknowledgements before giving up on the IPI ever being handled — this
// mirrors the interrupt fabric being down or a remote core wedged, not an
// expected steady-state path.
const shootdownTimeoutSpins = 1_000_000_000

var (
	// ipiSenderFn broadcasts a TLB-shootdown IPI (vector 254 in the
	// interrupt fabric) to every other online processor. It is nil until
	// the interrupt fabric registers one during bring-up; a nil sender
	// means shootdown degenerates to the local-only flush already applied
	// before this function is consulted.
	ipiSenderFn func()

	errShootdownTimeout = &kernel.Error{Module: "vmm", Message: "TLB shootdown IPI timed out waiting for remote acknowledgement"}
)

// SetIPISender registers the function the interrupt fabric exposes for
// broadcasting a shootdown IPI to every other online processor.
func SetIPISender(fn func()) {
	ipiSenderFn = fn
}

// shootdown invalidates virtAddr's TLB entry everywhere it might be cached:
// locally, immediately and unconditionally, and on every other online
// processor via a broadcast IPI followed by a bounded busy-wait for each
// target to acknowledge. A single-CPU system, or one with no interrupt
// fabric wired in yet, only pays for the local flush.
func (as *AddressSpace) shootdown(virtAddr uintptr) {
	flushTLBEntryFn(virtAddr)

	if as.registry == nil || ipiSenderFn == nil {
		return
	}

	targets := as.registry.Others(cpu.Current().ID())
	if len(targets) == 0 {
		return
	}

	as.shootdownAddr = virtAddr
	atomic.StoreInt32(&as.shootdownCountdown, int32(len(targets)))

	ipiSenderFn()

	for spins := 0; atomic.LoadInt32(&as.shootdownCountdown) != 0; spins++ {
		if spins >= shootdownTimeoutSpins {
			panicFn(errShootdownTimeout)
			return
		}
	}
}

// AckShootdown is invoked by the interrupt fabric's vector-254 handler on a
// remote processor in response to a shootdown IPI: it flushes the pending
// address locally and counts down the requester's completion tally.
func (as *AddressSpace) AckShootdown() {
	flushTLBEntryFn(as.shootdownAddr)
	atomic.AddInt32(&as.shootdownCountdown, -1)
}
