package vmm

import (
	"sync"

	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/cpu"
	"github.com/nexuskernel/nexus/kernel/mem/pmm"
)

// AddressSpace wraps a PageDirectoryTable and coordinates TLB coherence
// across every processor it might be active on. A single-CPU system
// degenerates to a local flush after every Map/Unmap; a multi-CPU system
// additionally broadcasts a shootdown IPI and waits for every other online
// processor to acknowledge before returning, so a stale translation is never
// observable past the call that invalidated it.
type AddressSpace struct {
	mu  sync.Mutex
	pdt PageDirectoryTable

	registry *cpu.Registry

	// shootdownAddr and shootdownCountdown coordinate the in-flight TLB
	// shootdown IPI broadcast by shootdown(); see shootdown.go.
	shootdownAddr      uintptr
	shootdownCountdown int32
}

// NewAddressSpace initializes a new address space backed by pdtFrame.
// registry may be nil for a single-CPU configuration, in which case
// shootdown reduces to a local TLB flush.
func NewAddressSpace(pdtFrame pmm.Frame, allocFn FrameAllocatorFn, registry *cpu.Registry) (*AddressSpace, *kernel.Error) {
	as := &AddressSpace{registry: registry}
	if err := as.pdt.Init(pdtFrame, allocFn); err != nil {
		return nil, err
	}
	return as, nil
}

// Activate makes this address space the active one on the calling
// processor.
func (as *AddressSpace) Activate() {
	as.pdt.Activate()
}

// Map installs a page -> frame mapping and ensures every processor's TLB is
// coherent with it before returning.
func (as *AddressSpace) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if err := as.pdt.Map(page, frame, flags, allocFn); err != nil {
		return err
	}

	as.shootdown(page.Address())
	return nil
}

// Unmap removes a previously installed mapping and ensures every
// processor's TLB is coherent with its removal before returning.
func (as *AddressSpace) Unmap(page Page) *kernel.Error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if err := as.pdt.Unmap(page); err != nil {
		return err
	}

	as.shootdown(page.Address())
	return nil
}
