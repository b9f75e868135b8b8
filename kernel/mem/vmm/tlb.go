package vmm

import "github.com/nexuskernel/nexus/kernel/cpu"

// flushTLBEntry invalidates a single TLB entry for virtAddr on the calling
// processor.
func flushTLBEntry(virtAddr uintptr) {
	cpu.Current().FlushTLBEntry(virtAddr)
}

// switchPDT loads pdtPhysAddr into CR3, switching the calling processor to a
// new page table root and implicitly flushing every non-global TLB entry.
func switchPDT(pdtPhysAddr uintptr) {
	cpu.Current().WriteCR3(pdtPhysAddr)
}

// activePDT returns the physical address of the currently active page table
// root on the calling processor.
func activePDT() uintptr {
	return cpu.Current().ReadCR3()
}
