// Package kmain wires the memory and interrupt cores together into the boot
// sequence described in spec.md: boot allocator carves the kernel image out
// of the bootloader-provided memory map, the physical allocator takes over
// the remaining free ranges, vmm is given that allocator and reserves its
// shared zeroed frame, and the interrupt fabric is brought up per-CPU before
// higher layers (disk cache, filesystems, device I/O) become usable. No
// virtual-range allocator is created here.
package kmain

import (
	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/cpu"
	"github.com/nexuskernel/nexus/kernel/hal/multiboot"
	"github.com/nexuskernel/nexus/kernel/irq"
	"github.com/nexuskernel/nexus/kernel/kfmt/early"
	"github.com/nexuskernel/nexus/kernel/mem"
	"github.com/nexuskernel/nexus/kernel/mem/bootmem"
	"github.com/nexuskernel/nexus/kernel/mem/pmm"
	"github.com/nexuskernel/nexus/kernel/mem/vmm"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// InstallInterruptFabric brings up the interrupt fabric (vectors, exception
// handlers, IPI receiver, deferred-work thread) on one processor. The
// platform layer that owns the real cpu.CPU/irqctl.Controller
// implementations (architecture-specific assembly, PIC/APIC MMIO or port
// I/O) registers this before Kmain runs; it is left nil in configurations
// that only exercise the memory cores.
var InstallInterruptFabric func(c cpu.CPU) error

// Kmain is the only Go symbol visible (exported) from the rt0
// initialization code. It is invoked by the rt0 assembly after setting up
// the GDT and a minimal g0 struct that lets Go code run on the 4K stack the
// assembly allocated.
//
// The rt0 code passes the address of the multiboot info payload supplied by
// the bootloader, along with the physical start/end addresses of the loaded
// kernel image.
//
// Kmain is not expected to return. If it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	bootAlloc := bootmem.NewAllocator(bootmem.FromMultiboot())
	pageCount := (uint64(kernelEnd-kernelStart) + uint64(mem.PageSize) - 1) / uint64(mem.PageSize)
	if pageCount > 0 {
		bootAlloc.ReserveAt(uint64(kernelStart), pageCount, bootmem.KernelImage)
	}

	physAlloc := pmm.NewFromMemoryMap(bootAlloc.Release())
	frameAllocFn := func() (pmm.Frame, *kernel.Error) { return physAlloc.Allocate(), nil }
	vmm.SetFrameAllocator(frameAllocFn)
	pmm.SetZeroer(func(f pmm.Frame) {
		tmp, err := vmm.MapTemporary(f, frameAllocFn)
		if err != nil {
			return
		}
		mem.Memset(tmp.Address(), 0, mem.PageSize)
		vmm.Unmap(tmp)
	})

	var err *kernel.Error
	if err = vmm.Init(); err != nil {
		panic(err)
	}

	registry := cpu.NewRegistry()

	if InstallInterruptFabric != nil {
		if bringupErr := irq.BringUp(registry, InstallInterruptFabric); bringupErr != nil {
			early.Printf("[kmain] interrupt fabric bring-up failed: %s\n", bringupErr.Error())
			panic(&kernel.Error{Module: "kmain", Message: "interrupt fabric bring-up failed"})
		}
	}

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}
