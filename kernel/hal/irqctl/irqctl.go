// Package irqctl models the interrupt controller collaborator: whichever
// piece of hardware is responsible for routing IRQ lines to vectors, masking
// them, and acknowledging completion. kernel/irq depends only on the
// Controller interface so it can be driven by either variant below, or by a
// test double, without touching real hardware.
package irqctl

// Controller is implemented by both the legacy PIC and the APIC/IOAPIC
// variants, mirroring the original kernel's InterruptController interface.
type Controller interface {
	// EndOfInterrupt acknowledges completion of the IRQ identified by
	// requestNumber (a legacy IRQ line index, 0-15).
	EndOfInterrupt(requestNumber uint8)
	// ClearAll masks every IRQ line.
	ClearAll()
	EnableIRQ(index uint8)
	DisableIRQ(index uint8)
	// IsSpurious reports whether requestNumber's interrupt-in-service bit
	// is actually clear, meaning the interrupt was spurious.
	IsSpurious(requestNumber uint8) bool
	// HandleSpuriousIRQ performs whatever acknowledgement a spurious
	// interrupt for requestNumber still requires.
	HandleSpuriousIRQ(requestNumber uint8)
}
