package irqctl

// PortIO is the narrow port-I/O seam the legacy PIC is driven through.
// Real x86 IN/OUT instructions are architecture assembly, not expressible
// in portable Go, so they are injected the same way kernel/cpu injects
// Halt/Current: a package boundary a platform-bringup package satisfies and
// tests substitute with an in-memory fake.
type PortIO interface {
	Out8(port uint16, value uint8)
	In8(port uint16) uint8
}

const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	picEndOfInterruptCode = 0x20
	picReadISRCommand     = 0x0b

	picSlaveIRQIndex = 2
	picSpuriousSlave = 15
)

// PIC drives the legacy dual-8259 programmable interrupt controller.
type PIC struct {
	io PortIO
}

// NewPIC remaps the PIC so legacy IRQs 0-15 land on vectors
// [vectorOffset, vectorOffset+16) instead of colliding with CPU exception
// vectors 8-15, then masks every line except the master's cascade line
// (IRQ2), as ClearAll does.
func NewPIC(io PortIO, vectorOffset uint8) *PIC {
	p := &PIC{io: io}
	p.remap(vectorOffset)
	p.ClearAll()
	return p
}

func (p *PIC) remap(offset uint8) {
	const (
		icw1ICW4 = 0x01
		icw1Init = 0x10
		icw48086 = 0x01

		irqsPerController = 8

		slaveIRQ             = 0b00000100
		slaveCascadeIdentity = 0b00000010
	)

	masterMask := p.io.In8(picMasterData)
	slaveMask := p.io.In8(picSlaveData)

	p.io.Out8(picMasterCommand, icw1Init|icw1ICW4)
	p.io.Out8(picSlaveCommand, icw1Init|icw1ICW4)

	p.io.Out8(picMasterData, offset)
	p.io.Out8(picSlaveData, offset+irqsPerController)

	p.io.Out8(picMasterData, slaveIRQ)
	p.io.Out8(picSlaveData, slaveCascadeIdentity)

	p.io.Out8(picMasterData, icw48086)
	p.io.Out8(picSlaveData, icw48086)

	p.io.Out8(picMasterData, masterMask)
	p.io.Out8(picSlaveData, slaveMask)
}

// EndOfInterrupt acknowledges requestNumber on the slave controller first
// (if it originated there) and always on the master, since every slave
// interrupt is cascaded through the master's IRQ2 line.
func (p *PIC) EndOfInterrupt(requestNumber uint8) {
	if requestNumber >= 8 {
		p.io.Out8(picSlaveCommand, picEndOfInterruptCode)
	}
	p.io.Out8(picMasterCommand, picEndOfInterruptCode)
}

// ClearAll masks every line except the master's cascade line (IRQ2), which
// must stay enabled for slave-controller interrupts to reach the CPU at all.
func (p *PIC) ClearAll() {
	p.setRawMask(^uint8(0)&^(1<<picSlaveIRQIndex), true)
	p.setRawMask(^uint8(0), false)
}

func (p *PIC) setRawMask(mask uint8, master bool) {
	if master {
		p.io.Out8(picMasterData, mask)
	} else {
		p.io.Out8(picSlaveData, mask)
	}
}

// EnableIRQ clears the mask bit for the given legacy IRQ line (0-15).
func (p *PIC) EnableIRQ(index uint8) {
	if index < 8 {
		cur := p.io.In8(picMasterData)
		p.io.Out8(picMasterData, cur&^(1<<index))
		return
	}
	cur := p.io.In8(picSlaveData)
	p.io.Out8(picSlaveData, cur&^(1<<(index-8)))
}

// DisableIRQ sets the mask bit for the given legacy IRQ line (0-15).
func (p *PIC) DisableIRQ(index uint8) {
	if index < 8 {
		cur := p.io.In8(picMasterData)
		p.io.Out8(picMasterData, cur|(1<<index))
		return
	}
	cur := p.io.In8(picSlaveData)
	p.io.Out8(picSlaveData, cur|(1<<(index-8)))
}

func (p *PIC) isServiced(requestNumber uint8) bool {
	p.io.Out8(picMasterCommand, picReadISRCommand)
	p.io.Out8(picSlaveCommand, picReadISRCommand)

	isrMask := uint16(p.io.In8(picSlaveCommand))<<8 | uint16(p.io.In8(picMasterCommand))
	return isrMask&(1<<requestNumber) != 0
}

// IsSpurious reports whether requestNumber's in-service bit is actually
// clear, meaning the interrupt never really happened.
func (p *PIC) IsSpurious(requestNumber uint8) bool {
	return !p.isServiced(requestNumber)
}

// HandleSpuriousIRQ acknowledges a spurious slave interrupt on the master
// only; a spurious master interrupt (IRQ7) needs no acknowledgement at all,
// and acking the slave for a spurious IRQ15 would desynchronize it.
func (p *PIC) HandleSpuriousIRQ(requestNumber uint8) {
	if requestNumber == picSpuriousSlave {
		p.io.Out8(picMasterCommand, picEndOfInterruptCode)
	}
}
