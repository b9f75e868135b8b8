package irq

import (
	"sync"

	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/hal/irqctl"
)

var errIRQLineInUse = &kernel.Error{Module: "irq", Message: "legacy IRQ line already has a subscriber"}

// IRQHandlerFunc services one legacy IRQ line (0-15).
type IRQHandlerFunc func(frame *Frame, regs *Regs)

// IRQManager fans the 16 legacy IRQ lines out to at most one subscriber
// each, driving enable/disable/acknowledge through an irqctl.Controller.
type IRQManager struct {
	controller irqctl.Controller

	mu          sync.Mutex
	subscribers [LegacyIRQCount]IRQHandlerFunc
}

// NewIRQManager returns an IRQManager driving controller.
func NewIRQManager(controller irqctl.Controller) *IRQManager {
	return &IRQManager{controller: controller}
}

// RegisterHandler subscribes fn to line, enabling it on the controller.
// Registering a second handler on an already-subscribed line panics.
func (m *IRQManager) RegisterHandler(line uint8, fn IRQHandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribers[line] != nil {
		panicFn(errIRQLineInUse)
		return
	}

	m.subscribers[line] = fn
	m.controller.EnableIRQ(line)
}

// UnregisterHandler disables line and clears its subscriber.
func (m *IRQManager) UnregisterHandler(line uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.controller.DisableIRQ(line)
	m.subscribers[line] = nil
}

// HasSubscriber reports whether line currently has a registered handler.
func (m *IRQManager) HasSubscriber(line uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribers[line] != nil
}

// HandleIRQ is the trampoline entry point for legacy IRQ line. If no
// subscriber is registered it defers to the controller's spurious-IRQ
// detection instead of unconditionally acknowledging a real interrupt no
// one asked for.
func (m *IRQManager) HandleIRQ(line uint8, frame *Frame, regs *Regs) {
	m.mu.Lock()
	fn := m.subscribers[line]
	m.mu.Unlock()

	if fn == nil {
		if m.controller.IsSpurious(line) {
			m.controller.HandleSpuriousIRQ(line)
			return
		}
	} else {
		fn(frame, regs)
	}

	m.controller.EndOfInterrupt(line)
}
