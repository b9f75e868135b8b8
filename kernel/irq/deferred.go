package irq

import (
	"sync"
	"sync/atomic"

	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/sched"
)

var (
	errHandlerAlreadyRegistered = &kernel.Error{Module: "irq", Message: "deferred IRQ handler already registered"}
	errHandlerNotRegistered     = &kernel.Error{Module: "irq", Message: "deferred IRQ handler not registered"}
)

// DeferredIRQHandler tracks work a top-half handler couldn't finish at
// interrupt time: every DeferredInvoke bumps a pending count, and the
// deferred-IRQ manager's runner thread drains it back to zero by calling fn
// once per pending invocation.
type DeferredIRQHandler struct {
	pendingCount int32
	fn           func()
}

// NewDeferredIRQHandler returns a handler that calls fn once per pending
// deferred invocation.
func NewDeferredIRQHandler(fn func()) *DeferredIRQHandler {
	return &DeferredIRQHandler{fn: fn}
}

// IsPending reports whether this handler has outstanding work.
func (h *DeferredIRQHandler) IsPending() bool {
	return atomic.LoadInt32(&h.pendingCount) != 0
}

// invoke runs one unit of pending work. Callers must only call this after
// observing IsPending true.
func (h *DeferredIRQHandler) invoke() {
	atomic.AddInt32(&h.pendingCount, -1)
	h.fn()
}

// DeferredIRQManager fans interrupt-time deferral requests out to a single
// supervisor thread that runs every pending handler and then parks itself on
// a Blocker until the next request arrives.
type DeferredIRQManager struct {
	blockerAccessMu sync.Mutex
	blocker         *sched.Blocker

	handlersMu sync.Mutex
	handlers   map[*DeferredIRQHandler]struct{}
}

// NewDeferredIRQManager returns an empty DeferredIRQManager. Call Start to
// spawn its supervisor thread once a scheduler is available.
func NewDeferredIRQManager() *DeferredIRQManager {
	return &DeferredIRQManager{handlers: make(map[*DeferredIRQHandler]struct{})}
}

// RegisterHandler adds h to the set the supervisor thread drains, panicking
// if h is already registered.
func (m *DeferredIRQManager) RegisterHandler(h *DeferredIRQHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	if _, ok := m.handlers[h]; ok {
		panicFn(errHandlerAlreadyRegistered)
		return
	}
	m.handlers[h] = struct{}{}
}

// UnregisterHandler removes h, panicking if it was never registered.
func (m *DeferredIRQManager) UnregisterHandler(h *DeferredIRQHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	if _, ok := m.handlers[h]; !ok {
		panicFn(errHandlerNotRegistered)
		return
	}
	delete(m.handlers, h)
}

// DeferredInvoke marks one unit of work pending on h and wakes the
// supervisor thread if it is currently parked.
func (m *DeferredIRQManager) DeferredInvoke(h *DeferredIRQHandler) {
	atomic.AddInt32(&h.pendingCount, 1)
	m.requestInvocation()
}

func (m *DeferredIRQManager) requestInvocation() {
	m.blockerAccessMu.Lock()
	defer m.blockerAccessMu.Unlock()

	if m.blocker != nil {
		m.blocker.Unblock()
	}
}

// RunOnce runs every currently-registered handler to quiescence and then
// parks on a fresh Blocker until the next invocation request. The blocker is
// installed before handlers are scanned, so a request arriving during the
// scan unblocks immediately instead of being missed — the same ordering the
// original run loop relies on to never go idle with pending work.
func (m *DeferredIRQManager) RunOnce() sched.Result {
	blocker := sched.NewBlocker()

	m.blockerAccessMu.Lock()
	m.blocker = blocker
	m.blockerAccessMu.Unlock()

	m.handlersMu.Lock()
	for h := range m.handlers {
		for h.IsPending() {
			h.invoke()
		}
	}
	m.handlersMu.Unlock()

	res := blocker.Block()

	m.blockerAccessMu.Lock()
	m.blocker = nil
	m.blockerAccessMu.Unlock()

	return res
}

// Run marks thread invulnerable (a supervisor thread must never be killed
// mid-handler) and runs RunOnce forever.
func (m *DeferredIRQManager) Run(thread sched.Thread) {
	thread.SetInvulnerable(true)
	for {
		m.RunOnce()
	}
}

// Start spawns the supervisor thread that drives Run via scheduler.
func (m *DeferredIRQManager) Start(scheduler sched.Scheduler) {
	scheduler.CreateSupervisor("deferred_irq", func() {
		m.Run(scheduler.CurrentThread())
	})
}
