package irq

import (
	"sync"

	"github.com/nexuskernel/nexus/kernel/cpu"
)

// ExceptionNum identifies one of the 32 CPU exception vectors.
type ExceptionNum uint8

const (
	// DoubleFault occurs when an exception is unhandled, or another
	// exception occurs while the CPU is dispatching one.
	DoubleFault = ExceptionNum(8)
	// GPFException is raised on a general protection fault.
	GPFException = ExceptionNum(13)
	// PageFaultException is raised when a page table entry is not
	// present, or a privilege/RW protection check fails.
	PageFaultException = ExceptionNum(14)
)

// ExceptionHandler services an exception that pushes no error code.
type ExceptionHandler func(frame *Frame, regs *Regs)

// ExceptionHandlerWithCode services an exception that pushes an error code.
type ExceptionHandlerWithCode func(errorCode uint64, frame *Frame, regs *Regs)

// ExceptionDispatcher routes the 32 CPU exception vectors to registered
// handlers, keeping the with-code and without-code tables separate since an
// exception is hardwired to push (or not push) an error code regardless of
// whether a handler is installed.
type ExceptionDispatcher struct {
	mu               sync.RWMutex
	handlers         [32]ExceptionHandler
	handlersWithCode [32]ExceptionHandlerWithCode
}

// NewExceptionDispatcher returns an empty ExceptionDispatcher. Callers wire
// individual exceptions (e.g. the page fault handler via WirePageFault)
// once the collaborators they depend on are available.
func NewExceptionDispatcher() *ExceptionDispatcher {
	return &ExceptionDispatcher{}
}

// HandleException registers handler for an exception that pushes no error
// code.
func (e *ExceptionDispatcher) HandleException(num ExceptionNum, handler ExceptionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[num] = handler
}

// HandleExceptionWithCode registers handler for an exception that pushes an
// error code.
func (e *ExceptionDispatcher) HandleExceptionWithCode(num ExceptionNum, handler ExceptionHandlerWithCode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlersWithCode[num] = handler
}

// Dispatch invokes num's registered no-code handler, reporting whether one
// was registered.
func (e *ExceptionDispatcher) Dispatch(num ExceptionNum, frame *Frame, regs *Regs) bool {
	e.mu.RLock()
	h := e.handlers[num]
	e.mu.RUnlock()

	if h == nil {
		return false
	}
	h(frame, regs)
	return true
}

// DispatchWithCode invokes num's registered with-code handler, reporting
// whether one was registered.
func (e *ExceptionDispatcher) DispatchWithCode(num ExceptionNum, errorCode uint64, frame *Frame, regs *Regs) bool {
	e.mu.RLock()
	h := e.handlersWithCode[num]
	e.mu.RUnlock()

	if h == nil {
		return false
	}
	h(errorCode, frame, regs)
	return true
}

// WirePageFault registers the page-fault exception handler that reads the
// faulting address from CR2 and hands it, along with the pushed error code,
// to resolve (ordinarily kernel/mem/vmm.HandlePageFault). vmm is not
// imported directly here to keep kernel/irq buildable independently of the
// address-space package; callers wire the two together at boot by calling
// this once resolve is known.
func (e *ExceptionDispatcher) WirePageFault(resolve func(faultAddress uintptr, errorCode uint64) bool) {
	e.HandleExceptionWithCode(PageFaultException, func(errorCode uint64, frame *Frame, regs *Regs) {
		faultAddress := cpu.Current().ReadCR2()
		resolve(faultAddress, errorCode)
	})
}
