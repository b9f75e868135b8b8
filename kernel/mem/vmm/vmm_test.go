package vmm

import (
	"bytes"
	"strings"
	"testing"
	"unsafe"

	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/kfmt/early"
	"github.com/nexuskernel/nexus/kernel/mem"
	"github.com/nexuskernel/nexus/kernel/mem/pmm"
)

func TestHandlePageFaultRecoverable(t *testing.T) {
	var (
		panicCalled bool
		pageEntry   pageTableEntry
		origPage    = make([]byte, mem.PageSize)
		clonedPage  = make([]byte, mem.PageSize)
		err         = &kernel.Error{Module: "test", Message: "something went wrong"}
	)

	defer func(origPtePtr func(uintptr) unsafe.Pointer) {
		ptePtrFn = origPtePtr
		panicFn = func(err *kernel.Error) { kernel.Panic(err) }
		frameAllocator = nil
		unmapFn = Unmap
		flushTLBEntryFn = flushTLBEntry
	}(ptePtrFn)

	specs := []struct {
		pteFlags   PageTableEntryFlag
		allocError *kernel.Error
		mapError   *kernel.Error
		expRecover bool
	}{
		// Missing page.
		{0, nil, nil, false},
		// Page is present but CoW flag not set.
		{FlagPresent, nil, nil, false},
		// Page is present but both CoW and RW flags set.
		{FlagPresent | FlagRW | FlagCopyOnWrite, nil, nil, false},
		// Page is present with CoW flag set but allocating a page copy fails.
		{FlagPresent | FlagCopyOnWrite, err, nil, false},
		// Page is present with CoW flag set but mapping the page copy fails.
		{FlagPresent | FlagCopyOnWrite, nil, err, false},
		// Page is present with CoW flag set.
		{FlagPresent | FlagCopyOnWrite, nil, nil, true},
	}

	var buf bytes.Buffer
	early.SetOutput(&buf)

	panicFn = func(_ *kernel.Error) { panicCalled = true }
	ptePtrFn = func(entry uintptr) unsafe.Pointer { return unsafe.Pointer(&pageEntry) }
	unmapFn = func(_ Page) *kernel.Error { return nil }
	flushTLBEntryFn = func(_ uintptr) {}

	for specIndex, spec := range specs {
		mapTemporaryFn = func(f pmm.Frame, _ FrameAllocatorFn) (Page, *kernel.Error) { return Page(f), spec.mapError }
		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&clonedPage[0]))
			return pmm.Frame(addr >> mem.PageShift), spec.allocError
		})

		for i := 0; i < len(origPage); i++ {
			origPage[i] = byte(i % 256)
			clonedPage[i] = 0
		}

		panicCalled = false
		pageEntry = 0
		pageEntry.SetFlags(spec.pteFlags)

		recovered := HandlePageFault(uintptr(unsafe.Pointer(&origPage[0])), 2)

		if recovered != spec.expRecover {
			t.Errorf("[spec %d] expected recovered=%t; got %t", specIndex, spec.expRecover, recovered)
		}
		if recovered == panicCalled {
			t.Errorf("[spec %d] expected panicFn to be called iff the fault was not recovered", specIndex)
		}

		if spec.expRecover {
			for i := 0; i < len(origPage); i++ {
				if origPage[i] != clonedPage[i] {
					t.Errorf("[spec %d] expected clone page to be a copy of the original page; mismatch at index %d", specIndex, i)
				}
			}
		}
	}
}

func TestReportFaultReasons(t *testing.T) {
	defer func() { panicFn = func(err *kernel.Error) { kernel.Panic(err) } }()

	specs := []struct {
		errCode   uint64
		expReason string
	}{
		{0, "read from non-present page"},
		{1, "page protection violation (read)"},
		{2, "write to non-present page"},
		{3, "page protection violation (write)"},
		{4, "fault in user-mode"},
		{8, "page table has reserved bit set"},
		{16, "instruction fetch"},
		{0xf00, "unknown (code 3840)"},
	}

	panicCalled := false
	panicFn = func(_ *kernel.Error) { panicCalled = true }

	for specIndex, spec := range specs {
		var buf bytes.Buffer
		early.SetOutput(&buf)
		panicCalled = false

		reportFault(0xbadf00d000, spec.errCode, nil)

		if got := buf.String(); !strings.Contains(got, spec.expReason) {
			t.Errorf("[spec %d] expected reason %q; got output:\n%q", specIndex, spec.expReason, got)
			continue
		}
		if !panicCalled {
			t.Errorf("[spec %d] expected panicFn to be invoked", specIndex)
		}
	}
}

func TestInit(t *testing.T) {
	defer func() {
		frameAllocator = nil
		mapTemporaryFn = MapTemporary
		unmapFn = Unmap
	}()

	reservedPage := make([]byte, mem.PageSize)

	t.Run("success", func(t *testing.T) {
		for i := 0; i < len(reservedPage); i++ {
			reservedPage[i] = byte(i % 256)
		}

		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&reservedPage[0]))
			return pmm.Frame(addr >> mem.PageShift), nil
		})
		unmapFn = func(p Page) *kernel.Error { return nil }
		mapTemporaryFn = func(f pmm.Frame, _ FrameAllocatorFn) (Page, *kernel.Error) { return Page(f), nil }

		if err := Init(); err != nil {
			t.Fatal(err)
		}

		for i := 0; i < len(reservedPage); i++ {
			if reservedPage[i] != 0 {
				t.Errorf("expected reserved page to be zeroed; got byte %d at index %d", reservedPage[i], i)
			}
		}
	})

	t.Run("blank page allocation error", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "out of memory"}

		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) { return pmm.InvalidFrame, expErr })
		unmapFn = func(p Page) *kernel.Error { return nil }
		mapTemporaryFn = func(f pmm.Frame, _ FrameAllocatorFn) (Page, *kernel.Error) { return Page(f), nil }

		if err := Init(); err != expErr {
			t.Fatalf("expected error: %v; got %v", expErr, err)
		}
	})

	t.Run("blank page mapping error", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "map failed"}

		SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
			addr := uintptr(unsafe.Pointer(&reservedPage[0]))
			return pmm.Frame(addr >> mem.PageShift), nil
		})
		unmapFn = func(p Page) *kernel.Error { return nil }
		mapTemporaryFn = func(f pmm.Frame, _ FrameAllocatorFn) (Page, *kernel.Error) { return Page(f), expErr }

		if err := Init(); err != expErr {
			t.Fatalf("expected error: %v; got %v", expErr, err)
		}
	})
}
