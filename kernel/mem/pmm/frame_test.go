package pmm

import "testing"

func TestFrameAddressRoundTrip(t *testing.T) {
	addr := uintptr(0xdeadb000)
	f := FrameFromAddress(addr)
	if got := f.Address(); got != addr {
		t.Fatalf("expected round-tripped address 0x%x; got 0x%x", addr, got)
	}
}

func TestInvalidFrame(t *testing.T) {
	if InvalidFrame.IsValid() {
		t.Fatal("expected InvalidFrame.IsValid() to be false")
	}

	if !Frame(0).IsValid() {
		t.Fatal("expected frame 0 to be valid")
	}
}
