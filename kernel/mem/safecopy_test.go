package mem

import "testing"

func TestSafeCopyCopiesRequestedLength(t *testing.T) {
	src := []byte("hello world")
	dst := make([]byte, len(src))

	n, ok := SafeCopy(dst, src, len(src))
	if !ok {
		t.Fatal("expected SafeCopy to succeed")
	}
	if n != len(src) {
		t.Fatalf("expected %d bytes copied, got %d", len(src), n)
	}
	if string(dst) != string(src) {
		t.Fatalf("expected %q, got %q", src, dst)
	}
}

func TestSafeCopyFaultsOnShortDestination(t *testing.T) {
	src := []byte("hello world")
	dst := make([]byte, 4)

	if _, ok := SafeCopy(dst, src, len(src)); ok {
		t.Fatal("expected SafeCopy to report a fault for an undersized destination")
	}
}

func TestSafeCopyFaultsOnShortSource(t *testing.T) {
	src := []byte("hi")
	dst := make([]byte, 16)

	if _, ok := SafeCopy(dst, src, 16); ok {
		t.Fatal("expected SafeCopy to report a fault for an undersized source")
	}
}

func TestRecoverFaultSwallowsPanic(t *testing.T) {
	ok := true
	func() {
		defer RecoverFault(&ok)
		panic("simulated fault")
	}()
	if ok {
		t.Fatal("expected RecoverFault to flip ok to false")
	}
}
