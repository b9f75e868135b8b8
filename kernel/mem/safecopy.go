package mem

// RecoverFault recovers from a runtime panic raised while touching a
// caller-supplied buffer and reports it through ok instead of letting it
// propagate. It is the in-process stand-in for the page-fault handler a
// real kernel installs around a safe_copy_memory trampoline: Go already
// bounds-checks every slice access, so the panic a too-short buffer raises
// when reslices to its expected length is the same signal an MMU fault
// would be. Callers defer it immediately before the risky reslice/copy.
func RecoverFault(ok *bool) {
	if recover() != nil {
		*ok = false
	}
}

// SafeCopy copies the first n bytes of src into dst, reporting ok=false
// instead of panicking if either buffer turns out to be shorter than n.
// This is what diskcache.ReadOne/WriteOne route caller-supplied buffers
// through so a mismatched length surfaces as ErrorCode.MemoryAccessViolation
// rather than a silent short copy or a crash.
func SafeCopy(dst, src []byte, n int) (copied int, ok bool) {
	ok = true
	defer RecoverFault(&ok)
	copied = copy(dst[:n], src[:n])
	return copied, ok
}
