package storage

import (
	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/sched"
)

// RequestKind distinguishes a read from a write request.
type RequestKind uint8

const (
	RequestRead RequestKind = iota
	RequestWrite
)

// AsyncRequest is a read or write against a device's LBA address space.
// Submit hands it to a Device; Wait suspends the caller (via a
// kernel/sched.Blocker, the same suspension primitive the deferred-IRQ
// worker parks on) until the device completes it.
type AsyncRequest struct {
	Kind   RequestKind
	Buffer []byte
	Range  LBARange

	blocker *sched.Blocker
	result  kernel.ErrorCode
}

// MakeReadRequest builds a request that reads r into buffer.
func MakeReadRequest(buffer []byte, r LBARange) *AsyncRequest {
	return &AsyncRequest{Kind: RequestRead, Buffer: buffer, Range: r, blocker: sched.NewBlocker()}
}

// MakeWriteRequest builds a request that writes buffer to r.
func MakeWriteRequest(buffer []byte, r LBARange) *AsyncRequest {
	return &AsyncRequest{Kind: RequestWrite, Buffer: buffer, Range: r, blocker: sched.NewBlocker()}
}

// Complete is called by the device once the request has been serviced.
func (req *AsyncRequest) Complete(code kernel.ErrorCode) {
	req.result = code
	req.blocker.Unblock()
}

// Wait suspends the caller until Complete is called.
func (req *AsyncRequest) Wait() {
	req.blocker.Block()
}

// Result returns the outcome of a completed request.
func (req *AsyncRequest) Result() kernel.ErrorCode {
	return req.result
}

// RamdiskRequest is a synchronous read or write against a RAM-backed
// device's byte-offset address space — no LBA translation, no blocker,
// since a ramdisk device services it inline before SubmitRamdiskRequest
// returns.
type RamdiskRequest struct {
	Kind   RequestKind
	Buffer []byte
	Offset uint64

	result kernel.ErrorCode
}

// MakeRamdiskRead builds a request that reads len(buffer) bytes from offset.
func MakeRamdiskRead(buffer []byte, offset uint64) *RamdiskRequest {
	return &RamdiskRequest{Kind: RequestRead, Buffer: buffer, Offset: offset}
}

// MakeRamdiskWrite builds a request that writes buffer to offset.
func MakeRamdiskWrite(buffer []byte, offset uint64) *RamdiskRequest {
	return &RamdiskRequest{Kind: RequestWrite, Buffer: buffer, Offset: offset}
}

// Complete is called by the device once the request has been serviced.
func (req *RamdiskRequest) Complete(code kernel.ErrorCode) {
	req.result = code
}

// Result returns the outcome of a completed request.
func (req *RamdiskRequest) Result() kernel.ErrorCode {
	return req.result
}
