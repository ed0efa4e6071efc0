// Package uapi defines the fixed-layout ABI structures shared between the
// "kernel" and "user" halves of a task: the context-switch register save
// area, the trap context page, and the user-trap record pushed into a
// task's SPSC queue. Struct layouts are fixed-size and manually
// marshaled/unmarshaled, mirroring how real kernel ABI structs are
// exchanged with userspace.
package uapi

import "unsafe"

// TaskContext is the register-save area swapped by the scheduler on every
// context switch: return address, stack pointer, the twelve callee-saved
// general registers (s0-s11), and the six user-interrupt CSRs that must
// follow the task across a switch so UINT state survives preemption.
type TaskContext struct {
	RA    uint64
	SP    uint64
	S     [12]uint64
	Uie   uint64
	Uip   uint64
	Uepc  uint64
	Utvec uint64
	Utval uint64
	Ucause uint64
}

// Compile-time size assertion: 1 + 1 + 12 + 6 = 20 uint64 fields.
var _ [160]byte = [unsafe.Sizeof(TaskContext{})]byte{}

// TrapContext is the full register file saved on trap entry: all 32
// general-purpose registers plus the supervisor CSRs needed to resume
// the interrupted context and the kernel's own re-entry coordinates.
type TrapContext struct {
	X           [32]uint64
	Sstatus     uint64
	Sepc        uint64
	KernelSatp  uint64
	KernelSP    uint64
	TrapHandler uint64
}

// Compile-time size assertion: 32 + 5 = 37 uint64 fields.
var _ [296]byte = [unsafe.Sizeof(TrapContext{})]byte{}

// TrapRecord is one entry in a task's user-trap queue: a claimed device
// IRQ, a virtual timer, or a cross-task message, delivered without a
// kernel round trip. Cause is encoded rather than tagged: low nibble
// zero means "software message from TID (Cause >> 4)"; Cause == 4 means
// virtual timer, with Message the time in microseconds; Cause == 8
// means user external interrupt, with Message the IRQ number.
type TrapRecord struct {
	Cause   uint64
	Message uint64
}

// Compile-time size assertion: fixed 16-byte record.
var _ [16]byte = [unsafe.Sizeof(TrapRecord{})]byte{}

// Reserved TrapRecord.Cause values; a cause not equal to either of
// these and with a nonzero low nibble is never produced.
const (
	TrapCauseTimer    uint64 = 4
	TrapCauseExternal uint64 = 8
)

// MessageCause builds the Cause word for a software message sent by
// source: low nibble zero, source packed into the high bits.
func MessageCause(source uint64) uint64 {
	return source << 4
}

// IsMessageCause reports whether cause encodes a software message
// rather than a timer or external-interrupt record.
func IsMessageCause(cause uint64) bool {
	return cause&0xF == 0
}

// MessageSource extracts the sending TID from a message cause. Only
// meaningful when IsMessageCause(cause) is true.
func MessageSource(cause uint64) uint64 {
	return cause >> 4
}
