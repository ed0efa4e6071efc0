// Package kernel is the public entry point to the kernel core: Boot
// starts it, Shutdown tears it down, and the error/metrics types here
// give callers structured visibility into both.
package kernel

import (
	"errors"
	"fmt"
)

// Error represents a structured kernel error with the dispatch-site
// context that produced it.
type Error struct {
	Op   string        // operation that failed (e.g. "boot", "dispatch")
	Hart int           // hart number (-1 if not applicable)
	TID  uint64        // task TID (0 if not applicable)
	Code KernelErrorCode
	Msg  string
	Inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Hart >= 0 {
		parts = append(parts, fmt.Sprintf("hart=%d", e.Hart))
	}
	if e.TID != 0 {
		parts = append(parts, fmt.Sprintf("tid=%d", e.TID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("kernel: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("kernel: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support by comparing error codes.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// KernelErrorCode categorizes an error by where in the dispatch taxonomy
// it belongs: fatal to the task, recoverable at the syscall boundary,
// silently dropped, or fatal to the kernel itself.
type KernelErrorCode string

const (
	// ErrCodeTaskFault marks a memory-access fault or illegal instruction:
	// fatal to the task, not the kernel.
	ErrCodeTaskFault KernelErrorCode = "task fault"
	// ErrCodeBadFD marks an unknown or wrong-direction file descriptor.
	ErrCodeBadFD KernelErrorCode = "bad file descriptor"
	// ErrCodeTranslationFault marks a syscall argument pointer/length that
	// does not translate to an in-bounds, non-page-crossing buffer.
	ErrCodeTranslationFault KernelErrorCode = "translation fault"
	// ErrCodeMailboxFull marks a mail_write against a full mailbox.
	ErrCodeMailboxFull KernelErrorCode = "mailbox full"
	// ErrCodeInvalidPriority marks a set_priority below the minimum.
	ErrCodeInvalidPriority KernelErrorCode = "invalid priority"
	// ErrCodeInvalidMmap marks an mmap/munmap over an invalid range.
	ErrCodeInvalidMmap KernelErrorCode = "invalid mmap range"
	// ErrCodeUnknownImage marks an exec/spawn naming an unresolvable image.
	ErrCodeUnknownImage KernelErrorCode = "unknown image"
	// ErrCodeTrapBufferFull marks a silently-dropped push to a full UINT
	// trap buffer.
	ErrCodeTrapBufferFull KernelErrorCode = "trap buffer full"
	// ErrCodeUnclaimedIRQ marks an interrupt with no registered handler.
	ErrCodeUnclaimedIRQ KernelErrorCode = "unclaimed interrupt"
	// ErrCodeAlreadyClaimed marks a claim_ext_int against an IRQ another
	// task already owns.
	ErrCodeAlreadyClaimed KernelErrorCode = "irq already claimed"
	// ErrCodeBootFailure marks a failure constructing boot-time state.
	ErrCodeBootFailure KernelErrorCode = "boot failure"
)

// NewError creates a new structured error with no hart/TID context.
func NewError(op string, code KernelErrorCode, msg string) *Error {
	return &Error{Op: op, Hart: -1, Code: code, Msg: msg}
}

// NewTaskError creates a new structured error scoped to one task.
func NewTaskError(op string, tid uint64, code KernelErrorCode, msg string) *Error {
	return &Error{Op: op, Hart: -1, TID: tid, Code: code, Msg: msg}
}

// NewHartError creates a new structured error scoped to one hart.
func NewHartError(op string, hart int, code KernelErrorCode, msg string) *Error {
	return &Error{Op: op, Hart: hart, Code: code, Msg: msg}
}

// WrapError wraps an existing error with kernel context, preserving an
// already-structured error's code instead of reclassifying it.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ke, ok := inner.(*Error); ok {
		return &Error{Op: op, Hart: ke.Hart, TID: ke.TID, Code: ke.Code, Msg: ke.Msg, Inner: ke.Inner}
	}
	return &Error{Op: op, Hart: -1, Code: ErrCodeBootFailure, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a structured Error carrying code.
func IsCode(err error, code KernelErrorCode) bool {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Code == code
	}
	return false
}
