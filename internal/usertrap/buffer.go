// Package usertrap implements the per-task user-trap buffer (a bounded
// SPSC queue of trap records delivered to unprivileged tasks without a
// kernel round trip) and the device-claim registry that routes a PLIC
// IRQ to the task that claimed it.
package usertrap

import (
	"sync"
	"sync/atomic"

	"github.com/rvkern/kernel/internal/uapi"
)

// ErrTrapBufferFull is returned when a task's queue has reached its
// fixed capacity, mirroring usertrap.rs's UserTrapError::TrapBufferFull.
var ErrTrapBufferFull = errTrapBufferFull{}

type errTrapBufferFull struct{}

func (errTrapBufferFull) Error() string { return "usertrap: buffer full" }

// Buffer is a fixed-capacity SPSC ring of TrapRecord entries. The
// consumer side (the task reading its own records) never takes a lock;
// only the producer side is serialized, via producerMu, since more than
// one hart can race to deliver an IRQ or message to the same task
// concurrently (the Open Question this package resolves — see
// DESIGN.md).
type Buffer struct {
	records    []uapi.TrapRecord
	head       atomic.Uint32
	tail       atomic.Uint32
	producerMu sync.Mutex
}

// NewBuffer allocates a buffer with the given fixed capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{records: make([]uapi.TrapRecord, capacity)}
}

// Push appends rec, serialized against concurrent producers. Returns
// ErrTrapBufferFull once the buffer has Capacity() unread records.
func (b *Buffer) Push(rec uapi.TrapRecord) error {
	b.producerMu.Lock()
	defer b.producerMu.Unlock()

	head := b.head.Load()
	tail := b.tail.Load()
	if int(tail-head) >= len(b.records) {
		return ErrTrapBufferFull
	}
	b.records[int(tail)%len(b.records)] = rec
	b.tail.Add(1)
	return nil
}

// Pop removes and returns the oldest record, the consumer-only,
// lock-free path. Returns (zero, false) if the buffer is empty.
func (b *Buffer) Pop() (uapi.TrapRecord, bool) {
	head := b.head.Load()
	tail := b.tail.Load()
	if head == tail {
		return uapi.TrapRecord{}, false
	}
	rec := b.records[int(head)%len(b.records)]
	b.head.Add(1)
	return rec, true
}

// Count returns the number of unread records.
func (b *Buffer) Count() int {
	return int(b.tail.Load() - b.head.Load())
}

// Capacity returns the buffer's fixed size.
func (b *Buffer) Capacity() int {
	return len(b.records)
}
