package usertrap

import (
	"fmt"
	"sync"

	"github.com/rvkern/kernel/internal/logging"
	"github.com/rvkern/kernel/internal/uapi"
)

// Registry maps a claimed device IRQ to the task that owns it, and every
// known task's Info to its user-trap buffer, so both device interrupts
// and cross-task messages can be delivered without involving the
// scheduler. It implements internal/plic.Registry.
type Registry struct {
	mu      sync.Mutex
	owners  map[uint32]uint64
	tasks   map[uint64]*Info
	log     *logging.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Default()
	}
	return &Registry{
		owners: make(map[uint32]uint64),
		tasks:  make(map[uint64]*Info),
		log:    log.WithComponent("usertrap"),
	}
}

// RegisterTask makes tid's Info reachable for delivery, including for
// cross-task messages that never go through a device IRQ.
func (r *Registry) RegisterTask(tid uint64, info *Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[tid] = info
}

// UnregisterTask removes tid (and anything it still owned) from the
// registry, called when a task exits.
func (r *Registry) UnregisterTask(tid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, tid)
	for irq, owner := range r.owners {
		if owner == tid {
			delete(r.owners, irq)
		}
	}
}

// Claim records that tid has claimed irq.
func (r *Registry) Claim(irq uint32, tid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[irq] = tid
}

// Remove drops irq's claim, routing future occurrences back to the
// kernel's own device driver.
func (r *Registry) Remove(irq uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, irq)
}

// ClaimedOwner implements internal/plic.Registry.
func (r *Registry) ClaimedOwner(irq uint32) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tid, ok := r.owners[irq]
	return tid, ok
}

// Deliver implements internal/plic.Registry: push a device-IRQ trap
// record into irq's owning task's buffer. Mirrors push_trap_record(tid,
// {cause:8, message:irq}).
func (r *Registry) Deliver(tid uint64, irq uint32) error {
	return r.push(tid, uapi.TrapRecord{Cause: uapi.TrapCauseExternal, Message: uint64(irq)})
}

// DeliverMessage pushes a cross-task message trap record into dest's
// buffer, the UINT-path equivalent of a signal. Mirrors
// push_trap_record(dest, {cause: source<<4, message: payload}).
func (r *Registry) DeliverMessage(dest uint64, source uint64, payload uint64) error {
	return r.push(dest, uapi.TrapRecord{Cause: uapi.MessageCause(source), Message: payload})
}

// DeliverTimer pushes a timer trap record carrying the current time (in
// microseconds) into tid's buffer, the UINT-path delivery for a virtual
// timer owned by a task other than the one the hart happens to be
// running. Mirrors the trap dispatcher's push_trap_record(tid, {cause:4,
// message:now_us}) branch.
func (r *Registry) DeliverTimer(tid uint64, nowUs uint64) error {
	return r.push(tid, uapi.TrapRecord{Cause: uapi.TrapCauseTimer, Message: nowUs})
}

// IsRegistered reports whether tid currently has a reachable Info for
// delivery. Registration is not limited to tasks that called
// sys_init_user_trap: internal/sched registers every task it creates
// (init, fork, spawn), and UnregisterTask removes a task when it exits,
// so deliveries to any live task succeed. trap_return consults this to
// decide whether writing a pending-record count to the task's scratch
// register is meaningful at all.
func (r *Registry) IsRegistered(tid uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[tid]
	return ok
}

func (r *Registry) push(tid uint64, rec uapi.TrapRecord) error {
	r.mu.Lock()
	info, ok := r.tasks[tid]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("usertrap: task %d not found", tid)
	}
	if err := info.Buffer.Push(rec); err != nil {
		r.log.Warn("dropping trap record: buffer full", "tid", tid, "cause", rec.Cause)
		return err
	}
	return nil
}
