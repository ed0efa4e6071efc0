// Package task implements the task control block, TID allocation, and
// the shared ready queue: the data half of the scheduler (internal/sched
// owns the run loop that consumes this package's types).
package task

import (
	"sync"
	"weak"

	"github.com/rvkern/kernel/internal/config"
	"github.com/rvkern/kernel/internal/ipc"
	"github.com/rvkern/kernel/internal/mm"
	"github.com/rvkern/kernel/internal/uapi"
	"github.com/rvkern/kernel/internal/usertrap"
)

// Status is a task's scheduling state.
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusZombie
)

// Inner holds everything about a task that changes over its lifetime,
// guarded by the owning Task's mutex. Mirrors
// original_source/os/src/task/task.rs's TaskControlBlockInner.
type Inner struct {
	Status      Status
	Priority    int
	Parent      weak.Pointer[Task] // weak: parent owns children strongly, not vice versa
	Children    []*Task
	ExitCode    int32
	TaskContext uapi.TaskContext
	TrapContext uapi.TrapContext
	UserTrap    *usertrap.Info
	Mailbox     *ipc.Mailbox
	AddrSpace   *mm.FlatSpace
	Fds         []FD
}

func (i *Inner) isZombie() bool { return i.Status == StatusZombie }

// ParentTask resolves the weak parent reference, returning nil if the
// parent has since been collected (it already exited and was reaped).
func (i *Inner) ParentTask() *Task {
	return i.Parent.Value()
}

// Task is the kernel's task control block: an immutable identity (TID)
// plus a mutex-guarded Inner, exactly the TCB/TCBInner split the
// original source uses so most accesses only ever need the inner lock.
type Task struct {
	TID uint64

	mu    sync.Mutex
	inner Inner
}

// New builds a freshly allocated task: Ready status, default priority,
// no parent, a fresh address space with the fixed trap-context and
// user-trap-buffer pages, and an empty mailbox.
func New(tid uint64) *Task {
	t := &Task{TID: tid}
	t.inner = Inner{
		Status:    StatusReady,
		Priority:  config.DefaultPriority,
		AddrSpace: mm.NewFlatSpace(),
		UserTrap:  usertrap.NewInfo(config.UserTrapQueueCapacity),
		Mailbox:   ipc.NewMailbox(ipc.MailboxCapacity, ipc.MailBufferSize),
	}
	return t
}

// Lock acquires the task's inner lock and returns the guarded state.
// Callers must call Unlock when done, mirroring
// TaskControlBlock::acquire_inner_lock's MutexGuard.
func (t *Task) Lock() *Inner {
	t.mu.Lock()
	return &t.inner
}

// Unlock releases the inner lock acquired by Lock.
func (t *Task) Unlock() {
	t.mu.Unlock()
}

// IsZombie reports whether the task has exited, taking the inner lock
// itself for one-shot callers.
func (t *Task) IsZombie() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.isZombie()
}

// SetPriority validates and stores a new priority; the scheduler never
// consults this value (DESIGN.md Open Question: priority carried but not
// scheduled), mirroring set_priority's >= 2 validation only.
func (t *Task) SetPriority(priority int) error {
	if priority < config.MinPriority {
		return errInvalidPriority
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inner.Priority = priority
	return nil
}

type priorityError struct{}

func (priorityError) Error() string { return "task: priority must be >= 2" }

var errInvalidPriority = priorityError{}
