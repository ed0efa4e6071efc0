package sched

import (
	"weak"

	"github.com/rvkern/kernel/internal/task"
)

// Handle is the view of the scheduler a task's own goroutine uses to
// park itself between scheduling events and to yield control back to
// the hart's idle context. There is no literal trap/return assembly
// boundary in this repo, so the "trampoline" concept is this channel
// rendezvous: WaitScheduled blocks until Processor.runNext hands this
// task the hart, and Suspend/Exit hand it back.
type Handle struct {
	proc      *Processor
	task      *task.Task
	scheduled chan struct{}
}

// Task returns the task this handle represents.
func (h *Handle) Task() *task.Task { return h.task }

// WaitScheduled blocks until the owning Processor switches this task
// onto its hart. Call once right after the task is created (Fork/Spawn
// push it onto the ready queue immediately); SuspendCurrentAndRunNext
// already waits for the next quantum itself, so it is not called again
// after a Suspend.
func (h *Handle) WaitScheduled() {
	<-h.scheduled
}

// SuspendCurrentAndRunNext marks the task Ready, disables its UINT
// devices at U-context, pushes it back onto the ready queue, and yields
// the hart back to the Processor's run loop. Blocks until the task is
// scheduled again. Mirrors suspend_current_and_run_next.
//
// A task's own driving goroutine and the hart's timer-tick loop can both
// reach this for the same Handle — a cooperative sys_yield racing the
// kernel tick's forced preemption of the same running quantum. The
// Status==Running check and transition happen atomically under the
// task's own lock, so only the first caller actually suspends; the loser
// observes the status already moved on and returns immediately instead
// of double-pushing the task onto the ready queue or double-signaling
// yielded.
func (h *Handle) SuspendCurrentAndRunNext() {
	t := h.task
	inner := t.Lock()
	if inner.Status != task.StatusRunning {
		t.Unlock()
		return
	}
	inner.Status = task.StatusReady
	uinfo := inner.UserTrap
	t.Unlock()

	if uinfo != nil {
		uinfo.DisableUserExtInt(h.proc.plic, h.proc.Hart)
	}

	h.proc.ready.Push(t)
	h.proc.yielded <- struct{}{}
	h.WaitScheduled()
}

// ExitCurrentAndRunNext tears down the task's UINT claims, reparents its
// children onto init, records its exit code, and marks it a zombie for
// waitpid to reap. Does not block again: the task's own goroutine is
// expected to return right after calling this. Mirrors
// exit_current_and_run_next: WAIT_LOCK is acquired before the task's own
// TCB lock, and held across the whole teardown, to serialize against a
// concurrent waitpid on the parent that would otherwise observe this
// task mid-transition.
func (h *Handle) ExitCurrentAndRunNext(exitCode int32, init *task.Task) {
	t := h.task

	h.proc.waitLock.Lock()
	defer h.proc.waitLock.Unlock()

	inner := t.Lock()
	if inner.Status == task.StatusZombie {
		t.Unlock()
		return
	}
	uinfo := inner.UserTrap
	children := inner.Children
	inner.Children = nil
	inner.Status = task.StatusZombie
	inner.ExitCode = exitCode
	t.Unlock()

	if uinfo != nil {
		uinfo.RemoveUserExtIntMap(h.proc.plic, h.proc.Hart, h.proc.registry)
	}
	h.proc.registry.UnregisterTask(t.TID)

	if init != nil && init != t {
		reparentChildren(init, children)
	}

	h.proc.mu.Lock()
	delete(h.proc.handles, t.TID)
	h.proc.mu.Unlock()

	h.proc.yielded <- struct{}{}
}

func reparentChildren(init *task.Task, children []*task.Task) {
	initInner := init.Lock()
	defer init.Unlock()
	for _, c := range children {
		cInner := c.Lock()
		cInner.Parent = weak.Make(init)
		c.Unlock()
		initInner.Children = append(initInner.Children, c)
	}
}
