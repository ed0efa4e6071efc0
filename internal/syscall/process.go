package syscall

import (
	"github.com/rvkern/kernel/internal/sched"
	"github.com/rvkern/kernel/internal/task"
)

// sysExit tears the task down via the Processor's exit primitive, with
// init as the reparent target. Mirrors sys_exit calling
// exit_current_and_run_next; the "never returns" contract is expressed
// by the caller's driving goroutine returning right after this call
// rather than a Go panic/no-return type, since nothing here unwinds a
// stack.
func (d *Dispatcher) sysExit(cur *task.Task, h *sched.Handle, code int32) {
	d.log.Debugf("tid %d exited with code %d", cur.TID, code)
	h.ExitCurrentAndRunNext(code, d.initTask())
}

func (d *Dispatcher) initTask() *task.Task {
	t, _ := d.Proc.Allocator().FindTask(1)
	return t
}

// sysSetPriority validates and stores the new priority, returning it on
// success or ErrGeneric on an invalid (<2) value. Mirrors
// sys_set_priority/set_current_priority.
func (d *Dispatcher) sysSetPriority(cur *task.Task, prio int) int64 {
	if err := cur.SetPriority(prio); err != nil {
		return ErrGeneric
	}
	return int64(prio)
}

// sysFork creates a child sharing the parent's current trap context,
// zeroes its a0 so it observes fork() returning 0, and returns the
// child's TID to the parent. Mirrors sys_fork.
func (d *Dispatcher) sysFork(cur *task.Task) int64 {
	child, _ := d.Proc.Fork(cur)

	cInner := child.Lock()
	cInner.TrapContext.X[10] = 0
	child.Unlock()

	return int64(child.TID)
}

// sysExec replaces cur's image in place, returning 0 on success or
// ErrGeneric if name is unknown. Mirrors sys_exec.
func (d *Dispatcher) sysExec(cur *task.Task, pathVA uint64, pathLen int) int64 {
	name, err := readCString(cur, pathVA, pathLen)
	if err != nil {
		return ErrGeneric
	}
	if err := d.Proc.Exec(cur, d.Loader, name, d.TrapHandler); err != nil {
		return ErrGeneric
	}
	return 0
}

// sysSpawn creates a task running a freshly loaded image and enqueues
// it, returning its TID or ErrGeneric if name is unknown. The new task
// is a child of cur (Processor.Spawn forks it from cur), not a sibling.
// Mirrors sys_spawn.
func (d *Dispatcher) sysSpawn(cur *task.Task, pathVA uint64, pathLen int) int64 {
	name, err := readCString(cur, pathVA, pathLen)
	if err != nil {
		return ErrGeneric
	}
	child, h, err := d.Proc.Spawn(cur, d.Loader, name, d.TrapHandler)
	if err != nil {
		return ErrGeneric
	}
	cInner := child.Lock()
	cInner.TrapContext.X[10] = 0
	child.Unlock()
	_ = h
	return int64(child.TID)
}

// sysWaitpid searches cur's children for a zombie matching pid (-1 =
// any), reaps and returns it, writing its exit code to *exitCodeVA.
// Returns -1 if no matching child exists at all, -2 if one exists but
// is still running. Mirrors sys_waitpid: takes the kernel-wide
// WAIT_LOCK before cur's own TCB lock, the same order
// ExitCurrentAndRunNext uses, so a child mid-exit is never observed
// half torn-down.
func (d *Dispatcher) sysWaitpid(cur *task.Task, pid int64, exitCodeVA uint64) int64 {
	d.Proc.WaitLock().Lock()
	defer d.Proc.WaitLock().Unlock()

	inner := cur.Lock()
	defer cur.Unlock()

	found := false
	for idx, c := range inner.Children {
		if pid != -1 && int64(c.TID) != pid {
			continue
		}
		found = true
		if !c.IsZombie() {
			continue
		}
		cInner := c.Lock()
		exitCode := cInner.ExitCode
		c.Unlock()

		inner.Children = append(inner.Children[:idx], inner.Children[idx+1:]...)
		if buf, err := translate(cur, exitCodeVA, 4); err == nil {
			putU32(buf, uint32(exitCode))
		}
		return int64(c.TID)
	}
	if !found {
		return ErrGeneric
	}
	return ErrStillRunning
}

// sysMmap maps every page covering [va, va+len) in cur's address space.
// Permission bits (prot) are accepted but not enforced: this repo's
// address space is a software model, not an MMU (internal/mm's stated
// scope), so there is nothing to set permission bits on.
func (d *Dispatcher) sysMmap(cur *task.Task, va, length, _prot uint64) int64 {
	inner := cur.Lock()
	defer cur.Unlock()
	inner.AddrSpace.MapRange(va, length)
	return 0
}

// sysMunmap unmaps every page covering [va, va+len).
func (d *Dispatcher) sysMunmap(cur *task.Task, va, length uint64) int64 {
	inner := cur.Lock()
	defer cur.Unlock()
	inner.AddrSpace.UnmapRange(va, length)
	return 0
}

// sysGetTime writes (sec, usec) to the two words starting at tvVA.
func (d *Dispatcher) sysGetTime(cur *task.Task, tvVA uint64, _tz uint64) int64 {
	tv := d.Proc.Timers().GetTime()
	buf, err := translate(cur, tvVA, 16)
	if err != nil {
		return ErrGeneric
	}
	putU64(buf[0:8], tv.Sec)
	putU64(buf[8:16], tv.Usec)
	return 0
}

func readCString(t *task.Task, va uint64, length int) (string, error) {
	buf, err := translate(t, va, length)
	if err != nil {
		return "", err
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}

func putU64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func putU32(buf []byte, v uint32) {
	for i := 0; i < 4; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}
