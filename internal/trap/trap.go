// Package trap implements the supervisor trap dispatcher: the single
// decision point a hart reaches on every exception, syscall, timer tick
// and external interrupt. Grounded on
// original_source/os/src/trap/mod.rs's trap_handler cause-table match.
//
// There is no literal STVEC/scause register in this model — a hart never
// actually executes RISC-V instructions — so Dispatch takes the cause as
// an explicit argument instead of reading a CSR, and the syscall ABI
// registers (a7, a0..a2) are read out of the task's own TrapContext.X
// slots rather than off a real register file. The decision logic per
// cause is otherwise unchanged from the original table.
package trap

import (
	"github.com/rvkern/kernel/internal/logging"
	"github.com/rvkern/kernel/internal/plic"
	"github.com/rvkern/kernel/internal/sched"
	"github.com/rvkern/kernel/internal/syscall"
	"github.com/rvkern/kernel/internal/task"
	"github.com/rvkern/kernel/internal/timer"
	"github.com/rvkern/kernel/internal/uapi"
	"github.com/rvkern/kernel/internal/usertrap"
)

// scratchRecordCount is the TrapContext.X slot trap_return writes the
// pending-UINT-record count into, standing in for the original's
// dedicated scratch CSR. x5 (t0) is caller-saved and otherwise unused
// across trap_return, the same register rCore-N's assembly trampoline
// repurposes for this handoff.
const scratchRecordCount = 5

// Dispatcher is one hart's trap entry point: it owns no state beyond its
// hart number and the collaborators a branch of the cause table needs.
// Registry, PLIC and UARTISR are shared across harts; Proc, Syscalls and
// Timers belong to this hart alone.
type Dispatcher struct {
	Hart      int
	Proc      *sched.Processor
	Syscalls  *syscall.Dispatcher
	Registry  *usertrap.Registry
	PLIC      *plic.PLIC
	Timers    *timer.Multiplexer
	UARTISR   func(irq uint32)
	log       *logging.Logger
}

// New builds a Dispatcher for one hart.
func New(hart int, proc *sched.Processor, syscalls *syscall.Dispatcher, registry *usertrap.Registry, p *plic.PLIC, timers *timer.Multiplexer, uartISR func(irq uint32), log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{
		Hart:     hart,
		Proc:     proc,
		Syscalls: syscalls,
		Registry: registry,
		PLIC:     p,
		Timers:   timers,
		UARTISR:  uartISR,
		log:      log.WithComponent("trap"),
	}
}

// Dispatch handles a trap taken while cur was running, per the cause
// table. Exceptions fatal to the task end it via h.ExitCurrentAndRunNext
// rather than returning to it. Syscalls write their return value into
// a0 (X[10]) and advance SEPC past the ecall instruction before
// returning to cur.
func (d *Dispatcher) Dispatch(cur *task.Task, h *sched.Handle, cause uint64) {
	switch cause {
	case uapi.ScauseUserEnvCall:
		d.dispatchSyscall(cur, h)
	case uapi.ScauseLoadFault, uapi.ScauseStoreFault, uapi.ScauseLoadPageFault, uapi.ScauseStorePageFault, uapi.ScauseInstructionFault, uapi.ScauseInstructionPageFault:
		d.log.Warn("fatal memory fault, killing task", "tid", cur.TID, "cause", cause)
		h.ExitCurrentAndRunNext(uapi.ExitPageFault, d.initTask())
	case uapi.ScauseIllegalInstruction:
		d.log.Warn("illegal instruction, killing task", "tid", cur.TID)
		h.ExitCurrentAndRunNext(uapi.ExitIllegalInstruction, d.initTask())
	case uapi.ScauseSupervisorSoft:
		// IPI wakeup: nothing further to do once the hart has been woken
		// from its idle context by the ready queue signal.
	default:
		d.log.Errorf("unhandled trap cause %#x from tid %d", cause, cur.TID)
		panic("trap: unhandled cause")
	}
}

func (d *Dispatcher) initTask() *task.Task {
	t, _ := d.Proc.Allocator().FindTask(1)
	return t
}

// dispatchSyscall reads (a7, a0, a1, a2) from cur's trap context,
// invokes the syscall table, writes the result back to a0, and advances
// SEPC past the 4-byte ecall instruction. Mirrors trap_handler's
// UserEnvCall branch.
func (d *Dispatcher) dispatchSyscall(cur *task.Task, h *sched.Handle) {
	inner := cur.Lock()
	id := inner.TrapContext.X[17]
	a0 := inner.TrapContext.X[10]
	a1 := inner.TrapContext.X[11]
	a2 := inner.TrapContext.X[12]
	inner.TrapContext.Sepc += 4
	cur.Unlock()

	ret := d.Syscalls.Dispatch(cur, h, id, a0, a1, a2)

	inner = cur.Lock()
	inner.TrapContext.X[10] = uint64(ret)
	cur.Unlock()
}

// HandleTimer pops every expired virtual-timer deadline and dispatches
// each: TID 0 reprograms the kernel's own tick and suspends whatever is
// currently running; a deadline owned by some other registered task is
// delivered as a UINT timer record. Mirrors the SupervisorTimer branch.
//
// A virtual timer whose owner happens to be the task presently running
// on this hart is delivered through the same trap-record path as any
// other owner: there is no separate live CSR "pending bit" to set in
// this model, only the one delivery mechanism internal/usertrap already
// implements, so the spec's "set the pending bit, let the task take a
// UINT on its own" case and its "otherwise" case collapse to the same
// call here.
func (d *Dispatcher) HandleTimer(runningHandle *sched.Handle) {
	nowUs := d.Timers.GetTimeUs()
	for _, tid := range d.Timers.Expired() {
		if tid == timer.KernelTickTID {
			d.Timers.SetNextTrigger()
			if runningHandle != nil {
				runningHandle.SuspendCurrentAndRunNext()
			}
			continue
		}
		if err := d.Registry.DeliverTimer(tid, nowUs); err != nil {
			d.log.Warn("dropping timer trap record", "tid", tid, "err", err)
		}
	}
}

// HandleExternal drains every claimable IRQ at this hart's supervisor
// context, delivering to the claiming task's UINT buffer when one
// exists and falling back to the kernel's own device ISR otherwise.
// Mirrors the SupervisorExternal branch, delegated entirely to
// internal/plic.PLIC.HandleExternalInterrupt (the same claim/deliver/
// complete loop, already implemented there since internal/plic owns the
// claim/complete state this needs).
func (d *Dispatcher) HandleExternal() {
	d.PLIC.HandleExternalInterrupt(d.Hart, d.Registry, d.UARTISR)
}

// Return restores a task's UINT-visible state ahead of switching back to
// it: writes the count of pending trap records into the task's scratch
// register iff the task is currently registered with the UINT registry and at least
// one record is waiting. Mirrors trap_return's CSR restore plus pending-
// count scratch write; there is no literal trampoline switch here, only
// the data half of that handoff, since control actually returns to the
// task via internal/sched's channel rendezvous.
func (d *Dispatcher) Return(t *task.Task) {
	if !d.Registry.IsRegistered(t.TID) {
		return
	}
	inner := t.Lock()
	count := inner.UserTrap.Buffer.Count()
	if count > 0 {
		inner.TrapContext.X[scratchRecordCount] = uint64(count)
	}
	t.Unlock()
}
