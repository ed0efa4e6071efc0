package syscall

import (
	"github.com/rvkern/kernel/internal/loader"
	"github.com/rvkern/kernel/internal/logging"
	"github.com/rvkern/kernel/internal/sbi"
	"github.com/rvkern/kernel/internal/sched"
	"github.com/rvkern/kernel/internal/task"
)

// Dispatcher invokes the numbered syscall table against one hart's
// Processor. One Dispatcher exists per hart, alongside its Processor,
// since several calls (fork, spawn, yield, exit) need the Processor's
// suspend/exit/fork primitives.
type Dispatcher struct {
	Proc        *sched.Processor
	Loader      loader.Loader
	Shim        sbi.Shim
	TrapHandler uint64
	log         *logging.Logger
}

// New builds a Dispatcher bound to proc.
func New(proc *sched.Processor, ld loader.Loader, shim sbi.Shim, trapHandler uint64, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{Proc: proc, Loader: ld, Shim: shim, TrapHandler: trapHandler, log: log.WithComponent("syscall")}
}

// Dispatch invokes syscall id for cur with the ABI's three argument
// registers, returning the value to write back to a0. Mirrors
// syscall::syscall's match on id, generalized from a single free
// function to a method so it can reach this hart's Processor.
func (d *Dispatcher) Dispatch(cur *task.Task, h *sched.Handle, id uint64, a0, a1, a2 uint64) int64 {
	switch id {
	case SysClose:
		return d.sysClose(cur, int(a0))
	case SysPipe:
		return d.sysPipe(cur, a0)
	case SysRead:
		return d.sysRead(cur, h, int(a0), a1, int(a2))
	case SysWrite:
		return d.sysWrite(cur, h, int(a0), a1, int(a2))
	case SysExit:
		d.sysExit(cur, h, int32(a0))
		return 0
	case SysYield:
		h.SuspendCurrentAndRunNext()
		return 0
	case SysSetPriority:
		return d.sysSetPriority(cur, int(a0))
	case SysGetTime:
		return d.sysGetTime(cur, a0, a1)
	case SysGetPid:
		return int64(cur.TID)
	case SysMunmap:
		return d.sysMunmap(cur, a0, a1)
	case SysFork:
		return d.sysFork(cur)
	case SysExec:
		return d.sysExec(cur, a0, int(a1))
	case SysMmap:
		return d.sysMmap(cur, a0, a1, a2)
	case SysWaitpid:
		return d.sysWaitpid(cur, int64(int32(a0)), a1)
	case SysSpawn:
		return d.sysSpawn(cur, a0, int(a1))
	case SysMailRead:
		return d.sysMailRead(cur, h, a0, int(a1))
	case SysMailWrite:
		return d.sysMailWrite(cur, h, a0, a1, int(a2))
	case SysInitUserTrap:
		return d.sysInitUserTrap(cur)
	case SysSendMsg:
		return d.sysSendMsg(cur, a0, a1)
	case SysSetTimer:
		return d.sysSetTimer(cur, a0)
	case SysClaimExtInt:
		return d.sysClaimExtInt(cur, uint32(a0))
	case SysSetExtIntEn:
		return d.sysSetExtIntEnable(cur, uint32(a0), a1 != 0)
	case SysVoid:
		return 0
	default:
		d.log.Errorf("unknown syscall id %d from tid %d", id, cur.TID)
		panic("syscall: unknown id")
	}
}
