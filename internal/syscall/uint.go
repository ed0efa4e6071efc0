package syscall

import (
	"github.com/rvkern/kernel/internal/config"
	"github.com/rvkern/kernel/internal/task"
)

// sysInitUserTrap registers cur's already-allocated UINT buffer with the
// hart's registry, so device IRQs and cross-task messages can reach it,
// and returns the fixed virtual address a task reads its own trap
// records from. Mirrors sys_init_user_trap_return's registry insertion.
func (d *Dispatcher) sysInitUserTrap(cur *task.Task) int64 {
	inner := cur.Lock()
	uinfo := inner.UserTrap
	cur.Unlock()

	d.Proc.Registry().RegisterTask(cur.TID, uinfo)
	va := uint64(config.UserTrapBuffer)
	return int64(va)
}

// sysSendMsg delivers payload to destTID's trap buffer without going
// through the scheduler, returning 0 or ErrGeneric if destTID is not
// registered or its buffer is full. Mirrors sys_send_msg.
func (d *Dispatcher) sysSendMsg(cur *task.Task, destTID uint64, payload uint64) int64 {
	if err := d.Proc.Registry().DeliverMessage(destTID, cur.TID, payload); err != nil {
		return ErrGeneric
	}
	return 0
}

// sysSetTimer arms cur's virtual timer to fire after us microseconds,
// delivering a timer trap record rather than resuming cur directly.
// Mirrors sys_set_timer.
func (d *Dispatcher) sysSetTimer(cur *task.Task, us uint64) int64 {
	if !d.Proc.Timers().SetVirtualTimerAfterUs(us, cur.TID) {
		return ErrGeneric
	}
	return 0
}

// sysClaimExtInt claims irq for cur, refusing if another task already
// owns it. Mirrors sys_claim_ext_int's UserTrapInfo::claim_device plus
// the registry's owner check.
func (d *Dispatcher) sysClaimExtInt(cur *task.Task, irq uint32) int64 {
	if owner, ok := d.Proc.Registry().ClaimedOwner(irq); ok && owner != cur.TID {
		return ErrGeneric
	}

	inner := cur.Lock()
	uinfo := inner.UserTrap
	cur.Unlock()

	uinfo.ClaimDevice(irq)
	d.Proc.Registry().Claim(irq, cur.TID)
	return 0
}

// sysSetExtIntEnable toggles delivery of irq at cur's user context,
// effective from the next time cur is scheduled. Mirrors
// sys_set_ext_int_enable/UserTrapInfo::set_enabled.
func (d *Dispatcher) sysSetExtIntEnable(cur *task.Task, irq uint32, enabled bool) int64 {
	inner := cur.Lock()
	uinfo := inner.UserTrap
	cur.Unlock()

	uinfo.SetEnabled(irq, enabled)
	return 0
}
