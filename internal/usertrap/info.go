package usertrap

import (
	"sync"

	"github.com/rvkern/kernel/internal/plic"
)

// Info is a task's user-trap state: its trap-record buffer and the set
// of devices it has claimed, each with an enabled/disabled flag. It
// mirrors original_source/os/src/trap/usertrap.rs's UserTrapInfo.
type Info struct {
	mu      sync.Mutex
	Buffer  *Buffer
	devices map[uint32]bool
}

// NewInfo builds an Info with a trap buffer of the given capacity.
func NewInfo(capacity int) *Info {
	return &Info{Buffer: NewBuffer(capacity), devices: make(map[uint32]bool)}
}

// ClaimDevice records irq as claimed by this task, enabled by default.
func (i *Info) ClaimDevice(irq uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.devices[irq] = true
}

// SetEnabled toggles whether irq should be live at the task's user
// context the next time EnableUserExtInt runs.
func (i *Info) SetEnabled(irq uint32, enabled bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.devices[irq]; ok {
		i.devices[irq] = enabled
	}
}

// EnableUserExtInt disables every claimed device at every hart's
// supervisor context, then hands it to hart's own user context, run when
// this task is about to start executing on hart. Mirrors
// UserTrapInfo::enable_user_ext_int: with more than one hart, leaving
// the claim mirrored at another hart's S-context while the owner holds
// it at a U-context would let two contexts claim the same IRQ.
func (i *Info) EnableUserExtInt(p *plic.PLIC, hart int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	u := plic.Context(hart, plic.ModeUser)
	for irq, enabled := range i.devices {
		for h := 0; h < p.HartCount(); h++ {
			p.Disable(plic.Context(h, plic.ModeSupervisor), irq)
		}
		if enabled {
			p.Enable(u, irq)
		}
	}
}

// DisableUserExtInt reverses EnableUserExtInt, run when this task is
// preempted or suspended, so the kernel regains the ability to see
// these devices' interrupts at its own supervisor context. Mirrors
// UserTrapInfo::disable_user_ext_int.
func (i *Info) DisableUserExtInt(p *plic.PLIC, hart int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := plic.Context(hart, plic.ModeSupervisor)
	u := plic.Context(hart, plic.ModeUser)
	for irq, enabled := range i.devices {
		p.Disable(u, irq)
		if enabled {
			p.Enable(s, irq)
		}
	}
}

// RemoveUserExtIntMap tears down every device this task has claimed:
// completes any in-flight IRQ at the user context, disables it there,
// re-enables it at the supervisor context so the kernel can claim it
// directly again, and removes the registry's claim so future IRQs route
// to the kernel's own handler. Mirrors
// UserTrapInfo::remove_user_ext_int_map, the one place the S-context is
// re-armed under the auto-disable decision (DESIGN.md Open Question 1).
func (i *Info) RemoveUserExtIntMap(p *plic.PLIC, hart int, reg *Registry) {
	i.mu.Lock()
	irqs := make([]uint32, 0, len(i.devices))
	for irq := range i.devices {
		irqs = append(irqs, irq)
	}
	i.mu.Unlock()

	u := plic.Context(hart, plic.ModeUser)
	s := plic.Context(hart, plic.ModeSupervisor)
	for _, irq := range irqs {
		p.Complete(u, irq)
		p.Disable(u, irq)
		p.Enable(s, irq)
		reg.Remove(irq)
	}
}
