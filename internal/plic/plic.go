// Package plic models a RISC-V platform-level interrupt controller: a
// per-IRQ priority, per-context (hart, mode) enable bits and threshold,
// and a claim/complete handshake. It also carries the claim-time handoff
// to a per-task user-trap queue when an IRQ has been claimed by a task,
// mirroring original_source/os/src/plic.rs's handle_external_interrupt.
package plic

import (
	"sort"
	"sync"

	"github.com/rvkern/kernel/internal/logging"
)

// ModesPerHart is the number of PLIC contexts each hart contributes: one
// for machine mode, one for supervisor, one for user.
const ModesPerHart = 3

// Mode selects which of a hart's three PLIC contexts to address.
type Mode int

const (
	ModeMachine Mode = iota
	ModeSupervisor
	ModeUser
)

// Context returns the PLIC context id for a given hart and mode, per
// ctx = hart*3 + mode.
func Context(hart int, mode Mode) int {
	return hart*ModesPerHart + int(mode)
}

// Registry is the collaborator that knows which task has claimed which
// IRQ and can push a trap record to it. internal/usertrap implements
// this; plic depends only on the interface to avoid an import cycle
// between the two packages.
type Registry interface {
	ClaimedOwner(irq uint32) (tid uint64, ok bool)
	Deliver(tid uint64, irq uint32) error
}

// PLIC is a software model of the controller: priorities, per-context
// enable bits and thresholds, and pending/in-service state.
type PLIC struct {
	mu          sync.Mutex
	numIRQs     int
	numContexts int
	priority    []uint32
	threshold   []uint32
	enabled     map[int]map[uint32]bool
	pending     map[uint32]bool
	inService   map[int]uint32
	log         *logging.Logger
}

// New builds a PLIC with numIRQs interrupt sources and numContexts
// (hart, mode) contexts.
func New(numIRQs, numContexts int, log *logging.Logger) *PLIC {
	if log == nil {
		log = logging.Default()
	}
	p := &PLIC{
		numIRQs:     numIRQs,
		numContexts: numContexts,
		priority:    make([]uint32, numIRQs+1),
		threshold:   make([]uint32, numContexts),
		enabled:     make(map[int]map[uint32]bool, numContexts),
		pending:     make(map[uint32]bool),
		inService:   make(map[int]uint32),
		log:         log.WithComponent("plic"),
	}
	for c := 0; c < numContexts; c++ {
		p.enabled[c] = make(map[uint32]bool)
	}
	return p
}

// SetPriority sets the priority of irq; 0 disables it entirely.
func (p *PLIC) SetPriority(irq uint32, priority uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priority[irq] = priority
}

// SetThreshold sets the minimum priority context will accept.
func (p *PLIC) SetThreshold(context int, threshold uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threshold[context] = threshold
}

// Enable allows context to receive irq.
func (p *PLIC) Enable(context int, irq uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled[context][irq] = true
}

// Disable stops context from receiving irq.
func (p *PLIC) Disable(context int, irq uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.enabled[context], irq)
}

// HartCount returns the number of harts this controller was sized for,
// derived from numContexts/ModesPerHart.
func (p *PLIC) HartCount() int {
	return p.numContexts / ModesPerHart
}

// Enabled reports whether context currently has irq enabled.
func (p *PLIC) Enabled(context int, irq uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[context][irq]
}

// Trigger marks irq pending, as a device would.
func (p *PLIC) Trigger(irq uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[irq] = true
}

// Claim returns the highest-priority pending, enabled, above-threshold
// irq for context, marking it in-service and no longer pending. Returns
// (0, false) if nothing is claimable.
func (p *PLIC) Claim(context int) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []uint32
	for irq := range p.pending {
		if !p.enabled[context][irq] {
			continue
		}
		if p.priority[irq] <= p.threshold[context] {
			continue
		}
		candidates = append(candidates, irq)
	}
	if len(candidates) == 0 {
		return 0, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := p.priority[candidates[i]], p.priority[candidates[j]]
		if pi != pj {
			return pi > pj
		}
		return candidates[i] < candidates[j]
	})
	irq := candidates[0]
	delete(p.pending, irq)
	p.inService[context] = irq
	return irq, true
}

// Complete ends the in-service period for irq at context.
func (p *PLIC) Complete(context int, irq uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inService[context] == irq {
		delete(p.inService, context)
	}
}

// HandleExternalInterrupt drains every claimable irq for hart's
// supervisor context, handing it to the claiming task via registry when
// one has claimed it, or invoking fallback (the kernel's own device
// driver) otherwise. Mirrors plic.rs's handle_external_interrupt loop:
// claim, attempt user delivery, disable on success, always complete.
func (p *PLIC) HandleExternalInterrupt(hart int, registry Registry, fallback func(irq uint32)) {
	context := Context(hart, ModeSupervisor)
	for {
		irq, ok := p.Claim(context)
		if !ok {
			return
		}
		delivered := false
		if registry != nil {
			if tid, claimed := registry.ClaimedOwner(irq); claimed {
				p.log.Debug("irq claimed by task", "irq", irq, "tid", tid)
				if err := registry.Deliver(tid, irq); err == nil {
					delivered = true
					p.Disable(context, irq)
				} else {
					p.log.Warn("user-trap delivery failed, passing irq to kernel handler", "irq", irq, "tid", tid, "err", err)
				}
			}
		}
		if !delivered && fallback != nil {
			fallback(irq)
		}
		p.Complete(context, irq)
	}
}
