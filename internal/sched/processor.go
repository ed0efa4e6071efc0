// Package sched implements the per-hart run loop that turns the task and
// timer bookkeeping in internal/task into actual scheduling: one
// Processor per hart, fetching from the shared ready queue, handing
// control to a task, and taking it back on suspend or exit. Grounded on
// original_source/os/src/task/processor.rs's Processor/run_next/run, and
// on the teacher's internal/queue/runner.go ioLoop for the per-hart
// goroutine pinning pattern.
package sched

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rvkern/kernel/internal/logging"
	"github.com/rvkern/kernel/internal/plic"
	"github.com/rvkern/kernel/internal/task"
	"github.com/rvkern/kernel/internal/timer"
	"github.com/rvkern/kernel/internal/usertrap"
)

// Processor owns one hart's slice of scheduler state: which task (if
// any) is current, the channel used to hand control back from a task's
// own goroutine, and the hart-scoped collaborators (PLIC context,
// virtual timer map) a running task needs touched on every switch.
// Mirrors processor.rs's Processor plus the CPU_NUM-sized PROCESSORS
// array, one instance per hart instead of a global array index.
type Processor struct {
	Hart int

	ready    *task.ReadyQueue
	alloc    *task.Allocator
	registry *usertrap.Registry
	plic     *plic.PLIC
	timers   *timer.Multiplexer
	log      *logging.Logger

	cpuAffinity []int

	mu      sync.Mutex
	current *task.Task
	handles map[uint64]*Handle

	// waitLock is the kernel-wide WAIT_LOCK: the same *sync.Mutex
	// instance shared by every hart's Processor (set from Config,
	// constructed once at boot), taken before any TCB lock on the
	// exit path and by waitpid, to serialize wait/exit races.
	waitLock *sync.Mutex

	yielded chan struct{}
}

// Config bundles a Processor's hart-scoped collaborators.
type Config struct {
	Hart        int
	Ready       *task.ReadyQueue
	Allocator   *task.Allocator
	Registry    *usertrap.Registry
	PLIC        *plic.PLIC
	Timers      *timer.Multiplexer
	Logger      *logging.Logger
	CPUAffinity []int

	// WaitLock is the kernel-wide WAIT_LOCK shared across every hart's
	// Processor. Callers should construct exactly one *sync.Mutex and
	// pass the same pointer into every hart's Config; if nil, New
	// allocates one (useful for single-Processor tests), but a real
	// multi-hart boot must share a single instance.
	WaitLock *sync.Mutex
}

// New builds a Processor for one hart.
func New(cfg Config) *Processor {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	waitLock := cfg.WaitLock
	if waitLock == nil {
		waitLock = &sync.Mutex{}
	}
	return &Processor{
		Hart:        cfg.Hart,
		ready:       cfg.Ready,
		alloc:       cfg.Allocator,
		registry:    cfg.Registry,
		plic:        cfg.PLIC,
		timers:      cfg.Timers,
		log:         log.WithComponent("sched"),
		cpuAffinity: cfg.CPUAffinity,
		handles:     make(map[uint64]*Handle),
		waitLock:    waitLock,
		yielded:     make(chan struct{}),
	}
}

// Current returns the task presently scheduled on this hart, or nil if
// the hart is idle.
func (p *Processor) Current() *task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// HandleFor returns the Handle for t, creating one if this hart has not
// scheduled t before. Exported for internal/syscall, which needs a
// task's Handle to call SuspendCurrentAndRunNext/ExitCurrentAndRunNext
// from inside syscall dispatch.
func (p *Processor) HandleFor(t *task.Task) *Handle { return p.handleFor(t) }

// Registry returns the hart's UINT device-claim registry.
func (p *Processor) Registry() *usertrap.Registry { return p.registry }

// PLICRouter returns the hart's physical-interrupt router.
func (p *Processor) PLICRouter() *plic.PLIC { return p.plic }

// Timers returns the hart's virtual-timer multiplexer.
func (p *Processor) Timers() *timer.Multiplexer { return p.timers }

// Ready returns the shared ready queue every hart's Processor consumes.
func (p *Processor) Ready() *task.ReadyQueue { return p.ready }

// Allocator returns the shared TID allocator.
func (p *Processor) Allocator() *task.Allocator { return p.alloc }

// WaitLock returns the kernel-wide WAIT_LOCK shared by every hart's
// Processor. Exported for internal/syscall, whose sysWaitpid must take
// it before any TCB lock, matching ExitCurrentAndRunNext's ordering.
func (p *Processor) WaitLock() *sync.Mutex { return p.waitLock }

// StartTask launches body on its own goroutine bound to h: the driving
// goroutine a newly created task needs so that the run loop has
// something to hand the hart to and something to receive
// SuspendCurrentAndRunNext/ExitCurrentAndRunNext calls from. Executing
// a task's actual instructions is out of this repo's scope (it models
// kernel bookkeeping, not an ELF interpreter); body stands in for
// whatever the loaded image would do, the same way internal/loader
// models an image as just an entry point and stack rather than real
// machine code.
func (p *Processor) StartTask(h *Handle, body func(*Handle)) {
	go body(h)
}

// handleFor returns the Handle for t, creating one if this is the first
// time t has been scheduled on this Processor.
func (p *Processor) handleFor(t *task.Task) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[t.TID]
	if !ok {
		h = &Handle{proc: p, task: t, scheduled: make(chan struct{}, 1)}
		p.handles[t.TID] = h
	}
	return h
}

// Run is the hart's idle context: pin to an OS thread (ublk-style
// affinity), then loop fetching ready tasks and switching into them
// until ctx is done. Mirrors run_tasks/Processor::run.
func (p *Processor) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if len(p.cpuAffinity) > 0 {
		cpu := p.cpuAffinity[p.Hart%len(p.cpuAffinity)]
		var mask unix.CPUSet
		mask.Set(cpu)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			p.log.Warnf("hart %d: failed to set CPU affinity to %d: %v", p.Hart, cpu, err)
		} else {
			p.log.Debugf("hart %d: pinned to CPU %d", p.Hart, cpu)
		}
	}

	for {
		t, ok := p.ready.PopWait(ctx)
		if !ok {
			return
		}
		p.runNext(t)
	}
}

// runNext switches the hart into t: marks it Running, hands its claimed
// UINT devices from S-context to U-context, records it as current, then
// blocks until t's own goroutine yields control back via suspend or
// exit. Mirrors run_next's acquire-lock / enable_user_ext_int / __switch
// sequence.
func (p *Processor) runNext(t *task.Task) {
	h := p.handleFor(t)

	inner := t.Lock()
	inner.Status = task.StatusRunning
	uinfo := inner.UserTrap
	t.Unlock()

	if uinfo != nil {
		uinfo.EnableUserExtInt(p.plic, p.Hart)
	}

	p.mu.Lock()
	p.current = t
	p.mu.Unlock()

	h.scheduled <- struct{}{}
	<-p.yielded

	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}
