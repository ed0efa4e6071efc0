package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rvkern/kernel/internal/config"
	"github.com/rvkern/kernel/internal/loader"
	"github.com/rvkern/kernel/internal/logging"
	"github.com/rvkern/kernel/internal/plic"
	"github.com/rvkern/kernel/internal/sbi"
	"github.com/rvkern/kernel/internal/sched"
	"github.com/rvkern/kernel/internal/syscall"
	"github.com/rvkern/kernel/internal/task"
	"github.com/rvkern/kernel/internal/timer"
	"github.com/rvkern/kernel/internal/trap"
	"github.com/rvkern/kernel/internal/uapi"
	"github.com/rvkern/kernel/internal/usertrap"
)

// hartTickMs is the kernel's own scheduling-tick period, 10ms at
// internal/timer's ticksPerSec=100, driving the per-hart timer/external
// interrupt simulation loop this model substitutes for a literal
// hardware timer interrupt.
const hartTickMs = 10 * time.Millisecond

// defaultNumIRQs is the number of PLIC interrupt sources modeled,
// matching the handful of device IRQs (UART, virtio) a board like this
// actually wires up.
const defaultNumIRQs = 32

// Config bundles everything Boot needs to bring a kernel up: the board
// profile, the SBI shim, the set of loadable images, and the optional
// observability hooks. Generalizes the teacher's DeviceParams/Options
// split into one struct since there is no separate per-call Options here.
type Config struct {
	// Board selects clock frequency, memory size and hart count. Defaults
	// to QEMUBoard() if zero-valued (HartCount == 0).
	Board Board

	// Shim is the SBI collaborator harts call into for console output,
	// shutdown and timer programming. Defaults to sbi.NoopShim{}.
	Shim sbi.Shim

	// Images resolves named application images for exec/spawn/init.
	// Defaults to a single built-in "init" image if nil.
	Images map[string]loader.Image

	// InitImage names the image loaded as TID 1. Defaults to "init".
	InitImage string

	// UARTISR is the kernel's own device interrupt handler, invoked for
	// any claimed IRQ that has no registered task owner. Optional.
	UARTISR func(irq uint32)

	// CPUAffinity pins hart i to CPUAffinity[i % len(CPUAffinity)] if
	// non-empty, mirroring the teacher's per-queue CPU pinning.
	CPUAffinity []int

	// Logger defaults to logging.Default() if nil.
	Logger *logging.Logger

	// Observer defaults to a MetricsObserver wrapping a fresh Metrics if
	// nil.
	Observer Observer
}

func defaultImages() map[string]loader.Image {
	return map[string]loader.Image{
		"init": {Name: "init", EntryPoint: 0x1000, StackTop: 0x2000},
	}
}

// Kernel is a running instance: the shared scheduling/trap/interrupt
// state plus one Processor and Dispatcher pair per hart. Grounded on the
// teacher's Device, generalized from one block device's queue runners to
// N hart run loops.
type Kernel struct {
	board    Board
	log      *logging.Logger
	metrics  *Metrics
	observer Observer

	plic     *plic.PLIC
	timers   []*timer.Multiplexer
	registry *usertrap.Registry
	alloc    *task.Allocator
	ready    *task.ReadyQueue

	procs []*sched.Processor
	traps []*trap.Dispatcher
	init  *task.Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
}

// Boot builds the PLIC, one timer multiplexer per hart, the ready queue,
// TID table and init task per cfg, then starts one goroutine per hart running that
// hart's scheduling loop plus its timer/external-interrupt simulation
// loop. Grounded on the teacher's CreateAndServe, retargeted from
// block-device queue runners to hart run loops.
func Boot(ctx context.Context, cfg Config) (*Kernel, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	board := cfg.Board
	if board.HartCount == 0 {
		board = QEMUBoard()
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	shim := cfg.Shim
	if shim == nil {
		shim = sbi.NoopShim{}
	}

	images := cfg.Images
	if images == nil {
		images = defaultImages()
	}
	initImage := cfg.InitImage
	if initImage == "" {
		initImage = "init"
	}

	metrics := NewMetrics()
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	plicRouter := plic.New(defaultNumIRQs, board.HartCount*plic.ModesPerHart, log)
	clock := wallClockCycles(board.ClockFreq)
	registry := usertrap.NewRegistry(log)
	alloc := task.NewAllocator()
	ready := task.NewReadyQueue()
	waitLock := &sync.Mutex{}

	k := &Kernel{
		board:    board,
		log:      log.WithComponent("kernel"),
		metrics:  metrics,
		observer: observer,
		plic:     plicRouter,
		registry: registry,
		alloc:    alloc,
		ready:    ready,
	}

	ld := loader.NewStaticLoader(images)

	k.ctx, k.cancel = context.WithCancel(ctx)

	for hart := 0; hart < board.HartCount; hart++ {
		timers := timer.New(shim, board.ClockFreq, clock)
		timers.SetNextTrigger()
		k.timers = append(k.timers, timers)
		proc := sched.New(sched.Config{
			Hart:        hart,
			Ready:       ready,
			Allocator:   alloc,
			Registry:    registry,
			PLIC:        plicRouter,
			Timers:      timers,
			Logger:      log,
			CPUAffinity: cfg.CPUAffinity,
			WaitLock:    waitLock,
		})
		sysDispatch := syscall.New(proc, ld, shim, config.Trampoline, log)
		td := trap.New(hart, proc, sysDispatch, registry, plicRouter, timers, cfg.UARTISR, log)
		k.procs = append(k.procs, proc)
		k.traps = append(k.traps, td)
	}

	initTask, initHandle, err := k.procs[0].InitTask(ld, initImage, config.Trampoline)
	if err != nil {
		k.cancel()
		return nil, WrapError("boot", err)
	}
	k.init = initTask
	k.observer.ObserveSpawn()
	k.procs[0].StartTask(initHandle, defaultTaskBody(k.traps[0]))

	for hart, proc := range k.procs {
		k.wg.Add(2)
		go func(p *sched.Processor) {
			defer k.wg.Done()
			p.Run(k.ctx)
		}(proc)
		go func(hart int, p *sched.Processor, td *trap.Dispatcher) {
			defer k.wg.Done()
			k.hartTickLoop(hart, p, td)
		}(hart, proc, k.traps[hart])
	}

	k.started = true
	k.log.Info("kernel booted", "harts", board.HartCount, "board", board.Name)
	return k, nil
}

// hartTickLoop simulates the per-hart hardware timer interrupt: every
// hartTickMs it pops expired virtual-timer deadlines and drains any
// claimable physical interrupt, exactly the SupervisorTimer/
// SupervisorExternal branches of trap_handler, just driven by a ticker
// instead of actual CSR-triggered traps.
func (k *Kernel) hartTickLoop(hart int, proc *sched.Processor, td *trap.Dispatcher) {
	ticker := time.NewTicker(hartTickMs)
	defer ticker.Stop()
	for {
		select {
		case <-k.ctx.Done():
			return
		case <-ticker.C:
			var h *sched.Handle
			if cur := proc.Current(); cur != nil {
				h = proc.HandleFor(cur)
			}
			td.HandleTimer(h)
			td.HandleExternal()
			k.observer.ObserveTimerTick()
		}
	}
}

// defaultTaskBody is the driving goroutine StartTask needs behind every
// task this package creates directly: without one, runNext hands the
// hart to a task with nobody on the other end of the rendezvous, and
// the hart blocks on <-p.yielded forever. It waits for its first
// scheduling quantum, then repeatedly issues a cooperative yield
// through the real trap/syscall path (td.Dispatch with sys_yield),
// mirroring the WaitScheduled-once-then-Dispatch pattern
// internal/trap's own tests use. It deliberately does not call
// WaitScheduled again itself: SuspendCurrentAndRunNext already blocks
// until the task's next quantum before returning, so a second explicit
// wait here would consume a scheduling signal nothing sends twice.
func defaultTaskBody(td *trap.Dispatcher) func(*sched.Handle) {
	return func(h *sched.Handle) {
		h.WaitScheduled()
		for {
			t := h.Task()
			inner := t.Lock()
			inner.TrapContext.X[17] = syscall.SysYield
			t.Unlock()
			td.Dispatch(t, h, uapi.ScauseUserEnvCall)
		}
	}
}

// wallClockCycles stands in for the `time` CSR a real hart would read:
// a monotonically increasing cycle count derived from wall-clock time
// scaled by the board's clock frequency.
func wallClockCycles(clockFreq uint64) func() uint64 {
	start := time.Now()
	return func() uint64 {
		return uint64(time.Since(start).Seconds() * float64(clockFreq))
	}
}

// HartCount returns the number of harts this kernel was booted with.
func (k *Kernel) HartCount() int {
	return len(k.procs)
}

// IsRunning reports whether the kernel has been booted and not yet shut
// down.
func (k *Kernel) IsRunning() bool {
	if k == nil {
		return false
	}
	select {
	case <-k.ctx.Done():
		return false
	default:
		return k.started
	}
}

// InitTID returns the TID of the init task reparenting targets orphaned
// children onto.
func (k *Kernel) InitTID() uint64 {
	return k.init.TID
}

// Metrics returns the kernel's metrics instance.
func (k *Kernel) Metrics() *Metrics {
	return k.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the kernel's
// metrics.
func (k *Kernel) MetricsSnapshot() MetricsSnapshot {
	if k == nil || k.metrics == nil {
		return MetricsSnapshot{}
	}
	return k.metrics.Snapshot()
}

// Registry exposes the UINT device-claim registry, e.g. for an embedding
// program that wants to inspect claimed IRQs.
func (k *Kernel) Registry() *usertrap.Registry {
	return k.registry
}

// Shutdown cancels every hart's run loop and timer-tick loop and waits
// for all of them to park in their idle context before returning.
// Grounded on the teacher's StopAndDelete, retargeted from tearing down
// a block device's queue runners to tearing down hart goroutines.
func Shutdown(ctx context.Context, k *Kernel) error {
	if k == nil {
		return NewError("shutdown", ErrCodeBootFailure, "nil kernel")
	}
	k.cancel()
	k.metrics.Stop()

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		k.started = false
		k.log.Info("kernel shut down")
		return nil
	case <-ctx.Done():
		return WrapError("shutdown", fmt.Errorf("timed out waiting for %d harts to park: %w", len(k.procs), ctx.Err()))
	}
}
