// Package timer multiplexes the single physical supervisor timer
// interrupt each hart owns onto many virtual deadlines, one per TID
// that asked for a wakeup, mirroring
// original_source/os/src/timer.rs's TIMER_MAP. TID 0 is reserved for the
// kernel's own scheduling tick (set_next_trigger's pid 0).
package timer

import (
	"container/heap"
	"sync"

	"github.com/rvkern/kernel/internal/config"
	"github.com/rvkern/kernel/internal/sbi"
)

// KernelTickTID is the virtual-timer owner id used for the kernel's own
// recurring scheduling tick.
const KernelTickTID uint64 = 0

const (
	ticksPerSec = 100
	usecPerSec  = 1_000_000
	msecPerSec  = 1_000
)

type deadline struct {
	at  uint64
	tid uint64
}

// deadlineHeap is a min-heap of deadlines ordered by time, giving the
// ordered-map behavior TIMER_MAP relies on (first_key_value) without
// needing a full balanced tree for what is, in practice, a small set of
// outstanding timers per hart.
type deadlineHeap []deadline

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].at < h[j].at }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x interface{}) { *h = append(*h, x.(deadline)) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Multiplexer owns one hart's virtual timer map and the SBI shim used to
// reprogram the physical timer.
type Multiplexer struct {
	mu    sync.Mutex
	heap  deadlineHeap
	shim  sbi.Shim
	clock uint64
	now   func() uint64
}

// New builds a multiplexer for one hart, given the board's clock
// frequency and a monotonic cycle-counter source (the real kernel reads
// the `time` CSR; tests supply a fake).
func New(shim sbi.Shim, clockFreq uint64, now func() uint64) *Multiplexer {
	return &Multiplexer{shim: shim, clock: clockFreq, now: now}
}

// SetVirtualTimer schedules a wakeup for tid at the given absolute
// cycle count, reprogramming the physical timer only if this is now the
// soonest outstanding deadline. Mirrors set_virtual_timer's "time travel
// unallowed" guard and first_key_value reprogram-if-soonest logic.
func (m *Multiplexer) SetVirtualTimer(at uint64, tid uint64) bool {
	if at < m.now() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wasSoonest := m.heap.Len() == 0 || at < m.heap[0].at
	heap.Push(&m.heap, deadline{at: at, tid: tid})
	if wasSoonest {
		m.shim.SetTimer(at)
	}
	return true
}

// SetVirtualTimerAfterUs schedules a wakeup for tid us microseconds from
// now, converting through the board clock frequency the same way
// GetTimeUs does in reverse. Backs the set_timer(us) syscall.
func (m *Multiplexer) SetVirtualTimerAfterUs(us uint64, tid uint64) bool {
	at := m.now() + us*m.clock/usecPerSec
	return m.SetVirtualTimer(at, tid)
}

// SetNextTrigger schedules the kernel's own next scheduling tick,
// ticksPerSec after now. Mirrors set_next_trigger.
func (m *Multiplexer) SetNextTrigger() {
	m.SetVirtualTimer(m.now()+m.clock/ticksPerSec, KernelTickTID)
}

// Expired pops and returns every TID whose deadline has passed, then
// reprograms the physical timer for whatever remains. Called from the
// trap dispatcher's supervisor-timer branch.
func (m *Multiplexer) Expired() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var fired []uint64
	for m.heap.Len() > 0 && m.heap[0].at <= now {
		d := heap.Pop(&m.heap).(deadline)
		fired = append(fired, d.tid)
	}
	if m.heap.Len() > 0 {
		m.shim.SetTimer(m.heap[0].at)
	}
	return fired
}

// GetTimeMs returns the current time in milliseconds, mirroring
// get_time_ms.
func (m *Multiplexer) GetTimeMs() uint64 {
	return m.now() / (m.clock / msecPerSec)
}

// GetTimeUs returns the current time in microseconds, mirroring
// get_time_us.
func (m *Multiplexer) GetTimeUs() uint64 {
	return m.now() * usecPerSec / m.clock
}

// TimeVal is the sec/usec pair returned by the get_time syscall.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// GetTime fills a TimeVal from the current cycle count, mirroring
// get_time's *ts[0]/*ts[1] split.
func (m *Multiplexer) GetTime() TimeVal {
	t := m.now()
	return TimeVal{Sec: t / m.clock, Usec: (t % m.clock) * usecPerSec / m.clock}
}

// BoardClockFreq is a convenience default for callers that only need a
// Multiplexer against the default board profile.
func BoardClockFreq() uint64 {
	return config.QEMUBoard().ClockFreq
}
