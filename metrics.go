package kernel

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the syscall-dispatch latency histogram buckets
// in nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks scheduling and dispatch statistics for a running kernel.
type Metrics struct {
	// Syscall counters
	SyscallsDispatched atomic.Uint64
	SyscallErrors      atomic.Uint64

	// Scheduling counters
	TaskSwitches atomic.Uint64
	TasksSpawned atomic.Uint64
	TasksExited  atomic.Uint64

	// UINT delivery counters
	TrapRecordsDelivered atomic.Uint64
	TrapRecordsDropped   atomic.Uint64

	// Physical-interrupt counters
	ExternalInterruptsClaimed   atomic.Uint64
	ExternalInterruptsUnclaimed atomic.Uint64

	// Timer counters
	TimerTicksHandled atomic.Uint64

	// Syscall-dispatch latency
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance, stamping the start time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSyscall records one syscall dispatch and its latency.
func (m *Metrics) RecordSyscall(latencyNs uint64, success bool) {
	m.SyscallsDispatched.Add(1)
	if !success {
		m.SyscallErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSwitch records one context switch between tasks.
func (m *Metrics) RecordSwitch() {
	m.TaskSwitches.Add(1)
}

// RecordSpawn records one task creation (fork, spawn, or init).
func (m *Metrics) RecordSpawn() {
	m.TasksSpawned.Add(1)
}

// RecordExit records one task exit.
func (m *Metrics) RecordExit() {
	m.TasksExited.Add(1)
}

// RecordTrapRecord records one UINT trap-record push, delivered or
// dropped because the owning task's buffer was full.
func (m *Metrics) RecordTrapRecord(delivered bool) {
	if delivered {
		m.TrapRecordsDelivered.Add(1)
	} else {
		m.TrapRecordsDropped.Add(1)
	}
}

// RecordExternalInterrupt records one claimed IRQ, whose source is either
// a registered task or the kernel's own device driver when unclaimed.
func (m *Metrics) RecordExternalInterrupt(claimed bool) {
	if claimed {
		m.ExternalInterruptsClaimed.Add(1)
	} else {
		m.ExternalInterruptsUnclaimed.Add(1)
	}
}

// RecordTimerTick records one handled hart timer tick.
func (m *Metrics) RecordTimerTick() {
	m.TimerTicksHandled.Add(1)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the kernel as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	SyscallsDispatched uint64
	SyscallErrors      uint64

	TaskSwitches uint64
	TasksSpawned uint64
	TasksExited  uint64

	TrapRecordsDelivered uint64
	TrapRecordsDropped   uint64

	ExternalInterruptsClaimed   uint64
	ExternalInterruptsUnclaimed uint64

	TimerTicksHandled uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		SyscallsDispatched:          m.SyscallsDispatched.Load(),
		SyscallErrors:               m.SyscallErrors.Load(),
		TaskSwitches:                m.TaskSwitches.Load(),
		TasksSpawned:                m.TasksSpawned.Load(),
		TasksExited:                 m.TasksExited.Load(),
		TrapRecordsDelivered:        m.TrapRecordsDelivered.Load(),
		TrapRecordsDropped:          m.TrapRecordsDropped.Load(),
		ExternalInterruptsClaimed:   m.ExternalInterruptsClaimed.Load(),
		ExternalInterruptsUnclaimed: m.ExternalInterruptsUnclaimed.Load(),
		TimerTicksHandled:           m.TimerTicksHandled.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer allows pluggable metrics collection. Boot reports the init
// task's spawn and every hart tick through it; the scheduler, trap and
// syscall packages do not call it.
type Observer interface {
	ObserveSyscall(latencyNs uint64, success bool)
	ObserveSwitch()
	ObserveSpawn()
	ObserveExit()
	ObserveTrapRecord(delivered bool)
	ObserveExternalInterrupt(claimed bool)
	ObserveTimerTick()
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSyscall(uint64, bool)   {}
func (NoOpObserver) ObserveSwitch()                {}
func (NoOpObserver) ObserveSpawn()                 {}
func (NoOpObserver) ObserveExit()                  {}
func (NoOpObserver) ObserveTrapRecord(bool)         {}
func (NoOpObserver) ObserveExternalInterrupt(bool)  {}
func (NoOpObserver) ObserveTimerTick()              {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSyscall(latencyNs uint64, success bool) {
	o.metrics.RecordSyscall(latencyNs, success)
}

func (o *MetricsObserver) ObserveSwitch() {
	o.metrics.RecordSwitch()
}

func (o *MetricsObserver) ObserveSpawn() {
	o.metrics.RecordSpawn()
}

func (o *MetricsObserver) ObserveExit() {
	o.metrics.RecordExit()
}

func (o *MetricsObserver) ObserveTrapRecord(delivered bool) {
	o.metrics.RecordTrapRecord(delivered)
}

func (o *MetricsObserver) ObserveExternalInterrupt(claimed bool) {
	o.metrics.RecordExternalInterrupt(claimed)
}

func (o *MetricsObserver) ObserveTimerTick() {
	o.metrics.RecordTimerTick()
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*NoOpObserver)(nil)
)
