package trap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvkern/kernel/internal/loader"
	"github.com/rvkern/kernel/internal/plic"
	"github.com/rvkern/kernel/internal/sbi"
	"github.com/rvkern/kernel/internal/sched"
	"github.com/rvkern/kernel/internal/syscall"
	"github.com/rvkern/kernel/internal/task"
	"github.com/rvkern/kernel/internal/timer"
	"github.com/rvkern/kernel/internal/uapi"
	"github.com/rvkern/kernel/internal/usertrap"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *sched.Processor, *task.Allocator) {
	t.Helper()
	alloc := task.NewAllocator()
	reg := usertrap.NewRegistry(nil)
	p := plic.New(32, plic.ModesPerHart, nil)
	now := uint64(0)
	clock := timer.New(sbi.NoopShim{}, 1_000_000, func() uint64 { return now })
	proc := sched.New(sched.Config{
		Hart:      0,
		Ready:     task.NewReadyQueue(),
		Allocator: alloc,
		Registry:  reg,
		PLIC:      p,
		Timers:    clock,
	})
	ld := loader.NewStaticLoader(map[string]loader.Image{
		"init": {Name: "init", EntryPoint: 0x1000, StackTop: 0x2000},
	})
	sysDispatch := syscall.New(proc, ld, sbi.NoopShim{}, 0, nil)
	d := New(0, proc, sysDispatch, reg, p, clock, nil, nil)
	return d, proc, alloc
}

func newScheduledTask(t *testing.T, proc *sched.Processor, alloc *task.Allocator) (*task.Task, *sched.Handle) {
	t.Helper()
	tid := alloc.Alloc()
	tsk := task.New(tid)
	alloc.AddTask(tsk)
	h := proc.HandleFor(tsk)
	return tsk, h
}

func TestDispatchSyscallWritesReturnValueAndAdvancesSepc(t *testing.T) {
	d, proc, alloc := newTestDispatcher(t)
	tsk, h := newScheduledTask(t, proc, alloc)

	inner := tsk.Lock()
	inner.TrapContext.Sepc = 0x8000
	inner.TrapContext.X[17] = syscall.SysGetPid
	tsk.Unlock()

	d.Dispatch(tsk, h, uapi.ScauseUserEnvCall)

	inner = tsk.Lock()
	assert.Equal(t, uint64(0x8004), inner.TrapContext.Sepc)
	assert.Equal(t, tsk.TID, inner.TrapContext.X[10])
	tsk.Unlock()
}

func TestDispatchIllegalInstructionKillsTask(t *testing.T) {
	d, proc, alloc := newTestDispatcher(t)

	initTID := alloc.Alloc()
	initTask := task.New(initTID)
	alloc.AddTask(initTask)

	tsk, h := newScheduledTask(t, proc, alloc)
	proc.Ready().Push(tsk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go proc.Run(ctx)

	done := make(chan struct{})
	go func() {
		h.WaitScheduled()
		d.Dispatch(tsk, h, uapi.ScauseIllegalInstruction)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch never completed")
	}

	require.True(t, tsk.IsZombie())
	inner := tsk.Lock()
	assert.Equal(t, uapi.ExitIllegalInstruction, inner.ExitCode)
	tsk.Unlock()
}

func TestReturnWritesPendingRecordCountOnlyWhenRegisteredAndNonEmpty(t *testing.T) {
	d, proc, alloc := newTestDispatcher(t)
	tsk, _ := newScheduledTask(t, proc, alloc)

	d.Return(tsk)
	inner := tsk.Lock()
	assert.Equal(t, uint64(0), inner.TrapContext.X[scratchRecordCount])
	uinfo := inner.UserTrap
	tsk.Unlock()

	d.Registry.RegisterTask(tsk.TID, uinfo)
	require.NoError(t, uinfo.Buffer.Push(uapi.TrapRecord{Cause: uapi.MessageCause(1)}))

	d.Return(tsk)
	inner = tsk.Lock()
	assert.Equal(t, uint64(1), inner.TrapContext.X[scratchRecordCount])
	tsk.Unlock()
}

func TestHandleTimerDeliversToNonCurrentOwner(t *testing.T) {
	d, proc, alloc := newTestDispatcher(t)
	tsk, _ := newScheduledTask(t, proc, alloc)

	inner := tsk.Lock()
	uinfo := inner.UserTrap
	tsk.Unlock()
	d.Registry.RegisterTask(tsk.TID, uinfo)

	require.True(t, d.Timers.SetVirtualTimer(0, tsk.TID))
	d.HandleTimer(nil)

	rec, ok := uinfo.Buffer.Pop()
	require.True(t, ok)
	assert.Equal(t, uapi.TrapCauseTimer, rec.Cause)
}
