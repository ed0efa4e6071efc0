package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvkern/kernel/internal/plic"
	"github.com/rvkern/kernel/internal/task"
	"github.com/rvkern/kernel/internal/usertrap"
)

func newTestProcessor(t *testing.T) (*Processor, *task.Allocator) {
	t.Helper()
	alloc := task.NewAllocator()
	reg := usertrap.NewRegistry(nil)
	p := New(Config{
		Hart:      0,
		Ready:     task.NewReadyQueue(),
		Allocator: alloc,
		Registry:  reg,
		PLIC:      plic.New(32, plic.ModesPerHart, nil),
	})
	return p, alloc
}

func TestRunSchedulesReadyTaskAndReturnsToIdleOnSuspend(t *testing.T) {
	p, alloc := newTestProcessor(t)

	tid := alloc.Alloc()
	tsk := task.New(tid)
	alloc.AddTask(tsk)
	h := p.handleFor(tsk)
	p.ready.Push(tsk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	ranOnce := make(chan struct{})
	go func() {
		h.WaitScheduled()
		assert.Same(t, tsk, p.Current())
		close(ranOnce)
		h.SuspendCurrentAndRunNext()
	}()

	select {
	case <-ranOnce:
	case <-time.After(time.Second):
		t.Fatal("task was never scheduled")
	}

	// After suspend, the task goes back on the ready queue and gets
	// scheduled again.
	h.WaitScheduled()
	assert.Same(t, tsk, p.Current())
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	p, alloc := newTestProcessor(t)

	initTID := alloc.Alloc()
	initTask := task.New(initTID)
	alloc.AddTask(initTask)

	parentTID := alloc.Alloc()
	parent := task.New(parentTID)
	alloc.AddTask(parent)

	child := task.Fork(parent, alloc)
	h := p.handleFor(parent)

	p.mu.Lock()
	p.current = parent
	p.mu.Unlock()

	go func() {
		h.ExitCurrentAndRunNext(7, initTask)
	}()

	select {
	case <-p.yielded:
	case <-time.After(time.Second):
		t.Fatal("exit never yielded")
	}

	require.True(t, parent.IsZombie())
	pInner := parent.Lock()
	assert.Equal(t, int32(7), pInner.ExitCode)
	assert.Empty(t, pInner.Children)
	parent.Unlock()

	initInner := initTask.Lock()
	assert.Contains(t, initInner.Children, child)
	initTask.Unlock()

	cInner := child.Lock()
	assert.Same(t, initTask, cInner.ParentTask())
	child.Unlock()
}

func TestExitCurrentAndRunNextSerializesOnWaitLock(t *testing.T) {
	p, alloc := newTestProcessor(t)

	tid := alloc.Alloc()
	tsk := task.New(tid)
	alloc.AddTask(tsk)
	h := p.handleFor(tsk)

	p.mu.Lock()
	p.current = tsk
	p.mu.Unlock()

	// Hold WAIT_LOCK as a stand-in for a concurrent waitpid already
	// inspecting this task's parent.
	p.waitLock.Lock()

	done := make(chan struct{})
	go func() {
		h.ExitCurrentAndRunNext(0, nil)
		close(done)
	}()
	go func() { <-p.yielded }()

	select {
	case <-done:
		t.Fatal("ExitCurrentAndRunNext proceeded without waiting for WAIT_LOCK")
	case <-time.After(50 * time.Millisecond):
	}

	p.waitLock.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ExitCurrentAndRunNext never completed after WAIT_LOCK was released")
	}
	assert.True(t, tsk.IsZombie())
}

func TestForkCopiesTrapContextAndRegistersWithRegistry(t *testing.T) {
	p, alloc := newTestProcessor(t)

	parentTID := alloc.Alloc()
	parent := task.New(parentTID)
	alloc.AddTask(parent)

	pInner := parent.Lock()
	pInner.TrapContext.Sepc = 0x1000
	parent.Unlock()

	child, h := p.Fork(parent)
	require.NotNil(t, h)

	cInner := child.Lock()
	assert.Equal(t, uint64(0x1000), cInner.TrapContext.Sepc)
	childInfo := cInner.UserTrap
	child.Unlock()

	assert.True(t, p.registry.IsRegistered(child.TID))

	childInfo.ClaimDevice(5)
	owner, ok := p.registry.ClaimedOwner(5)
	assert.False(t, ok) // ClaimDevice alone doesn't register ownership with the registry
	_ = owner

	p.registry.Claim(5, child.TID)
	owner, ok = p.registry.ClaimedOwner(5)
	require.True(t, ok)
	assert.Equal(t, child.TID, owner)

	assert.Equal(t, 1, p.ready.Len())
}
