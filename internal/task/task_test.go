package task

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskDefaults(t *testing.T) {
	tsk := New(1)
	inner := tsk.Lock()
	defer tsk.Unlock()

	assert.Equal(t, StatusReady, inner.Status)
	assert.NotNil(t, inner.AddrSpace)
	assert.NotNil(t, inner.UserTrap)
	assert.NotNil(t, inner.Mailbox)
}

func TestAllocatorMonotonicNoReuse(t *testing.T) {
	a := NewAllocator()
	first := a.Alloc()
	second := a.Alloc()
	assert.Equal(t, first+1, second)
}

func TestAllocatorFindTask(t *testing.T) {
	a := NewAllocator()
	tid := a.Alloc()
	tsk := New(tid)
	a.AddTask(tsk)

	found, ok := a.FindTask(tid)
	require.True(t, ok)
	assert.Same(t, tsk, found)
}

func TestAllocatorFindTaskMissing(t *testing.T) {
	a := NewAllocator()
	_, ok := a.FindTask(999)
	assert.False(t, ok)
}

func TestAllocatorFindTaskAfterCollection(t *testing.T) {
	a := NewAllocator()
	tid := func() uint64 {
		id := a.Alloc()
		tsk := New(id)
		a.AddTask(tsk)
		return id
	}()
	runtime.GC()

	_, ok := a.FindTask(tid)
	assert.False(t, ok)
}

func TestAllocatorFindTaskSkipsZombie(t *testing.T) {
	a := NewAllocator()
	tid := a.Alloc()
	tsk := New(tid)
	a.AddTask(tsk)

	inner := tsk.Lock()
	inner.Status = StatusZombie
	tsk.Unlock()

	_, ok := a.FindTask(tid)
	assert.False(t, ok)
}

func TestReadyQueueFIFO(t *testing.T) {
	q := NewReadyQueue()
	a := New(1)
	b := New(2)
	q.Push(a)
	q.Push(b)

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Same(t, a, got)

	got, ok = q.Pop()
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestSetPriorityValidation(t *testing.T) {
	tsk := New(1)
	assert.Error(t, tsk.SetPriority(1))
	assert.NoError(t, tsk.SetPriority(5))
	inner := tsk.Lock()
	assert.Equal(t, 5, inner.Priority)
	tsk.Unlock()
}

func TestForkEstablishesParentChildWeakLink(t *testing.T) {
	alloc := NewAllocator()
	parentTID := alloc.Alloc()
	parent := New(parentTID)
	alloc.AddTask(parent)

	child := Fork(parent, alloc)

	pInner := parent.Lock()
	assert.Len(t, pInner.Children, 1)
	assert.Same(t, child, pInner.Children[0])
	parent.Unlock()

	cInner := child.Lock()
	assert.Same(t, parent, cInner.ParentTask())
	child.Unlock()

	found, ok := alloc.FindTask(child.TID)
	require.True(t, ok)
	assert.Same(t, child, found)
}
