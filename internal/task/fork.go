package task

import "weak"

// Fork creates a child of parent: a new Task with its own TID, address
// space and mailbox, the parent's priority carried over, a weak link
// back to parent, and a strong link from parent to the child. Mirrors
// TaskControlBlock::fork's bookkeeping (entry-point/memory-set copying
// is the scheduler's job, via internal/mm and internal/loader, once the
// child's TrapContext needs real contents).
func Fork(parent *Task, alloc *Allocator) *Task {
	pInner := parent.Lock()
	priority := pInner.Priority
	fds := pInner.CloneFDTable()
	parent.Unlock()

	child := New(alloc.Alloc())
	cInner := child.Lock()
	cInner.Priority = priority
	cInner.Parent = weak.Make(parent)
	cInner.Fds = fds
	child.Unlock()

	pInner = parent.Lock()
	pInner.Children = append(pInner.Children, child)
	parent.Unlock()

	alloc.AddTask(child)
	return child
}

// Spawn creates a fresh, unrelated-by-memory child task the way
// TaskControlBlock::spawn does: same parent bookkeeping as Fork, but the
// caller (internal/sched, via internal/loader) is expected to load a
// named image into the child rather than copying the parent's.
func Spawn(parent *Task, alloc *Allocator) *Task {
	return Fork(parent, alloc)
}
