package sched

import (
	"fmt"

	"github.com/rvkern/kernel/internal/loader"
	"github.com/rvkern/kernel/internal/task"
	"github.com/rvkern/kernel/internal/uapi"
)

// Fork creates a child of cur that shares cur's current trap context
// (the child resumes exactly where the parent was when it forked) and
// registers it with the ready queue and UINT registry. The caller (the
// syscall layer) is responsible for zeroing the child's return-value
// register so it observes fork() returning 0; this mirrors sys_fork's
// split of responsibility from TaskControlBlock::fork.
func (p *Processor) Fork(cur *task.Task) (*task.Task, *Handle) {
	child := task.Fork(cur, p.alloc)

	curInner := cur.Lock()
	trapCx := curInner.TrapContext
	cur.Unlock()

	childInner := child.Lock()
	childInner.TrapContext = trapCx
	uinfo := childInner.UserTrap
	child.Unlock()

	p.registry.RegisterTask(child.TID, uinfo)
	h := p.handleFor(child)
	p.ready.Push(child)
	return child, h
}

// InitTask constructs a fresh, parentless task from a loaded image and
// enqueues it, the same way TaskControlBlock::new builds INITPROC
// directly from the init image's ELF data rather than forking an
// existing task. Used once at boot to create the first task in the
// system.
func (p *Processor) InitTask(ld loader.Loader, name string, trapHandler uint64) (*task.Task, *Handle, error) {
	img, err := ld.Load(name)
	if err != nil {
		return nil, nil, fmt.Errorf("sched: init task %q: %w", name, err)
	}

	tid := p.alloc.Alloc()
	t := task.New(tid)
	p.alloc.AddTask(t)

	inner := t.Lock()
	inner.TrapContext = appInitContext(img, trapHandler)
	uinfo := inner.UserTrap
	t.Unlock()

	p.registry.RegisterTask(t.TID, uinfo)
	h := p.handleFor(t)
	p.ready.Push(t)
	return t, h, nil
}

// Spawn creates a child of cur with a fresh image loaded via ld rather
// than a copy of cur's memory, mirroring TaskControlBlock::spawn's
// from_elf path generalized to loader.Loader. Returns an error if name
// is not resolvable.
func (p *Processor) Spawn(cur *task.Task, ld loader.Loader, name string, trapHandler uint64) (*task.Task, *Handle, error) {
	img, err := ld.Load(name)
	if err != nil {
		return nil, nil, fmt.Errorf("sched: spawn %q: %w", name, err)
	}

	child := task.Fork(cur, p.alloc)
	childInner := child.Lock()
	childInner.TrapContext = appInitContext(img, trapHandler)
	uinfo := childInner.UserTrap
	child.Unlock()

	p.registry.RegisterTask(child.TID, uinfo)
	h := p.handleFor(child)
	p.ready.Push(child)
	return child, h, nil
}

// Exec replaces t's image in place with img, resetting its trap context
// to img's entry point and stack, exactly as TaskControlBlock::exec
// overwrites the calling task's memory set rather than creating a new
// task.
func (p *Processor) Exec(t *task.Task, ld loader.Loader, name string, trapHandler uint64) error {
	img, err := ld.Load(name)
	if err != nil {
		return fmt.Errorf("sched: exec %q: %w", name, err)
	}

	inner := t.Lock()
	inner.TrapContext = appInitContext(img, trapHandler)
	inner.AddrSpace.Map(img.StackTop)
	t.Unlock()
	return nil
}

// appInitContext builds the trap context an image starts execution
// with: user stack pointer in x[2] (the RISC-V ABI stack-pointer
// register), program counter at the entry point, and the kernel
// re-entry coordinates trap_return needs to resume this task next time
// it traps. Mirrors TrapContext::app_init_context.
func appInitContext(img loader.Image, trapHandler uint64) uapi.TrapContext {
	var cx uapi.TrapContext
	cx.X[2] = img.StackTop
	cx.Sepc = img.EntryPoint
	cx.TrapHandler = trapHandler
	return cx
}
