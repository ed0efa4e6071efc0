package syscall

import (
	"github.com/rvkern/kernel/internal/ipc"
	"github.com/rvkern/kernel/internal/sched"
	"github.com/rvkern/kernel/internal/task"
)

// sysClose drops fd's slot, returning 0 or ErrGeneric if it was not
// open.
func (d *Dispatcher) sysClose(cur *task.Task, fd int) int64 {
	inner := cur.Lock()
	defer cur.Unlock()
	if !inner.CloseFD(fd) {
		return ErrGeneric
	}
	return 0
}

// sysPipe allocates a new pipe, installs its read end at the lowest
// free fd and its write end at the next, and writes both fd numbers to
// the two words at fdVA. Mirrors sys_pipe.
func (d *Dispatcher) sysPipe(cur *task.Task, fdVA uint64) int64 {
	r, w := ipc.NewPipe(pipeCapacity)

	inner := cur.Lock()
	rfd := inner.AllocFD(r)
	wfd := inner.AllocFD(w)
	cur.Unlock()

	buf, err := translate(cur, fdVA, 8)
	if err != nil {
		return ErrGeneric
	}
	putU32(buf[0:4], uint32(rfd))
	putU32(buf[4:8], uint32(wfd))
	return 0
}

const pipeCapacity = 4096

// sysRead reads up to length bytes from fd into the buffer at bufVA,
// suspending the caller while the fd has a writer but no data ready.
// Mirrors sys_read.
func (d *Dispatcher) sysRead(cur *task.Task, h *sched.Handle, fd int, bufVA uint64, length int) int64 {
	inner := cur.Lock()
	f, ok := inner.GetFD(fd)
	cur.Unlock()
	if !ok {
		return ErrGeneric
	}

	buf, err := translate(cur, bufVA, length)
	if err != nil {
		return ErrGeneric
	}
	n, err := f.Read(buf, h)
	if err != nil {
		return ErrGeneric
	}
	return int64(n)
}

// sysWrite writes up to length bytes from bufVA to fd, suspending the
// caller while fd is momentarily full. Mirrors sys_write.
func (d *Dispatcher) sysWrite(cur *task.Task, h *sched.Handle, fd int, bufVA uint64, length int) int64 {
	inner := cur.Lock()
	f, ok := inner.GetFD(fd)
	cur.Unlock()
	if !ok {
		return ErrGeneric
	}

	buf, err := translate(cur, bufVA, length)
	if err != nil {
		return ErrGeneric
	}
	n, err := f.Write(buf, h)
	if err != nil {
		return ErrGeneric
	}
	return int64(n)
}
