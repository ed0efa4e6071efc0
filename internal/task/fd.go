package task

import "github.com/rvkern/kernel/internal/ipc"

// FD is a task's file-descriptor-table entry: stdio streams, pipe ends,
// and anything else a task can read() or write() through fd numbers.
// Pipe ends from internal/ipc already satisfy this signature directly.
type FD interface {
	Read(buf []byte, sched ipc.Scheduler) (int, error)
	Write(buf []byte, sched ipc.Scheduler) (int, error)
}

// AllocFD installs f at the lowest free slot (reusing a closed slot
// before growing the table), returning its fd number.
func (i *Inner) AllocFD(f FD) int {
	for idx, existing := range i.Fds {
		if existing == nil {
			i.Fds[idx] = f
			return idx
		}
	}
	i.Fds = append(i.Fds, f)
	return len(i.Fds) - 1
}

// CloseFD clears fd's slot, reporting whether it was open.
func (i *Inner) CloseFD(fd int) bool {
	if fd < 0 || fd >= len(i.Fds) || i.Fds[fd] == nil {
		return false
	}
	i.Fds[fd] = nil
	return true
}

// GetFD returns the FD installed at fd, if any.
func (i *Inner) GetFD(fd int) (FD, bool) {
	if fd < 0 || fd >= len(i.Fds) || i.Fds[fd] == nil {
		return nil, false
	}
	return i.Fds[fd], true
}

// CloneFDTable returns a shallow copy of i.Fds — same FD objects, new
// slice — for fork to share open files between parent and child the way
// the original source's fd_table clone does (Arc::clone per entry).
func (i *Inner) CloneFDTable() []FD {
	cloned := make([]FD, len(i.Fds))
	copy(cloned, i.Fds)
	return cloned
}
