package syscall

import (
	"github.com/rvkern/kernel/internal/ipc"
	"github.com/rvkern/kernel/internal/sbi"
	"github.com/rvkern/kernel/internal/task"
)

// consoleFD is the stdio stand-in backed by the SBI shim's single
// character-output call; the UART driver's register layout and FIFO
// arithmetic are out of scope (spec.md §1), so every byte written goes
// straight through console_putchar and reads always report EOF, since
// the shim's four-call contract has no console input primitive.
type consoleFD struct {
	shim sbi.Shim
}

func (c *consoleFD) Read(buf []byte, _ ipc.Scheduler) (int, error) {
	return 0, nil
}

func (c *consoleFD) Write(buf []byte, _ ipc.Scheduler) (int, error) {
	for _, b := range buf {
		c.shim.ConsolePutchar(b)
	}
	return len(buf), nil
}

// AttachStdio installs fd 0 (stdin), 1 (stdout) and 2 (stderr) on a
// freshly created task, all backed by the same console, mirroring
// TaskControlBlock::new's fd_table seeding with Stdin/Stdout/Stdout.
func AttachStdio(inner *task.Inner, shim sbi.Shim) {
	con := &consoleFD{shim: shim}
	inner.AllocFD(con) // 0: stdin
	inner.AllocFD(con) // 1: stdout
	inner.AllocFD(con) // 2: stderr
}
