package syscall

import (
	"github.com/rvkern/kernel/internal/sched"
	"github.com/rvkern/kernel/internal/task"
)

// sysMailRead drains the oldest queued mail into the buffer at bufVA,
// returning bytes read or ErrGeneric if the mailbox is empty. Mirrors
// sys_mail_read/mail.rs's MailBox::read.
func (d *Dispatcher) sysMailRead(cur *task.Task, h *sched.Handle, bufVA uint64, length int) int64 {
	inner := cur.Lock()
	mbox := inner.Mailbox
	cur.Unlock()

	buf, err := translate(cur, bufVA, length)
	if err != nil {
		return ErrGeneric
	}
	n, err := mbox.Read(buf, h)
	if err != nil {
		return ErrGeneric
	}
	return int64(n)
}

// sysMailWrite opens a socket into destTID's mailbox and writes the
// buffer at bufVA to it, returning bytes written, or ErrGeneric if
// destTID does not exist or its mailbox is already full. Mirrors
// sys_mail_write/mail.rs's MailBox::create_socket + Socket::write.
func (d *Dispatcher) sysMailWrite(cur *task.Task, h *sched.Handle, destTID uint64, bufVA uint64, length int) int64 {
	dest, ok := d.Proc.Allocator().FindTask(destTID)
	if !ok {
		return ErrGeneric
	}

	destInner := dest.Lock()
	if destInner.Mailbox.IsFull() {
		dest.Unlock()
		return ErrGeneric
	}
	sock := destInner.Mailbox.CreateSocket()
	dest.Unlock()

	buf, err := translate(cur, bufVA, length)
	if err != nil {
		return ErrGeneric
	}
	n, err := sock.Write(buf, h)
	if err != nil {
		return ErrGeneric
	}
	return int64(n)
}
