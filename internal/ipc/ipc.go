package ipc

import (
	"errors"
	"sync"
)

// ErrWrongDirection is returned by a pipe or stdio end's unsupported
// half: writing to a read-only end, or reading from a write-only one.
// Mirrors fs::stdio's Stdin::write/Stdout::read panics, made into an
// ordinary error instead of a panic since a task's misuse of its own fd
// table should fail its syscall, not crash the kernel.
var ErrWrongDirection = errors.New("ipc: wrong direction for this end")

// ErrNoMail is returned by Mailbox.Read when no mail is queued in the
// mailbox, mirroring mail.rs's read() Err(-1) "empty mailbox"
// case.
var ErrNoMail = errors.New("ipc: mailbox has no pending mail")

// MailboxCapacity is the default maximum number of distinct mails a
// mailbox will queue before CreateSocket should be refused by the
// caller, matching mail.rs's MAILBOX_SIZE.
const MailboxCapacity = 16

// MailBufferSize is the default per-mail ring capacity, matching
// mail.rs's MAIL_BUFFER_SIZE.
const MailBufferSize = 256

// Mailbox is a task's read end for an unbounded sequence of short
// messages, each delivered over its own bounded ring buffer. A new
// Socket (write end) is created per sender via CreateSocket. mu guards
// the mails slice itself (append, length, pop-front); it mirrors
// mail.rs's Mutex<MailBoxInner> and is never held across a suspend —
// CreateSocket can run from another hart while a reader blocks on a
// half-written mail.
type Mailbox struct {
	capacity int
	bufSize  int

	mu    sync.Mutex
	mails []*RingBuffer
}

// NewMailbox builds an empty mailbox with the given per-socket queue and
// buffer sizing.
func NewMailbox(capacity, bufSize int) *Mailbox {
	return &Mailbox{capacity: capacity, bufSize: bufSize}
}

// CreateSocket allocates a new ring buffer and returns the write end for
// it, queuing the ring for this mailbox to read.
func (m *Mailbox) CreateSocket() *Socket {
	buf := NewRingBuffer(m.bufSize)
	sock := &Socket{mail: buf, writable: true}
	buf.SetWriteEnd(sock)
	m.mu.Lock()
	m.mails = append(m.mails, buf)
	m.mu.Unlock()
	return sock
}

// IsEmpty reports whether no mail is currently queued.
func (m *Mailbox) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mails) == 0
}

// IsFull reports whether the mailbox has reached its queued-mail limit;
// callers should refuse new CreateSocket calls once this is true.
func (m *Mailbox) IsFull() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mails) >= m.capacity
}

// popFront removes the oldest queued mail, if any is still there. A
// no-op if the queue is already empty, which can happen if two readers
// raced to drain the same mailbox.
func (m *Mailbox) popFront() {
	m.mu.Lock()
	if len(m.mails) > 0 {
		m.mails = m.mails[1:]
	}
	m.mu.Unlock()
}

// Read copies bytes from the oldest queued mail into buf, suspending the
// current task only while that mail is empty and its write end is still
// open. As soon as it has copied the bytes buffered at that moment (or
// filled buf), it pops the mail and returns the number of bytes read,
// even if the write end is still open; bytes written to that mail after
// the pop are not read. An empty mail whose write end has closed is
// popped with a count of 0. The mailbox lock is
// only held to snapshot the head of the queue and to pop it, never
// across the suspend loop, so a concurrent CreateSocket never blocks
// behind a stalled reader.
func (m *Mailbox) Read(buf []byte, sched Scheduler) (int, error) {
	m.mu.Lock()
	if len(m.mails) == 0 {
		m.mu.Unlock()
		return 0, ErrNoMail
	}
	mail := m.mails[0]
	m.mu.Unlock()

	read := 0
	for {
		avail := mail.AvailableRead()
		if avail == 0 {
			if mail.AllWriteEndsClosed() {
				m.popFront()
				return read, nil
			}
			sched.SuspendCurrentAndRunNext()
			continue
		}
		for i := 0; i < avail; i++ {
			if read >= len(buf) {
				m.popFront()
				return read, nil
			}
			buf[read] = mail.ReadByte()
			read++
		}
		m.popFront()
		return read, nil
	}
}

// Socket is the write end of one mail: a bounded byte ring plus a
// writable flag, matching mail.rs's Socket (always created writable, via
// Mailbox.CreateSocket).
type Socket struct {
	writable bool
	mail     *RingBuffer
}

// Write suspends the current task while the socket's ring has no free
// space, then appends as many bytes of buf as fit and returns that
// count. The count is short when buf does not fit; Write does not wait
// for space for the rest.
func (s *Socket) Write(buf []byte, sched Scheduler) (int, error) {
	written := 0
	for {
		avail := s.mail.AvailableWrite()
		if avail == 0 {
			sched.SuspendCurrentAndRunNext()
			continue
		}
		for i := 0; i < avail; i++ {
			if written >= len(buf) {
				return written, nil
			}
			s.mail.WriteByte(buf[written])
			written++
		}
		return written, nil
	}
}

// Pipe is a classic unidirectional byte pipe: one shared ring, a read
// end and a write end. The read end detects the write end's closure via
// the ring's weak back-reference, so a reader sees EOF instead of
// blocking forever once every writer has gone away; the write end does
// not detect a closed reader.
type Pipe struct {
	ring *RingBuffer
}

// PipeReadEnd is the read half of a Pipe.
type PipeReadEnd struct {
	ring *RingBuffer
}

// PipeWriteEnd is the write half of a Pipe; it doubles as the Socket
// the ring's weak write-end reference points at.
type PipeWriteEnd struct {
	Socket
}

// NewPipe builds a pipe with the given ring capacity and returns its
// read and write ends.
func NewPipe(capacity int) (*PipeReadEnd, *PipeWriteEnd) {
	ring := NewRingBuffer(capacity)
	w := &PipeWriteEnd{Socket: Socket{writable: true, mail: ring}}
	ring.SetWriteEnd(&w.Socket)
	r := &PipeReadEnd{ring: ring}
	return r, w
}

// Read drains available bytes into buf, suspending while the pipe is
// empty and the write end is still open, returning 0 once the write end
// has closed and nothing remains buffered.
func (r *PipeReadEnd) Read(buf []byte, sched Scheduler) (int, error) {
	read := 0
	for {
		avail := r.ring.AvailableRead()
		if avail == 0 {
			if r.ring.AllWriteEndsClosed() {
				return read, nil
			}
			sched.SuspendCurrentAndRunNext()
			continue
		}
		for i := 0; i < avail; i++ {
			if read >= len(buf) {
				return read, nil
			}
			buf[read] = r.ring.ReadByte()
			read++
		}
		return read, nil
	}
}

// Write behaves as Socket.Write: it suspends while the pipe has no free
// space, then writes as many bytes of buf as fit and returns that count.
func (w *PipeWriteEnd) Write(buf []byte, sched Scheduler) (int, error) {
	return w.Socket.Write(buf, sched)
}

// Write always fails: a pipe's read end has no write direction.
func (r *PipeReadEnd) Write(buf []byte, sched Scheduler) (int, error) {
	return 0, ErrWrongDirection
}

// Read always fails: a pipe's write end has no read direction.
func (w *PipeWriteEnd) Read(buf []byte, sched Scheduler) (int, error) {
	return 0, ErrWrongDirection
}
