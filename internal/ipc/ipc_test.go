package ipc

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	suspends int
	onSuspend func()
}

func (f *fakeScheduler) SuspendCurrentAndRunNext() {
	f.suspends++
	if f.onSuspend != nil {
		f.onSuspend()
	}
}

func TestRingBufferWriteRead(t *testing.T) {
	r := NewRingBuffer(4)
	assert.Equal(t, 4, r.AvailableWrite())
	assert.Equal(t, 0, r.AvailableRead())

	r.WriteByte('a')
	r.WriteByte('b')
	assert.Equal(t, 2, r.AvailableRead())
	assert.Equal(t, 2, r.AvailableWrite())

	assert.Equal(t, byte('a'), r.ReadByte())
	assert.Equal(t, byte('b'), r.ReadByte())
	assert.Equal(t, 0, r.AvailableRead())
}

func TestRingBufferFullWraps(t *testing.T) {
	r := NewRingBuffer(2)
	r.WriteByte(1)
	r.WriteByte(2)
	assert.Equal(t, 0, r.AvailableWrite())
	r.ReadByte()
	assert.Equal(t, 1, r.AvailableWrite())
	r.WriteByte(3)
	assert.Equal(t, byte(2), r.ReadByte())
	assert.Equal(t, byte(3), r.ReadByte())
}

func TestMailboxSocketRoundTrip(t *testing.T) {
	mbox := NewMailbox(MailboxCapacity, MailBufferSize)
	assert.True(t, mbox.IsEmpty())

	sock := mbox.CreateSocket()
	assert.False(t, mbox.IsEmpty())

	sched := &fakeScheduler{}
	n, err := sock.Write([]byte("hello"), sched)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Drop the socket so the mailbox sees the write end closed.
	sock = nil
	runtime.GC()

	buf := make([]byte, 16)
	sched = &fakeScheduler{}
	total, err := mbox.Read(buf, sched)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:total]))
	assert.True(t, mbox.IsEmpty())
}

// TestMailboxConcurrentCreateSocketAndReadDontRace exercises the
// producer/consumer race fixed by Mailbox.mu: one goroutine keeps
// opening new sockets (CreateSocket, called while holding the dest
// task's own TCB lock in the real syscall path) while another keeps
// draining fully-written ones, matching sysMailRead releasing the task
// lock before calling Read. Run with -race to confirm mails is never
// touched outside the mutex.
func TestMailboxConcurrentCreateSocketAndReadDontRace(t *testing.T) {
	mbox := NewMailbox(10000, MailBufferSize)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched := &fakeScheduler{}
		for i := 0; i < n; i++ {
			sock := mbox.CreateSocket()
			_, _ = sock.Write([]byte("x"), sched)
		}
	}()

	read := 0
	buf := make([]byte, 1)
	sched := &fakeScheduler{}
	for read < n {
		if mbox.IsEmpty() {
			runtime.Gosched()
			continue
		}
		got, err := mbox.Read(buf, sched)
		if err != nil {
			continue
		}
		read += got
	}
	wg.Wait()
	assert.Equal(t, n, read)
}

func TestMailboxReadEmptyReturnsError(t *testing.T) {
	mbox := NewMailbox(MailboxCapacity, MailBufferSize)
	_, err := mbox.Read(make([]byte, 8), &fakeScheduler{})
	assert.ErrorIs(t, err, ErrNoMail)
}

func TestPipeWriteThenRead(t *testing.T) {
	r, w := NewPipe(8)
	sched := &fakeScheduler{}

	n, err := w.Write([]byte("ping"), sched)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 8)
	total, err := r.Read(buf, sched)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:total]))
}

func TestPipeReadSeesEOFAfterWriterClosed(t *testing.T) {
	r := func() *PipeReadEnd {
		rd, _ := NewPipe(8)
		return rd
	}()
	runtime.GC()

	sched := &fakeScheduler{}
	n, err := r.Read(make([]byte, 8), sched)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, sched.suspends, "closed writer must not require a suspend")
}
