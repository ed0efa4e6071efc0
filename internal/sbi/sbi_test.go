package sbi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferShimConsole(t *testing.T) {
	s := NewBufferShim()
	for _, c := range []byte("hi") {
		s.ConsolePutchar(c)
	}
	assert.Equal(t, "hi", s.Console())
}

func TestBufferShimTimerAndIPI(t *testing.T) {
	s := NewBufferShim()
	s.SetTimer(100)
	s.SetTimer(200)
	s.SendIPI(0b11)

	assert.Equal(t, []uint64{100, 200}, s.Timers())
	assert.Equal(t, []uint64{0b11}, s.IPIs())
}

func TestBufferShimShutdown(t *testing.T) {
	s := NewBufferShim()
	ret, err := s.Shutdown()
	assert.Equal(t, int64(0), ret)
	assert.NoError(t, err)
}

func TestNoopShim(t *testing.T) {
	var s Shim = NoopShim{}
	s.ConsolePutchar('x')
	s.SetTimer(1)
	s.SendIPI(1)
	_, err := s.Shutdown()
	assert.NoError(t, err)
}
