package plic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextEncoding(t *testing.T) {
	assert.Equal(t, 0, Context(0, ModeMachine))
	assert.Equal(t, 1, Context(0, ModeSupervisor))
	assert.Equal(t, 2, Context(0, ModeUser))
	assert.Equal(t, 3, Context(1, ModeMachine))
	assert.Equal(t, 5, Context(1, ModeUser))
}

func TestClaimRespectsEnableAndThreshold(t *testing.T) {
	p := New(16, 3, nil)
	ctx := Context(0, ModeSupervisor)

	p.SetPriority(4, 5)
	p.Trigger(4)

	_, ok := p.Claim(ctx)
	assert.False(t, ok, "not enabled yet")

	p.Enable(ctx, 4)
	p.SetThreshold(ctx, 7)
	p.Trigger(4)
	_, ok = p.Claim(ctx)
	assert.False(t, ok, "priority below threshold")

	p.SetThreshold(ctx, 1)
	p.Trigger(4)
	irq, ok := p.Claim(ctx)
	require.True(t, ok)
	assert.Equal(t, uint32(4), irq)
}

func TestClaimPicksHighestPriority(t *testing.T) {
	p := New(16, 3, nil)
	ctx := Context(0, ModeSupervisor)
	p.SetThreshold(ctx, 0)
	p.Enable(ctx, 3)
	p.Enable(ctx, 9)
	p.SetPriority(3, 2)
	p.SetPriority(9, 5)
	p.Trigger(3)
	p.Trigger(9)

	irq, ok := p.Claim(ctx)
	require.True(t, ok)
	assert.Equal(t, uint32(9), irq)
}

type fakeRegistry struct {
	owner map[uint32]uint64
	fail  map[uint32]bool
}

func (f *fakeRegistry) ClaimedOwner(irq uint32) (uint64, bool) {
	tid, ok := f.owner[irq]
	return tid, ok
}

func (f *fakeRegistry) Deliver(tid uint64, irq uint32) error {
	if f.fail[irq] {
		return assertErr
	}
	return nil
}

var assertErr = &fakeDeliverErr{}

type fakeDeliverErr struct{}

func (*fakeDeliverErr) Error() string { return "queue full" }

func TestHandleExternalInterruptDeliversToClaimant(t *testing.T) {
	p := New(16, 3, nil)
	hart := 0
	ctx := Context(hart, ModeSupervisor)
	p.Enable(ctx, 5)
	p.SetPriority(5, 3)
	p.SetThreshold(ctx, 0)
	p.Trigger(5)

	reg := &fakeRegistry{owner: map[uint32]uint64{5: 42}}
	var fellBack []uint32
	p.HandleExternalInterrupt(hart, reg, func(irq uint32) { fellBack = append(fellBack, irq) })

	assert.Empty(t, fellBack)
	assert.False(t, p.Enabled(ctx, 5), "claimed irq auto-disabled at S-context")
}

func TestHandleExternalInterruptFallsBackWhenUnclaimed(t *testing.T) {
	p := New(16, 3, nil)
	hart := 0
	ctx := Context(hart, ModeSupervisor)
	p.Enable(ctx, 6)
	p.SetPriority(6, 3)
	p.SetThreshold(ctx, 0)
	p.Trigger(6)

	var fellBack []uint32
	p.HandleExternalInterrupt(hart, &fakeRegistry{}, func(irq uint32) { fellBack = append(fellBack, irq) })

	assert.Equal(t, []uint32{6}, fellBack)
}

func TestHandleExternalInterruptFallsBackWhenDeliveryFails(t *testing.T) {
	p := New(16, 3, nil)
	hart := 0
	ctx := Context(hart, ModeSupervisor)
	p.Enable(ctx, 7)
	p.SetPriority(7, 3)
	p.SetThreshold(ctx, 0)
	p.Trigger(7)

	reg := &fakeRegistry{owner: map[uint32]uint64{7: 1}, fail: map[uint32]bool{7: true}}
	var fellBack []uint32
	p.HandleExternalInterrupt(hart, reg, func(irq uint32) { fellBack = append(fellBack, irq) })

	assert.Equal(t, []uint32{7}, fellBack)
	assert.True(t, p.Enabled(ctx, 7), "irq stays enabled when delivery fails")
}
