package tnkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerCreateValidation(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	_, err := k.TimerCreate(nil, nil)
	assert.ErrorIs(t, err, ErrWrongParam)
}

func TestTimerRoundTripTimeLeft(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	tm, err := k.TimerCreate(func(any) {}, nil)
	require.NoError(t, err)

	require.NoError(t, tm.Start(10))
	left, err := tm.TimeLeft()
	require.NoError(t, err)
	assert.Equal(t, uint32(10), left)
}

func TestTimerFiresAfterExactTimeout(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	var fired []any
	tm, err := k.TimerCreate(func(arg any) { fired = append(fired, arg) }, "payload")
	require.NoError(t, err)
	require.NoError(t, tm.Start(3))

	k.TickIntProcessing()
	k.TickIntProcessing()
	assert.Empty(t, fired)

	k.TickIntProcessing()
	require.Len(t, fired, 1)
	assert.Equal(t, "payload", fired[0])

	left, err := tm.TimeLeft()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), left)
}

func TestTimerRestartCancelsPreviousArm(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	count := 0
	tm, err := k.TimerCreate(func(any) { count++ }, nil)
	require.NoError(t, err)
	require.NoError(t, tm.Start(5))
	require.NoError(t, tm.Start(2))

	k.TickIntProcessing()
	k.TickIntProcessing()
	assert.Equal(t, 1, count)

	for i := 0; i < 5; i++ {
		k.TickIntProcessing()
	}
	assert.Equal(t, 1, count) // the original 5-tick arm was cancelled by the restart
}

func TestTimerCancel(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	fired := false
	tm, err := k.TimerCreate(func(any) { fired = true }, nil)
	require.NoError(t, err)
	require.NoError(t, tm.Start(2))
	require.NoError(t, tm.Cancel())

	for i := 0; i < 5; i++ {
		k.TickIntProcessing()
	}
	assert.False(t, fired)
	left, err := tm.TimeLeft()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), left)
}

func TestTimerDeleteInvalidatesObject(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	tm, err := k.TimerCreate(func(any) {}, nil)
	require.NoError(t, err)
	require.NoError(t, tm.Delete())
	assert.ErrorIs(t, tm.Start(5), ErrInvalidObject)
}

// TestTimerWheelWrap implements SPEC_FULL.md §8 scenario S5: a generic-FIFO
// timer redistributed into a tick-indexed FIFO on wraparound fires exactly
// once, alongside a timer started after the earlier timer has fired.
func TestTimerWheelWrap(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4), WithWheelWidth(4))
	var firedT1, firedT2, firedT3 int

	t1, err := k.TimerCreate(func(any) { firedT1++ }, nil)
	require.NoError(t, err)
	t2, err := k.TimerCreate(func(any) { firedT2++ }, nil)
	require.NoError(t, err)

	require.NoError(t, t1.Start(3))
	require.NoError(t, t2.Start(7))

	for i := 0; i < 3; i++ {
		k.TickIntProcessing()
	}
	assert.Equal(t, 1, firedT1)
	assert.Equal(t, 0, firedT2)

	t3, err := k.TimerCreate(func(any) { firedT3++ }, nil)
	require.NoError(t, err)
	require.NoError(t, t3.Start(4))

	for i := 0; i < 4; i++ {
		k.TickIntProcessing()
	}
	assert.Equal(t, 1, firedT2)
	assert.Equal(t, 1, firedT3)
}
