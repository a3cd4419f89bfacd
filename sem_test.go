package tnkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemCreateValidation(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	_, err := k.SemCreate(-1, 1)
	assert.ErrorIs(t, err, ErrWrongParam)
	_, err = k.SemCreate(0, 0)
	assert.ErrorIs(t, err, ErrWrongParam)
	_, err = k.SemCreate(2, 1)
	assert.ErrorIs(t, err, ErrWrongParam)
}

func TestSemWaitImmediateDecrementsCount(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	s, err := k.SemCreate(1, 1)
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 1)
	require.NoError(t, s.Wait(task, 0))
	assert.Equal(t, 0, s.Count())
}

func TestSemWaitZeroTimeoutReturnsTimeout(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	s, err := k.SemCreate(0, 1)
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 1)
	assert.ErrorIs(t, s.Wait(task, 0), ErrTimeout)
}

// TestSemSignalOverflow covers testable invariant 6 (§8): signalling past
// max_count without a waiter present is an overflow, not a silent clamp.
func TestSemSignalOverflow(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	s, err := k.SemCreate(1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Signal(), ErrOverflow)
	assert.Equal(t, 1, s.Count())
}

func TestSemSignalHandsOffDirectlyWithoutChangingCount(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	s, err := k.SemCreate(0, 1)
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 1)
	require.ErrorIs(t, s.Wait(task, Infinite), ErrWouldBlock)

	require.NoError(t, s.Signal())
	assert.Nil(t, task.WaitResult())
	assert.True(t, task.State()&TaskRunnable != 0)
	assert.Equal(t, 0, s.Count())
}

// TestSemDeleteWakesWaitersFIFOOrder implements SPEC_FULL.md §8 scenario
// S6: all waiters are released with ErrDeleted in FIFO order, and the
// most urgent among them is selected to run next.
func TestSemDeleteWakesWaitersFIFOOrder(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8))
	s, err := k.SemCreate(0, 1)
	require.NoError(t, err)

	priorities := []Priority{5, 2, 6, 4}
	tasks := make([]*Task, len(priorities))
	for i, p := range priorities {
		task := mustActivatedTask(t, k, p)
		require.ErrorIs(t, s.Wait(task, Infinite), ErrWouldBlock)
		tasks[i] = task
	}

	require.NoError(t, s.Delete())
	for _, task := range tasks {
		assert.ErrorIs(t, task.WaitResult(), ErrDeleted)
		assert.True(t, task.State()&TaskRunnable != 0)
	}
	assert.Same(t, tasks[1], k.NextToRun()) // priority 2 is the most urgent of the four

	assert.ErrorIs(t, s.Wait(tasks[0], 0), ErrInvalidObject)
}

func TestSemISignalIsSameAsSignal(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	s, err := k.SemCreate(0, 2)
	require.NoError(t, err)
	require.NoError(t, s.ISignal())
	assert.Equal(t, 1, s.Count())
}
