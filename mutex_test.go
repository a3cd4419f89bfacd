package tnkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexCreateValidatesCeiling(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8))
	_, err := k.MutexCreate(MutexCreateOpt{Protocol: MutexCeiling, Ceiling: -1})
	assert.ErrorIs(t, err, ErrWrongParam)
	_, err = k.MutexCreate(MutexCreateOpt{Protocol: MutexCeiling, Ceiling: 8})
	assert.ErrorIs(t, err, ErrWrongParam)
}

func TestMutexLockUnlockUncontended(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	m, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 1)

	require.NoError(t, m.Lock(task, Infinite))
	assert.Same(t, task, m.Holder())

	require.NoError(t, m.Unlock(task))
	assert.Nil(t, m.Holder())
}

func TestMutexUnlockRequiresHolder(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	m, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 1)
	assert.ErrorIs(t, m.Unlock(task), ErrIllegalUse)
}

func TestMutexNonRecursiveRelockFails(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	m, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 1)
	require.NoError(t, m.Lock(task, Infinite))
	assert.ErrorIs(t, m.Lock(task, Infinite), ErrIllegalUse)
}

func TestMutexRecursiveLocking(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	m, err := k.MutexCreate(MutexCreateOpt{Recursive: true})
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 1)

	require.NoError(t, m.Lock(task, Infinite))
	require.NoError(t, m.Lock(task, Infinite))
	assert.Same(t, task, m.Holder())

	require.NoError(t, m.Unlock(task))
	assert.Same(t, task, m.Holder()) // one level of recursion remains

	require.NoError(t, m.Unlock(task))
	assert.Nil(t, m.Holder())
}

func TestMutexContendedBlocksAndTimesOut(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	m, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)
	holder := mustActivatedTask(t, k, 1)
	require.NoError(t, m.Lock(holder, Infinite))

	other := mustActivatedTask(t, k, 2)
	assert.ErrorIs(t, m.Lock(other, 0), ErrTimeout)

	require.ErrorIs(t, m.Lock(other, 2), ErrWouldBlock)
	k.TickIntProcessing()
	k.TickIntProcessing()
	assert.ErrorIs(t, other.WaitResult(), ErrTimeout)
}

// TestMutexCeilingRejectsHigherUrgencyCaller implements SPEC_FULL.md §8
// scenario S3: locking with a base priority numerically below the
// ceiling is refused outright, without blocking or boosting anyone.
func TestMutexCeilingRejectsHigherUrgencyCaller(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8))
	m, err := k.MutexCreate(MutexCreateOpt{Protocol: MutexCeiling, Ceiling: 4})
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 3)

	err = m.Lock(task, Infinite)
	assert.ErrorIs(t, err, ErrIllegalUse)
	assert.Nil(t, m.Holder())
	assert.True(t, task.State()&TaskRunnable != 0)
	assert.Equal(t, Priority(3), task.Priority())
}

func TestMutexCeilingAcceptsEqualOrLowerUrgencyCaller(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8))
	m, err := k.MutexCreate(MutexCreateOpt{Protocol: MutexCeiling, Ceiling: 4})
	require.NoError(t, err)
	task := mustActivatedTask(t, k, 4)
	require.NoError(t, m.Lock(task, Infinite))
	assert.Same(t, task, m.Holder())
}

// TestMutexPriorityInheritance implements SPEC_FULL.md §8 scenario S2.
func TestMutexPriorityInheritance(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8))
	m, err := k.MutexCreate(MutexCreateOpt{Protocol: MutexInherit})
	require.NoError(t, err)

	taskC := mustActivatedTask(t, k, 3)
	require.NoError(t, m.Lock(taskC, Infinite))

	taskB := mustActivatedTask(t, k, 2)
	assert.Same(t, taskB, k.NextToRun()) // B outruns C, unrelated to the mutex

	taskA := mustActivatedTask(t, k, 1)
	require.ErrorIs(t, m.Lock(taskA, Infinite), ErrWouldBlock)

	assert.Equal(t, Priority(1), taskC.Priority())
	assert.Same(t, taskC, k.NextToRun()) // boosted C now outruns B

	require.NoError(t, m.Unlock(taskC))
	assert.Equal(t, Priority(3), taskC.Priority())
	assert.Same(t, taskA, m.Holder())
	assert.Nil(t, taskA.WaitResult())
	assert.Same(t, taskA, k.NextToRun())
}

func TestMutexDeleteRefusesForeignHolder(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	m, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)
	holder := mustActivatedTask(t, k, 1)
	other := mustActivatedTask(t, k, 2)
	require.NoError(t, m.Lock(holder, Infinite))

	assert.ErrorIs(t, m.Delete(other), ErrIllegalUse)
	require.NoError(t, m.Delete(holder))
	assert.Equal(t, Priority(1), holder.Priority())
}

func TestMutexDeleteWakesWaitersWithDeleted(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	m, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)
	holder := mustActivatedTask(t, k, 1)
	waiter := mustActivatedTask(t, k, 2)
	require.NoError(t, m.Lock(holder, Infinite))
	require.ErrorIs(t, m.Lock(waiter, Infinite), ErrWouldBlock)

	require.NoError(t, m.Delete(holder))
	assert.ErrorIs(t, waiter.WaitResult(), ErrDeleted)
	assert.True(t, waiter.State()&TaskRunnable != 0)
}

func TestMutexDeadlockDetection(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8), WithDeadlockDetection(true))
	m1, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)
	m2, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)

	t1 := mustActivatedTask(t, k, 1)
	t2 := mustActivatedTask(t, k, 2)

	require.NoError(t, m1.Lock(t1, Infinite))
	require.NoError(t, m2.Lock(t2, Infinite))

	require.ErrorIs(t, m2.Lock(t1, Infinite), ErrWouldBlock)
	_, _, active := m2.DeadlockInfo()
	assert.False(t, active) // no cycle yet: t2 isn't blocked on anything

	require.ErrorIs(t, m1.Lock(t2, Infinite), ErrWouldBlock)
	_, tasks1, active1 := m1.DeadlockInfo()
	_, tasks2, active2 := m2.DeadlockInfo()
	assert.True(t, active1)
	assert.True(t, active2)
	assert.ElementsMatch(t, []*Task{t1, t2}, tasks1)
	assert.ElementsMatch(t, []*Task{t1, t2}, tasks2)
}

func TestMutexDeadlockClearsOnResolution(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8), WithDeadlockDetection(true))
	m1, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)
	m2, err := k.MutexCreate(MutexCreateOpt{})
	require.NoError(t, err)

	t1 := mustActivatedTask(t, k, 1)
	t2 := mustActivatedTask(t, k, 2)
	require.NoError(t, m1.Lock(t1, Infinite))
	require.NoError(t, m2.Lock(t2, Infinite))
	require.ErrorIs(t, m2.Lock(t1, Infinite), ErrWouldBlock)
	require.ErrorIs(t, m1.Lock(t2, Infinite), ErrWouldBlock)

	require.NoError(t, m1.Unlock(t1))
	_, _, active1 := m1.DeadlockInfo()
	assert.False(t, active1)
}
