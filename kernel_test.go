package tnkernel

import (
	"math/bits"
	"testing"

	"github.com/joeycumines/go-tnkernel/internal/list"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKernel(t *testing.T, opts ...KernelOption) *Kernel {
	t.Helper()
	k, err := New(opts...)
	require.NoError(t, err)
	return k
}

func noopBody(any) {}

func newStack() []uintptr {
	return make([]uintptr, 64)
}

func mustActivatedTask(t *testing.T, k *Kernel, priority Priority) *Task {
	t.Helper()
	task, err := k.TaskCreate(noopBody, priority, newStack(), nil, TaskCreateOpt{ActivateNow: true})
	require.NoError(t, err)
	return task
}

// assertReadyInvariant checks testable properties 1 and 2 of SPEC_FULL.md §8:
// the ready bitmap, the per-priority FIFOs and next_to_run must agree.
func assertReadyInvariant(t *testing.T, k *Kernel) {
	t.Helper()
	for p := 0; p < k.priorityCount; p++ {
		bitSet := k.readyBitmap&(1<<uint(p)) != 0
		nonEmpty := !k.readyQueues[p].Empty()
		assert.Equalf(t, nonEmpty, bitSet, "priority %d: ready bitmap disagrees with FIFO occupancy", p)
	}
	idx, ok := k.findFirstSet(k.readyBitmap)
	if !ok {
		assert.Nil(t, k.nextToRun)
		return
	}
	head := list.Head(&k.readyQueues[idx])
	require.NotNil(t, head)
	assert.Same(t, head.Value.(*Task), k.nextToRun)
}

func TestNewDefaults(t *testing.T) {
	k := newTestKernel(t)
	assert.Equal(t, bits.UintSize, k.priorityCount)
	assert.Len(t, k.readyQueues, bits.UintSize)
	assert.Equal(t, uint32(64), k.wheel.k)
	assert.False(t, k.deadlockDetection)
}

func TestNewRejectsBadPriorityCount(t *testing.T) {
	_, err := New(WithPriorityCount(1))
	assert.ErrorIs(t, err, ErrWrongParam)
	_, err = New(WithPriorityCount(bits.UintSize + 1))
	assert.ErrorIs(t, err, ErrWrongParam)
}

func TestNewRejectsBadWheelWidth(t *testing.T) {
	_, err := New(WithWheelWidth(3))
	assert.ErrorIs(t, err, ErrWrongParam)
	_, err = New(WithWheelWidth(1))
	assert.ErrorIs(t, err, ErrWrongParam)
}

func TestNewSkipsNilOptions(t *testing.T) {
	k, err := New(nil, WithPriorityCount(8), nil)
	require.NoError(t, err)
	assert.Equal(t, 8, k.priorityCount)
}

func TestStartActivatesIdleAndBecomesCurrent(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	called := false
	require.NoError(t, k.Start(16, func(*Kernel) error { called = true; return nil }, func(*Kernel) {}))
	assert.True(t, called)
	assert.NotNil(t, k.Current())
	assert.Same(t, k.idle, k.Current())
	assert.Equal(t, uint64(1), k.port.(interface{ NoSaveCount() uint64 }).NoSaveCount())
}

func TestStartTwiceFails(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(4))
	require.NoError(t, k.Start(16, nil, nil))
	err := k.Start(16, nil, nil)
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestTasksIntrospection(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8))
	a := mustActivatedTask(t, k, 2)
	b := mustActivatedTask(t, k, 5)

	var seen []uint64
	k.Tasks(func(info TaskInfo) bool {
		seen = append(seen, info.ID)
		return true
	})
	assert.Equal(t, []uint64{a.id, b.id}, seen)

	var stoppedEarly []uint64
	k.Tasks(func(info TaskInfo) bool {
		stoppedEarly = append(stoppedEarly, info.ID)
		return false
	})
	assert.Equal(t, []uint64{a.id}, stoppedEarly)
}

func TestReadyInvariantAcrossActivation(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8))
	assertReadyInvariant(t, k)
	low := mustActivatedTask(t, k, 6)
	assertReadyInvariant(t, k)
	assert.Same(t, low, k.NextToRun())
	high := mustActivatedTask(t, k, 2)
	assertReadyInvariant(t, k)
	assert.Same(t, high, k.NextToRun())
}

// TestPriorityPreemptionScenario implements SPEC_FULL.md §8 scenario S1.
func TestPriorityPreemptionScenario(t *testing.T) {
	k := newTestKernel(t, WithPriorityCount(8))
	low := mustActivatedTask(t, k, 5)
	s, err := k.SemCreate(0, 1)
	require.NoError(t, err)
	high := mustActivatedTask(t, k, 3)
	assert.Same(t, high, k.NextToRun())

	require.ErrorIs(t, s.Wait(high, Infinite), ErrWouldBlock)
	assert.Same(t, low, k.NextToRun())

	require.NoError(t, s.Signal())
	assert.True(t, high.State()&TaskRunnable != 0)
	assert.Same(t, high, k.NextToRun())
}
