package tnkernel

import "github.com/joeycumines/go-tnkernel/internal/list"

// enterWait implements the wait protocol shared by every blocking object
// (SPEC_FULL.md §4.2). The caller must already have verified timeout != 0
// (the zero-timeout, non-blocking "fails immediately" case is handled
// entirely by each service before calling enterWait, never by suspending
// and then immediately timing out).
func (k *Kernel) enterWait(cs critical, t *Task, waitList *list.Node, reason WaitReason, timeout uint32, scratch any) {
	k.clearRunnableLocked(cs, t)
	t.state |= TaskWait
	t.waitReason = reason
	t.waitResult = nil
	t.sendWaitSlot = scratch
	t.waitStartTC = k.wheel.counter
	if waitList != nil {
		t.listNode.Value = t
		list.AddTail(waitList, &t.listNode)
		t.waitList = waitList
	} else {
		t.waitList = nil
	}
	if timeout != Infinite {
		_ = k.wheel.start(cs, &t.waitTimer, timeout, func(k *Kernel, cs critical) {
			k.completeWaitHook(cs, t, ErrTimeout, nil)
		})
	}
	k.recomputeNextToRunLocked(cs)
}

// completeWait implements complete_wait with no reason-specific hook.
func (k *Kernel) completeWait(cs critical, t *Task, result error) {
	k.completeWaitHook(cs, t, result, nil)
}

// completeWaitHook implements complete_wait. hook, when non-nil, is
// invoked after the task is unlinked from its wait list but before its
// wait reason is cleared -- this is the mutex unlock "before complete"
// hand-off (SPEC_FULL.md §4.4) that installs the new holder and raises
// its priority without re-touching the previous holder's priority.
func (k *Kernel) completeWaitHook(cs critical, t *Task, result error, hook func(*Task)) {
	if t.waitList != nil {
		list.Remove(&t.listNode)
		t.waitList = nil
	}
	if hook != nil {
		hook(t)
	}
	k.wheel.cancel(&t.waitTimer)
	k.metrics.waitCompleted(k.wheel.counter - t.waitStartTC)
	t.waitResult = result
	t.state &^= TaskWait
	t.waitReason = WaitReasonNone
	t.sendWaitSlot = nil
	if t.state&TaskSuspend == 0 {
		t.state |= TaskRunnable
		k.makeRunnableLocked(cs, t)
	}
	k.recomputeNextToRunLocked(cs)
}

// firstWaiterComplete pops the head of waitList (if any), invokes before
// (letting a producer hand data directly into the waiter before it is
// rescheduled), completes its wait with result, and reports whether a
// waiter was found.
func (k *Kernel) firstWaiterComplete(cs critical, waitList *list.Node, result error, before func(*Task)) bool {
	n := list.Head(waitList)
	if n == nil {
		return false
	}
	t := n.Value.(*Task)
	k.completeWaitHook(cs, t, result, before)
	return true
}

// waitListNotifyDeleted completes every waiter on waitList with
// ErrDeleted, in FIFO order.
func (k *Kernel) waitListNotifyDeleted(cs critical, waitList *list.Node) {
	for {
		n := list.Head(waitList)
		if n == nil {
			return
		}
		t := n.Value.(*Task)
		k.completeWaitHook(cs, t, ErrDeleted, nil)
	}
}
