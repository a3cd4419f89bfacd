package tnkernel

import "github.com/joeycumines/go-tnkernel/internal/list"

// makeRunnableLocked links t into the ready FIFO at its current priority
// and sets the corresponding ready-bitmap bit (SPEC_FULL.md §3, invariant
// (a)).
func (k *Kernel) makeRunnableLocked(cs critical, t *Task) {
	_ = cs
	t.listNode.Value = t
	list.AddTail(&k.readyQueues[t.priority], &t.listNode)
	k.readyBitmap |= 1 << uint(t.priority)
	k.metrics.setReadyDepth(int(t.priority), readyDepth(&k.readyQueues[t.priority]))
}

// clearRunnableLocked unlinks t from its ready FIFO, clearing the
// ready-bitmap bit if the FIFO becomes empty.
func (k *Kernel) clearRunnableLocked(cs critical, t *Task) {
	_ = cs
	list.Remove(&t.listNode)
	t.state &^= TaskRunnable
	if k.readyQueues[t.priority].Empty() {
		k.readyBitmap &^= 1 << uint(t.priority)
	}
	k.metrics.setReadyDepth(int(t.priority), readyDepth(&k.readyQueues[t.priority]))
}

func readyDepth(header *list.Node) uint32 {
	var n uint32
	list.Walk(header, func(*list.Node) { n++ })
	return n
}

// recomputeNextToRunLocked recomputes next_to_run = head of the ready FIFO
// at the lowest set bit of the ready bitmap (SPEC_FULL.md §4.1,
// "Scheduling decision"). Because arch.Sim never actually resumes a task
// body, this Go rendering treats the context switch as completing
// synchronously: Kernel.current is updated to match next_to_run the
// moment a switch is pended, since nothing else in this rendition will
// ever perform the switch for it. See DESIGN.md for the rationale.
func (k *Kernel) recomputeNextToRunLocked(cs critical) {
	_ = cs
	idx, ok := k.findFirstSet(k.readyBitmap)
	var next *Task
	if ok {
		if n := list.Head(&k.readyQueues[idx]); n != nil {
			next = n.Value.(*Task)
		}
	}
	k.nextToRun = next
	if next == k.current {
		return
	}
	if k.current == nil {
		k.port.ContextSwitchNowNoSave()
	} else {
		k.port.ContextSwitchPend()
	}
	k.metrics.contextSwitch()
	k.current = next
}

// recomputeNextToRunForExitLocked is recomputeNextToRunLocked's exit-time
// sibling: task exit discards the outgoing task's context unconditionally,
// so it always issues a no-save switch instead of conditionally pending one
// (spec.md §4.1 "Exit"; SPEC_FULL.md §6, "context_switch_now_nosave() — for
// task exit and first switch").
func (k *Kernel) recomputeNextToRunForExitLocked(cs critical) {
	_ = cs
	idx, ok := k.findFirstSet(k.readyBitmap)
	var next *Task
	if ok {
		if n := list.Head(&k.readyQueues[idx]); n != nil {
			next = n.Value.(*Task)
		}
	}
	k.nextToRun = next
	k.port.ContextSwitchNowNoSave()
	if next != k.current {
		k.metrics.contextSwitch()
	}
	k.current = next
}

// recomputeTaskPriorityLocked rebuilds t's current priority from its base
// priority and the mutexes it owns (SPEC_FULL.md §3(e)), moving it
// between ready FIFOs if RUNNABLE and re-evaluating scheduling.
func (k *Kernel) recomputeTaskPriorityLocked(cs critical, t *Task) {
	best := t.basePriority
	list.Walk(&t.ownedMutexes, func(n *list.Node) {
		m := n.Value.(*Mutex)
		switch m.protocol {
		case MutexCeiling:
			if m.ceiling < best {
				best = m.ceiling
			}
		case MutexInherit:
			list.Walk(&m.waitList, func(wn *list.Node) {
				waiter := wn.Value.(*Task)
				if waiter.priority < best {
					best = waiter.priority
				}
			})
		}
	})
	if best == t.priority {
		return
	}
	boosted := best < t.priority
	wasRunnable := t.runnable()
	if wasRunnable {
		k.clearRunnableLocked(cs, t)
	}
	t.priority = best
	if wasRunnable {
		t.state |= TaskRunnable
		k.makeRunnableLocked(cs, t)
	}
	if boosted {
		k.metrics.priorityBoost()
	}
	k.recomputeNextToRunLocked(cs)
}

// rotateRoundRobinLocked implements per-priority time-slice rotation
// (SPEC_FULL.md §4.1, "Round-robin"). It must not run if the current task
// has become non-runnable since the tick started (SPEC_FULL.md §9,
// "Time-slice rotation concurrency").
func (k *Kernel) rotateRoundRobinLocked(cs critical) {
	if k.roundRobinQuantum == 0 || k.current == nil || !k.current.runnable() {
		return
	}
	t := k.current
	t.sliceCounter++
	if t.sliceCounter <= k.roundRobinQuantum {
		return
	}
	t.sliceCounter = 0
	header := &k.readyQueues[t.priority]
	if header.Next == &t.listNode && header.Prev == &t.listNode {
		return // only runnable task at this priority: nothing to rotate to.
	}
	list.Remove(&t.listNode)
	t.listNode.Value = t
	list.AddTail(header, &t.listNode)
	k.recomputeNextToRunLocked(cs)
}
