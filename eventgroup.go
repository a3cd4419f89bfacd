package tnkernel

import "github.com/joeycumines/go-tnkernel/internal/list"

// EventMode selects how a Wait call's pattern is matched against the
// event group's current bits.
type EventMode int

const (
	// EventOR is satisfied when any bit in the requested pattern is set.
	EventOR EventMode = iota
	// EventAND is satisfied only when every bit in the requested pattern
	// is set.
	EventAND
)

// EventModifyOp selects how Modify changes the event group's pattern.
type EventModifyOp int

const (
	EventSet EventModifyOp = iota
	EventClear
	EventToggle
)

// EventGroup is a set of up to bits.UintSize binary flags that tasks can
// wait on in AND or OR combination, with optional auto-clear of the
// bits that satisfied the wait (SPEC_FULL.md §4.5). Grounded on
// original_source/src/tn_eventgrp.c and tn_eventgrp.h.
type EventGroup struct {
	magic    uint32
	k        *Kernel
	pattern  uint
	waitList list.Node
}

// EventGroupCreate constructs an event group with the given initial
// pattern.
func (k *Kernel) EventGroupCreate(initial uint) (*EventGroup, error) {
	eg := &EventGroup{magic: magicEventGroup, k: k, pattern: initial}
	eg.waitList.Init()
	return eg, nil
}

// Delete wakes every waiter with ErrDeleted and invalidates the event
// group.
func (eg *EventGroup) Delete() error {
	if err := checkMagic(eg.magic, magicEventGroup); err != nil {
		return err
	}
	cs, done := eg.k.enterCritical()
	defer done()
	eg.k.waitListNotifyDeleted(cs, &eg.waitList)
	eg.magic = 0
	return nil
}

// Pattern returns the event group's current bit pattern.
func (eg *EventGroup) Pattern() uint {
	eg.k.mu.Lock()
	defer eg.k.mu.Unlock()
	return eg.pattern
}

// Modify applies op with operand to the event group's pattern, then
// wakes every waiter whose AND/OR condition is now satisfied.
func (eg *EventGroup) Modify(op EventModifyOp, operand uint) error {
	if err := checkMagic(eg.magic, magicEventGroup); err != nil {
		return err
	}
	cs, done := eg.k.enterCritical()
	defer done()
	return eg.modifyLocked(cs, op, operand)
}

// modifyLocked is Modify's body, callable from other objects (the data
// queue's event-group connect feature, SPEC_FULL.md §4.5) that already
// hold the critical section and must not recursively lock Kernel.mu.
func (eg *EventGroup) modifyLocked(cs critical, op EventModifyOp, operand uint) error {
	switch op {
	case EventSet:
		eg.pattern |= operand
		eg.wakeMatchingLocked(cs)
	case EventClear:
		// Clearing bits can never newly satisfy a waiter's AND/OR
		// condition, so no wait-list scan is needed.
		eg.pattern &^= operand
	case EventToggle:
		eg.pattern ^= operand
		eg.wakeMatchingLocked(cs)
	default:
		return wrapObject("eventgroup", "modify", ErrWrongParam)
	}
	return nil
}

// IModify is the ISR-context variant of Modify.
func (eg *EventGroup) IModify(op EventModifyOp, operand uint) error {
	return eg.Modify(op, operand)
}

func satisfiesMode(current, requested uint, mode EventMode) bool {
	switch mode {
	case EventAND:
		return current&requested == requested
	default:
		return current&requested != 0
	}
}

// wakeMatchingLocked scans every waiter -- not just the FIFO head, since
// distinct waiters may have distinct patterns/modes -- completing any
// whose condition the current pattern now satisfies, auto-clearing the
// matched bits for waiters that requested it.
func (eg *EventGroup) wakeMatchingLocked(cs critical) {
	list.Walk(&eg.waitList, func(n *list.Node) {
		wt := n.Value.(*Task)
		if !satisfiesMode(eg.pattern, wt.eventWaitPattern, wt.eventWaitMode) {
			return
		}
		actual := eg.pattern
		if wt.eventWaitAutoClear {
			eg.pattern &^= wt.eventWaitPattern
		}
		if dst, ok := wt.sendWaitSlot.(*uint); ok && dst != nil {
			*dst = actual
		}
		eg.k.completeWaitHook(cs, wt, nil, nil)
	})
}

// Wait blocks the calling task t until the event group's pattern
// satisfies pattern under mode, or timeout elapses. On satisfaction,
// *actual receives the pattern observed at the moment of release (after
// any auto-clear has already been computed, but reflecting the bits
// that were set before it). actual must be non-nil.
func (eg *EventGroup) Wait(t *Task, pattern uint, mode EventMode, autoClear bool, timeout uint32, actual *uint) error {
	if err := checkMagic(eg.magic, magicEventGroup); err != nil {
		return err
	}
	if actual == nil {
		return wrapObject("eventgroup", "wait", ErrWrongParam)
	}
	cs, done := eg.k.enterCritical()
	defer done()
	if satisfiesMode(eg.pattern, pattern, mode) {
		*actual = eg.pattern
		if autoClear {
			eg.pattern &^= pattern
		}
		return nil
	}
	if timeout == 0 {
		return ErrTimeout
	}
	t.eventWaitPattern = pattern
	t.eventWaitMode = mode
	t.eventWaitAutoClear = autoClear
	eg.k.enterWait(cs, t, &eg.waitList, WaitReasonEvent, timeout, actual)
	return ErrWouldBlock
}

// WaitPolling attempts to satisfy the wait condition without blocking.
func (eg *EventGroup) WaitPolling(t *Task, pattern uint, mode EventMode, autoClear bool, actual *uint) error {
	return eg.Wait(t, pattern, mode, autoClear, 0, actual)
}
