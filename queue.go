package tnkernel

import "github.com/joeycumines/go-tnkernel/internal/list"

// Queue is a bounded FIFO data queue. Capacity zero makes it a pure
// rendezvous: Send and Receive only ever succeed by pairing a blocked
// task on one side with a call on the other, never by buffering
// (SPEC_FULL.md §4.6). Grounded on original_source/src/tn_dqueue.c and
// tn_dqueue.h.
type Queue struct {
	magic    uint32
	k        *Kernel
	capacity int
	storage  []any

	sendWaitList    list.Node
	receiveWaitList list.Node

	// eg/egPattern implement the event-group connect feature
	// (SPEC_FULL.md §4.6, eventgrp_connect/eventgrp_disconnect):
	// connecting an event group lets a task wait on "queue is non-empty"
	// via EventGroup.Wait instead of polling Receive.
	eg        *EventGroup
	egPattern uint
}

// QueueCreate constructs an empty queue with room for capacity items.
// capacity == 0 makes the queue a rendezvous channel.
func (k *Kernel) QueueCreate(capacity int) (*Queue, error) {
	if capacity < 0 {
		return nil, wrapObject("queue", "create", ErrWrongParam)
	}
	q := &Queue{magic: magicQueue, k: k, capacity: capacity}
	q.sendWaitList.Init()
	q.receiveWaitList.Init()
	return q, nil
}

// Delete wakes every waiter (both directions) with ErrDeleted and
// invalidates the queue.
func (q *Queue) Delete() error {
	if err := checkMagic(q.magic, magicQueue); err != nil {
		return err
	}
	cs, done := q.k.enterCritical()
	defer done()
	q.k.waitListNotifyDeleted(cs, &q.sendWaitList)
	q.k.waitListNotifyDeleted(cs, &q.receiveWaitList)
	q.magic = 0
	return nil
}

// EventGroupConnect links eg so that it gets pattern OR-ed into it
// whenever the queue transitions from empty to non-empty. Connecting a
// second event group replaces the first.
func (q *Queue) EventGroupConnect(eg *EventGroup, pattern uint) error {
	if err := checkMagic(q.magic, magicQueue); err != nil {
		return err
	}
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	q.eg = eg
	q.egPattern = pattern
	return nil
}

// EventGroupDisconnect removes any event-group link installed by
// EventGroupConnect.
func (q *Queue) EventGroupDisconnect() error {
	if err := checkMagic(q.magic, magicQueue); err != nil {
		return err
	}
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	q.eg = nil
	return nil
}

func (q *Queue) notifyConnectedLocked(cs critical) {
	if q.eg == nil {
		return
	}
	_ = q.eg.modifyLocked(cs, EventSet, q.egPattern)
}

func (q *Queue) notifyEmptyLocked(cs critical) {
	if q.eg == nil {
		return
	}
	_ = q.eg.modifyLocked(cs, EventClear, q.egPattern)
}

// Send delivers value to the queue: directly to a blocked receiver if
// one exists, into the storage buffer if there is room, or by blocking
// the caller for up to timeout ticks.
func (q *Queue) Send(t *Task, value any, timeout uint32) error {
	if err := checkMagic(q.magic, magicQueue); err != nil {
		return err
	}
	cs, done := q.k.enterCritical()
	defer done()

	handed := q.k.firstWaiterComplete(cs, &q.receiveWaitList, nil, func(r *Task) {
		if dst, ok := r.sendWaitSlot.(*any); ok && dst != nil {
			*dst = value
		}
	})
	if handed {
		return nil
	}

	if len(q.storage) < q.capacity {
		q.storage = append(q.storage, value)
		q.notifyConnectedLocked(cs)
		return nil
	}

	if timeout == 0 {
		return ErrTimeout
	}
	q.k.enterWait(cs, t, &q.sendWaitList, WaitReasonQueueSend, timeout, value)
	return ErrWouldBlock
}

// SendPolling attempts to send without blocking.
func (q *Queue) SendPolling(t *Task, value any) error {
	return q.Send(t, value, 0)
}

// ISend is the ISR-context variant of SendPolling.
func (q *Queue) ISend(t *Task, value any) error {
	return q.SendPolling(t, value)
}

// Receive fetches the next value into *dst: from the storage buffer if
// non-empty, directly from a blocked sender (the rendezvous path) if
// one exists, or by blocking the caller for up to timeout ticks.
func (q *Queue) Receive(t *Task, dst *any, timeout uint32) error {
	if err := checkMagic(q.magic, magicQueue); err != nil {
		return err
	}
	if dst == nil {
		return wrapObject("queue", "receive", ErrWrongParam)
	}
	cs, done := q.k.enterCritical()
	defer done()

	if len(q.storage) > 0 {
		*dst = q.storage[0]
		q.storage = q.storage[1:]
		q.k.firstWaiterComplete(cs, &q.sendWaitList, nil, func(s *Task) {
			q.storage = append(q.storage, s.sendWaitSlot)
		})
		if len(q.storage) == 0 {
			q.notifyEmptyLocked(cs)
		}
		return nil
	}

	var got any
	handed := q.k.firstWaiterComplete(cs, &q.sendWaitList, nil, func(s *Task) {
		got = s.sendWaitSlot
	})
	if handed {
		*dst = got
		return nil
	}

	if timeout == 0 {
		return ErrTimeout
	}
	q.k.enterWait(cs, t, &q.receiveWaitList, WaitReasonQueueReceive, timeout, dst)
	return ErrWouldBlock
}

// ReceivePolling attempts to receive without blocking.
func (q *Queue) ReceivePolling(t *Task, dst *any) error {
	return q.Receive(t, dst, 0)
}

// IReceive is the ISR-context variant of ReceivePolling.
func (q *Queue) IReceive(t *Task, dst *any) error {
	return q.ReceivePolling(t, dst)
}

// Len returns the number of items currently buffered (diagnostic use).
func (q *Queue) Len() int {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return len(q.storage)
}
