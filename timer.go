package tnkernel

import "github.com/joeycumines/go-tnkernel/internal/list"

// timerCallback is invoked by the wheel when a timer fires, with the
// critical-section token already held.
type timerCallback func(*Kernel, critical)

// timer is the internal wheel entry shared by Task's private wait-timeout
// bookkeeping and the public Timer object.
type timer struct {
	node       list.Node
	active     bool
	inGeneric  bool
	timeoutCur uint32
	fn         timerCallback
}

func (t *timer) init() {
	t.node.Init()
	t.node.Value = t
}

// wheel is the hierarchical timer wheel of SPEC_FULL.md §4.7: K
// tick-indexed FIFOs plus one generic FIFO, driven by a monotonic tick
// counter. Grounded on original_source/src/tn_timer.c and cross-checked
// against other_examples' wtimer reference (see DESIGN.md) for the Go
// idiom of representing wheel slots as an array of intrusive FIFOs.
type wheel struct {
	k           uint32
	tickFIFOs   []list.Node
	genericFIFO list.Node
	counter     uint32
}

func newWheel(k uint32) *wheel {
	w := &wheel{k: k, tickFIFOs: make([]list.Node, k)}
	for i := range w.tickFIFOs {
		w.tickFIFOs[i].Init()
	}
	w.genericFIFO.Init()
	return w
}

// start implements the wheel's start(timer, timeout) operation.
func (w *wheel) start(cs critical, t *timer, timeout uint32, fn timerCallback) error {
	_ = cs
	if timeout == 0 || timeout == Infinite {
		return wrapObject("timer", "start", ErrWrongParam)
	}
	if t.active {
		w.cancel(t)
	}
	t.fn = fn
	c0 := w.counter % w.k
	if timeout < w.k {
		idx := (w.counter + timeout) % w.k
		t.timeoutCur = idx
		t.inGeneric = false
		t.node.Value = t
		list.AddTail(&w.tickFIFOs[idx], &t.node)
	} else {
		t.timeoutCur = timeout + c0
		t.inGeneric = true
		t.node.Value = t
		list.AddTail(&w.genericFIFO, &t.node)
	}
	t.active = true
	return nil
}

// cancel implements the wheel's cancel(timer) operation. Cancelling an
// inactive timer is a no-op.
func (w *wheel) cancel(t *timer) {
	if !t.active {
		return
	}
	list.Remove(&t.node)
	t.active = false
	t.timeoutCur = 0
	t.inGeneric = false
}

// timeLeft implements the wheel's time_left(timer) operation.
func (w *wheel) timeLeft(t *timer) uint32 {
	if !t.active {
		return 0
	}
	c0 := w.counter % w.k
	if t.inGeneric {
		return t.timeoutCur - c0
	}
	return (t.timeoutCur - c0 + w.k) % w.k
}

// tick implements the wheel's tick handler (SPEC_FULL.md §4.7). It
// increments the tick counter, redistributes the generic FIFO into
// tick-indexed FIFOs on wraparound, then unconditionally fires every
// timer on the current tick-indexed FIFO, processing it until empty so
// that a callback may safely add or cancel other timers, including timers
// landing back on the very FIFO being walked.
func (w *wheel) tick(cs critical, k *Kernel) {
	w.counter++
	i := w.counter % w.k
	if i == 0 {
		list.Walk(&w.genericFIFO, func(n *list.Node) {
			tm := n.Value.(*timer)
			tm.timeoutCur -= w.k
			if tm.timeoutCur < w.k {
				list.Remove(&tm.node)
				idx := (w.counter + tm.timeoutCur) % w.k
				tm.timeoutCur = idx
				tm.inGeneric = false
				tm.node.Value = tm
				list.AddTail(&w.tickFIFOs[idx], &tm.node)
			}
		})
	}
	for {
		n := list.PopHead(&w.tickFIFOs[i])
		if n == nil {
			break
		}
		tm := n.Value.(*timer)
		tm.active = false
		tm.timeoutCur = 0
		fn := tm.fn
		tm.fn = nil
		k.metrics.timerFire(0)
		if fn != nil {
			fn(k, cs)
		}
	}
}

// Timer is a user-schedulable software timer backed by the kernel's
// hierarchical wheel.
type Timer struct {
	magic uint32
	k     *Kernel
	id    uint32
	t     timer
	cb    func(arg any)
	arg   any
}

// TimerCreate constructs an inactive Timer that invokes cb(arg) when
// fired.
func (k *Kernel) TimerCreate(cb func(arg any), arg any) (*Timer, error) {
	if cb == nil {
		return nil, wrapObject("timer", "create", ErrWrongParam)
	}
	cs, done := k.enterCritical()
	defer done()
	_ = cs
	k.nextTaskID++ // reuse the kernel-wide monotonic counter for diagnostic IDs.
	tm := &Timer{magic: magicTimer, k: k, id: uint32(k.nextTaskID), cb: cb, arg: arg}
	tm.t.init()
	return tm, nil
}

// Start arms the timer for the given timeout, in ticks. If already
// active, it is cancelled and restarted.
func (tm *Timer) Start(timeout uint32) error {
	if err := checkMagic(tm.magic, magicTimer); err != nil {
		return err
	}
	cs, done := tm.k.enterCritical()
	defer done()
	return tm.k.wheel.start(cs, &tm.t, timeout, func(k *Kernel, cs critical) {
		_ = cs
		logTimerFired(k.logger, tm.id)
		tm.cb(tm.arg)
	})
}

// Cancel disarms the timer if active.
func (tm *Timer) Cancel() error {
	if err := checkMagic(tm.magic, magicTimer); err != nil {
		return err
	}
	tm.k.mu.Lock()
	defer tm.k.mu.Unlock()
	tm.k.wheel.cancel(&tm.t)
	return nil
}

// TimeLeft returns the number of ticks remaining before the timer fires,
// or 0 if inactive.
func (tm *Timer) TimeLeft() (uint32, error) {
	if err := checkMagic(tm.magic, magicTimer); err != nil {
		return 0, err
	}
	tm.k.mu.Lock()
	defer tm.k.mu.Unlock()
	return tm.k.wheel.timeLeft(&tm.t), nil
}

// Delete permanently disarms the timer and invalidates it.
func (tm *Timer) Delete() error {
	if err := checkMagic(tm.magic, magicTimer); err != nil {
		return err
	}
	tm.k.mu.Lock()
	defer tm.k.mu.Unlock()
	tm.k.wheel.cancel(&tm.t)
	tm.magic = 0
	return nil
}
