package tnkernel

import "github.com/joeycumines/go-tnkernel/internal/list"

// Sem is a counting semaphore over the shared wait protocol
// (SPEC_FULL.md §4.3).
type Sem struct {
	magic    uint32
	k        *Kernel
	count    int
	maxCount int
	waitList list.Node
}

// SemCreate constructs a semaphore with the given starting count and
// maximum count.
func (k *Kernel) SemCreate(start, max int) (*Sem, error) {
	if start < 0 || max <= 0 || start > max {
		return nil, wrapObject("sem", "create", ErrWrongParam)
	}
	s := &Sem{magic: magicSem, k: k, count: start, maxCount: max}
	s.waitList.Init()
	return s, nil
}

// Delete wakes every waiter with ErrDeleted and invalidates the
// semaphore.
func (s *Sem) Delete() error {
	if err := checkMagic(s.magic, magicSem); err != nil {
		return err
	}
	cs, done := s.k.enterCritical()
	defer done()
	s.k.waitListNotifyDeleted(cs, &s.waitList)
	s.magic = 0
	return nil
}

// Signal releases the semaphore: if a task is waiting, it is woken
// directly with no change to count; otherwise count is incremented unless
// it would exceed max, in which case ErrOverflow is returned.
func (s *Sem) Signal() error {
	if err := checkMagic(s.magic, magicSem); err != nil {
		return err
	}
	cs, done := s.k.enterCritical()
	defer done()
	return s.signalLocked(cs)
}

// ISignal is the ISR-context variant of Signal; the contract is identical
// in this rendition since the kernel has no separate ISR execution
// context of its own (SPEC_FULL.md §5 notes InsideISR as an arch.Port
// query a real port would use to reject task-only services, which Signal
// does not need to do).
func (s *Sem) ISignal() error { return s.Signal() }

func (s *Sem) signalLocked(cs critical) error {
	if s.k.firstWaiterComplete(cs, &s.waitList, nil, nil) {
		return nil
	}
	if s.count >= s.maxCount {
		return ErrOverflow
	}
	s.count++
	return nil
}

// Wait blocks the calling task t until the semaphore can be acquired or
// timeout elapses. timeout == 0 behaves as WaitPolling. timeout ==
// Infinite never times out.
func (s *Sem) Wait(t *Task, timeout uint32) error {
	if err := checkMagic(s.magic, magicSem); err != nil {
		return err
	}
	cs, done := s.k.enterCritical()
	defer done()
	if s.count > 0 {
		s.count--
		return nil
	}
	if timeout == 0 {
		return ErrTimeout
	}
	s.k.enterWait(cs, t, &s.waitList, WaitReasonSem, timeout, nil)
	return ErrWouldBlock
}

// WaitPolling attempts to acquire the semaphore without blocking.
func (s *Sem) WaitPolling(t *Task) error {
	return s.Wait(t, 0)
}

// IWaitPolling is the ISR-context variant of WaitPolling.
func (s *Sem) IWaitPolling(t *Task) error {
	return s.WaitPolling(t)
}

// Count returns the current semaphore count (for diagnostics/tests; the
// upstream kernel exposes no such accessor, but SPEC_FULL.md §8's testable
// invariant 6 is naturally checked against it).
func (s *Sem) Count() int {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.count
}
