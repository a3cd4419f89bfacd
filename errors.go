// Package tnkernel provides a preemptive, priority-based real-time
// microkernel core: scheduler, task state machine, semaphore, mutex with
// priority inheritance and priority ceiling, event group, bounded data
// queue, fixed-size block memory pool, and a hierarchical timer wheel.
package tnkernel

import (
	"errors"
	"fmt"
)

// Sentinel errors corresponding to the kernel's RC result codes. OK is
// rendered as a nil error return rather than a sentinel, matching Go
// convention. Compare with errors.Is, not ==, since some call sites wrap
// these with additional context via fmt.Errorf("%w", ...).
var (
	ErrTimeout       = errors.New("tnkernel: timeout")
	ErrOverflow      = errors.New("tnkernel: overflow")
	ErrWrongContext  = errors.New("tnkernel: wrong execution context")
	ErrWrongState    = errors.New("tnkernel: wrong object state")
	ErrWrongParam    = errors.New("tnkernel: wrong parameter")
	ErrIllegalUse    = errors.New("tnkernel: illegal use")
	ErrInvalidObject = errors.New("tnkernel: invalid object")
	ErrDeleted       = errors.New("tnkernel: object deleted while waiting")
	ErrForced        = errors.New("tnkernel: wait forcibly released")
	ErrInternal      = errors.New("tnkernel: internal invariant violation")

	// ErrWouldBlock is returned by a blocking service when the calling
	// task has been placed into WAIT rather than completed synchronously.
	// It is not one of the upstream RC codes: the original kernel's
	// blocking call genuinely suspends the calling thread of control and
	// only returns once the wait resolves. This Go rendering never
	// executes a task body (arch.Sim is bookkeeping only, per
	// SPEC_FULL.md §1), so a blocking call cannot suspend the caller's
	// goroutine and later resume it with the eventual RC; instead it
	// returns ErrWouldBlock immediately, and the eventual RC is delivered
	// either through a destination pointer supplied by the caller (for
	// services that hand off a value, mirroring the upstream C API's own
	// output-parameter style) or via Task.WaitResult once some other
	// operation resolves the wait.
	ErrWouldBlock = errors.New("tnkernel: task entered wait; result pending")
)

// AggregateError collects multiple failures from an operation that must
// attempt all of several independent steps before reporting — Kernel.Shutdown
// unwinds every task it is given and reports every one that failed rather
// than stopping at the first.
type AggregateError struct {
	Errors []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "tnkernel: aggregate error (empty)"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tnkernel: %d errors, first: %v", len(e.Errors), e.Errors[0])
}

// Unwrap returns the wrapped errors for errors.Is/errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Is reports whether target is an *AggregateError (regardless of its
// contents) or matches one of the wrapped errors.
func (e *AggregateError) Is(target error) bool {
	var aggTarget *AggregateError
	return errors.As(target, &aggTarget)
}

// wrapObject annotates err with the kind and a caller-supplied identifier,
// preserving errors.Is against the sentinel via %w.
func wrapObject(kind, detail string, err error) error {
	return fmt.Errorf("tnkernel: %s %s: %w", kind, detail, err)
}
