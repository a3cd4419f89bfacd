// Package tnkernel implements the core of a preemptive, priority-based
// real-time microkernel for small single-core microcontrollers, rendered
// as a host-testable Go module rather than CPU-specific C.
//
// # Architecture
//
// A [Kernel] owns every piece of process-wide mutable state: the ready
// bitmap and per-priority ready queues, the current/next-to-run pointers,
// the tick counter, and the hierarchical timer wheel. Tasks ([Task]),
// semaphores ([Sem]), mutexes ([Mutex]), event groups ([EventGroup]),
// data queues ([Queue]) and fixed memory pools ([Pool]) are all created
// through the owning [Kernel] and share its single critical section.
//
// The kernel depends on one collaborator supplied by the host: an
// [arch.Port] standing in for the CPU-specific context-switch assembly,
// stack construction and interrupt masking this module does not implement.
// [arch.Sim] is a reference port that never resumes a task body — every
// testable behaviour in this module is expressed purely in terms of
// scheduler, queue and priority state, not real execution side effects.
//
// # Execution model
//
// Exactly three execution contexts exist: none (before [Kernel.Start]),
// task, and ISR. The kernel is single-threaded cooperative internally and
// preemptive between tasks: a task runs until it blocks, yields, is
// preempted by a higher-priority task becoming runnable, or its time
// slice expires on a tick. Every state mutation happens inside a critical
// section guarded by Kernel.mu, standing in for the global
// interrupt-disable region a real port would use.
//
// # Usage
//
//	k, err := tnkernel.New(tnkernel.WithArchPort(arch.NewSim()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var lowStack, highStack [256]uintptr
//	tLow, _ := k.TaskCreate(lowBody, 5, lowStack[:], nil, tnkernel.TaskCreateOpt{})
//	tHigh, _ := k.TaskCreate(highBody, 3, highStack[:], nil, tnkernel.TaskCreateOpt{})
//	k.TaskActivate(tLow)
//	k.TaskActivate(tHigh)
//
// # Error types
//
// Every blocking and non-blocking service returns one of the sentinel
// errors declared in errors.go ([ErrTimeout], [ErrOverflow],
// [ErrWrongContext], [ErrWrongState], [ErrWrongParam], [ErrIllegalUse],
// [ErrInvalidObject], [ErrDeleted], [ErrForced], [ErrInternal],
// [ErrWouldBlock]), matched with [errors.Is] rather than direct
// comparison, or nil on success. A blocking service that puts its task
// to sleep returns [ErrWouldBlock]; the eventual result is then reported
// by [Task.WaitResult].
package tnkernel
