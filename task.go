package tnkernel

import (
	"unsafe"

	"github.com/joeycumines/go-tnkernel/arch"
	"github.com/joeycumines/go-tnkernel/internal/list"
)

// Priority is a schedulable priority level. 0 is numerically the highest
// urgency; P-1 (the idle task's fixed priority) is the lowest.
type Priority int

// TaskState is a bitmask over the task lifecycle states. Unlike the
// teacher's FastState (a single linear enum transitioned via CAS), this is
// a combinable bitmask -- WAIT and SUSPEND may be set simultaneously,
// giving WAITSUSP (SPEC_FULL.md §3.1) -- so it is guarded by the kernel's
// single critical section rather than compare-and-swap.
type TaskState uint8

const (
	TaskRunnable TaskState = 1 << iota
	TaskWait
	TaskSuspend
	TaskDormant
)

// String returns a human-readable representation of the combined state
// bits.
func (s TaskState) String() string {
	if s == 0 {
		return "NONE"
	}
	out := ""
	add := func(bit TaskState, name string) {
		if s&bit != 0 {
			if out != "" {
				out += "|"
			}
			out += name
		}
	}
	add(TaskRunnable, "RUNNABLE")
	add(TaskWait, "WAIT")
	add(TaskSuspend, "SUSPEND")
	add(TaskDormant, "DORMANT")
	return out
}

// WaitReason identifies why a task is blocked.
type WaitReason int

const (
	WaitReasonNone WaitReason = iota
	WaitReasonSleep
	WaitReasonSem
	WaitReasonEvent
	WaitReasonQueueSend
	WaitReasonQueueReceive
	WaitReasonMutexCeiling
	WaitReasonMutexInherit
	WaitReasonFixedMem
)

// Infinite, when passed as a timeout, means the wait never times out.
const Infinite uint32 = 0xffffffff

// TaskCreateOpt holds optional task creation flags.
type TaskCreateOpt struct {
	// ActivateNow activates the task immediately after creation instead
	// of leaving it DORMANT.
	ActivateNow bool
}

// Task is a TCB: the per-task kernel state (SPEC_FULL.md §3).
type Task struct {
	magic uint32
	k     *Kernel
	id    uint64

	body arch.Body
	arg  any
	sp   arch.StackPointer

	basePriority Priority
	priority     Priority
	state        TaskState
	waitReason   WaitReason
	waitResult   error

	// listNode links this task into exactly one of: a kernel ready queue,
	// or a blocking object's wait list. waitList, when non-nil, is the
	// header of the latter.
	listNode list.Node
	waitList *list.Node

	// waitTimer is the kernel-private wheel entry backing a finite
	// timeout on whatever this task is currently waiting for; it is
	// distinct from any Timer objects the embedder creates.
	waitTimer timer

	// sendWaitSlot is the "before complete" hand-off slot. While a task
	// waits to receive (queue receive, fixed-memory get, event group wait)
	// it holds the waiter's destination pointer, through which the
	// producer writes the handed value before the task is made runnable
	// again; while a task waits to send on a queue it holds the value
	// being sent. Semaphore waits do not use it.
	sendWaitSlot any

	// Event-group wait parameters, valid only while waitReason ==
	// WaitReasonEvent.
	eventWaitPattern   uint
	eventWaitMode      EventMode
	eventWaitAutoClear bool

	// ownedMutexes is the header of the list of mutexes this task
	// currently holds, used to recompute priority per SPEC_FULL.md §3(e).
	ownedMutexes list.Node

	// blockedOnMutex is set while this task is blocked trying to lock a
	// mutex, used to walk the holder chain for priority inheritance and
	// deadlock detection (SPEC_FULL.md §4.4).
	blockedOnMutex *Mutex

	sliceCounter uint32
	waitStartTC  uint32
	isIdle       bool
}

// ID returns a stable, kernel-assigned identifier for diagnostic use.
func (t *Task) ID() uint64 { return t.id }

// BasePriority returns the task's fixed creation-time priority.
func (t *Task) BasePriority() Priority {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.basePriority
}

// Priority returns the task's current (possibly inheritance/ceiling
// boosted) priority.
func (t *Task) Priority() Priority {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.priority
}

// State returns the task's current state bitmask.
func (t *Task) State() TaskState {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.state
}

// WaitResult returns the outcome of the most recently resolved (or
// currently pending) wait: nil if the task acquired/was woken cleanly,
// or one of ErrTimeout/ErrForced/ErrDeleted. Meaningful once the wait
// that returned ErrWouldBlock has actually resolved -- check State()
// for TaskWait first if that matters to the caller.
func (t *Task) WaitResult() error {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.waitResult
}

func (t *Task) runnable() bool  { return t.state&TaskRunnable != 0 }
func (t *Task) waiting() bool   { return t.state&TaskWait != 0 }
func (t *Task) suspended() bool { return t.state&TaskSuspend != 0 }
func (t *Task) dormant() bool   { return t.state&TaskDormant != 0 }

// TaskCreate constructs a new task in the DORMANT state (or RUNNABLE, if
// opt.ActivateNow is set). stack is caller-provided storage; the kernel
// never allocates a task's stack.
func (k *Kernel) TaskCreate(body arch.Body, priority Priority, stack []uintptr, arg any, opt TaskCreateOpt) (*Task, error) {
	cs, done := k.enterCritical()
	defer done()
	return k.taskCreateLocked(cs, body, priority, stack, arg, opt)
}

func (k *Kernel) taskCreateLocked(cs critical, body arch.Body, priority Priority, stack []uintptr, arg any, opt TaskCreateOpt) (*Task, error) {
	if body == nil || len(stack) == 0 {
		return nil, wrapObject("task", "create", ErrWrongParam)
	}
	if priority < 0 || int(priority) >= k.priorityCount {
		return nil, wrapObject("task", "priority out of range", ErrWrongParam)
	}
	k.nextTaskID++
	t := &Task{
		magic:        magicTask,
		k:            k,
		id:           k.nextTaskID,
		body:         body,
		arg:          arg,
		basePriority: priority,
		priority:     priority,
		state:        TaskDormant,
	}
	t.listNode.Init()
	t.ownedMutexes.Init()
	t.waitTimer.init()
	top := k.port.StackTopGet(uintptr(unsafe.Pointer(&stack[0])), len(stack)*int(unsafe.Sizeof(stack[0])))
	t.sp = k.port.StackInit(body, arg, top)
	k.allTasks = append(k.allTasks, t)
	if opt.ActivateNow {
		k.taskActivateLocked(cs, t)
	}
	return t, nil
}

// TaskActivate makes a DORMANT task RUNNABLE, (re)initializing its stack.
func (k *Kernel) TaskActivate(t *Task) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if !t.dormant() {
		return wrapObject("task", "activate", ErrWrongState)
	}
	k.taskActivateLocked(cs, t)
	return nil
}

func (k *Kernel) taskActivateLocked(cs critical, t *Task) {
	t.sp = k.port.StackInit(t.body, t.arg, t.sp)
	t.state = TaskRunnable
	t.sliceCounter = 0
	k.makeRunnableLocked(cs, t)
	k.recomputeNextToRunLocked(cs)
}

// TaskSleep puts the caller into WAIT with reason SLEEP for timeout
// ticks. Returns nil if woken by TaskWakeup, ErrTimeout on expiry,
// ErrForced if released. timeout == 0 returns ErrTimeout immediately.
func (k *Kernel) TaskSleep(t *Task, timeout uint32) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if !t.runnable() {
		return wrapObject("task", "sleep", ErrWrongState)
	}
	if timeout == 0 {
		return ErrTimeout
	}
	k.enterWait(cs, t, nil, WaitReasonSleep, timeout, nil)
	return ErrWouldBlock
}

// TaskWakeup wakes a task sleeping with reason SLEEP.
func (k *Kernel) TaskWakeup(t *Task) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if !t.waiting() || t.waitReason != WaitReasonSleep {
		return wrapObject("task", "wakeup", ErrWrongState)
	}
	k.completeWait(cs, t, nil)
	return nil
}

// TaskReleaseWait forcibly releases a waiting task with ErrForced.
func (k *Kernel) TaskReleaseWait(t *Task) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if !t.waiting() {
		return wrapObject("task", "release_wait", ErrWrongState)
	}
	k.completeWait(cs, t, ErrForced)
	return nil
}

// TaskSuspend sets SUSPEND, removing the task from the ready queue if it
// was RUNNABLE.
func (k *Kernel) TaskSuspend(t *Task) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if t.dormant() || t.suspended() {
		return wrapObject("task", "suspend", ErrWrongState)
	}
	if t.runnable() {
		k.clearRunnableLocked(cs, t)
	}
	t.state |= TaskSuspend
	k.recomputeNextToRunLocked(cs)
	return nil
}

// TaskResume clears SUSPEND; if WAIT is not also set, the task becomes
// RUNNABLE.
func (k *Kernel) TaskResume(t *Task) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if !t.suspended() {
		return wrapObject("task", "resume", ErrWrongState)
	}
	t.state &^= TaskSuspend
	if t.state&TaskWait == 0 {
		t.state |= TaskRunnable
		k.makeRunnableLocked(cs, t)
	}
	k.recomputeNextToRunLocked(cs)
	return nil
}

// TaskChangePriority rebuilds the task's priority from its base priority
// and every mutex it owns, moving it between ready FIFOs if RUNNABLE.
func (k *Kernel) TaskChangePriority(t *Task, newBase Priority) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if newBase < 0 || int(newBase) >= k.priorityCount {
		return wrapObject("task", "change_priority", ErrWrongParam)
	}
	t.basePriority = newBase
	k.recomputeTaskPriorityLocked(cs, t)
	return nil
}

// TaskExit clears RUNNABLE, unlocks every mutex the task holds, and
// returns it to DORMANT (optionally deleting it), then performs a context
// switch that does not save the outgoing context -- the exiting task's
// context is discarded, never resumed (spec.md §4.1 "Exit"; SPEC_FULL.md
// §6, "context_switch_now_nosave() -- for task exit and first switch").
func (k *Kernel) TaskExit(t *Task, deleteAfter bool) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	return k.taskExitLocked(cs, t, deleteAfter, true)
}

// taskExitLocked is shared by TaskExit, TaskTerminate and Shutdown.
// noSaveSwitch selects which of the two context-switch request styles the
// scheduling decision uses afterward: TaskExit always discards its own
// (the caller's) outgoing context unconditionally, while TaskTerminate
// merely requests an ordinary pended switch since the currently running
// task's context is untouched by terminating some other task (original
// source: tn_task_exit, tn_tasks.c:639, vs tn_task_terminate, tn_tasks.c:694).
func (k *Kernel) taskExitLocked(cs critical, t *Task, deleteAfter bool, noSaveSwitch bool) error {
	if t.waiting() {
		k.completeWait(cs, t, ErrForced)
	}
	if t.runnable() {
		k.clearRunnableLocked(cs, t)
	}
	for {
		n := list.Head(&t.ownedMutexes)
		if n == nil {
			break
		}
		m := n.Value.(*Mutex)
		k.mutexUnlockLocked(cs, m, t)
	}
	t.state = TaskDormant
	t.priority = t.basePriority
	if noSaveSwitch {
		k.recomputeNextToRunForExitLocked(cs)
	} else {
		k.recomputeNextToRunLocked(cs)
	}
	if deleteAfter {
		return k.taskDeleteLocked(t)
	}
	return nil
}

// TaskTerminate performs TaskExit's side effects on another task. It
// cannot be used on the currently running task -- use TaskExit instead,
// matching the original kernel's WCONTEXT rejection (original source:
// tn_task_terminate, tn_tasks.c:671-674, "cannot terminate currently
// running task").
func (k *Kernel) TaskTerminate(t *Task) error {
	cs, done := k.enterCritical()
	defer done()
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if t == k.current {
		return wrapObject("task", "terminate", ErrWrongContext)
	}
	return k.taskExitLocked(cs, t, false, false)
}

// Shutdown unwinds every task in tasks back to DORMANT, as TaskExit does
// for a single task, attempting every one even if some fail rather than
// stopping at the first, and reporting every failure together as a single
// *AggregateError (SPEC_FULL.md §2.1, "Typed, wrapped errors"). A nil task,
// an already-deleted task, or the kernel's idle task each count as one
// failure; a task already DORMANT is treated as already shut down and
// skipped without error.
func (k *Kernel) Shutdown(tasks ...*Task) error {
	cs, done := k.enterCritical()
	defer done()
	var errs []error
	for _, t := range tasks {
		if t == nil {
			errs = append(errs, wrapObject("task", "shutdown: nil task", ErrInvalidObject))
			continue
		}
		if err := checkMagic(t.magic, magicTask); err != nil {
			errs = append(errs, wrapObject("task", "shutdown", err))
			continue
		}
		if t == k.idle {
			errs = append(errs, wrapObject("task", "shutdown: cannot terminate idle task", ErrIllegalUse))
			continue
		}
		if t.dormant() {
			continue
		}
		if err := k.taskExitLocked(cs, t, false, true); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}

// TaskDelete removes a DORMANT task from the kernel's bookkeeping.
func (k *Kernel) TaskDelete(t *Task) error {
	cs, done := k.enterCritical()
	defer done()
	_ = cs
	if err := checkMagic(t.magic, magicTask); err != nil {
		return err
	}
	if !t.dormant() {
		return wrapObject("task", "delete", ErrWrongState)
	}
	return k.taskDeleteLocked(t)
}

func (k *Kernel) taskDeleteLocked(t *Task) error {
	for i, other := range k.allTasks {
		if other == t {
			k.allTasks = append(k.allTasks[:i], k.allTasks[i+1:]...)
			break
		}
	}
	t.magic = 0
	return nil
}
