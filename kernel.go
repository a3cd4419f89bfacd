package tnkernel

import (
	"context"
	"math/bits"
	"sync"

	"github.com/joeycumines/go-tnkernel/arch"
	"github.com/joeycumines/go-tnkernel/internal/diag"
	"github.com/joeycumines/go-tnkernel/internal/list"
)

// Kernel owns every piece of process-wide kernel state: the ready bitmap
// and per-priority ready queues, the current/next-to-run task, the tick
// counter and the hierarchical timer wheel. There are no package-level
// globals; every piece of kernel state lives in one *Kernel value,
// constructed once via New (SPEC_FULL.md §9, "Global mutable state ->
// explicit kernel context").
type Kernel struct {
	// mu is the single lock guarding all kernel state, standing in for the
	// global interrupt-disable register of a real embedded port.
	mu sync.Mutex

	port   arch.Port
	logger Logger

	priorityCount int
	readyBitmap   uint
	readyQueues   []list.Node // one FIFO header per priority

	current    *Task
	nextToRun  *Task
	idle       *Task
	idleBody   func(*Kernel)
	allTasks   []*Task
	nextTaskID uint64

	roundRobinQuantum uint32

	wheel             *wheel
	deadlockDetection bool
	fatalErrorHandler func(error, *Task)
	metrics           *metricsRecorder

	// diag rate-limits repeated deadlock-detected/deadlock-cleared log
	// entries for a cycle that persists across many ticks, so a stuck
	// deadlock doesn't flood the configured Logger.
	diag *diag.Limiter

	started bool
}

// New constructs a Kernel from the supplied options. It performs no
// allocation beyond this one-time setup; the kernel never allocates once
// running except where a component's contract explicitly requires it
// (none do: all kernel objects and stacks are caller-provided, per
// SPEC_FULL.md §1 Non-goals).
func New(opts ...KernelOption) (*Kernel, error) {
	cfg, err := resolveKernelOptions(opts)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		port:              cfg.archPort,
		logger:            cfg.logger,
		priorityCount:     cfg.priorityCount,
		readyQueues:       make([]list.Node, cfg.priorityCount),
		roundRobinQuantum: cfg.roundRobinQuantum,
		deadlockDetection: cfg.deadlockDetection,
		fatalErrorHandler: cfg.fatalErrorHandler,
		metrics:           newMetricsRecorder(cfg.metricsEnabled, cfg.priorityCount),
		diag:              diag.NewLimiter(map[uint32]int{64: 1}),
	}
	for i := range k.readyQueues {
		k.readyQueues[i].Init()
	}
	k.wheel = newWheel(cfg.wheelWidth)
	return k, nil
}

// Metrics returns a snapshot of the kernel's optional runtime metrics. If
// WithMetrics(true) was not supplied to New, the snapshot is always zero.
func (k *Kernel) Metrics() Metrics {
	return k.metrics.Snapshot()
}

// critical is an unexported token proving the kernel's single critical
// section is held, threaded through every internal leaf helper so the
// compiler statically prevents calling one outside a held critical
// section (SPEC_FULL.md §9, "Interrupt disable state").
type critical struct{}

// enterCritical acquires the kernel's critical section and the
// architecture port's interrupt-disable hook, returning a token and a
// release function. Safe to call reentrantly is NOT supported -- like the
// real interrupt-disable region it models, nesting is handled by the
// caller holding the single outer token for the whole operation.
func (k *Kernel) enterCritical() (critical, func()) {
	k.mu.Lock()
	saved := k.port.IntDisable()
	return critical{}, func() {
		k.port.IntRestore(saved)
		k.mu.Unlock()
	}
}

// diagAllow reports whether a diagnostic event in category may be logged
// right now without exceeding the kernel's configured rate limit,
// recording it if so (SPEC_FULL.md §2.2, rate limiting).
func (k *Kernel) diagAllow(category string) bool {
	return k.diag.Allow(category, k.wheel.counter)
}

func (k *Kernel) fatal(cs critical, err error, t *Task) {
	k.logger.Log(LogEntry{Level: LevelError, Category: "fatal", Task: t, Message: "internal invariant violation", Err: err})
	k.fatalErrorHandler(err, t)
}

// Start performs one-time kernel initialization: it fills in the idle
// task, runs userInit synchronously (standing in for the upstream
// kernel's idle-task-context invocation of user_init_cb, since arch.Sim
// never resumes a real idle task body), and primes next-to-run so the
// kernel is ready to run. It does not block; call Run or
// TickIntProcessing afterwards to drive ticks.
func (k *Kernel) Start(idleStackSize int, userInit func(*Kernel) error, idleBody func(*Kernel)) error {
	cs, done := k.enterCritical()
	if k.started {
		done()
		return wrapObject("kernel", "already started", ErrWrongState)
	}
	idlePriority := Priority(k.priorityCount - 1)
	stackLen := idleStackSize
	if stackLen < 1 {
		stackLen = 1
	}
	stack := make([]uintptr, stackLen)
	idle, err := k.taskCreateLocked(cs, func(any) {}, idlePriority, stack, nil, TaskCreateOpt{})
	if err != nil {
		done()
		return err
	}
	idle.isIdle = true
	k.idleBody = idleBody
	k.idle = idle
	k.taskActivateLocked(cs, idle)
	k.started = true
	k.recomputeNextToRunLocked(cs)
	done()

	// user_init_cb runs with interrupts conceptually disabled on the idle
	// task's behalf (SPEC_FULL.md §6); it is invoked outside the Go mutex
	// so that it may itself call ordinary Kernel methods that acquire the
	// critical section, matching how those methods behave for any other
	// caller.
	if userInit != nil {
		return userInit(k)
	}
	return nil
}

// TickIntProcessing is the tick entry point, called from the host's tick
// source. It is the only caller path that advances time and the timer
// wheel (SPEC_FULL.md §4.7, §6).
func (k *Kernel) TickIntProcessing() {
	cs, done := k.enterCritical()
	defer done()
	k.wheel.tick(cs, k)
	k.rotateRoundRobinLocked(cs)
}

// Run is a supplemented convenience driver loop (SPEC_FULL.md §6.1),
// grounded on the teacher's Loop.Run pump: it calls TickIntProcessing once
// per receive from tick until ctx is cancelled. It performs no scheduling
// decisions of its own -- all kernel bookkeeping happens synchronously
// inside TickIntProcessing and the task-service methods called from other
// goroutines or the same goroutine between ticks.
func (k *Kernel) Run(ctx context.Context, tick <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-tick:
			if !ok {
				return nil
			}
			k.TickIntProcessing()
		}
	}
}

// Current returns the task the kernel currently considers running, or nil
// before Start.
func (k *Kernel) Current() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// NextToRun returns the task the scheduler has selected to run next.
func (k *Kernel) NextToRun() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.nextToRun
}

// TaskInfo is a read-only snapshot of a task's state, used by Tasks so
// that introspection callbacks cannot mutate live kernel state
// (SPEC_FULL.md §4.8).
type TaskInfo struct {
	ID           uint64
	BasePriority Priority
	Priority     Priority
	State        TaskState
	WaitReason   WaitReason
}

// Tasks walks every task known to the kernel (including DORMANT ones) in
// creation order, invoking fn with a read-only snapshot. Walking stops
// early if fn returns false. This is the supplemented kernel
// introspection of SPEC_FULL.md §4.8.
func (k *Kernel) Tasks(fn func(TaskInfo) bool) {
	k.mu.Lock()
	snapshots := make([]TaskInfo, len(k.allTasks))
	for i, t := range k.allTasks {
		snapshots[i] = TaskInfo{ID: t.id, BasePriority: t.basePriority, Priority: t.priority, State: t.state, WaitReason: t.waitReason}
	}
	k.mu.Unlock()
	for _, s := range snapshots {
		if !fn(s) {
			return
		}
	}
}

// findFirstSet returns the priority of the lowest set bit in bitmap,
// preferring the architecture port's hardware primitive and falling back
// to the portable math/bits implementation (SPEC_FULL.md §4.1).
func (k *Kernel) findFirstSet(bitmap uint) (int, bool) {
	if bitmap == 0 {
		return 0, false
	}
	if idx, ok := k.port.FindFirstSet(bitmap); ok {
		return idx, true
	}
	return bits.TrailingZeros(bitmap), true
}
