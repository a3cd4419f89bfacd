// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package tnkernel

import (
	"math/bits"

	"github.com/joeycumines/go-tnkernel/arch"
)

// kernelOptions holds configuration resolved from KernelOption values at
// New time.
type kernelOptions struct {
	priorityCount     int
	wheelWidth        uint32
	roundRobinQuantum uint32
	deadlockDetection bool
	metricsEnabled    bool
	logger            Logger
	archPort          arch.Port
	fatalErrorHandler func(error, *Task)
}

// --- Kernel Options ---

// KernelOption configures a Kernel instance.
type KernelOption interface {
	applyKernel(*kernelOptions) error
}

// kernelOptionImpl implements KernelOption.
type kernelOptionImpl struct {
	applyKernelFunc func(*kernelOptions) error
}

func (o *kernelOptionImpl) applyKernel(opts *kernelOptions) error {
	return o.applyKernelFunc(opts)
}

// WithPriorityCount sets the number of schedulable priority levels, P, in
// [2, bits.UintSize]. Priority 0 is the highest; P-1 is reserved for the
// idle task. Defaults to the machine word width, matching the original
// kernel's TN_PRIORITIES_CNT == TN_INT_WIDTH convention.
func WithPriorityCount(p int) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if p < 2 || p > bits.UintSize {
			return wrapObject("priority count", "out of range", ErrWrongParam)
		}
		opts.priorityCount = p
		return nil
	}}
}

// WithWheelWidth sets K, the number of tick-indexed timer wheel FIFOs. K
// must be a power of two, K >= 2. Defaults to 64.
func WithWheelWidth(k uint32) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if k < 2 || k&(k-1) != 0 {
			return wrapObject("wheel width", "must be a power of two >= 2", ErrWrongParam)
		}
		opts.wheelWidth = k
		return nil
	}}
}

// WithRoundRobinQuantum sets the default per-priority time-slice length,
// in ticks. 0 (the default) disables round-robin rotation.
func WithRoundRobinQuantum(ticks uint32) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.roundRobinQuantum = ticks
		return nil
	}}
}

// WithDeadlockDetection enables mutex holder-chain deadlock detection. A
// detected cycle is recorded on each participating mutex (see
// Mutex.DeadlockInfo) and logged through the configured Logger; no user
// callback is invoked. Disabled by default, matching the upstream kernel's optional TN_MUTEX_DEADLOCK_DETECT
// build flag.
func WithDeadlockDetection(enabled bool) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.deadlockDetection = enabled
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Kernel. When
// enabled, metrics can be accessed via Kernel.Metrics(). Disabled by
// default.
func WithMetrics(enabled bool) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithLogger installs a structured diagnostics sink. Defaults to
// NoOpLogger.
func WithLogger(l Logger) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if l == nil {
			return wrapObject("logger", "nil", ErrWrongParam)
		}
		opts.logger = l
		return nil
	}}
}

// WithArchPort installs the architecture-port collaborator. Defaults to
// arch.NewSim().
func WithArchPort(p arch.Port) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if p == nil {
			return wrapObject("arch port", "nil", ErrWrongParam)
		}
		opts.archPort = p
		return nil
	}}
}

// WithFatalErrorHandler installs the hook invoked when the kernel detects
// an INTERNAL invariant violation. The default handler logs at Error level
// and panics; the kernel never recovers from INTERNAL regardless of what
// the handler does, so a custom handler must not expect the kernel to
// remain usable after it returns.
func WithFatalErrorHandler(fn func(error, *Task)) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if fn == nil {
			return wrapObject("fatal error handler", "nil", ErrWrongParam)
		}
		opts.fatalErrorHandler = fn
		return nil
	}}
}

// resolveKernelOptions applies KernelOption instances to kernelOptions.
func resolveKernelOptions(opts []KernelOption) (*kernelOptions, error) {
	cfg := &kernelOptions{
		priorityCount:     bits.UintSize,
		wheelWidth:        64,
		roundRobinQuantum: 0,
		logger:            NoOpLogger{},
		archPort:          arch.NewSim(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyKernel(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.fatalErrorHandler == nil {
		logger := cfg.logger
		cfg.fatalErrorHandler = func(err error, t *Task) {
			logger.Log(LogEntry{Level: LevelError, Message: "fatal error", Err: err, Task: t})
			panic(err)
		}
	}
	return cfg, nil
}
