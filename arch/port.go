// Package arch defines the architecture-port boundary the kernel requires
// from its host: context-switch requests, stack construction, interrupt
// masking and find-first-set. Real CPU-specific context-switch assembly,
// interrupt vector dispatch and the hardware tick source are explicitly
// out of scope for this module (see SPEC_FULL.md §1) — Port is the entire
// contract across that boundary.
package arch

// StackPointer is an opaque, port-defined representation of a task's saved
// stack pointer. The kernel never dereferences it; it only stores and
// passes it back to the port.
type StackPointer uintptr

// Body is a task's entry function, invoked (conceptually, by a real port)
// with the argument supplied at creation time.
type Body func(arg any)

// Port is the architecture-specific collaborator the kernel depends on.
// A real embedded port implements every method against actual CPU state;
// Sim, the reference implementation in this package, implements the same
// contract as bookkeeping only and never resumes a Body.
type Port interface {
	// IntDisable masks interrupts globally and returns an opaque saved
	// state token to be passed back to IntRestore.
	IntDisable() (saved uint32)
	// IntEnable unconditionally unmasks interrupts.
	IntEnable()
	// IntRestore restores a previously saved interrupt-mask state.
	IntRestore(saved uint32)
	// IsIntDisabled reports whether interrupts are currently masked.
	IsIntDisabled() bool
	// InsideISR reports whether the port believes it is currently
	// executing on behalf of an interrupt handler.
	InsideISR() bool

	// StackInit builds an initial stack frame for a new task such that
	// resuming it enters body(arg) with interrupts enabled and a return
	// address pointing at the kernel's task-exit trampoline. stackTop is
	// the ABI-correct top-of-stack pointer as returned by StackTopGet.
	StackInit(body Body, arg any, stackTop StackPointer) StackPointer
	// StackTopGet computes the ABI-correct top-of-stack pointer given the
	// low address and size of a caller-provided stack buffer.
	StackTopGet(lowAddr uintptr, size int) StackPointer

	// ContextSwitchPend requests that a context switch occur as soon as
	// the current interrupt-disabled region ends and any ISR nesting
	// unwinds. It must not switch synchronously.
	ContextSwitchPend()
	// ContextSwitchNowNoSave requests an immediate switch without saving
	// the outgoing context, used for task exit and the very first switch
	// out of Kernel.Start.
	ContextSwitchNowNoSave()

	// FindFirstSet returns the index of the lowest set bit of bitmap, or
	// -1 if bitmap is zero. A real port may back this with a hardware
	// CLZ/CTZ instruction; returning false leaves it to the kernel's
	// portable math/bits fallback.
	FindFirstSet(bitmap uint) (index int, ok bool)
}
