package corort

import "errors"

// Sentinel errors returned by the scheduler, stack allocator, and reactor.
//
// Contract violations (yielding with only the bootstrap coroutine on the
// invocation stack, resuming a coroutine that is not ready) are
// assertion-style failures per spec: they panic when built with assertions
// enabled ([AssertionsEnabled]) and are silent no-ops otherwise. Resuming
// a terminated coroutine is not a violation: it is always a no-op (see
// [ErrResumeTerminated]). Kernel and allocation failures are always
// returned as errors, never panics.
var (
	// ErrIllegalYield is raised by [Scheduler.Yield] when the invocation
	// stack depth is less than 2, i.e. only the bootstrap coroutine is
	// running. The bootstrap coroutine may never yield.
	ErrIllegalYield = errors.New("corort: yield with only bootstrap coroutine on invocation stack")

	// ErrResumeTerminated is the (silent, non-fatal) condition signaled
	// internally when [Coroutine.Resume] targets a coroutine that has
	// already reached [StateTerminated]. Resume on a terminated
	// coroutine is defined as a no-op; this error exists so callers that
	// want to observe the no-op may do so via [Coroutine.TryResume].
	ErrResumeTerminated = errors.New("corort: resume of terminated coroutine")

	// ErrResumeNotReady is raised when Resume is asserted against a
	// coroutine that is not in StateReady (contract violation).
	ErrResumeNotReady = errors.New("corort: resume target is not ready")

	// ErrAllocFailed wraps a fatal failure to allocate a stack region.
	// Per spec this is always fatal: callers should abort the worker.
	ErrAllocFailed = errors.New("corort: stack allocation failed")

	// ErrInvalidRepeatCount is returned by [Wheel.Add] when repeatCount
	// is zero (inert, never valid for a freshly added item).
	ErrInvalidRepeatCount = errors.New("corort: timer repeat count must be non-zero")

	// ErrNoResumeTarget is returned by [Reactor.Register] when a
	// direction is given neither a callback nor a coroutine to resume.
	ErrNoResumeTarget = errors.New("corort: interest direction requires a callback or a coroutine")

	// ErrReactorStopped is returned by reactor operations attempted
	// after [Reactor.Stop] has taken effect.
	ErrReactorStopped = errors.New("corort: reactor stopped")

	// ErrStaleMarker is raised by [Coroutine.enterSlot] when a coroutine
	// is evicted from a shared stack slot without its switch-sequence
	// marker having been resampled since its last eviction: a contract
	// violation indicating some caller swapped it out without going
	// through [Coroutine.bumpMarker] first.
	ErrStaleMarker = errors.New("corort: evicted coroutine has a stale switch marker")
)

// AssertionsEnabled gates the assertion-style aborts described in spec
// §7 (contract violations). It defaults to true in this package; tests
// that want to observe the no-op/silent behavior set it false for their
// duration. This mirrors a Go idiom for swapping between debug and
// release semantics without build tags, at the cost of being
// process-wide rather than per-call.
var AssertionsEnabled = true
