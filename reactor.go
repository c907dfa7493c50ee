package corort

import (
	"sync"
	"time"
)

// Interest is a bit field of I/O directions a descriptor may be
// registered for. WRITE is deliberately bit 2 (not bit 1) to match the
// wire-compatible constants described in spec §6.
type Interest uint8

const (
	// InterestNone means the descriptor has no event context at all.
	InterestNone Interest = 0
	// InterestRead is readiness-to-read.
	InterestRead Interest = 1
	// InterestWrite is readiness-to-write.
	InterestWrite Interest = 4
)

// wheelCapMS bounds how long [Reactor.EventLoop] ever blocks in one
// iteration's readiness wait, so that the embedded [Wheel] still gets a
// chance to tick even under a very distant next-timeout.
const wheelCapMS = 1000

// maxEventsPerIteration is the cap on events drained from the kernel per
// [Reactor.EventLoop] iteration (spec §4.5).
const maxEventsPerIteration = 256

// eventContext is the per-descriptor bookkeeping a [Reactor] keeps: its
// current interest mask, optional callbacks or resume targets per
// direction, and a caller-supplied opaque pointer.
type eventContext struct {
	fd       int
	interest Interest

	readCB  func()
	writeCB func()
	readCo  *Coroutine
	writeCo *Coroutine

	userData any
}

// ReactorMetrics receives counts of reactor activity. A nil-valued
// (zero) ReactorMetrics is a no-op. See corometrics for a
// Prometheus-backed implementation.
type ReactorMetrics interface {
	Iteration()
	EventDispatched()
	RegisteredFDs(n int)
}

type noopReactorMetrics struct{}

func (noopReactorMetrics) Iteration()         {}
func (noopReactorMetrics) EventDispatched()   {}
func (noopReactorMetrics) RegisteredFDs(int)  {}

// Reactor wraps the kernel readiness monitor (epoll on Linux), keeping a
// per-descriptor [eventContext] and an embedded [Wheel]. All registrations
// are edge-triggered: handlers must drain their descriptor until
// EAGAIN/EWOULDBLOCK, since no further notification arrives otherwise.
type Reactor struct {
	poller *epollPoller
	wheel  *Wheel

	mu      sync.Mutex
	ctx     map[int]*eventContext
	stopped bool

	logger  Logger
	metrics ReactorMetrics

	fdRegistry *FdRegistry
}

var (
	reactorsMu sync.Mutex
	reactors   = map[int]*Reactor{}
)

// processStart anchors nowMS to this package's monotonic clock reading:
// time.Since measures against the monotonic component time.Now()
// captures, never the wall clock, so nowMS is immune to NTP steps or
// local clock changes mid-process.
var processStart = time.Now()

// nowMS is the monotonic clock, in milliseconds, used throughout this
// package for wheel scheduling. It is never wall-clock time.
func nowMS() int64 { return time.Since(processStart).Milliseconds() }

// NowMS exposes the same monotonic reading nowMS uses internally, for
// callers outside this package (e.g. hook) that need to hand a
// [Wheel.Add] call a timestamp on the same clock basis as the
// [Reactor] that owns the wheel.
func NowMS() int64 { return nowMS() }

// CurrentReactor returns the calling OS thread's Reactor, creating it
// (and its embedded timer [Wheel]) on first call. Per spec, reactors are
// thread-local; wheelSlots/granularityMS configure the embedded wheel
// only on first creation.
func CurrentReactor(wheelSlots int, granularityMS int64) (*Reactor, error) {
	tid := threadID()

	reactorsMu.Lock()
	defer reactorsMu.Unlock()
	if r, ok := reactors[tid]; ok {
		return r, nil
	}

	poller, err := newEpollPoller()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		poller:     poller,
		wheel:      NewWheel(wheelSlots, granularityMS, nowMS()),
		ctx:        map[int]*eventContext{},
		metrics:    noopReactorMetrics{},
		fdRegistry: CurrentFdRegistry(),
	}
	reactors[tid] = r
	return r, nil
}

// SetLogger installs the structured logger used for the warnings
// described in spec §7. A nil logger is a no-op sink.
func (r *Reactor) SetLogger(l Logger) { r.logger = l }

func (r *Reactor) log() Logger {
	if r.logger != nil {
		return r.logger
	}
	return noopLogger{}
}

// SetMetrics installs a metrics sink; nil restores the no-op sink. The
// embedded [Wheel] is wired to the same sink's timer counters.
func (r *Reactor) SetMetrics(m ReactorMetrics, wheelMetrics WheelMetrics) {
	if m == nil {
		m = noopReactorMetrics{}
	}
	r.metrics = m
	r.wheel.SetMetrics(wheelMetrics)
}

// Wheel returns the reactor's embedded timer wheel, for callers that want
// to inspect it directly (tests, metrics).
func (r *Reactor) Wheel() *Wheel { return r.wheel }

// Register installs or merges interest for fd: the descriptor is put
// into non-blocking mode if it is not already, and the kernel
// registration is added (new fd) or modified (existing fd). Per
// direction, a callback wins over a coroutine if both are given; a
// direction named in mask with neither is an error. Kernel failures are
// logged and returned as a boolean false rather than propagated.
func (r *Reactor) Register(mask Interest, fd int, readCB, writeCB func(), readCo, writeCo *Coroutine) (bool, error) {
	if mask&InterestRead != 0 && readCB == nil && readCo == nil {
		return false, ErrNoResumeTarget
	}
	if mask&InterestWrite != 0 && writeCB == nil && writeCo == nil {
		return false, ErrNoResumeTarget
	}

	if fdctx, _ := r.fdRegistry.Get(fd, true); fdctx != nil {
		if err := fdctx.SetNonBlock(); err != nil {
			r.log().Warn("reactor", "failed to set non-blocking", "fd", fd)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false, ErrReactorStopped
	}

	ec, exists := r.ctx[fd]
	if !exists {
		ec = &eventContext{fd: fd}
	}
	if mask&InterestRead != 0 {
		ec.readCB, ec.readCo = readCB, readCo
	}
	if mask&InterestWrite != 0 {
		ec.writeCB, ec.writeCo = writeCB, writeCo
	}
	ec.interest |= mask

	var err error
	if !exists {
		err = r.poller.add(fd, ec.interest)
	} else {
		err = r.poller.modify(fd, ec.interest)
	}
	if err != nil {
		r.log().Err("reactor", err, "op", "register", "fd", fd)
		return false, nil
	}

	r.ctx[fd] = ec
	r.metrics.RegisteredFDs(len(r.ctx))
	r.log().Debug("reactor", "registered", "fd", fd, "interest", mask)
	return true, nil
}

// Cancel clears the given interest bits for fd. If the resulting mask is
// InterestNone the entry is removed entirely; otherwise the kernel
// registration is modified. Any pending callback/coroutine for the
// cleared directions is dropped without being invoked. Canceling an
// unregistered fd is a silent no-op.
func (r *Reactor) Cancel(mask Interest, fd int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ec, ok := r.ctx[fd]
	if !ok {
		return true
	}

	if mask&InterestRead != 0 {
		ec.readCB, ec.readCo = nil, nil
	}
	if mask&InterestWrite != 0 {
		ec.writeCB, ec.writeCo = nil, nil
	}
	ec.interest &^= mask

	var err error
	if ec.interest == InterestNone {
		err = r.poller.del(fd)
		delete(r.ctx, fd)
	} else {
		err = r.poller.modify(fd, ec.interest)
	}
	if err != nil {
		r.log().Err("reactor", err, "op", "cancel", "fd", fd)
		return false
	}
	r.metrics.RegisteredFDs(len(r.ctx))
	return true
}

// Stop requests that [Reactor.EventLoop] exit after its current
// iteration.
func (r *Reactor) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

// EventLoop runs the reactor loop until [Reactor.Stop] is called. Each
// iteration: computes a bounded wait timeout from the wheel's next
// expiry, blocks in the kernel readiness monitor, dispatches read then
// write handlers (or resumes) for each ready descriptor in delivery
// order, and advances the embedded timer wheel.
func (r *Reactor) EventLoop() error {
	for {
		r.mu.Lock()
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return nil
		}

		now := nowMS()
		timeout := r.wheel.NextTimeout(now)
		if timeout <= 0 {
			timeout = 1
		}
		if timeout > wheelCapMS {
			timeout = wheelCapMS
		}

		fds, masks, err := r.poller.wait(int(timeout))
		if err != nil {
			r.log().Err("reactor", err, "op", "wait")
			return err
		}
		r.metrics.Iteration()

		for i, fd := range fds {
			r.dispatch(fd, masks[i])
		}

		r.wheel.Advance(nowMS())
	}
}

// dispatch runs the read handler/resume then the write handler/resume
// for fd, per the readiness bits observed. Per spec, for a given
// descriptor the read direction always runs before the write direction
// in the same iteration. Handler panics are recovered, logged, and do
// not stop the loop or unregister the descriptor.
func (r *Reactor) dispatch(fd int, mask Interest) {
	r.mu.Lock()
	ec, ok := r.ctx[fd]
	if !ok {
		r.mu.Unlock()
		return
	}
	var readCB, writeCB func()
	var readCo, writeCo *Coroutine
	if mask&InterestRead != 0 {
		readCB, readCo = ec.readCB, ec.readCo
	}
	if mask&InterestWrite != 0 {
		writeCB, writeCo = ec.writeCB, ec.writeCo
	}
	r.mu.Unlock()

	if readCB != nil || readCo != nil {
		r.invoke(fd, readCB, readCo)
	}
	if writeCB != nil || writeCo != nil {
		r.invoke(fd, writeCB, writeCo)
	}
}

func (r *Reactor) invoke(fd int, cb func(), co *Coroutine) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log().Warn("reactor", "handler panicked", "fd", fd, "panic", rec)
		}
	}()
	r.metrics.EventDispatched()
	if cb != nil {
		cb()
		return
	}
	co.Resume()
}
