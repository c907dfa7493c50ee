package corort

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Scheduler is the single-threaded cooperative scheduler for one worker.
// It maintains the invocation stack of [Coroutine] values for that
// worker: an ordered sequence with the bootstrap coroutine always at
// index 0 and the currently-running coroutine always at the top.
//
// Exactly one Scheduler exists per OS thread (see [CurrentScheduler]).
// The Scheduler owns no OS thread of its own: the application decides how
// many worker goroutines to run, each pinned via [runtime.LockOSThread],
// and drives its own [Reactor.EventLoop].
type Scheduler struct {
	tid       int
	stack     []*Coroutine
	bootstrap *Coroutine
	nextID    uint64
	logger    Logger
}

var (
	schedulersMu sync.Mutex
	schedulers   = map[int]*Scheduler{}
)

// threadID returns the calling OS thread's kernel TID, used as the key
// for every thread-local table in this package ([Scheduler],
// [FdRegistry], [Reactor]). Callers establishing a new worker must have
// pinned themselves with [runtime.LockOSThread] first.
func threadID() int { return unix.Gettid() }

// CurrentScheduler returns the calling OS thread's Scheduler, creating it
// (and its bootstrap coroutine) on first call. The caller must have
// called [runtime.LockOSThread] before the first call on a given thread,
// and must keep calling from that same thread for the Scheduler's
// lifetime: per spec, per-worker state (including the Scheduler) is
// thread-local, never shared across workers.
func CurrentScheduler() *Scheduler {
	tid := threadID()

	schedulersMu.Lock()
	defer schedulersMu.Unlock()

	if s, ok := schedulers[tid]; ok {
		return s
	}

	s := &Scheduler{tid: tid, nextID: 1}
	s.bootstrap = newBootstrapCoroutine(s)
	s.stack = []*Coroutine{s.bootstrap}
	schedulers[tid] = s
	return s
}

// SetLogger installs the structured logger used for lifecycle and
// warning events on this scheduler and anything it drives (coroutines,
// and, if shared, a [Reactor]). A nil logger is a no-op sink.
func (s *Scheduler) SetLogger(l Logger) { s.logger = l }

func (s *Scheduler) log() Logger {
	if s.logger != nil {
		return s.logger
	}
	return noopLogger{}
}

// Current returns the currently RUNNING coroutine: the top of the
// invocation stack.
func (s *Scheduler) Current() *Coroutine {
	return s.stack[len(s.stack)-1]
}

// Depth returns the number of coroutines currently on the invocation
// stack, used by the syscall hook layer as a yield guard.
func (s *Scheduler) Depth() int { return len(s.stack) }

// Bootstrap returns the worker's bootstrap coroutine.
func (s *Scheduler) Bootstrap() *Coroutine { return s.bootstrap }

// Yield suspends the currently RUNNING coroutine, returning control to
// whichever coroutine resumed it. Requires stack depth >= 2: the
// bootstrap coroutine may never yield. Violating this is a contract
// violation (spec §7): it panics with [ErrIllegalYield] when
// [AssertionsEnabled], and is a silent no-op otherwise.
func (s *Scheduler) Yield() {
	if len(s.stack) < 2 {
		if AssertionsEnabled {
			panic(ErrIllegalYield)
		}
		return
	}

	top := s.pop()
	top.bumpMarker()
	top.setState(StateReady)

	below := s.Current()
	below.setState(StateRunning)
	below.enterSlot()

	below.signalIn()
	<-top.turn
}

// push places target on top of the invocation stack.
func (s *Scheduler) push(target *Coroutine) {
	s.stack = append(s.stack, target)
}

// pop removes and returns the top of the invocation stack.
func (s *Scheduler) pop() *Coroutine {
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return top
}
