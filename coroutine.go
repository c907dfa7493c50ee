package corort

// State is a coroutine's lifecycle state.
type State int32

const (
	// StateReady means the coroutine may be resumed.
	StateReady State = iota
	// StateRunning means the coroutine is on top of its scheduler's
	// invocation stack.
	StateRunning
	// StateTerminated is the sink state, reached exactly once, after the
	// coroutine's entry procedure returns or panics.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "invalid"
	}
}

// Attr configures a [Spawn] call.
type Attr struct {
	// StackSize is the byte size of the coroutine's private scratch
	// region, rounded up to a page multiple. Ignored if SharedPool is set.
	StackSize int
	// SharedPool, if non-nil, hands the coroutine a rotating slot from
	// the pool instead of a private region.
	SharedPool *StackPool
}

// Coroutine is a unit of suspendable execution: a user-supplied entry
// procedure, a lifecycle [State], and either a private [StackRegion] or a
// slot in a [StackPool]. See "Machine context" in the package doc for how
// this maps onto a real goroutine instead of a literal stack swap.
type Coroutine struct {
	id     uint64
	sched  *Scheduler
	entry  func()
	isMain bool

	state State

	region *StackRegion
	pool   *StackPool

	saveArea []byte // owned snapshot, copied out when evicted from a shared slot
	marker   uint64 // switch-sequence number, resampled at every outgoing swap

	lastEvictMarker uint64 // marker value observed at this coroutine's last eviction from a shared slot
	evicted         bool   // whether lastEvictMarker has been set at least once

	turn    chan struct{}
	started bool

	panicVal any
}

// newBootstrapCoroutine builds the implicit coroutine representing the
// calling OS thread's own call stack. It has no entry procedure, never
// suspends, and is always RUNNING while on top of the invocation stack.
func newBootstrapCoroutine(s *Scheduler) *Coroutine {
	return &Coroutine{
		sched:   s,
		isMain:  true,
		state:   StateRunning,
		turn:    make(chan struct{}),
		started: true,
	}
}

// Spawn constructs a READY coroutine on sched. attr.SharedPool, if set,
// assigns a rotating slot from that pool; otherwise a private region of
// attr.StackSize bytes is allocated. entry is the nullary procedure run
// when the coroutine is first resumed.
func Spawn(sched *Scheduler, attr Attr, entry func()) *Coroutine {
	c := &Coroutine{
		sched: sched,
		entry: entry,
		state: StateReady,
		turn:  make(chan struct{}),
	}

	if attr.SharedPool != nil {
		c.pool = attr.SharedPool
		c.region = attr.SharedPool.NextSlot()
	} else {
		size := attr.StackSize
		if size <= 0 {
			size = pageSize
		}
		c.region = allocRegion(size)
	}

	sched.nextID++
	c.id = sched.nextID
	sched.log().Debug("coroutine", "spawned", "coroutine_id", c.id)
	return c
}

// ID returns the coroutine's scheduler-unique identifier.
func (c *Coroutine) ID() uint64 { return c.id }

// State returns the coroutine's current lifecycle state.
func (c *Coroutine) State() State { return c.state }

func (c *Coroutine) setState(s State) { c.state = s }

// IsMain reports whether this is the worker's bootstrap coroutine.
func (c *Coroutine) IsMain() bool { return c.isMain }

// Region returns the scratch region backing this coroutine's stack: a
// private region, or its current slot in a shared pool. See
// [StackRegion.Bytes] for the memory a coroutine's own code may use as
// working storage that survives shared-slot save/restore.
func (c *Coroutine) Region() *StackRegion { return c.region }

// Scheduler returns the coroutine's owning scheduler.
func (c *Coroutine) Scheduler() *Scheduler { return c.sched }

// bumpMarker resamples the switch-sequence marker. Every outgoing swap
// (TryResume's caller, Yield's top) must call this on itself before the
// incoming coroutine's [Coroutine.enterSlot] runs, so that enterSlot can
// tell a fresh eviction from a stale one — see [ErrStaleMarker].
func (c *Coroutine) bumpMarker() { c.marker++ }

// enterSlot performs the shared-stack save/restore algorithm of spec
// §4.2 for a coroutine about to become RUNNING. If c occupies a region
// from a [StackPool] and that region's current occupant is a different
// coroutine, the occupant's live bytes are copied out to its own
// save-area, and c's own previously-saved bytes (if any) are copied back
// in. A private region (pool == nil) is never touched by another
// coroutine, so this is a no-op for it.
//
// Evicting occ only ever happens immediately after occ's own marker was
// resampled (TryResume and Yield both bump the outgoing coroutine's
// marker right before calling this). If occ's marker has not moved since
// its last eviction, something evicted it without resampling first; that
// is the asserted contract violation.
func (c *Coroutine) enterSlot() {
	if c.pool == nil || c.region == nil {
		return
	}
	if occ := c.region.occupant; occ != nil && occ != c {
		if AssertionsEnabled && occ.evicted && occ.marker == occ.lastEvictMarker {
			panic(ErrStaleMarker)
		}
		occ.lastEvictMarker = occ.marker
		occ.evicted = true
		occ.saveArea = append(occ.saveArea[:0], c.region.bytes...)
	}
	c.region.occupant = c
	if c.saveArea != nil {
		copy(c.region.bytes, c.saveArea)
		c.saveArea = nil
	}
}

// signalIn transfers control to c: starting its backing goroutine on the
// first resume, or waking it from its parked [Coroutine.turn] channel on
// subsequent resumes.
func (c *Coroutine) signalIn() {
	if !c.started {
		c.started = true
		go c.run()
		return
	}
	c.turn <- struct{}{}
}

// run is the trampoline: it executes the entry procedure and, on return
// or panic, marks the coroutine TERMINATED, logs a panic if one occurred,
// and performs a final switch back to whichever coroutine is now on top
// of the invocation stack (its original resumer, by invocation-stack
// discipline). It never returns to a live coroutine: the low-level
// switch here is the goroutine simply exiting.
func (c *Coroutine) run() {
	defer func() {
		if r := recover(); r != nil {
			c.panicVal = r
			c.sched.log().Warn("coroutine", "entry procedure panicked", "coroutine_id", c.id, "panic", r)
		}
		c.setState(StateTerminated)
		c.sched.log().Debug("coroutine", "terminated", "coroutine_id", c.id)

		c.sched.pop() // pops c itself off the top
		next := c.sched.Current()
		next.setState(StateRunning)
		next.turn <- struct{}{}
	}()
	c.entry()
}

// TryResume is [Coroutine.Resume] with the outcome reported instead of
// swallowed: it returns [ErrResumeTerminated] if the target has already
// terminated (a documented no-op, not a contract violation), and
// [ErrResumeNotReady] if the target is not READY or the caller is not the
// scheduler's current RUNNING coroutine (a contract violation: panics
// instead when [AssertionsEnabled]).
func (c *Coroutine) TryResume() error {
	if c.state == StateTerminated {
		return ErrResumeTerminated
	}

	sched := c.sched
	caller := sched.Current()

	if c.state != StateReady || caller.state != StateRunning {
		if AssertionsEnabled {
			panic(ErrResumeNotReady)
		}
		return ErrResumeNotReady
	}

	caller.bumpMarker()
	if !caller.isMain {
		caller.setState(StateReady)
	}
	c.setState(StateRunning)
	sched.push(c)

	c.enterSlot()
	c.signalIn()
	<-caller.turn
	return nil
}

// Resume transfers control from the caller (which must be the
// scheduler's current RUNNING coroutine) to c. It is a silent no-op if c
// has already reached [StateTerminated]. Resume returns only once c has
// yielded back to the caller or has terminated.
func (c *Coroutine) Resume() {
	_ = c.TryResume()
}

// Panic returns the value recovered from the entry procedure, if it
// panicked, and whether one occurred.
func (c *Coroutine) Panic() (v any, ok bool) {
	return c.panicVal, c.panicVal != nil
}
