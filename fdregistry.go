package corort

import (
	"sync"

	"golang.org/x/sys/unix"
)

// TimeoutKind selects which of a descriptor's two stored timeouts (spec
// §3's "receive timeout and send timeout in ms") a [FdContext] method
// addresses.
type TimeoutKind int

const (
	// TimeoutRecv selects the receive-side timeout.
	TimeoutRecv TimeoutKind = iota
	// TimeoutSend selects the send-side timeout.
	TimeoutSend
)

// FdContext is the per-descriptor metadata tracked by an [FdRegistry]:
// whether it is a socket or FIFO, whether it has been closed, whether it
// is in non-blocking mode, and its receive/send timeouts in milliseconds
// (0 means "none").
type FdContext struct {
	fd         int
	isSocket   bool
	isFIFO     bool
	closed     bool
	nonblock   bool
	recvMS     int64
	sendMS     int64
}

// IsSocket reports whether the descriptor is a socket.
func (c *FdContext) IsSocket() bool { return c.isSocket }

// IsFIFO reports whether the descriptor is a FIFO (named or anonymous pipe).
func (c *FdContext) IsFIFO() bool { return c.isFIFO }

// Closed reports whether [FdRegistry.Remove] has been called for this fd.
func (c *FdContext) Closed() bool { return c.closed }

// NonBlocking reports whether the descriptor is in non-blocking mode.
func (c *FdContext) NonBlocking() bool { return c.nonblock }

// SetNonBlock puts the descriptor into non-blocking mode via fcntl,
// updating the cached flag. It is idempotent.
func (c *FdContext) SetNonBlock() error {
	if c.nonblock {
		return nil
	}
	flags, err := unix.FcntlInt(uintptr(c.fd), unix.F_GETFL, 0)
	if err != nil {
		return err
	}
	if _, err := unix.FcntlInt(uintptr(c.fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
		return err
	}
	c.nonblock = true
	return nil
}

// Timeout returns the stored timeout, in milliseconds, for kind (0 means
// "none").
func (c *FdContext) Timeout(kind TimeoutKind) int64 {
	if kind == TimeoutSend {
		return c.sendMS
	}
	return c.recvMS
}

// SetTimeout stores ms as the timeout for kind.
func (c *FdContext) SetTimeout(kind TimeoutKind, ms int64) {
	if kind == TimeoutSend {
		c.sendMS = ms
	} else {
		c.recvMS = ms
	}
}

// FdRegistry is the per-thread table mapping descriptor numbers to
// [FdContext]. Entries are lazily materialized on first [FdRegistry.Get]
// for a given fd: file-type bits (socket/FIFO) and the non-blocking flag
// are queried from the kernel once and cached from then on.
type FdRegistry struct {
	mu  sync.Mutex
	fds map[int]*FdContext
}

var (
	fdRegistriesMu sync.Mutex
	fdRegistries   = map[int]*FdRegistry{}
)

// CurrentFdRegistry returns the calling OS thread's FdRegistry, creating
// it on first call. Per spec, this table is thread-local, matching the
// thread-local [Scheduler] and [Reactor].
func CurrentFdRegistry() *FdRegistry {
	tid := threadID()

	fdRegistriesMu.Lock()
	defer fdRegistriesMu.Unlock()
	if r, ok := fdRegistries[tid]; ok {
		return r
	}
	r := &FdRegistry{fds: map[int]*FdContext{}}
	fdRegistries[tid] = r
	return r
}

// Get returns the [FdContext] for fd, creating it (by querying the
// kernel for file-type bits) if autoCreate is true and no entry exists
// yet. It returns nil, false if no entry exists and autoCreate is false.
func (r *FdRegistry) Get(fd int, autoCreate bool) (*FdContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx, ok := r.fds[fd]; ok {
		return ctx, true
	}
	if !autoCreate {
		return nil, false
	}

	ctx := &FdContext{fd: fd}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err == nil {
		switch st.Mode & unix.S_IFMT {
		case unix.S_IFSOCK:
			ctx.isSocket = true
		case unix.S_IFIFO:
			ctx.isFIFO = true
		}
	}
	if flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0); err == nil {
		ctx.nonblock = flags&unix.O_NONBLOCK != 0
	}

	r.fds[fd] = ctx
	return ctx, true
}

// Remove deletes fd's entry, marking it closed first so that any
// [FdContext] value a caller is still holding observes [FdContext.Closed].
func (r *FdRegistry) Remove(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx, ok := r.fds[fd]; ok {
		ctx.closed = true
		delete(r.fds, fd)
	}
}
