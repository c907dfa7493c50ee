// Package hook turns ordinary-looking blocking syscalls into cooperative
// waits on the calling worker's scheduler. Go offers no portable way to
// intercept libc symbols the way the reference implementation does (no
// dlsym(RTLD_NEXT, ...), no LD_PRELOAD shim written in Go); this package
// instead provides direct replacements — Read, Write, Recv, Send, Sleep,
// Close, and friends — that callers use in place of the blocking stdlib
// or golang.org/x/sys/unix calls they're named after. Each one applies
// the same EINTR/EAGAIN retry-then-yield policy the reference hook layer
// applies transparently.
package hook

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/corowire/corort"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

// SetEnabled turns the cooperative-wait behavior on or off process-wide,
// per spec §4.7 ("enabled per process via a flag, default ON"). With
// hooking off, every function in this package delegates straight to the
// underlying syscall.
func SetEnabled(v bool) { enabled.Store(v) }

// Enabled reports the current process-wide hook state.
func Enabled() bool { return enabled.Load() }

// retryLimiter throttles the "retrying after EAGAIN" warning log so a
// busy descriptor cannot flood the logger; see [SetRetryLogLimiter].
var retryLimiter RetryLimiter

// RetryLimiter is the subset of *catrate.Limiter this package depends
// on, satisfied by github.com/joeycumines/go-catrate.
type RetryLimiter interface {
	Allow(category any) (time.Time, bool)
}

// SetRetryLogLimiter installs a rate limiter used to throttle the
// retry-warning log line emitted when a descriptor keeps returning
// EAGAIN across many iterations. A nil limiter (the default) logs every
// retry.
func SetRetryLogLimiter(l RetryLimiter) { retryLimiter = l }

var logger corort.Logger = noopLogger{}

// SetLogger installs the structured logger used for retry/yield
// warnings. A nil logger restores the no-op sink.
func SetLogger(l corort.Logger) {
	if l == nil {
		l = noopLogger{}
	}
	logger = l
}

type noopLogger struct{}

func (noopLogger) Debug(string, string, ...any) {}
func (noopLogger) Warn(string, string, ...any)  {}
func (noopLogger) Err(string, error, ...any)    {}

// wheelSlots/wheelGranularityMS configure the reactor this package reads
// via corort.CurrentReactor when a worker has not already created one
// (e.g. Sleep called before the worker's own EventLoop setup). Set via
// [Configure].
var (
	wheelSlots         = 512
	wheelGranularityMS = int64(10)
)

// Configure sets the timer wheel parameters used if this package has to
// lazily create the calling thread's [corort.Reactor]. It has no effect
// once a Reactor already exists for the calling thread.
func Configure(slots int, granularityMS int64) {
	wheelSlots, wheelGranularityMS = slots, granularityMS
}

func currentReactor() (*corort.Reactor, error) {
	return corort.CurrentReactor(wheelSlots, wheelGranularityMS)
}

// Sleep blocks the calling coroutine for d, without blocking the worker
// thread, by arming a one-shot timer and yielding. With hooking
// disabled, or when called from the bootstrap coroutine (which cannot
// yield), it falls back to time.Sleep.
func Sleep(d time.Duration) error {
	if !Enabled() {
		time.Sleep(d)
		return nil
	}

	sched := corort.CurrentScheduler()
	if sched.Depth() < 2 {
		time.Sleep(d)
		return nil
	}

	r, err := currentReactor()
	if err != nil {
		return err
	}

	ms := d.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	if _, err := r.Wheel().Add(corort.NowMS(), ms, nil, sched.Current(), 1); err != nil {
		return err
	}
	sched.Yield()
	return nil
}

// Usleep blocks the calling coroutine for the given number of
// microseconds; see [Sleep].
func Usleep(usec int64) error {
	return Sleep(time.Duration(usec) * time.Microsecond)
}

// Close cancels any pending reactor interest on fd and removes its
// FD-registry entry, then delegates to the underlying close(2). Cancel
// failures are suppressed (spec §4.7's open question resolves to
// suppress), matching [corort.Reactor.Cancel]'s own silent-failure
// logging.
func Close(fd int) error {
	if Enabled() {
		if r, err := currentReactor(); err == nil {
			r.Cancel(corort.InterestRead, fd)
			r.Cancel(corort.InterestWrite, fd)
		}
		corort.CurrentFdRegistry().Remove(fd)
	}
	return unix.Close(fd)
}

// ioOp is the shape shared by every retryable I/O syscall wrapped below:
// it must return (n, err) with err following the unix.Errno convention.
type ioOp func() (int, error)

// doIO implements the retry-then-yield policy of spec §4.7 step-for-step:
// delegate outright when hooking is off or the descriptor isn't a
// non-blocking socket/FIFO; otherwise invoke op, retry once transparently
// on EINTR, and on EAGAIN/EWOULDBLOCK register interest and yield (when
// the invocation stack allows it) before retrying again.
func doIO(fd int, interest corort.Interest, op ioOp) (int, error) {
	if !Enabled() {
		return op()
	}

	fdctx, _ := corort.CurrentFdRegistry().Get(fd, true)
	if fdctx == nil || fdctx.Closed() || (!fdctx.IsSocket() && !fdctx.IsFIFO()) || !fdctx.NonBlocking() {
		return op()
	}

	sched := corort.CurrentScheduler()

	for {
		n, err := op()
		if err == unix.EINTR {
			n, err = op()
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if retryLimiter == nil || func() bool { _, ok := retryLimiter.Allow(fd); return ok }() {
				logger.Warn("hook", "retrying after EAGAIN", "fd", fd)
			}

			r, rerr := currentReactor()
			if rerr != nil {
				return n, rerr
			}
			ok, rerr := r.Register(interest, fd, nil, nil, readTarget(interest, sched), writeTarget(interest, sched))
			if rerr != nil {
				return n, rerr
			}
			if !ok {
				return n, err
			}

			if sched.Depth() >= 2 {
				sched.Yield()
			}
			continue
		}
		return n, err
	}
}

func readTarget(interest corort.Interest, sched *corort.Scheduler) *corort.Coroutine {
	if interest&corort.InterestRead != 0 {
		return sched.Current()
	}
	return nil
}

func writeTarget(interest corort.Interest, sched *corort.Scheduler) *corort.Coroutine {
	if interest&corort.InterestWrite != 0 {
		return sched.Current()
	}
	return nil
}

// Read mirrors read(2).
func Read(fd int, buf []byte) (int, error) {
	return doIO(fd, corort.InterestRead, func() (int, error) { return unix.Read(fd, buf) })
}

// Write mirrors write(2).
func Write(fd int, buf []byte) (int, error) {
	return doIO(fd, corort.InterestWrite, func() (int, error) { return unix.Write(fd, buf) })
}

// Recv mirrors recv(2).
func Recv(fd int, buf []byte, flags int) (int, error) {
	return doIO(fd, corort.InterestRead, func() (int, error) {
		n, _, err := unix.Recvfrom(fd, buf, flags)
		return n, err
	})
}

// RecvFrom mirrors recvfrom(2).
func RecvFrom(fd int, buf []byte, flags int) (int, unix.Sockaddr, error) {
	var from unix.Sockaddr
	n, err := doIO(fd, corort.InterestRead, func() (int, error) {
		n, f, e := unix.Recvfrom(fd, buf, flags)
		from = f
		return n, e
	})
	return n, from, err
}

// Send mirrors send(2).
func Send(fd int, buf []byte, flags int) (int, error) {
	return doIO(fd, corort.InterestWrite, func() (int, error) { return len(buf), unix.Sendto(fd, buf, flags, nil) })
}

// SendTo mirrors sendto(2).
func SendTo(fd int, buf []byte, flags int, to unix.Sockaddr) (int, error) {
	return doIO(fd, corort.InterestWrite, func() (int, error) { return len(buf), unix.Sendto(fd, buf, flags, to) })
}

// Readv mirrors readv(2).
func Readv(fd int, iovs [][]byte) (int, error) {
	return doIO(fd, corort.InterestRead, func() (int, error) { return unix.Readv(fd, iovs) })
}

// Writev mirrors writev(2).
func Writev(fd int, iovs [][]byte) (int, error) {
	return doIO(fd, corort.InterestWrite, func() (int, error) { return unix.Writev(fd, iovs) })
}

// RecvMsg mirrors recvmsg(2).
func RecvMsg(fd int, p, oob []byte, flags int) (n, oobn, recvFlags int, from unix.Sockaddr, err error) {
	var rn, roobn, rflags int
	n, err = doIO(fd, corort.InterestRead, func() (int, error) {
		var e error
		rn, roobn, rflags, from, e = unix.Recvmsg(fd, p, oob, flags)
		return rn, e
	})
	return n, roobn, rflags, from, err
}

// SendMsg mirrors sendmsg(2).
func SendMsg(fd int, p, oob []byte, to unix.Sockaddr, flags int) (int, error) {
	return doIO(fd, corort.InterestWrite, func() (int, error) {
		return len(p), unix.Sendmsg(fd, p, oob, to, flags)
	})
}
