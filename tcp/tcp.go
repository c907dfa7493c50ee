package tcp

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/corowire/corort"
)

// Handler processes one accepted connection, running on its own
// coroutine. It owns clientFD for the connection's lifetime and is
// responsible for closing it (see hook.Close, which also cancels any
// pending reactor interest).
type Handler func(clientFD int)

// defaultWheelSlots/defaultWheelGranularityMS configure the reactor this
// package lazily creates via corort.CurrentReactor, mirroring hook's own
// default. Override with [Server.Configure] before [Server.Start].
const (
	defaultWheelSlots         = 512
	defaultWheelGranularityMS = 10
)

// Server is a single-listener TCP server: it owns the listening socket
// and, once started, an accept coroutine that spawns one handler
// coroutine per accepted connection.
type Server struct {
	// Name identifies the server in log fields, matching the
	// reference's TcpServer(name) constructor argument.
	Name string
	// Handle is invoked, on its own coroutine, once per accepted
	// connection.
	Handle Handler
	// RecvTimeoutMS is stored in each accepted connection's FD registry
	// entry; it is consulted by higher-level wrappers, not enforced by
	// this package directly (spec §5's "core reactor does not
	// auto-expire I/O waits").
	RecvTimeoutMS int64

	wheelSlots         int
	wheelGranularityMS int64

	listenFD int
	stopped  bool
	logger   corort.Logger
}

// New builds a Server with spec's default 1000ms receive timeout.
func New(name string, handle Handler) *Server {
	return &Server{
		Name:               name,
		Handle:             handle,
		RecvTimeoutMS:      1000,
		wheelSlots:         defaultWheelSlots,
		wheelGranularityMS: defaultWheelGranularityMS,
	}
}

// Configure overrides the timer wheel parameters used if this server has
// to lazily create its worker's [corort.Reactor].
func (s *Server) Configure(wheelSlots int, wheelGranularityMS int64) {
	s.wheelSlots, s.wheelGranularityMS = wheelSlots, wheelGranularityMS
}

// SetLogger installs the structured logger used for bind/accept
// warnings. A nil logger restores the no-op sink.
func (s *Server) SetLogger(l corort.Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

func (s *Server) log() corort.Logger {
	if s.logger != nil {
		return s.logger
	}
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(string, string, ...any) {}
func (noopLogger) Warn(string, string, ...any)  {}
func (noopLogger) Err(string, error, ...any)    {}

// Bind creates, binds, and listens on a TCP socket for addr ("host:port"
// or ":port"), mirroring TcpServer::Bind: create the socket for the
// address family, bind, then listen, logging and returning an error on
// either kernel failure.
func (s *Server) Bind(addr string) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp: resolve %q: %w", addr, err)
	}

	family := unix.AF_INET
	if tcpAddr.IP.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		s.log().Err("tcp", err, "op", "socket", "server", s.Name)
		return err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	sa, err := sockaddrFromTCPAddr(tcpAddr)
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := unix.Bind(fd, sa); err != nil {
		s.log().Err("tcp", err, "op", "bind", "server", s.Name)
		_ = unix.Close(fd)
		return err
	}
	if err := unix.Listen(fd, 128); err != nil {
		s.log().Err("tcp", err, "op", "listen", "server", s.Name)
		_ = unix.Close(fd)
		return err
	}

	fdctx, _ := corort.CurrentFdRegistry().Get(fd, true)
	if err := fdctx.SetNonBlock(); err != nil {
		_ = unix.Close(fd)
		return err
	}

	s.listenFD = fd
	s.log().Debug("tcp", "bound", "server", s.Name, "addr", addr)
	return nil
}

func sockaddrFromTCPAddr(a *net.TCPAddr) (unix.Sockaddr, error) {
	if ip4 := a.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = a.Port
		copy(sa.Addr[:], ip4)
		return &sa, nil
	}
	ip6 := a.IP.To16()
	if ip6 == nil {
		return nil, fmt.Errorf("tcp: unsupported address %v", a)
	}
	var sa unix.SockaddrInet6
	sa.Port = a.Port
	copy(sa.Addr[:], ip6)
	return &sa, nil
}

// Start spawns the accept coroutine on the calling thread's scheduler
// and resumes it once, mirroring TcpServer::Start. The caller must have
// called [corort.CurrentScheduler] (directly or indirectly) on this
// thread first; Start itself resolves the scheduler and reactor.
func (s *Server) Start() {
	s.stopped = false
	sched := corort.CurrentScheduler()
	co := corort.Spawn(sched, corort.Attr{}, s.acceptLoop)
	co.Resume()
}

// Stop marks the server stopped and closes the listening socket; the
// accept coroutine observes the stop flag on its next readiness wakeup
// (or immediately, if currently accepting).
func (s *Server) Stop() {
	s.stopped = true
	if s.listenFD != 0 {
		_ = unix.Close(s.listenFD)
	}
}

// acceptLoop runs on its own coroutine: Accept4 is not part of the
// intercepted syscall set (spec §4.7's list omits accept), so this loop
// performs the register-then-yield dance explicitly rather than through
// the hook package.
func (s *Server) acceptLoop() {
	sched := corort.CurrentScheduler()
	r, err := corort.CurrentReactor(s.wheelSlots, s.wheelGranularityMS)
	if err != nil {
		s.log().Err("tcp", err, "op", "reactor", "server", s.Name)
		return
	}

	for !s.stopped {
		clientFD, _, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				ok, rerr := r.Register(corort.InterestRead, s.listenFD, nil, nil, sched.Current(), nil)
				if rerr != nil || !ok {
					s.log().Warn("tcp", "accept registration failed", "server", s.Name)
					return
				}
				sched.Yield()
				continue
			}
			s.log().Warn("tcp", "accept failed", "server", s.Name)
			continue
		}

		fdctx, _ := corort.CurrentFdRegistry().Get(clientFD, true)
		if err := fdctx.SetNonBlock(); err != nil {
			s.log().Warn("tcp", "client non-block failed", "fd", clientFD)
		}
		fdctx.SetTimeout(corort.TimeoutRecv, s.RecvTimeoutMS)

		handle := s.Handle
		fd := clientFD
		hco := corort.Spawn(sched, corort.Attr{}, func() { handle(fd) })
		hco.Resume()
	}
}
