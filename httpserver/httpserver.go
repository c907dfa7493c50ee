package httpserver

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/corowire/corort"
	"github.com/corowire/corort/hook"
	"github.com/corowire/corort/tcp"
)

// maxBufferSize bounds the request buffer, matching the reference
// server's kMaxBufferSize.
const maxBufferSize = 4096

// Request is a parsed HTTP/1.x request line and header set. The body, if
// any, is not read: the demo echo handler this package serves has no use
// for one.
type Request struct {
	Method  string
	Path    string
	Proto   string
	Headers map[string]string
}

// Response is what a [Handler] returns; Status defaults to 200 if zero.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Handler processes one parsed [Request] and returns the [Response] to
// write back.
type Handler func(Request) Response

// Server is a one-request-per-connection HTTP/1.x server built on
// package tcp, mirroring the reference HttpServer's
// RegisterHttpRequestHandler surface with path+method routing.
type Server struct {
	tcpServer *tcp.Server
	routes    map[string]map[string]Handler
	notFound  Handler
	logger    corort.Logger
}

// New builds a Server named name; its default not-found handler returns
// a 404 with an empty body.
func New(name string) *Server {
	s := &Server{
		routes: map[string]map[string]Handler{},
		notFound: func(Request) Response {
			return Response{Status: 404}
		},
	}
	s.tcpServer = tcp.New(name, s.handleConn)
	return s
}

// SetLogger installs the structured logger used for parse/write
// warnings, and propagates it to the underlying [tcp.Server].
func (s *Server) SetLogger(l corort.Logger) {
	s.logger = l
	s.tcpServer.SetLogger(l)
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

// Handle registers handler for method+path, overwriting any existing
// registration for the same pair.
func (s *Server) Handle(method, path string, handler Handler) {
	method = strings.ToUpper(method)
	if s.routes[path] == nil {
		s.routes[path] = map[string]Handler{}
	}
	s.routes[path][method] = handler
}

// SetNotFound overrides the handler used when no route matches.
func (s *Server) SetNotFound(handler Handler) { s.notFound = handler }

// Configure overrides the underlying [tcp.Server]'s timer wheel
// parameters; see [tcp.Server.Configure].
func (s *Server) Configure(wheelSlots int, wheelGranularityMS int64) {
	s.tcpServer.Configure(wheelSlots, wheelGranularityMS)
}

// Bind binds the listening socket for addr ("host:port").
func (s *Server) Bind(addr string) error { return s.tcpServer.Bind(addr) }

// Start spawns the accept coroutine; see [tcp.Server.Start].
func (s *Server) Start() { s.tcpServer.Start() }

// Stop stops accepting and closes the listening socket.
func (s *Server) Stop() { s.tcpServer.Stop() }

// handleConn reads one request from clientFD, routes it, writes the
// response, and closes the connection (no keep-alive: matches the
// reference's one-shot EventData buffer model).
func (s *Server) handleConn(clientFD int) {
	defer func() { _ = hook.Close(clientFD) }()

	req, err := s.readRequest(clientFD)
	if err != nil {
		s.log().Warn("httpserver", "request parse failed", "fd", clientFD, "error", err.Error())
		return
	}

	handler := s.notFound
	if methods, ok := s.routes[req.Path]; ok {
		if h, ok := methods[req.Method]; ok {
			handler = h
		}
	}

	resp := handler(req)
	if resp.Status == 0 {
		resp.Status = 200
	}

	if _, err := hook.Write(clientFD, encodeResponse(resp)); err != nil {
		s.log().Warn("httpserver", "response write failed", "fd", clientFD, "error", err.Error())
	}
}

// readRequest accumulates bytes via hook.Read (cooperative, non-blocking
// under the hood) until the header terminator is seen or maxBufferSize
// is reached, then parses the request line and headers. The body, if
// any, is left unread.
func (s *Server) readRequest(fd int) (Request, error) {
	buf := make([]byte, maxBufferSize)
	var total int

	for {
		n, err := hook.Read(fd, buf[total:])
		if err != nil {
			return Request{}, err
		}
		if n == 0 {
			return Request{}, fmt.Errorf("httpserver: connection closed before headers complete")
		}
		total += n

		if idx := bytes.Index(buf[:total], []byte("\r\n\r\n")); idx >= 0 {
			return parseRequest(buf[:idx])
		}
		if total >= len(buf) {
			return Request{}, fmt.Errorf("httpserver: request headers exceed %d bytes", maxBufferSize)
		}
	}
}

func parseRequest(head []byte) (Request, error) {
	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 {
		return Request{}, fmt.Errorf("httpserver: empty request")
	}

	parts := strings.Fields(lines[0])
	if len(parts) != 3 {
		return Request{}, fmt.Errorf("httpserver: malformed request line %q", lines[0])
	}

	req := Request{
		Method:  strings.ToUpper(parts[0]),
		Path:    parts[1],
		Proto:   parts[2],
		Headers: map[string]string{},
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		req.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	return req, nil
}

func encodeResponse(resp Response) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.Status, statusText(resp.Status))
	fmt.Fprintf(&b, "Content-Length: %s\r\n", strconv.Itoa(len(resp.Body)))
	for k, v := range resp.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(resp.Body)
	return b.Bytes()
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return "Status"
	}
}
