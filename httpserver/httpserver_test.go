package httpserver

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"testing"
	"time"

	"github.com/corowire/corort"
)

func TestParseRequest(t *testing.T) {
	head := "GET /echo?x=1 HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n"
	req, err := parseRequest([]byte(head))
	if err != nil {
		t.Fatalf("parseRequest: %v", err)
	}
	if req.Method != "GET" || req.Path != "/echo?x=1" || req.Proto != "HTTP/1.1" {
		t.Fatalf("unexpected parse: %+v", req)
	}
	if req.Headers["Host"] != "example.com" {
		t.Fatalf("expected Host header, got %+v", req.Headers)
	}
}

func TestParseRequestMalformed(t *testing.T) {
	if _, err := parseRequest([]byte("not a request")); err == nil {
		t.Fatal("expected error for malformed request line")
	}
}

func TestEncodeResponse(t *testing.T) {
	resp := Response{Status: 200, Body: []byte("hello")}
	out := encodeResponse(resp)
	if !bytes.HasPrefix(out, []byte("HTTP/1.1 200 OK\r\n")) {
		t.Fatalf("unexpected response head: %q", out)
	}
	if !bytes.Contains(out, []byte("Content-Length: 5\r\n")) {
		t.Fatalf("expected content-length header: %q", out)
	}
	if !bytes.HasSuffix(out, []byte("hello")) {
		t.Fatalf("expected body suffix: %q", out)
	}
}

func TestHandleRegistrationAndNotFound(t *testing.T) {
	s := New("test")
	called := false
	s.Handle("GET", "/ping", func(Request) Response {
		called = true
		return Response{Status: 200, Body: []byte("pong")}
	})

	methods, ok := s.routes["/ping"]
	if !ok {
		t.Fatal("expected /ping route registered")
	}
	h, ok := methods["GET"]
	if !ok {
		t.Fatal("expected GET method registered")
	}
	h(Request{})
	if !called {
		t.Fatal("expected handler to be invoked")
	}

	resp := s.notFound(Request{})
	if resp.Status != 404 {
		t.Fatalf("expected default not-found status 404, got %d", resp.Status)
	}
}

// TestServeHTTPOverCoroutineTCPListener is the S9 end-to-end scenario: a
// real GET over a real socket, accepted by the coroutine-backed tcp.Server
// underneath this package, routed and answered, confirming the reactor,
// scheduler, and hook layers all compose correctly beneath an HTTP
// handler.
func TestServeHTTPOverCoroutineTCPListener(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	const addr = "127.0.0.1:18099"

	s := New("s9")
	s.Handle("GET", "/hello", func(req Request) Response {
		return Response{
			Status:  200,
			Headers: map[string]string{"Content-Type": "text/plain"},
			Body:    []byte(fmt.Sprintf("%s %s", req.Method, req.Path)),
		}
	})

	if err := s.Bind(addr); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	s.Start()

	reactor, err := corort.CurrentReactor(8, 10)
	if err != nil {
		t.Fatalf("CurrentReactor: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- reactor.EventLoop() }()
	defer func() {
		reactor.Stop()
		<-done
	}()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /hello HTTP/1.1\r\nHost: localhost\r\n\r\n")); err != nil {
		t.Fatalf("Write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if body.String() != "GET /hello" {
		t.Fatalf("body = %q, want %q", body.String(), "GET /hello")
	}
}
