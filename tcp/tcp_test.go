package tcp

import (
	"net"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSockaddrFromTCPAddrV4(t *testing.T) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:8080")
	if err != nil {
		t.Fatalf("ResolveTCPAddr: %v", err)
	}

	sa, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		t.Fatalf("sockaddrFromTCPAddr: %v", err)
	}

	inet4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("expected *unix.SockaddrInet4, got %T", sa)
	}
	if inet4.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", inet4.Port)
	}
	if inet4.Addr != [4]byte{127, 0, 0, 1} {
		t.Fatalf("unexpected address bytes: %v", inet4.Addr)
	}
}

func TestNewServerDefaults(t *testing.T) {
	s := New("echo", func(int) {})
	if s.Name != "echo" {
		t.Fatalf("unexpected name: %s", s.Name)
	}
	if s.RecvTimeoutMS != 1000 {
		t.Fatalf("expected default recv timeout of 1000ms, got %d", s.RecvTimeoutMS)
	}
	if s.wheelSlots != defaultWheelSlots || s.wheelGranularityMS != defaultWheelGranularityMS {
		t.Fatal("expected default wheel parameters")
	}
}

func TestConfigure(t *testing.T) {
	s := New("echo", func(int) {})
	s.Configure(128, 5)
	if s.wheelSlots != 128 || s.wheelGranularityMS != 5 {
		t.Fatal("Configure did not override wheel parameters")
	}
}
