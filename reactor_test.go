package corort

import (
	"runtime"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sys/unix"

	"github.com/corowire/corort/corometrics"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	poller, err := newEpollPoller()
	if err != nil {
		t.Fatalf("newEpollPoller: %v", err)
	}
	return &Reactor{
		poller:     poller,
		wheel:      NewWheel(8, 10, nowMS()),
		ctx:        map[int]*eventContext{},
		metrics:    noopReactorMetrics{},
		fdRegistry: CurrentFdRegistry(),
	}
}

func TestReactorRegisterRequiresResumeTarget(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := newTestReactor(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	_, err = r.Register(InterestRead, fds[0], nil, nil, nil, nil)
	if err != ErrNoResumeTarget {
		t.Fatalf("Register with no callback/coroutine = %v, want ErrNoResumeTarget", err)
	}
}

func TestReactorRegisterPutsDescriptorInNonBlockingMode(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := newTestReactor(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	ok, err := r.Register(InterestRead, fds[0], func() {}, nil, nil, nil)
	if err != nil || !ok {
		t.Fatalf("Register failed: ok=%v err=%v", ok, err)
	}

	flags, err := unix.FcntlInt(uintptr(fds[0]), unix.F_GETFL, 0)
	if err != nil {
		t.Fatalf("FcntlInt: %v", err)
	}
	if flags&unix.O_NONBLOCK == 0 {
		t.Fatalf("expected Register to put the descriptor into non-blocking mode")
	}
}

func TestReactorDispatchesReadCallbackOnReadiness(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := newTestReactor(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := make(chan struct{}, 1)
	ok, err := r.Register(InterestRead, fds[0], func() {
		fired <- struct{}{}
	}, nil, nil, nil)
	if err != nil || !ok {
		t.Fatalf("Register failed: ok=%v err=%v", ok, err)
	}

	done := make(chan error, 1)
	go func() { done <- r.EventLoop() }()

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("read callback was not dispatched in time")
	}

	r.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EventLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("EventLoop did not return after Stop")
	}
}

func TestReactorCancelRemovesRegistration(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := newTestReactor(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	ok, err := r.Register(InterestRead, fds[0], func() {}, nil, nil, nil)
	if err != nil || !ok {
		t.Fatalf("Register failed: ok=%v err=%v", ok, err)
	}

	if !r.Cancel(InterestRead, fds[0]) {
		t.Fatalf("Cancel returned false")
	}
	r.mu.Lock()
	_, exists := r.ctx[fds[0]]
	r.mu.Unlock()
	if exists {
		t.Fatalf("expected fd to be removed from the reactor's context table after Cancel clears its only interest")
	}
}

func TestReactorCancelUnregisteredFdIsNoop(t *testing.T) {
	r := newTestReactor(t)
	if !r.Cancel(InterestRead, 99999) {
		t.Fatalf("Cancel on an unregistered fd should report success as a no-op")
	}
}

func TestReactorStopExitsEventLoopPromptly(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := newTestReactor(t)
	r.Stop()

	done := make(chan error, 1)
	go func() { done <- r.EventLoop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EventLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("EventLoop did not return promptly after a pre-emptive Stop")
	}
}

func TestReactorRegisterAfterStopFails(t *testing.T) {
	r := newTestReactor(t)
	r.Stop()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	_, err = r.Register(InterestRead, fds[0], func() {}, nil, nil, nil)
	if err != ErrReactorStopped {
		t.Fatalf("Register after Stop = %v, want ErrReactorStopped", err)
	}
}

// TestReactorMetricsObserveActivity drives one ready descriptor and one
// fired timer through a single EventLoop iteration and checks that the
// expected Prometheus counters advance by exactly the expected amounts.
func TestReactorMetricsObserveActivity(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := newTestReactor(t)
	metrics := corometrics.New("corowire_test_s8")
	r.SetMetrics(metrics, metrics)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	dispatched := make(chan struct{}, 1)
	ok, err := r.Register(InterestRead, fds[0], func() {
		dispatched <- struct{}{}
	}, nil, nil, nil)
	if err != nil || !ok {
		t.Fatalf("Register failed: ok=%v err=%v", ok, err)
	}

	timerFired := make(chan struct{}, 1)
	if _, err := r.wheel.Add(nowMS(), 1, func() { timerFired <- struct{}{} }, nil, 1); err != nil {
		t.Fatalf("Wheel.Add: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.EventLoop() }()

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-dispatched:
	case <-time.After(5 * time.Second):
		t.Fatal("read callback was not dispatched in time")
	}
	select {
	case <-timerFired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer was not fired in time")
	}

	r.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("EventLoop did not return after Stop")
	}

	families, err := metrics.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !counterAtLeast(families, "corowire_test_s8_reactor_iterations_total", 1) {
		t.Fatalf("expected reactor_iterations_total >= 1")
	}
	if !counterAtLeast(families, "corowire_test_s8_reactor_events_dispatched_total", 1) {
		t.Fatalf("expected reactor_events_dispatched_total >= 1")
	}
	if !counterAtLeast(families, "corowire_test_s8_timer_fires_total", 1) {
		t.Fatalf("expected timer_fires_total >= 1")
	}
}

func counterAtLeast(families []*dto.MetricFamily, name string, want float64) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if m.GetCounter().GetValue() >= want {
				return true
			}
		}
	}
	return false
}

func TestReactorSetMetricsNilRestoresNoop(t *testing.T) {
	r := newTestReactor(t)
	r.SetMetrics(nil, nil)
	if r.metrics == nil {
		t.Fatalf("SetMetrics(nil, nil) should install the no-op sink, not leave it nil")
	}
}
