package corometrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIterationIncrementsCounter(t *testing.T) {
	r := New("corowire_test_iter")
	r.Iteration()
	r.Iteration()

	got := testutil.ToFloat64(r.reactorIterations)
	if got != 2 {
		t.Fatalf("expected reactor_iterations_total=2, got %v", got)
	}
}

func TestRegisteredFDsSetsGauge(t *testing.T) {
	r := New("corowire_test_fds")
	r.RegisteredFDs(5)
	if got := testutil.ToFloat64(r.registeredFDs); got != 5 {
		t.Fatalf("expected reactor_registered_fds=5, got %v", got)
	}
	r.RegisteredFDs(2)
	if got := testutil.ToFloat64(r.registeredFDs); got != 2 {
		t.Fatalf("expected reactor_registered_fds=2, got %v", got)
	}
}

func TestSchedulerDepthPerWorker(t *testing.T) {
	r := New("corowire_test_depth")
	r.SchedulerDepth("w0", 3)
	r.SchedulerDepth("w1", 7)

	if got := testutil.ToFloat64(r.schedulerDepth.WithLabelValues("w0")); got != 3 {
		t.Fatalf("expected w0 depth=3, got %v", got)
	}
	if got := testutil.ToFloat64(r.schedulerDepth.WithLabelValues("w1")); got != 7 {
		t.Fatalf("expected w1 depth=7, got %v", got)
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.Iteration()
	r.EventDispatched()
	r.RegisteredFDs(1)
	r.TimerAdded()
	r.TimerFired()
	r.HookRetry()
	r.HookYield()
	r.SchedulerDepth("w0", 1)
	if r.Gatherer() == nil {
		t.Fatal("expected Gatherer() to return a usable registry even when nil-receiver")
	}
	if r.Handler() == nil {
		t.Fatal("expected Handler() to return a usable handler even when nil-receiver")
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	r := New("corowire_test_handler")
	r.Iteration()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Handler ServeHTTP status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "corowire_test_handler_reactor_iterations_total") {
		t.Fatalf("expected exposition body to contain the registered metric name, got:\n%s", rec.Body.String())
	}
}
