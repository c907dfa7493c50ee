// Package corometrics wraps a dedicated prometheus.Registry with the
// named counters and gauges corort's reactor and timer wheel call into,
// per spec §4.4/§4.5. A nil *Registry is valid and every method on it is
// a no-op, so components can accept one unconditionally.
package corometrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private prometheus.Registry (never the global
// default) plus the fixed set of metrics this runtime exposes.
type Registry struct {
	reg *prometheus.Registry

	reactorIterations prometheus.Counter
	eventsDispatched  prometheus.Counter
	timerFires        prometheus.Counter
	hookRetries       prometheus.Counter
	hookYields        prometheus.Counter
	registeredFDs     prometheus.Gauge
	schedulerDepth    *prometheus.GaugeVec
}

// New builds a Registry under namespace (e.g. "corowire"), registering
// every metric against a fresh prometheus.Registry.
func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		reactorIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reactor_iterations_total",
			Help: "Number of reactor event-loop iterations completed.",
		}),
		eventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reactor_events_dispatched_total",
			Help: "Number of read/write handlers or coroutine resumes dispatched.",
		}),
		timerFires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "timer_fires_total",
			Help: "Number of timer wheel items fired.",
		}),
		hookRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "hook_retries_total",
			Help: "Number of EAGAIN/EWOULDBLOCK retries observed by the syscall hook layer.",
		}),
		hookYields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "hook_yields_total",
			Help: "Number of cooperative yields performed by the syscall hook layer.",
		}),
		registeredFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "reactor_registered_fds",
			Help: "Current number of descriptors registered with the reactor.",
		}),
		schedulerDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "scheduler_depth",
			Help: "Current invocation-stack depth of a worker's scheduler.",
		}, []string{"worker"}),
	}

	reg.MustRegister(
		r.reactorIterations,
		r.eventsDispatched,
		r.timerFires,
		r.hookRetries,
		r.hookYields,
		r.registeredFDs,
		r.schedulerDepth,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for mounting under
// an HTTP handler (promhttp.HandlerFor), without letting callers
// register arbitrary additional collectors against it directly.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Handler returns the Prometheus exposition handler for this registry's
// metrics, suitable for mounting at /metrics. A nil Registry still
// returns a usable (empty) handler rather than panicking.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// Iteration increments reactor_iterations_total.
func (r *Registry) Iteration() {
	if r == nil {
		return
	}
	r.reactorIterations.Inc()
}

// EventDispatched increments reactor_events_dispatched_total.
func (r *Registry) EventDispatched() {
	if r == nil {
		return
	}
	r.eventsDispatched.Inc()
}

// RegisteredFDs sets reactor_registered_fds to n.
func (r *Registry) RegisteredFDs(n int) {
	if r == nil {
		return
	}
	r.registeredFDs.Set(float64(n))
}

// TimerAdded is a no-op: the wheel has no "currently armed timers" gauge
// in this metrics set, only a fire counter. Present to satisfy
// corort.WheelMetrics.
func (r *Registry) TimerAdded() {}

// TimerFired increments timer_fires_total.
func (r *Registry) TimerFired() {
	if r == nil {
		return
	}
	r.timerFires.Inc()
}

// HookRetry increments hook_retries_total.
func (r *Registry) HookRetry() {
	if r == nil {
		return
	}
	r.hookRetries.Inc()
}

// HookYield increments hook_yields_total.
func (r *Registry) HookYield() {
	if r == nil {
		return
	}
	r.hookYields.Inc()
}

// SchedulerDepth sets scheduler_depth{worker=worker} to depth.
func (r *Registry) SchedulerDepth(worker string, depth int) {
	if r == nil {
		return
	}
	r.schedulerDepth.WithLabelValues(worker).Set(float64(depth))
}
