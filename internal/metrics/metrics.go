// Package metrics exposes Prometheus collectors for lifecycle sessions,
// supervisors and hooks. Collectors are fed from the event bus so the
// lifespan package stays free of metrics code.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/lifespan/internal/event"
)

const namespace = "lifespan"

// Result label values for handshake counters, alongside the event.Reason*
// constants used for failures.
const (
	ResultComplete = "complete"
)

// Metrics holds the lifespan collectors. All methods are nil-safe: calls on a
// nil *Metrics are no-ops.
type Metrics struct {
	// HandshakesTotal counts finished handshake legs, labeled by phase
	// ("startup", "shutdown") and result ("complete" or a failure reason).
	HandshakesTotal *prometheus.CounterVec

	// HandshakeDuration observes successful handshake legs in seconds.
	HandshakeDuration *prometheus.HistogramVec

	// ActiveSessions tracks sessions whose startup completed and whose
	// shutdown has not finished yet.
	ActiveSessions prometheus.Gauge

	// SupervisorEvents counts supervisor transitions, labeled by action
	// ("started", "restarted", "stopped", "reentrancy").
	SupervisorEvents *prometheus.CounterVec

	// HookRuns counts hook setup and teardown runs, labeled by stage and
	// result ("ok", "error").
	HookRuns *prometheus.CounterVec

	// HookReleases observes how many releases a successful setup registered.
	HookReleases prometheus.Histogram
}

// New creates and registers the lifespan metrics with reg. If reg is nil,
// metrics are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HandshakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handshakes_total",
			Help:      "Total number of lifecycle handshake legs by phase and result",
		}, []string{"phase", "result"}),
		HandshakeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Duration of successful lifecycle handshake legs",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4.4min
		}, []string{"phase"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of started lifecycle sessions",
		}),
		SupervisorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "events_total",
			Help:      "Total number of supervisor transitions by action",
		}, []string{"action"}),
		HookRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      "runs_total",
			Help:      "Total number of hook setup and teardown runs by result",
		}, []string{"stage", "result"}),
		HookReleases: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      "releases",
			Help:      "Releases registered by a successful hook setup",
			Buckets:   prometheus.LinearBuckets(0, 2, 8),
		}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.HandshakesTotal,
			m.HandshakeDuration,
			m.ActiveSessions,
			m.SupervisorEvents,
			m.HookRuns,
			m.HookReleases,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}

	return m
}

// Attach subscribes m to every lifespan event on bus and returns the
// subscription IDs so callers can detach.
func (m *Metrics) Attach(bus *event.Bus) []string {
	if m == nil || bus == nil {
		return nil
	}
	return []string{
		bus.Subscribe(event.TypeStartupComplete, func(e event.Event) {
			ev := e.(event.StartupCompleteEvent)
			m.recordHandshake("startup", ResultComplete, ev.Duration.Seconds())
			m.ActiveSessions.Inc()
		}),
		bus.Subscribe(event.TypeStartupFailed, func(e event.Event) {
			m.recordHandshake("startup", e.(event.StartupFailedEvent).Reason, 0)
		}),
		bus.Subscribe(event.TypeShutdownComplete, func(e event.Event) {
			ev := e.(event.ShutdownCompleteEvent)
			m.recordHandshake("shutdown", ResultComplete, ev.Duration.Seconds())
			m.ActiveSessions.Dec()
		}),
		bus.Subscribe(event.TypeShutdownFailed, func(e event.Event) {
			m.recordHandshake("shutdown", e.(event.ShutdownFailedEvent).Reason, 0)
			m.ActiveSessions.Dec()
		}),
		bus.Subscribe(event.TypeSupervisorStarted, func(event.Event) { m.recordSupervisor("started") }),
		bus.Subscribe(event.TypeSupervisorRestarted, func(event.Event) { m.recordSupervisor("restarted") }),
		bus.Subscribe(event.TypeSupervisorStopped, func(event.Event) { m.recordSupervisor("stopped") }),
		bus.Subscribe(event.TypeReentrancyDetected, func(event.Event) { m.recordSupervisor("reentrancy") }),
		bus.Subscribe(event.TypeHookSetup, func(e event.Event) {
			ev := e.(event.HookSetupEvent)
			m.recordHook("setup", ev.Success)
			if ev.Success {
				m.HookReleases.Observe(float64(ev.Releases))
			}
		}),
		bus.Subscribe(event.TypeHookTeardown, func(e event.Event) {
			m.recordHook("teardown", e.(event.HookTeardownEvent).Success)
		}),
	}
}

// recordHandshake counts one handshake leg and, for completed legs, observes
// its duration.
func (m *Metrics) recordHandshake(phase, result string, seconds float64) {
	if m == nil {
		return
	}
	m.HandshakesTotal.WithLabelValues(phase, result).Inc()
	if result == ResultComplete {
		m.HandshakeDuration.WithLabelValues(phase).Observe(seconds)
	}
}

func (m *Metrics) recordSupervisor(action string) {
	if m == nil {
		return
	}
	m.SupervisorEvents.WithLabelValues(action).Inc()
}

func (m *Metrics) recordHook(stage string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.HookRuns.WithLabelValues(stage, result).Inc()
}

// Handler returns an HTTP handler serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
