// Package metrics exposes supervisor counters in Prometheus format.
//
// Every method is safe on a nil *Metrics so callers can leave metrics
// unconfigured without guarding each call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/bypassd/internal/events"
	"github.com/roach88/bypassd/internal/model"
)

const namespace = "bypassd"

// Metrics holds the collectors for one supervisor and the registry they are
// registered on.
type Metrics struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	unrecognized    prometheus.Counter
	dropped         prometheus.Counter
	persistFailures prometheus.Counter
	locks           *prometheus.GaugeVec
	running         prometheus.Gauge
}

// New creates a Metrics on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Recognized engine events by kind.",
		}, []string{"kind"}),
		unrecognized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unrecognized_lines_total",
			Help:      "Engine output lines that matched no event pattern.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications discarded because the queue was full.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Persist calls that failed to write at least one key.",
		}),
		locks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locks",
			Help:      "Domains currently locked to a strategy.",
		}, []string{"protocol"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_running",
			Help:      "1 while the engine process is running.",
		}),
	}
	m.registry.MustRegister(
		m.events,
		m.unrecognized,
		m.dropped,
		m.persistFailures,
		m.locks,
		m.running,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, k := range events.Kinds() {
		m.events.WithLabelValues(k.String())
	}
	for _, p := range model.Protocols {
		m.locks.WithLabelValues(p.String())
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent counts one recognized event.
func (m *Metrics) ObserveEvent(k events.Kind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(k.String()).Inc()
}

// ObserveUnrecognized counts one unparsed line.
func (m *Metrics) ObserveUnrecognized() {
	if m == nil {
		return
	}
	m.unrecognized.Inc()
}

// ObserveDropped counts one notification lost to a full queue.
func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// ObservePersistFailure counts one failed Persist.
func (m *Metrics) ObservePersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// SetLocks records the number of locked domains for p.
func (m *Metrics) SetLocks(p model.Protocol, n int) {
	if m == nil {
		return
	}
	m.locks.WithLabelValues(p.String()).Set(float64(n))
}

// SetRunning records whether the engine process is up.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.running.Set(v)
}
