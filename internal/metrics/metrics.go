// Package metrics exposes engine counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Write outcomes.
const (
	OutcomeAck      = "ack"
	OutcomeRollback = "rollback"
	OutcomeBusy     = "busy"
	OutcomeRejected = "rejected"
)

// Metrics holds the engine collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	writes         *prometheus.CounterVec
	observations   *prometheus.CounterVec
	polls          *prometheus.CounterVec
	pushConnected  prometheus.Gauge
	pushReconnects prometheus.Counter
}

// New builds the collectors. pending reports the number of in-flight
// writes at scrape time.
func New(pending func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrosync_writes_total",
			Help: "Operator writes by kind and outcome",
		}, []string{"kind", "outcome"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrosync_observations_total",
			Help: "Observed channel events by source and merge result",
		}, []string{"source", "result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrosync_poll_total",
			Help: "Unit refreshes by result (ok, error)",
		}, []string{"result"}),
		pushConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydrosync_push_connected",
			Help: "Push connection state (1=connected, 0=disconnected)",
		}),
		pushReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydrosync_push_reconnects_total",
			Help: "Push connections established after the first one",
		}),
	}

	m.registry.MustRegister(
		m.writes,
		m.observations,
		m.polls,
		m.pushConnected,
		m.pushReconnects,
		collectors.NewGoCollector(),
	)
	if pending != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hydrosync_pending_operations",
			Help: "Writes currently in flight",
		}, func() float64 { return float64(pending()) }))
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Write(kind, outcome string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Observation(source, result string) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(source, result).Inc()
}

func (m *Metrics) Poll(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.polls.WithLabelValues("error").Inc()
		return
	}
	m.polls.WithLabelValues("ok").Inc()
}

// PushState records a connection transition. reconnect is true for every
// connect after the first.
func (m *Metrics) PushState(connected, reconnect bool) {
	if m == nil {
		return
	}
	if connected {
		m.pushConnected.Set(1)
		if reconnect {
			m.pushReconnects.Inc()
		}
		return
	}
	m.pushConnected.Set(0)
}
