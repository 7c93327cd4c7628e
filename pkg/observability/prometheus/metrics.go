// Package prometheus exposes the service's Prometheus metrics: chaos
// outcomes, crash boundary state, HTTP traffic, and log-derived health
// computed on every scrape.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fluxorio/todochaos/pkg/boundary"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/core/fsm"
)

const namespace = "todochaos"

// Metrics owns a registry and the service collectors
type Metrics struct {
	Registry *prometheus.Registry

	ChaosOutcomes       *prometheus.CounterVec
	BoundaryTransitions *prometheus.CounterVec
	BoundaryFaulted     *prometheus.GaugeVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ChaosOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chaos",
			Name:      "outcomes_total",
			Help:      "Injected failures by outcome.",
		}, []string{"outcome"}),
		BoundaryTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "boundary",
			Name:      "transitions_total",
			Help:      "Crash boundary state transitions.",
		}, []string{"boundary", "to"}),
		BoundaryFaulted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "boundary",
			Name:      "faulted",
			Help:      "1 while the boundary shows its fallback.",
		}, []string{"boundary"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ChaosOutcomes,
		m.BoundaryTransitions,
		m.BoundaryFaulted,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// ChaosObserver counts injector outcomes
func (m *Metrics) ChaosObserver() chaos.Observer {
	return func(o chaos.Outcome) {
		m.ChaosOutcomes.WithLabelValues(o.String()).Inc()
	}
}

// BoundaryObserver tracks transitions of the named boundary
func (m *Metrics) BoundaryObserver(name string) boundary.Observer {
	m.BoundaryFaulted.WithLabelValues(name).Set(0)
	return func(_, to fsm.State) {
		m.BoundaryTransitions.WithLabelValues(name, string(to)).Inc()
		faulted := 0.0
		if to == boundary.Faulted {
			faulted = 1
		}
		m.BoundaryFaulted.WithLabelValues(name).Set(faulted)
	}
}

// ObserveHTTP records one request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
