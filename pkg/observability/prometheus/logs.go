package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/todochaos/pkg/dashboard"
	"github.com/fluxorio/todochaos/pkg/logstore"
)

// LogCollector derives log metrics from a store snapshot on every scrape
type LogCollector struct {
	store *logstore.Store

	entries     *prometheus.Desc
	errorRate   *prometheus.Desc
	healthy     *prometheus.Desc
	activeUsers *prometheus.Desc
}

// NewLogCollector creates a collector over store
func NewLogCollector(store *logstore.Store) *LogCollector {
	return &LogCollector{
		store: store,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "logs", "entries"),
			"Retained log entries by level.",
			[]string{"level"}, nil),
		errorRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "logs", "error_rate_percent"),
			"Share of retained entries at ERROR level.",
			nil, nil),
		healthy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "system", "healthy"),
			"1 when no retained entry is an ERROR.",
			nil, nil),
		activeUsers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "logs", "active_users"),
			"Distinct users referenced by retained entries.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *LogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.errorRate
	ch <- c.healthy
	ch <- c.activeUsers
}

// Collect implements prometheus.Collector
func (c *LogCollector) Collect(ch chan<- prometheus.Metric) {
	m := dashboard.Derive(c.store.Snapshot())
	info := m.TotalEvents - m.ErrorCount - m.WarnCount

	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(info), string(logstore.LevelInfo))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(m.WarnCount), string(logstore.LevelWarn))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(m.ErrorCount), string(logstore.LevelError))
	ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, m.ErrorRateValue)

	healthy := 0.0
	if m.SystemHealth == dashboard.Healthy {
		healthy = 1
	}
	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy)
	ch <- prometheus.MustNewConstMetric(c.activeUsers, prometheus.GaugeValue, float64(m.ActiveUsers))
}

// RegisterLogs adds a LogCollector over store to the registry
func (m *Metrics) RegisterLogs(store *logstore.Store) {
	m.Registry.MustRegister(NewLogCollector(store))
}
