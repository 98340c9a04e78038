// Package metrics holds the ambient Prometheus surface (Collector) and the
// spec.md §4.4 MetricsAggregator, which paces periodic gauge refreshes and
// exposes the core Snapshot contract. Generalized from the teacher's
// collector.go/exporter.go, relabeled from HTTP method/status to backend id
// since this proxy has no HTTP request line to label by.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every Prometheus metric tcplb exports. Safe for a nil
// *Collector receiver on every method, so callers (Proxy, health.Checker)
// don't need to special-case "metrics disabled" at every call site.
type Collector struct {
	ConnectionsTotal    *prometheus.CounterVec
	ConnectionDuration  *prometheus.HistogramVec
	ActiveConnections   *prometheus.GaugeVec
	BackendAlive        *prometheus.GaugeVec
	HealthChecksTotal   *prometheus.CounterVec
	BackendFlapTotal    *prometheus.CounterVec
}

// NewCollector creates and registers every metric with the default registry.
func NewCollector() *Collector {
	return &Collector{
		ConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcplb_connections_total",
				Help: "Total number of proxied connections, by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		ConnectionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tcplb_connection_duration_seconds",
				Help:    "Proxied connection lifetime in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		ActiveConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tcplb_active_connections",
				Help: "Current in-flight connections per backend",
			},
			[]string{"backend"},
		),
		BackendAlive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tcplb_backend_alive",
				Help: "Backend liveness as last determined by the health checker (0 or 1)",
			},
			[]string{"backend"},
		),
		HealthChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcplb_health_checks_total",
				Help: "Total active health probes, by backend and result",
			},
			[]string{"backend", "result"},
		),
		BackendFlapTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcplb_backend_flap_total",
				Help: "Count of alive-state flips flagged as flapping by the health checker",
			},
			[]string{"backend"},
		),
	}
}

func backendLabel(id uint8) string { return strconv.Itoa(int(id)) }

// ObserveConnection records one finished proxied connection. Called by the
// proxy on every connection close.
func (c *Collector) ObserveConnection(id uint8, seconds float64, ok bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	label := backendLabel(id)
	c.ConnectionsTotal.WithLabelValues(label, outcome).Inc()
	c.ConnectionDuration.WithLabelValues(label).Observe(seconds)
}

// ObserveHealthCheck records one active probe result.
func (c *Collector) ObserveHealthCheck(id uint8, alive bool) {
	if c == nil {
		return
	}
	result := "up"
	if !alive {
		result = "down"
	}
	c.HealthChecksTotal.WithLabelValues(backendLabel(id), result).Inc()
}

// ObserveFlap records one flap-flagged state transition.
func (c *Collector) ObserveFlap(id uint8) {
	if c == nil {
		return
	}
	c.BackendFlapTotal.WithLabelValues(backendLabel(id)).Inc()
}

// refresh sets the per-backend gauges to their current value. Called by the
// Aggregator on every tick.
func (c *Collector) refresh(id uint8, activeConnections int64, alive bool) {
	if c == nil {
		return
	}
	label := backendLabel(id)
	c.ActiveConnections.WithLabelValues(label).Set(float64(activeConnections))
	state := 0.0
	if alive {
		state = 1.0
	}
	c.BackendAlive.WithLabelValues(label).Set(state)
}
