package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"particle-universe/application/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each
// collector owns its registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Query bus metrics
	QueryDuration *prometheus.HistogramVec

	// Simulation metrics
	Ticks           *prometheus.CounterVec
	TickDuration    prometheus.Histogram
	TickNumber      *prometheus.GaugeVec
	ActiveParticles *prometheus.GaugeVec
	Interactions    prometheus.Counter
	Expired         prometheus.Counter
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Query handler duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"query", "status"},
		),
		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Ticks by outcome",
			},
			[]string{"universe", "outcome"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Duration of committed ticks",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
		),
		TickNumber: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tick_number",
				Help:      "Last committed tick number",
			},
			[]string{"universe"},
		),
		ActiveParticles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_particles",
				Help:      "Particles alive after the last tick",
			},
			[]string{"universe"},
		),
		Interactions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interactions_total",
				Help:      "Total number of resolved interactions",
			},
		),
		Expired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "particles_expired_total",
				Help:      "Total number of particles expired",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.QueryDuration,
		c.Ticks,
		c.TickDuration,
		c.TickNumber,
		c.ActiveParticles,
		c.Interactions,
		c.Expired,
	)

	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveQuery implements the query bus metrics hook
func (c *Collector) ObserveQuery(queryType string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.QueryDuration.WithLabelValues(queryType, status).Observe(duration.Seconds())
}

// RecordTick implements ports.MetricsRecorder
func (c *Collector) RecordTick(_ context.Context, t ports.TickMetrics) {
	c.Ticks.WithLabelValues(t.UniverseID, "committed").Inc()
	c.TickDuration.Observe(t.Duration.Seconds())
	c.TickNumber.WithLabelValues(t.UniverseID).Set(float64(t.TickNumber))
	c.ActiveParticles.WithLabelValues(t.UniverseID).Set(float64(t.Active))
	c.Interactions.Add(float64(t.Interactions))
	c.Expired.Add(float64(t.Expired))
}

// RecordTickRejected implements ports.MetricsRecorder
func (c *Collector) RecordTickRejected(_ context.Context, universeID string) {
	c.Ticks.WithLabelValues(universeID, "rejected").Inc()
}

// RecordTickFailed implements ports.MetricsRecorder
func (c *Collector) RecordTickFailed(_ context.Context, universeID string, _ string) {
	c.Ticks.WithLabelValues(universeID, "failed").Inc()
}
