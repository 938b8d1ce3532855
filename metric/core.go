// Package metric holds the gateway's Prometheus metrics and the registry
// they are exposed from.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the gateway-level metrics
type Metrics struct {
	// GraphQL operations
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Identity service calls
	UpstreamDuration *prometheus.HistogramVec

	// Policies
	RateLimitRejections *prometheus.CounterVec

	// Dependencies
	HealthCheckStatus *prometheus.GaugeVec
	NATSConnected     prometheus.Gauge
	EventsPublished   *prometheus.CounterVec
}

// NewMetrics creates the gateway metrics, unregistered
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "postgraph",
				Subsystem: "graphql",
				Name:      "operations_total",
				Help:      "Total number of resolved GraphQL operations by outcome code",
			},
			[]string{"operation", "code"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "postgraph",
				Subsystem: "graphql",
				Name:      "operation_duration_seconds",
				Help:      "GraphQL operation resolution time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "postgraph",
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Identity service request time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),

		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "postgraph",
				Subsystem: "ratelimit",
				Name:      "rejections_total",
				Help:      "Total number of calls rejected by a rate-limit rule",
			},
			[]string{"field"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "postgraph",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"check"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "postgraph",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "postgraph",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of domain events published",
			},
			[]string{"type", "status"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OperationsTotal,
		m.OperationDuration,
		m.UpstreamDuration,
		m.RateLimitRejections,
		m.HealthCheckStatus,
		m.NATSConnected,
		m.EventsPublished,
	}
}

// RecordOperation counts one operation outcome and observes its duration
func (m *Metrics) RecordOperation(operation, code string, duration time.Duration) {
	if code == "" {
		code = "OK"
	}
	m.OperationsTotal.WithLabelValues(operation, code).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordUpstream observes one identity service request
func (m *Metrics) RecordUpstream(method, route, status string, duration time.Duration) {
	m.UpstreamDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordRateLimited counts a rejected call on field
func (m *Metrics) RecordRateLimited(field string) {
	m.RateLimitRejections.WithLabelValues(field).Inc()
}

// RecordHealthStatus updates a health check gauge
func (m *Metrics) RecordHealthStatus(check string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.HealthCheckStatus.WithLabelValues(check).Set(value)
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordEventPublished counts a domain event publish attempt
func (m *Metrics) RecordEventPublished(eventType string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, status).Inc()
}
