// Package metrics provides Prometheus metrics export for the format service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports dispatch outcomes in Prometheus format.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fmtd",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total number of format requests",
		},
		[]string{"language", "formatter", "status"},
	)

	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fmtd",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Format request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"formatter"},
	)

	m.inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fmtd",
			Subsystem: "dispatch",
			Name:      "in_flight",
			Help:      "Number of format requests currently being processed",
		},
	)

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.inFlight,
	)

	return m
}

// RecordFormat records the outcome of a single format request. The formatter
// label may be empty when selection failed before one was chosen.
func (m *Metrics) RecordFormat(language, formatter, status string, elapsed time.Duration) {
	m.requests.WithLabelValues(language, formatter, status).Inc()

	if formatter != "" {
		m.duration.WithLabelValues(formatter).Observe(elapsed.Seconds())
	}
}

// TrackInFlight marks a request as in progress, returning a func which marks
// it complete.
func (m *Metrics) TrackInFlight() func() {
	m.inFlight.Inc()

	return m.inFlight.Dec
}

// Handler returns the HTTP handler exposing the registry in Prometheus text
// format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
