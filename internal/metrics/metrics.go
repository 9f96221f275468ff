// Package metrics exposes conversion and download counters in the
// Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ytmp3"

// Conversion outcomes used as the "outcome" label.
const (
	OutcomeSuccess           = "success"
	OutcomeInvalidRequest    = "invalid_request"
	OutcomeDependencyMissing = "dependency_missing"
	OutcomeFailed            = "failed"
)

// Metrics owns a private registry so tests can create as many instances as
// they like.
type Metrics struct {
	registry *prometheus.Registry

	conversions     *prometheus.CounterVec
	duration        prometheus.Histogram
	inFlight        prometheus.Gauge
	downloadsServed prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversion requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of yt-dlp conversions.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversions_in_flight",
			Help:      "Conversions currently running.",
		}),
		downloadsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_served_total",
			Help:      "Files served from the downloads directory.",
		}),
	}

	m.registry.MustRegister(
		m.conversions,
		m.duration,
		m.inFlight,
		m.downloadsServed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOutcome counts a finished request to the conversion endpoint.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.conversions.WithLabelValues(outcome).Inc()
}

// TrackConversion marks a conversion as in flight and returns a func that
// ends it and records its duration.
func (m *Metrics) TrackConversion() func() {
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.duration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) DownloadServed() {
	m.downloadsServed.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
