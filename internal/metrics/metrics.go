// Package metrics exposes ingestion, paging and search counters in the
// Prometheus text format.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jsonview"

// Metrics holds the collectors for one process. Each instance has its own
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	rows           prometheus.Counter
	bytes          prometheus.Counter
	passDuration   *prometheus.HistogramVec
	passResults    *prometheus.CounterVec
	pages          *prometheus.CounterVec
	searches       *prometheus.CounterVec
	activeSessions prometheus.Gauge
	activeIngests  prometheus.Gauge
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_rows_total",
			Help:      "Rows appended to row stores by full passes.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_bytes_total",
			Help:      "Raw input bytes consumed by full passes.",
		}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of ingestion passes.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"pass"}),
		passResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_results_total",
			Help:      "Completed ingestion passes by outcome.",
		}, []string{"pass", "result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_served_total",
			Help:      "Pages served by status.",
		}, []string{"status"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by delivery mode.",
		}, []string{"mode"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open document sessions.",
		}),
		activeIngests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_ingests",
			Help:      "Full passes currently running.",
		}),
	}

	m.registry.MustRegister(
		m.rows, m.bytes, m.passDuration, m.passResults,
		m.pages, m.searches, m.activeSessions, m.activeIngests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PassDone records a finished pass. result is "ok", "error" or "cancelled".
func (m *Metrics) PassDone(pass, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(pass).Observe(d.Seconds())
	m.passResults.WithLabelValues(pass, result).Inc()
}

// Ingested adds the rows and bytes of a full pass.
func (m *Metrics) Ingested(rows int, bytes int64) {
	if m == nil {
		return
	}
	m.rows.Add(float64(rows))
	m.bytes.Add(float64(bytes))
}

func (m *Metrics) PageServed(status string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(status).Inc()
}

func (m *Metrics) Searched(mode string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(mode).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) IngestStarted() {
	if m == nil {
		return
	}
	m.activeIngests.Inc()
}

func (m *Metrics) IngestStopped() {
	if m == nil {
		return
	}
	m.activeIngests.Dec()
}
