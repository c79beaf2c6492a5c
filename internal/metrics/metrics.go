// Package metrics exposes scan, stage and probe counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webrecon"

// Metrics owns a private registry so tests and multiple servers never
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	scansStarted  *prometheus.CounterVec
	scansFinished *prometheus.CounterVec
	scansInFlight prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	findings      *prometheus.CounterVec
	probeRequests *prometheus.CounterVec
}

// New registers every collector, plus the Go runtime collectors when
// withRuntime is set.
func New(withRuntime bool) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		scansStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_started_total",
			Help:      "Scans accepted, by kind.",
		}, []string{"kind"}),
		scansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_finished_total",
			Help:      "Scans that reached a terminal status, by kind and status.",
		}, []string{"kind", "status"}),
		scansInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scans_in_flight",
			Help:      "Scans currently running.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of scan stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Scan stages that returned an error.",
		}, []string{"stage"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings recorded, by severity.",
		}, []string{"severity"}),
		probeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_requests_total",
			Help:      "Probe HTTP requests, by OWASP category and outcome.",
		}, []string{"category", "outcome"}),
	}

	registry.MustRegister(
		m.scansStarted,
		m.scansFinished,
		m.scansInFlight,
		m.stageDuration,
		m.stageErrors,
		m.findings,
		m.probeRequests,
	)
	if withRuntime {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ScanStarted(kind string) {
	m.scansStarted.WithLabelValues(kind).Inc()
	m.scansInFlight.Inc()
}

func (m *Metrics) ScanFinished(kind, status string) {
	m.scansFinished.WithLabelValues(kind, status).Inc()
	m.scansInFlight.Dec()
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) FindingRecorded(severity string) {
	m.findings.WithLabelValues(severity).Inc()
}

// ObserveProbeRequest satisfies probe.RequestObserver.
func (m *Metrics) ObserveProbeRequest(category string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.probeRequests.WithLabelValues(category, outcome).Inc()
}
