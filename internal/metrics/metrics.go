// Package metrics exposes Prometheus collectors for the certificate
// workflows.  A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "certichain"

// Metrics groups the collectors registered at startup.
type Metrics struct {
	issuances     *prometheus.CounterVec
	lookups       *prometheus.CounterVec
	downloads     *prometheus.CounterVec
	renderSeconds prometheus.Histogram
	artifactBytes prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		issuances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issuances_total",
			Help:      "Certificate issuance attempts by terminal stage.",
		}, []string{"stage", "outcome"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Certificate lookups by entry point and result.",
		}, []string{"kind", "result"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Certificate PDF downloads by result.",
		}, []string{"result"}),
		renderSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering certificate PDFs.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		artifactBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Size of rendered certificate PDFs.",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.issuances, m.lookups, m.downloads, m.renderSeconds, m.artifactBytes)
	}
	return m
}

// Issuance records the stage an issuance ended in and whether it succeeded.
func (m *Metrics) Issuance(stage string, ok bool) {
	if m == nil {
		return
	}
	m.issuances.WithLabelValues(stage, outcome(ok)).Inc()
}

// Lookup records a lookup of the given kind ("credential", "identity").
func (m *Metrics) Lookup(kind string, found bool) {
	if m == nil {
		return
	}
	res := "found"
	if !found {
		res = "not_found"
	}
	m.lookups.WithLabelValues(kind, res).Inc()
}

// Download records a download attempt.
func (m *Metrics) Download(result string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(result).Inc()
}

// Rendered observes one successful render.
func (m *Metrics) Rendered(d time.Duration, size int) {
	if m == nil {
		return
	}
	m.renderSeconds.Observe(d.Seconds())
	m.artifactBytes.Observe(float64(size))
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
