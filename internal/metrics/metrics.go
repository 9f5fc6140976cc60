// Package metrics provides the Prometheus-backed implementation of
// orchestrator.MetricsPort, grounded on the counter/histogram style used
// throughout the dittofs example pack's pkg/metrics/prometheus adapters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements orchestrator.MetricsPort and janitor's cycle-duration
// observer, and exposes a handful of domain-specific counters and
// histograms a reader of the /metrics endpoint would expect: one counter
// per named lifecycle event, plus the latency distributions for upload,
// verify, and the janitor's expiry-sweep cycle.
type Recorder struct {
	registry *prometheus.Registry

	events *prometheus.CounterVec

	uploadDuration *prometheus.HistogramVec
	verifyDuration *prometheus.HistogramVec
	janitorCycleMS prometheus.Histogram
}

// New constructs a Recorder registered against a fresh registry. Call
// Handler to expose it over HTTP.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cinder_events_total",
				Help: "Total count of named lifecycle events by event name.",
			},
			[]string{"event"},
		),
		uploadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cinder_upload_duration_milliseconds",
				Help:    "Duration of upload requests in milliseconds.",
				Buckets: []float64{5, 25, 50, 100, 250, 500, 1000, 5000, 15000},
			},
			[]string{"outcome"},
		),
		verifyDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cinder_verify_duration_milliseconds",
				Help:    "Duration of download-verification requests in milliseconds.",
				Buckets: []float64{5, 25, 50, 100, 250, 500, 1000, 5000, 15000},
			},
			[]string{"outcome"},
		),
		janitorCycleMS: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cinder_janitor_cycle_duration_milliseconds",
				Help:    "Duration of each janitor expiry/reconcile cycle in milliseconds.",
				Buckets: []float64{1, 5, 25, 100, 500, 2000, 10000},
			},
		),
	}
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return r
}

// Inc satisfies orchestrator.MetricsPort.
func (r *Recorder) Inc(name string, delta int64) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(name).Add(float64(delta))
}

// ObserveUpload records the wall-clock duration of an upload attempt.
func (r *Recorder) ObserveUpload(d time.Duration, outcome string) {
	if r == nil {
		return
	}
	r.uploadDuration.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}

// ObserveVerify records the wall-clock duration of a verify-download attempt.
func (r *Recorder) ObserveVerify(d time.Duration, outcome string) {
	if r == nil {
		return
	}
	r.verifyDuration.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}

// ObserveJanitorCycle records one janitor sweep's duration.
func (r *Recorder) ObserveJanitorCycle(d time.Duration) {
	if r == nil {
		return
	}
	r.janitorCycleMS.Observe(float64(d.Milliseconds()))
}

// Handler exposes the registry in the Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
