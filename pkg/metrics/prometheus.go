package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	submissionsAccepted *prometheus.CounterVec
	submissionsRejected *prometheus.CounterVec
	messagesSent        *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	volatilityIndex     *prometheus.GaugeVec
	validSources        *prometheus.GaugeVec
	latency             *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		submissionsAccepted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricemesh_submissions_accepted_total",
				Help: "Total number of accepted price submissions",
			},
			[]string{"asset", "lane"},
		),
		submissionsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricemesh_submissions_rejected_total",
				Help: "Total number of rejected price submissions by reason",
			},
			[]string{"asset", "reason"},
		),
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricemesh_messages_sent_total",
				Help: "Total number of accepted submissions forwarded to a backend",
			},
			[]string{"backend", "asset"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricemesh_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		volatilityIndex: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricemesh_volatility_index",
				Help: "Current smoothed volatility index per asset",
			},
			[]string{"asset"},
		),
		validSources: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricemesh_valid_sources",
				Help: "Number of feed entries that passed read-time filters at last aggregation",
			},
			[]string{"asset"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricemesh_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSubmissionAccepted counts an accepted submission by ingest lane.
func (r *Recorder) RecordSubmissionAccepted(asset, lane string) {
	r.submissionsAccepted.WithLabelValues(asset, lane).Inc()
}

// RecordSubmissionRejected counts a rejected submission by reason code.
func (r *Recorder) RecordSubmissionRejected(asset, reason string) {
	r.submissionsRejected.WithLabelValues(asset, reason).Inc()
}

// RecordMessageSent records an accepted submission forwarded to a backend.
func (r *Recorder) RecordMessageSent(backend, asset string) {
	r.messagesSent.WithLabelValues(backend, asset).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordVolatilityIndex updates the volatility gauge for an asset.
func (r *Recorder) RecordVolatilityIndex(asset string, index float64) {
	r.volatilityIndex.WithLabelValues(asset).Set(index)
}

// RecordValidSources updates the valid source count gauge for an asset.
func (r *Recorder) RecordValidSources(asset string, count int) {
	r.validSources.WithLabelValues(asset).Set(float64(count))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
