// Package metric exposes prometheus counters/gauges/histograms for every
// pipeline stage, namespaced per component the way the teacher namespaces
// metrics per subsystem.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespaceSource    = "matchsource"
	namespaceBuilder   = "builder"
	namespaceVerifier  = "verifier"
	namespaceValidator = "validator"
	namespacePacker    = "packer"
	namespaceOrch      = "orchestrator"
)

var (
	// EventsReceived counts added/modified/removed events observed by
	// the match source.
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceSource,
			Name:      "events_total",
			Help:      "",
		}, []string{"type"})

	// SubscriptionRetries counts transport-error retries on the
	// matchstore subscription.
	SubscriptionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceSource,
			Name:      "subscription_retries_total",
			Help:      "",
		})

	// ItemsBuilt counts successful/failed builder outcomes.
	ItemsBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceBuilder,
			Name:      "items_total",
			Help:      "",
		}, []string{"outcome"})

	// VerifyOutcomes counts verifier accept/reject outcomes by rejection code.
	VerifyOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceVerifier,
			Name:      "outcomes_total",
			Help:      "",
		}, []string{"code"})

	// ValidateOutcomes counts validator accept/reject outcomes by rejection code.
	ValidateOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceValidator,
			Name:      "outcomes_total",
			Help:      "",
		}, []string{"code"})

	// BundlesPacked counts packed transaction requests.
	BundlesPacked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespacePacker,
			Name:      "bundles_total",
			Help:      "",
		})

	// BundleGasEstimate observes the gas limit (the estimate after gas
	// headroom) of each packed bundle.
	BundleGasEstimate = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespacePacker,
			Name:      "bundle_gas_estimate",
			Help:      "",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 16),
		})

	// BundleSize observes the number of items per packed bundle.
	BundleSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespacePacker,
			Name:      "bundle_size",
			Help:      "",
			Buckets:   prometheus.LinearBuckets(1, 4, 16),
		})

	// ResplitDepth observes how many re-split rounds a batch required.
	ResplitDepth = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespacePacker,
			Name:      "resplit_depth",
			Help:      "",
		}, []string{"chain_id"})

	// PipelineLatency measures per-match-id wall time from Discovered to
	// a terminal state, labeled by outcome and chain.
	PipelineLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceOrch,
			Name:      "pipeline_latency_seconds",
			Help:      "",
		}, []string{"chain_id", "outcome"})

	// InFlight gauges the number of matches currently tracked by an
	// orchestrator's work queue, per chain.
	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespaceOrch,
			Name:      "in_flight",
			Help:      "",
		}, []string{"chain_id"})
)

// MeasureDuration measures elapsed time since start and observes it (in
// milliseconds) into histogram, mirroring the teacher's MeasureDuration.
func MeasureDuration(histogram *prometheus.HistogramVec, start time.Time, lvs ...string) {
	histogram.WithLabelValues(lvs...).Observe(float64(time.Since(start).Milliseconds()))
}

// MustRegisterAll registers every metric above against reg.
func MustRegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		EventsReceived, SubscriptionRetries, ItemsBuilt, VerifyOutcomes, ValidateOutcomes,
		BundlesPacked, BundleGasEstimate, BundleSize, ResplitDepth, PipelineLatency, InFlight,
	)
}
