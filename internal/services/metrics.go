package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the learning engine
type Metrics struct {
	// Extraction metrics
	SignalsExtracted *prometheus.CounterVec

	// Store metrics
	PreferenceUpserts *prometheus.CounterVec
	StoreErrors       prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Applier metrics
	ApplyLatency prometheus.Histogram

	// Feedback metrics
	FeedbackEvents *prometheus.CounterVec

	// Analyzer metrics
	PatternAnalyses prometheus.Counter
}

// NewMetrics registers and returns the engine metrics. Call once at startup;
// promauto registers with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		SignalsExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_signals_extracted_total",
			Help: "Total number of preference signals extracted by type",
		}, []string{"preference_type"}),

		PreferenceUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_preference_upserts_total",
			Help: "Total number of preference upserts by outcome",
		}, []string{"outcome"}), // "created", "reinforced", "replaced", "retained"

		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attune_store_errors_total",
			Help: "Total number of preference store failures",
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attune_preference_cache_hits_total",
			Help: "Total number of preference cache hits",
		}),

		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attune_preference_cache_misses_total",
			Help: "Total number of preference cache misses",
		}),

		ApplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attune_context_apply_duration_seconds",
			Help:    "Preference application latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		FeedbackEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_feedback_events_total",
			Help: "Total number of incorporated feedback events by kind",
		}, []string{"feedback"}),

		PatternAnalyses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attune_pattern_analyses_total",
			Help: "Total number of pattern analysis runs",
		}),
	}
}
