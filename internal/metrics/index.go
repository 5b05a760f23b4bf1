package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index lifecycle and search Prometheus metrics.
var (
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "beansack",
			Name:      "reconcile_total",
			Help:      "Total reconcile runs by outcome",
		},
		[]string{"collection", "outcome"}, // "ok" / "drift" / "failed" / "cancelled"
	)

	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "beansack",
			Name:      "index_operations_total",
			Help:      "Per-index reconcile and drop results",
		},
		[]string{"collection", "kind", "result"},
	)

	DriftedIndexes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "beansack",
			Name:      "drifted_indexes",
			Help:      "Declared indexes whose live configuration differs, as of the last reconcile",
		},
		[]string{"collection"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "beansack",
			Name:      "search_requests_total",
			Help:      "Total searches by mode and status",
		},
		[]string{"collection", "mode", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "beansack",
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds, including merge",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"collection", "mode"},
	)

	SearchCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "beansack",
			Name:      "search_candidates",
			Help:      "Candidate set size produced by the scalar pre-filter",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"collection"},
	)
)

var indexMetricsRegistered bool

// RegisterIndexMetrics registers index and search metrics. Must be called once from main.
func RegisterIndexMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(ReconcileTotal)
	prometheus.MustRegister(IndexOperationsTotal)
	prometheus.MustRegister(DriftedIndexes)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchCandidates)
	indexMetricsRegistered = true
}
