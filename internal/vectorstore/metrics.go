package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts store calls.
	// Labels: store, operation, result (success, error)
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursectx",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"store", "operation", "result"},
	)

	// OperationDuration tracks how long store calls take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursectx",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	// Items is the number of vectors held after the last write.
	Items = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "coursectx",
			Subsystem: "vectorstore",
			Name:      "items",
			Help:      "Number of vectors currently stored",
		},
		[]string{"store"},
	)

	// DimensionMismatches counts stored vectors compared against a query
	// of a different length.
	DimensionMismatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursectx",
			Subsystem: "vectorstore",
			Name:      "dimension_mismatches_total",
			Help:      "Total number of query comparisons between vectors of different dimensions",
		},
		[]string{"store"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
