// Package metrics registers the Prometheus collectors shared by the emulator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TableOperationLatency records table round-trip latency by operation and table.
	TableOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marinet_table_operation_latency_seconds",
		Help:    "Table read/write latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// TableOperationErrors counts failed table operations.
	TableOperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marinet_table_operation_errors_total",
		Help: "Total number of failed table operations",
	}, []string{"operation", "table"})

	// TutorCompletions counts tutor completions by completer and outcome.
	TutorCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marinet_tutor_completions_total",
		Help: "Total tutor completions by completer and outcome",
	}, []string{"completer", "outcome"})

	// GatewayRoutes counts outbound requests by the route the gateway selected.
	GatewayRoutes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marinet_gateway_requests_total",
		Help: "Outbound requests by selected route",
	}, []string{"route"})
)

// TrackTable returns a function that records latency and failure of a table operation.
func TrackTable(operation, table string) func(error) {
	start := time.Now()
	return func(err error) {
		TableOperationLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		if err != nil {
			TableOperationErrors.WithLabelValues(operation, table).Inc()
		}
	}
}
