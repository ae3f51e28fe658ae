package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Global collectors, registered on the default registry through promauto.

var (
	// QueryExecutionsTotal counts executions by graph type, strategy and
	// terminal state (completed, budget_exhausted, failed).
	QueryExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kektorplan_query_executions_total",
			Help: "Total number of query executions by terminal state",
		},
		[]string{"graph_type", "strategy", "state"},
	)

	// QueryExecutionDuration measures end-to-end execution time.
	QueryExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "kektorplan_query_execution_duration_seconds",
			Help: "Duration of query executions in seconds",
			// From in-memory lookups to slow block fetches.
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"graph_type", "strategy"},
	)

	// NodesVisited tracks how many nodes an execution charged to its budget.
	NodesVisited = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kektorplan_nodes_visited",
			Help:    "Nodes visited per query execution",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"graph_type"},
	)

	// ImportanceLookupsTotal counts entity importance lookups by outcome
	// (hit, miss, error).
	ImportanceLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kektorplan_importance_lookups_total",
			Help: "Entity importance lookups by outcome",
		},
		[]string{"outcome"},
	)

	// HttpRequestsTotal counts API requests by method, route and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kektorplan_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kektorplan_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// GraphNodes tracks the number of nodes held by the served store.
	GraphNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kektorplan_graph_nodes",
			Help: "Number of nodes in the served graph",
		},
	)
)
