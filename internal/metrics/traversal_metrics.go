package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Traversal Metrics
// =============================================================================

var (
	// TraversalOperationsTotal tracks the total number of executed traversals.
	TraversalOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_traversal_operations_total",
			Help: "Total number of traversal operations.",
		},
		[]string{"strategy", "result"}, // result: found, unreachable, reachable_set, truncated, cancelled, error
	)

	// TraversalLatencySeconds tracks the execution time of a traversal.
	TraversalLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowgraph_traversal_latency_seconds",
			Help:    "Execution time of traversal operations.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"strategy"},
	)

	// TraversalPathHops tracks the path length of successful goal traversals.
	TraversalPathHops = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowgraph_traversal_path_hops",
			Help:    "Number of hops in a found path.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{"strategy"},
	)

	// TraversalNodesVisited tracks the exploration breadth of each traversal.
	TraversalNodesVisited = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowgraph_traversal_nodes_visited",
			Help:    "Number of unique nodes visited during a traversal.",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000},
		},
		[]string{"strategy"},
	)

	// TraversalFrontierMaxSize tracks the largest frontier (queue, stack or heap) seen.
	TraversalFrontierMaxSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowgraph_traversal_frontier_max_size",
			Help:    "Maximum size of the search frontier during traversal.",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 20000},
		},
		[]string{"strategy"},
	)

	// StrategySelectionTotal tracks how often each strategy is picked, by plan source.
	StrategySelectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_strategy_selection_total",
			Help: "Total number of times a strategy was selected.",
		},
		[]string{"strategy", "source"}, // source: explicit, cached, estimated
	)

	// PlanCacheFaultsTotal counts cache panics that were degraded to misses.
	PlanCacheFaultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowgraph_plan_cache_faults_total",
			Help: "Total number of plan cache faults treated as misses.",
		},
	)
)
