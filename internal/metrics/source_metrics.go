package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Data Source, Statistics and Resilience Metrics
// =============================================================================

var (
	// SourceCallsTotal counts relationship data source calls
	SourceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_source_calls_total",
			Help: "Total number of relationship data source calls",
		},
		[]string{"source", "method", "status"},
	)

	// SourceCallDurationSeconds measures data source call latency
	SourceCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowgraph_source_call_duration_seconds",
			Help:    "Latency of relationship data source calls",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"source", "method"},
	)

	// StatsCollectionsTotal counts statistics collections by outcome
	StatsCollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_stats_collections_total",
			Help: "Total number of graph statistics collections",
		},
		[]string{"status"},
	)

	// StatsCollectionDurationSeconds measures statistics collection time
	StatsCollectionDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowgraph_stats_collection_duration_seconds",
			Help:    "Time taken to collect graph statistics",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StatsSnapshotVersion reports the latest published snapshot version per relationship
	StatsSnapshotVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowgraph_stats_snapshot_version",
			Help: "Version of the latest published statistics snapshot",
		},
		[]string{"relationship"},
	)

	// CircuitBreakerStateChanges counts breaker transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_circuit_breaker_state_changes_total",
			Help: "Total number of circuit breaker state changes",
		},
		[]string{"name", "from", "to"},
	)

	// CircuitBreakerRejections counts calls rejected while the breaker is open
	CircuitBreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_circuit_breaker_rejections_total",
			Help: "Total number of requests rejected by the circuit breaker",
		},
		[]string{"name"},
	)

	// RateLimitRequestsTotal counts rate limited requests
	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_rate_limit_requests_total",
			Help: "Total number of requests handled by rate limiter",
		},
		[]string{"status"}, // "allowed", "throttled"
	)

	// FlightOperationsTotal counts Flight actions and streams
	FlightOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_flight_operations_total",
			Help: "The total number of processed Arrow Flight operations",
		},
		[]string{"method", "status"},
	)

	// FlightDurationSeconds measures the latency of Flight operations
	FlightDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowgraph_flight_duration_seconds",
			Help:    "Duration of Arrow Flight operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// HealthCheckStatus reports component health (0=unhealthy, 1=degraded, 2=healthy)
	HealthCheckStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowgraph_health_check_status",
			Help: "Component health status",
		},
		[]string{"component"},
	)
)

var (
	// SourceRetriesTotal counts retried data source calls
	SourceRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_source_retries_total",
			Help: "Total number of data source calls retried after a transient failure",
		},
		[]string{"source", "method"},
	)

	// BufferPoolOperationsTotal counts buffer pool gets and puts
	BufferPoolOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_buffer_pool_operations_total",
			Help: "Total number of buffer pool operations",
		},
		[]string{"pool", "op"},
	)
)
