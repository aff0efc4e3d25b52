package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlanCacheHitsTotal counts plan cache hits
	PlanCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_plan_cache_hits_total",
			Help: "Total number of plan cache hits",
		},
		[]string{"cache"},
	)

	// PlanCacheMissesTotal counts plan cache misses, including expired entries
	PlanCacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_plan_cache_misses_total",
			Help: "Total number of plan cache misses",
		},
		[]string{"cache"},
	)

	// PlanCacheEvictionsTotal counts capacity evictions
	PlanCacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_plan_cache_evictions_total",
			Help: "Total number of plan cache LRU evictions",
		},
		[]string{"cache"},
	)

	// PlanCacheExpirationsTotal counts entries dropped after their TTL
	PlanCacheExpirationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowgraph_plan_cache_expirations_total",
			Help: "Total number of plan cache TTL expirations",
		},
		[]string{"cache"},
	)

	// PlanCacheSize reports the current number of cached plans
	PlanCacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowgraph_plan_cache_size",
			Help: "Current number of entries in the plan cache",
		},
		[]string{"cache"},
	)
)
