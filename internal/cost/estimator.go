// Package cost predicts per-strategy traversal cost from a statistics snapshot.
package cost

import (
	"math"

	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/stats"
)

// TraversalCost is the predicted resource usage of one strategy.
// MemoryCost only breaks ties between equal TotalCost values.
type TraversalCost struct {
	NodeExpansionCost  float64 `json:"node_expansion_cost"`
	MemoryCost         float64 `json:"memory_cost"`
	EdgeTraversalCost  float64 `json:"edge_traversal_cost"`
	TotalCost          float64 `json:"total_cost"`
	EstimatedNodeCount float64 `json:"estimated_node_count"`
}

// Constants are the tunable weights of the model. The A* factors scale the
// Dijkstra bound by how much pruning each heuristic is assumed to give.
type Constants struct {
	PerNode float64 `envconfig:"COST_PER_NODE" default:"1.0"`
	PerEdge float64 `envconfig:"COST_PER_EDGE" default:"1.0"`

	AStarDepthFactor    float64 `envconfig:"COST_ASTAR_DEPTH_FACTOR" default:"0.9"`
	AStarDensityFactor  float64 `envconfig:"COST_ASTAR_DENSITY_FACTOR" default:"0.7"`
	AStarDistanceFactor float64 `envconfig:"COST_ASTAR_DISTANCE_FACTOR" default:"0.5"`
}

// DefaultConstants returns the stock model weights.
func DefaultConstants() Constants {
	return Constants{
		PerNode:             1.0,
		PerEdge:             1.0,
		AStarDepthFactor:    0.9,
		AStarDensityFactor:  0.7,
		AStarDistanceFactor: 0.5,
	}
}

// Estimator scores strategies. It holds no mutable state.
type Estimator struct {
	c Constants
}

// NewEstimator creates an estimator. Non-positive constants take the defaults,
// and A* factors are clamped to (0,1].
func NewEstimator(c Constants) *Estimator {
	def := DefaultConstants()
	if c.PerNode <= 0 {
		c.PerNode = def.PerNode
	}
	if c.PerEdge <= 0 {
		c.PerEdge = def.PerEdge
	}
	c.AStarDepthFactor = factorOr(c.AStarDepthFactor, def.AStarDepthFactor)
	c.AStarDensityFactor = factorOr(c.AStarDensityFactor, def.AStarDensityFactor)
	c.AStarDistanceFactor = factorOr(c.AStarDistanceFactor, def.AStarDistanceFactor)
	return &Estimator{c: c}
}

func factorOr(f, def float64) float64 {
	switch {
	case f <= 0:
		return def
	case f > 1:
		return 1
	}
	return f
}

// Constants returns the effective constants.
func (e *Estimator) Constants() Constants { return e.c }

// Estimate predicts the cost of running strategy to maxDepth. directed reports
// whether a goal is present; without one Bidirectional degenerates to BFS.
func (e *Estimator) Estimate(s *stats.GraphStatistics, strategy core.Strategy, maxDepth int, h core.Heuristic, directed bool) TraversalCost {
	if s.Empty() {
		return TraversalCost{}
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	n := float64(s.TotalNodes)
	b := s.AverageBranchingFactor
	r := reach(b, maxDepth, n)

	var count, frontier float64
	switch strategy {
	case core.StrategyDFS:
		count = r
		frontier = math.Min(float64(maxDepth)*math.Max(b, 1), n)
	case core.StrategyBidirectional:
		if !directed {
			count, frontier = r, power(b, maxDepth, n)
			break
		}
		half := (maxDepth + 1) / 2
		count = math.Min(2*math.Sqrt(r), n)
		frontier = math.Min(2*power(b, half, n), n)
	case core.StrategyDijkstra:
		count = n
		frontier = math.Min(n, math.Max(1, b)*r)
	case core.StrategyAStar:
		f := e.factor(h)
		count = n * f
		frontier = math.Min(n, math.Max(1, b)*r) * f
	default:
		count, frontier = r, power(b, maxDepth, n)
	}

	c := TraversalCost{
		NodeExpansionCost:  count * e.c.PerNode,
		EdgeTraversalCost:  count * s.EdgeDensity * e.c.PerEdge,
		MemoryCost:         frontier * e.c.PerNode,
		EstimatedNodeCount: count,
	}
	c.TotalCost = c.NodeExpansionCost + c.EdgeTraversalCost
	return c
}

func (e *Estimator) factor(h core.Heuristic) float64 {
	switch h {
	case core.HeuristicDensity:
		return e.c.AStarDensityFactor
	case core.HeuristicDistance:
		return e.c.AStarDistanceFactor
	default:
		return e.c.AStarDepthFactor
	}
}

// reach is min(sum of b^i for i in [0,d], n), stopping as soon as n is hit.
func reach(b float64, d int, n float64) float64 {
	total, term := 0.0, 1.0
	for i := 0; i <= d; i++ {
		total += term
		if total >= n {
			return n
		}
		term *= b
		if term < 1e-12 {
			break
		}
	}
	return total
}

// power is min(b^k, n).
func power(b float64, k int, n float64) float64 {
	return math.Min(math.Pow(b, float64(k)), n)
}
