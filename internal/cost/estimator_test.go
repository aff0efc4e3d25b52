package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/stats"
)

func sparse() *stats.GraphStatistics {
	// b = 1.2
	return stats.FromCounts(1000, 1200, false)
}

func TestEstimate_SparseOrdering(t *testing.T) {
	e := NewEstimator(DefaultConstants())
	s := sparse()

	bfs := e.Estimate(s, core.StrategyBFS, 5, core.HeuristicAuto, false)
	dfs := e.Estimate(s, core.StrategyDFS, 5, core.HeuristicAuto, false)
	dij := e.Estimate(s, core.StrategyDijkstra, 5, core.HeuristicAuto, false)

	assert.LessOrEqual(t, bfs.TotalCost, dfs.TotalCost)
	assert.LessOrEqual(t, dfs.TotalCost, dij.TotalCost)

	// 1 + 1.2 + 1.44 + 1.728 + 2.0736 + 2.48832
	assert.InDelta(t, 9.92992, bfs.EstimatedNodeCount, 1e-9)
	assert.Equal(t, 1000.0, dij.EstimatedNodeCount)
	assert.InDelta(t, bfs.NodeExpansionCost+bfs.EdgeTraversalCost, bfs.TotalCost, 1e-12)
}

func TestEstimate_FrontierShapes(t *testing.T) {
	e := NewEstimator(DefaultConstants())
	s := stats.FromCounts(1_000_000, 3_000_000, false) // b = 3

	bfs := e.Estimate(s, core.StrategyBFS, 6, core.HeuristicAuto, false)
	dfs := e.Estimate(s, core.StrategyDFS, 6, core.HeuristicAuto, false)
	assert.Equal(t, bfs.TotalCost, dfs.TotalCost, "BFS and DFS share the node bound")
	assert.InDelta(t, math.Pow(3, 6), bfs.MemoryCost, 1e-9)
	assert.InDelta(t, 18.0, dfs.MemoryCost, 1e-9)
	assert.Less(t, dfs.MemoryCost, bfs.MemoryCost)
}

func TestEstimate_ReachCappedAtNodeCount(t *testing.T) {
	e := NewEstimator(DefaultConstants())
	s := stats.FromCounts(50, 500, false) // b = 10

	c := e.Estimate(s, core.StrategyBFS, 8, core.HeuristicAuto, false)
	assert.Equal(t, 50.0, c.EstimatedNodeCount)
	assert.Equal(t, 50.0, c.MemoryCost)

	huge := e.Estimate(s, core.StrategyBFS, 10000, core.HeuristicAuto, false)
	assert.False(t, math.IsInf(huge.TotalCost, 0))
	assert.Equal(t, 50.0, huge.EstimatedNodeCount)
}

func TestEstimate_Bidirectional(t *testing.T) {
	e := NewEstimator(DefaultConstants())
	s := stats.FromCounts(1_000_000, 4_000_000, false) // b = 4

	bfs := e.Estimate(s, core.StrategyBFS, 6, core.HeuristicAuto, true)
	bidi := e.Estimate(s, core.StrategyBidirectional, 6, core.HeuristicAuto, true)
	assert.Less(t, bidi.TotalCost, bfs.TotalCost)
	assert.InDelta(t, 2*math.Sqrt(bfs.EstimatedNodeCount), bidi.EstimatedNodeCount, 1e-9)
	assert.InDelta(t, 2*math.Pow(4, 3), bidi.MemoryCost, 1e-9)

	undirected := e.Estimate(s, core.StrategyBidirectional, 6, core.HeuristicAuto, false)
	assert.Equal(t, bfs, undirected)
}

func TestEstimate_AStarFactors(t *testing.T) {
	e := NewEstimator(DefaultConstants())
	s := sparse()
	dij := e.Estimate(s, core.StrategyDijkstra, 5, core.HeuristicAuto, true)

	for h, f := range map[core.Heuristic]float64{
		core.HeuristicAuto:     0.9,
		core.HeuristicDepth:    0.9,
		core.HeuristicDensity:  0.7,
		core.HeuristicDistance: 0.5,
	} {
		a := e.Estimate(s, core.StrategyAStar, 5, h, true)
		assert.InDelta(t, dij.TotalCost*f, a.TotalCost, 1e-9, h.String())
		assert.InDelta(t, dij.MemoryCost*f, a.MemoryCost, 1e-9, h.String())
	}
}

func TestEstimate_EmptyGraphIsFree(t *testing.T) {
	e := NewEstimator(DefaultConstants())
	for _, s := range []*stats.GraphStatistics{nil, stats.FromCounts(0, 0, false)} {
		for _, st := range core.Strategies {
			assert.Equal(t, TraversalCost{}, e.Estimate(s, st, 5, core.HeuristicAuto, true))
		}
	}
}

func TestEstimate_NonNegative(t *testing.T) {
	e := NewEstimator(DefaultConstants())
	for _, s := range []*stats.GraphStatistics{
		stats.FromCounts(1, 0, false),
		stats.FromCounts(10, 3, false),
		stats.FromCounts(10, 100, true),
	} {
		for _, st := range core.Strategies {
			for _, d := range []int{0, 1, 7} {
				c := e.Estimate(s, st, d, core.HeuristicAuto, true)
				assert.GreaterOrEqual(t, c.NodeExpansionCost, 0.0)
				assert.GreaterOrEqual(t, c.MemoryCost, 0.0)
				assert.GreaterOrEqual(t, c.EdgeTraversalCost, 0.0)
				assert.GreaterOrEqual(t, c.TotalCost, 0.0)
			}
		}
	}
}

func TestNewEstimator_Defaults(t *testing.T) {
	c := NewEstimator(Constants{AStarDepthFactor: 3}).Constants()
	assert.Equal(t, 1.0, c.PerNode)
	assert.Equal(t, 1.0, c.PerEdge)
	assert.Equal(t, 1.0, c.AStarDepthFactor)
	assert.Equal(t, 0.5, c.AStarDistanceFactor)
}
