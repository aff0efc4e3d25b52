package traverse

import (
	"context"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/rowsource"
	"github.com/23skdu/rowgraph/internal/stats"
)

// heuristicFunc estimates the remaining cost from id, reached at depth, to the goal.
type heuristicFunc func(ctx context.Context, id core.NodeID, depth int) (float64, error)

func zeroHeuristic(context.Context, core.NodeID, int) (float64, error) { return 0, nil }

// newHeuristic builds the estimate for h. Depth and Density are admissible only
// for unit edge weights; Distance is as good as the source's estimator.
func newHeuristic(h core.Heuristic, s *search, snapshot *stats.GraphStatistics) (heuristicFunc, error) {
	maxDepth := s.maxDepth
	switch h {
	case core.HeuristicAuto, core.HeuristicDepth:
		return func(_ context.Context, _ core.NodeID, depth int) (float64, error) {
			return float64(maxDepth - depth), nil
		}, nil

	case core.HeuristicDensity:
		density := 0.0
		if snapshot != nil {
			density = snapshot.EdgeDensity
		}
		return func(_ context.Context, _ core.NodeID, depth int) (float64, error) {
			return float64(maxDepth-depth) * density, nil
		}, nil

	case core.HeuristicDistance:
		est, ok := s.src.(rowsource.DistanceEstimator)
		if !ok || !s.src.Capabilities(s.rel).Distance {
			return nil, rgerrors.NewConfigurationError("traverse.heuristic", "distance heuristic requires a distance estimator").
				WithContext("source", s.src.Name())
		}
		if !s.hasGoal {
			return zeroHeuristic, nil
		}
		memo := make(map[core.NodeID]float64)
		return func(ctx context.Context, id core.NodeID, _ int) (float64, error) {
			if v, ok := memo[id]; ok {
				return v, nil
			}
			if err := ctx.Err(); err != nil {
				return 0, rgerrors.Cancelled(err, "traverse.heuristic")
			}
			v, err := est.EstimateDistance(ctx, s.rel, id, s.goal)
			if err != nil {
				if rgerrors.TypeOf(err) != "" {
					return 0, err
				}
				return 0, rgerrors.WrapDataSourceError(err, "traverse.heuristic", "distance estimate failed")
			}
			if v < 0 {
				v = 0
			}
			memo[id] = v
			return v, nil
		}, nil

	default:
		return nil, rgerrors.NewConfigurationError("traverse.heuristic", "unknown heuristic "+h.String())
	}
}
