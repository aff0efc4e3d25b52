// Package traverse runs the search strategies against a relationship data source.
package traverse

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/metrics"
	"github.com/23skdu/rowgraph/internal/rowsource"
	"github.com/23skdu/rowgraph/internal/stats"
)

// Config bounds a single traversal.
type Config struct {
	// MaxNodesVisited stops a traversal once this many nodes were visited.
	// The result is then marked Truncated. 0 means unlimited.
	MaxNodesVisited int `envconfig:"TRAVERSAL_MAX_NODES" default:"0"`
}

// driver advances one strategy. expand processes one frontier unit.
type driver interface {
	expand(ctx context.Context) error
	done() bool
	result() *core.TraversalResult
}

// Engine executes traversals. It holds no per-call state, so one Engine
// serves any number of concurrent calls.
type Engine struct {
	source rowsource.Source
	cfg    Config
	logger zerolog.Logger
}

// NewEngine creates an engine reading neighbors from source.
func NewEngine(source rowsource.Source, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		source: source,
		cfg:    cfg,
		logger: logger.With().Str("component", "traverse").Logger(),
	}
}

// Source returns the data source the engine reads from.
func (e *Engine) Source() rowsource.Source { return e.source }

// Execute runs req with a concrete strategy. snapshot feeds the Density
// heuristic and may be nil.
func (e *Engine) Execute(ctx context.Context, req *core.TraversalRequest, strategy core.Strategy, h core.Heuristic, snapshot *stats.GraphStatistics) (*core.TraversalResult, error) {
	const op = "traverse.execute"
	started := time.Now()

	if strategy == core.StrategyAuto {
		return nil, rgerrors.NewConfigurationError(op, "engine needs a concrete strategy")
	}
	if req.MaxDepth <= 0 {
		return nil, rgerrors.NewConfigurationError(op, "max depth must be positive").
			WithContext("max_depth", req.MaxDepth)
	}
	if strategy != core.StrategyAStar {
		h = core.HeuristicAuto
	} else if h == core.HeuristicAuto {
		h = core.HeuristicDepth
	}

	res, err := e.run(ctx, req, strategy, h, snapshot)
	e.observe(strategy, res, err, started)
	if err != nil {
		return nil, err
	}
	res.Strategy = strategy
	res.Heuristic = h
	return res, nil
}

func (e *Engine) run(ctx context.Context, req *core.TraversalRequest, strategy core.Strategy, h core.Heuristic, snapshot *stats.GraphStatistics) (*core.TraversalResult, error) {
	const op = "traverse.run"
	if err := ctx.Err(); err != nil {
		return nil, rgerrors.Cancelled(err, op)
	}

	s := newSearch(e.source, req, e.cfg.MaxNodesVisited)
	defer s.release()
	if s.hasGoal && s.start == s.goal {
		return e.trivial(ctx, s)
	}

	d, err := newDriver(ctx, s, strategy, h, snapshot)
	if err != nil {
		return nil, err
	}
	for !d.done() {
		if err := ctx.Err(); err != nil {
			return nil, rgerrors.Cancelled(err, op)
		}
		if err := d.expand(ctx); err != nil {
			return nil, err
		}
	}
	metrics.TraversalFrontierMaxSize.WithLabelValues(strategy.String()).Observe(float64(s.maxFrontier))
	res := d.result()
	if res.Truncated {
		e.logger.Debug().
			Str("strategy", strategy.String()).
			Int("budget", e.cfg.MaxNodesVisited).
			Msg("traversal truncated by node budget")
	}
	return res, nil
}

func newDriver(ctx context.Context, s *search, strategy core.Strategy, h core.Heuristic, snapshot *stats.GraphStatistics) (driver, error) {
	switch strategy {
	case core.StrategyBFS:
		return newBFS(s), nil
	case core.StrategyDFS:
		return newDFS(s), nil
	case core.StrategyBidirectional:
		if s.hasGoal && !s.src.Capabilities(s.rel).Reverse {
			return nil, rgerrors.NewConfigurationError("traverse.driver", "bidirectional requires reverse neighbor lookups").
				WithContext("source", s.src.Name())
		}
		return newBidirectional(s), nil
	case core.StrategyDijkstra:
		return newDijkstra(ctx, s)
	case core.StrategyAStar:
		hf, err := newHeuristic(h, s, snapshot)
		if err != nil {
			return nil, err
		}
		return newAStar(ctx, s, hf)
	default:
		return nil, rgerrors.NewConfigurationError("traverse.driver", "unknown strategy "+strategy.String())
	}
}

// trivial answers start == goal after confirming the start exists.
func (e *Engine) trivial(ctx context.Context, s *search) (*core.TraversalResult, error) {
	if _, err := s.fetch(ctx, s.start, false); err != nil {
		return nil, err
	}
	s.emit(s.start, 0)
	s.goalRec = s.root()
	return s.result(), nil
}

func (s *search) result() *core.TraversalResult {
	res := &core.TraversalResult{
		Visited:       s.order,
		GoalRequested: s.hasGoal,
		DepthReached:  s.maxDepthHit,
		Truncated:     s.truncated,
	}
	if !s.hasGoal {
		return res
	}
	if s.found() {
		res.Found = true
		res.Path = s.pathTo(s.goalRec)
		res.Cost = s.arena[s.goalRec].g
		res.Truncated = false
		return res
	}
	res.Path = []core.NodeID{}
	res.Cost = core.Unreachable
	return res
}

func (d *bidirectional) result() *core.TraversalResult {
	res := &core.TraversalResult{
		Visited:       d.order,
		GoalRequested: d.hasGoal,
		DepthReached:  d.maxDepthHit,
		Truncated:     d.truncated,
	}
	if !d.hasGoal {
		return res
	}
	if d.met {
		res.Found = true
		res.Path = d.route
		res.Cost = d.cost
		res.Truncated = false
		return res
	}
	res.Path = []core.NodeID{}
	res.Cost = core.Unreachable
	return res
}

func (e *Engine) observe(strategy core.Strategy, res *core.TraversalResult, err error, started time.Time) {
	label := strategy.String()
	metrics.TraversalLatencySeconds.WithLabelValues(label).Observe(time.Since(started).Seconds())

	var outcome string
	switch {
	case err != nil && rgerrors.IsCancelled(err):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	case res.Found:
		outcome = "found"
		metrics.TraversalPathHops.WithLabelValues(label).Observe(float64(len(res.Path) - 1))
	case res.Truncated:
		outcome = "truncated"
	case res.GoalRequested:
		outcome = "unreachable"
	default:
		outcome = "reachable_set"
	}
	metrics.TraversalOperationsTotal.WithLabelValues(label, outcome).Inc()
	if res != nil {
		metrics.TraversalNodesVisited.WithLabelValues(label).Observe(float64(len(res.Visited)))
	}
}
