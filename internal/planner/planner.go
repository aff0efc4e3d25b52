// Package planner picks a traversal strategy for a request, either honoring an
// explicit choice or scoring every applicable strategy with the cost model.
package planner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/23skdu/rowgraph/internal/cache"
	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/cost"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/metrics"
	"github.com/23skdu/rowgraph/internal/rowsource"
	"github.com/23skdu/rowgraph/internal/stats"
)

// PlanStore is the subset of the plan cache the planner needs.
type PlanStore interface {
	Get(key cache.Key) (cache.Plan, bool)
	Put(key cache.Key, plan cache.Plan)
}

// Plan is the planner's decision for one request.
type Plan struct {
	Strategy     core.Strategy
	Heuristic    core.Heuristic
	Source       core.PlanSource
	StatsVersion uint64
	// Costs holds the score of every candidate; only set for estimated plans.
	Costs map[core.Strategy]cost.TraversalCost
}

// Planner is safe for concurrent use.
type Planner struct {
	estimator *cost.Estimator
	plans     PlanStore
	logger    zerolog.Logger
}

// New creates a planner. plans may be nil, in which case every lookup misses.
func New(estimator *cost.Estimator, plans PlanStore, logger zerolog.Logger) *Planner {
	if estimator == nil {
		estimator = cost.NewEstimator(cost.DefaultConstants())
	}
	return &Planner{
		estimator: estimator,
		plans:     plans,
		logger:    logger.With().Str("component", "planner").Logger(),
	}
}

// SnapshotFunc supplies the statistics an estimate is scored against.
type SnapshotFunc func(ctx context.Context) (*stats.GraphStatistics, error)

// Choose returns the strategy and heuristic to run req with, scoring against s
// on a cache miss.
func (p *Planner) Choose(ctx context.Context, s *stats.GraphStatistics, req *core.TraversalRequest, caps rowsource.Capabilities) (Plan, error) {
	return p.ChooseWith(ctx, func(context.Context) (*stats.GraphStatistics, error) { return s, nil }, req, caps)
}

// ChooseWith is Choose with statistics loaded on demand. snapshot is only
// called when the plan has to be estimated, so explicit and cached plans never
// wait on collection.
func (p *Planner) ChooseWith(ctx context.Context, snapshot SnapshotFunc, req *core.TraversalRequest, caps rowsource.Capabilities) (Plan, error) {
	const op = "planner.choose"
	if err := ctx.Err(); err != nil {
		return Plan{}, rgerrors.Cancelled(err, op)
	}
	if req.Heuristic == core.HeuristicDistance && !caps.Distance {
		return Plan{}, rgerrors.NewConfigurationError(op, "distance heuristic requires a distance estimator").
			WithContext("relationship", req.Relationship.Descriptor())
	}

	if req.Strategy != core.StrategyAuto {
		plan, err := explicit(req, caps)
		if err != nil {
			return Plan{}, err
		}
		metrics.StrategySelectionTotal.WithLabelValues(plan.Strategy.String(), string(plan.Source)).Inc()
		return plan, nil
	}

	key := cache.KeyFor(req)
	if cached, ok := p.lookup(key); ok {
		metrics.StrategySelectionTotal.WithLabelValues(cached.Strategy.String(), string(core.PlanCached)).Inc()
		return Plan{
			Strategy:     cached.Strategy,
			Heuristic:    cached.Heuristic,
			Source:       core.PlanCached,
			StatsVersion: cached.StatsVersion,
		}, nil
	}

	s, err := snapshot(ctx)
	if err != nil {
		return Plan{}, err
	}
	plan := p.estimate(s, req, caps)
	p.store(key, cache.Plan{
		Key:          key,
		Strategy:     plan.Strategy,
		Heuristic:    plan.Heuristic,
		StatsVersion: plan.StatsVersion,
	})
	metrics.StrategySelectionTotal.WithLabelValues(plan.Strategy.String(), string(plan.Source)).Inc()
	p.logger.Debug().
		Str("key", key.String()).
		Str("strategy", plan.Strategy.String()).
		Str("heuristic", plan.Heuristic.String()).
		Uint64("stats_version", plan.StatsVersion).
		Float64("total_cost", plan.Costs[plan.Strategy].TotalCost).
		Msg("strategy estimated")
	return plan, nil
}

func explicit(req *core.TraversalRequest, caps rowsource.Capabilities) (Plan, error) {
	const op = "planner.explicit"
	st := req.Strategy
	switch {
	case st.NeedsGoal() && !req.HasGoal():
		return Plan{}, rgerrors.NewConfigurationError(op, fmt.Sprintf("%s requires a goal node", st))
	case st == core.StrategyBidirectional && !caps.Reverse:
		return Plan{}, rgerrors.NewConfigurationError(op, "bidirectional requires reverse neighbor lookups").
			WithContext("relationship", req.Relationship.Descriptor())
	}

	plan := Plan{Strategy: st, Source: core.PlanExplicit}
	if st == core.StrategyAStar {
		plan.Heuristic = req.Heuristic
		if plan.Heuristic == core.HeuristicAuto {
			plan.Heuristic = core.HeuristicDepth
		}
	}
	return plan, nil
}

func astarHeuristic(req *core.TraversalRequest, caps rowsource.Capabilities) core.Heuristic {
	switch {
	case req.Heuristic != core.HeuristicAuto:
		return req.Heuristic
	case caps.Distance:
		return core.HeuristicDistance
	default:
		return core.HeuristicDepth
	}
}

func candidates(req *core.TraversalRequest, caps rowsource.Capabilities) []core.Strategy {
	out := make([]core.Strategy, 0, len(core.Strategies))
	for _, st := range core.Strategies {
		switch st {
		case core.StrategyBidirectional:
			if !req.HasGoal() || !caps.Reverse {
				continue
			}
		case core.StrategyAStar:
			if !req.HasGoal() {
				continue
			}
		}
		out = append(out, st)
	}
	return out
}

// estimate scores every candidate. core.Strategies is in preference order, so
// a strict comparison keeps the preferred strategy on a full tie.
func (p *Planner) estimate(s *stats.GraphStatistics, req *core.TraversalRequest, caps rowsource.Capabilities) Plan {
	h := astarHeuristic(req, caps)
	plan := Plan{
		Source: core.PlanEstimated,
		Costs:  make(map[core.Strategy]cost.TraversalCost, len(core.Strategies)),
	}
	if s != nil {
		plan.StatsVersion = s.Version
	}

	var best cost.TraversalCost
	for i, st := range candidates(req, caps) {
		c := p.estimator.Estimate(s, st, req.MaxDepth, h, req.HasGoal())
		plan.Costs[st] = c
		if i == 0 || cheaper(c, best) {
			plan.Strategy, best = st, c
		}
	}
	if plan.Strategy == core.StrategyAStar {
		plan.Heuristic = h
	}
	return plan
}

func cheaper(a, b cost.TraversalCost) bool {
	if a.TotalCost != b.TotalCost {
		return a.TotalCost < b.TotalCost
	}
	return a.MemoryCost < b.MemoryCost
}

func (p *Planner) lookup(key cache.Key) (plan cache.Plan, ok bool) {
	if p.plans == nil {
		return cache.Plan{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.PlanCacheFaultsTotal.Inc()
			p.logger.Warn().Interface("panic", r).Str("key", key.String()).Msg("plan cache lookup failed; treating as miss")
			plan, ok = cache.Plan{}, false
		}
	}()
	return p.plans.Get(key)
}

func (p *Planner) store(key cache.Key, plan cache.Plan) {
	if p.plans == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.PlanCacheFaultsTotal.Inc()
			p.logger.Warn().Interface("panic", r).Str("key", key.String()).Msg("plan cache store failed")
		}
	}()
	p.plans.Put(key, plan)
}
