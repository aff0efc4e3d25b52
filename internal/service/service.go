// Package service is the submission surface: it validates a traversal
// request, plans it and runs it.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/rowgraph/internal/cache"
	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/planner"
	"github.com/23skdu/rowgraph/internal/rowsource"
	"github.com/23skdu/rowgraph/internal/stats"
	"github.com/23skdu/rowgraph/internal/telemetry"
	"github.com/23skdu/rowgraph/internal/traverse"
)

// RowProjector fetches column values for the rows a traversal returned.
type RowProjector = rowsource.RowProjector

// Service is safe for concurrent use.
type Service struct {
	engine    *traverse.Engine
	registry  *stats.Registry
	planner   *planner.Planner
	plans     *cache.PlanCache
	projector RowProjector

	validate       *validator.Validate
	tracer         trace.Tracer
	logger         zerolog.Logger
	defaultTimeout time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithDefaultTimeout bounds requests that carry no timeout of their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Service) { s.defaultTimeout = d }
}

// WithProjector enables Project.
func WithProjector(p RowProjector) Option {
	return func(s *Service) { s.projector = p }
}

// WithTracer replaces the global rowgraph tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// New assembles a service. plans is the cache the planner writes to and is
// only read here for CacheStats.
func New(engine *traverse.Engine, registry *stats.Registry, p *planner.Planner, plans *cache.PlanCache, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		registry: registry,
		planner:  p,
		plans:    plans,
		validate: validator.New(),
		tracer:   telemetry.Tracer(),
		logger:   logger.With().Str("component", "service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates, plans and executes req.
func (s *Service) Submit(ctx context.Context, req *core.TraversalRequest) (res *core.TraversalResult, err error) {
	ctx, span := s.tracer.Start(ctx, "rowgraph.Submit")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := s.check(req); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("rowgraph.relationship", req.Relationship.Descriptor()),
		attribute.Int64("rowgraph.start", int64(req.Start)),
		attribute.Bool("rowgraph.directed", req.HasGoal()),
		attribute.Int("rowgraph.max_depth", req.MaxDepth),
	)

	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	var snap *stats.GraphStatistics
	snapshot := func(ctx context.Context) (*stats.GraphStatistics, error) {
		if snap == nil {
			got, err := s.registry.Get(ctx, req.Relationship)
			if err != nil {
				return nil, err
			}
			snap = got
		}
		return snap, nil
	}

	caps := s.engine.Source().Capabilities(req.Relationship)
	plan, err := s.planner.ChooseWith(ctx, snapshot, req, caps)
	if err != nil {
		return nil, err
	}
	if plan.Strategy == core.StrategyAStar && plan.Heuristic == core.HeuristicDensity {
		if _, err = snapshot(ctx); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(
		attribute.String("rowgraph.strategy", plan.Strategy.String()),
		attribute.String("rowgraph.plan_source", string(plan.Source)),
	)

	res, err = s.engine.Execute(ctx, req, plan.Strategy, plan.Heuristic, snap)
	if err != nil {
		s.logger.Debug().Err(err).
			Str("relationship", req.Relationship.Descriptor()).
			Str("strategy", plan.Strategy.String()).
			Msg("traversal failed")
		return nil, err
	}
	res.PlanSource = plan.Source

	span.SetAttributes(
		attribute.Int("rowgraph.visited", len(res.Visited)),
		attribute.Bool("rowgraph.found", res.Found),
	)
	s.logger.Debug().
		Str("relationship", req.Relationship.Descriptor()).
		Int64("start", int64(req.Start)).
		Int64("goal", int64(req.GoalID())).
		Bool("directed", req.HasGoal()).
		Str("strategy", plan.Strategy.String()).
		Str("heuristic", res.Heuristic.String()).
		Str("plan_source", string(plan.Source)).
		Int("visited", len(res.Visited)).
		Bool("found", res.Found).
		Bool("truncated", res.Truncated).
		Dur("elapsed", time.Since(started)).
		Msg("traversal complete")
	return res, nil
}

func (s *Service) check(req *core.TraversalRequest) error {
	const op = "service.submit"
	if req == nil {
		return rgerrors.NewConfigurationError(op, "request is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return rgerrors.WrapConfigurationError(err, op, describe(err))
	}
	return checkRelationship(op, req.Relationship)
}

func checkRelationship(op string, rel core.Relationship) error {
	if err := rel.Validate(); err != nil {
		return rgerrors.WrapConfigurationError(err, op, "invalid relationship")
	}
	return nil
}

// describe flattens validator field errors into one readable message.
func describe(err error) string {
	var ves validator.ValidationErrors
	if !stderrors.As(err, &ves) {
		return "invalid request"
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// CacheStats reports the plan cache counters.
func (s *Service) CacheStats() cache.Stats {
	if s.plans == nil {
		return cache.Stats{}
	}
	return s.plans.Stats()
}

// Statistics returns the published snapshot for rel, collecting one if needed.
func (s *Service) Statistics(ctx context.Context, rel core.Relationship) (*stats.GraphStatistics, error) {
	if err := checkRelationship("service.statistics", rel); err != nil {
		return nil, err
	}
	return s.registry.Get(ctx, rel)
}

// RefreshStatistics collects and publishes a new snapshot for rel. Cached
// plans are not purged; they carry the version they were built from and age
// out by TTL.
func (s *Service) RefreshStatistics(ctx context.Context, rel core.Relationship) (*stats.GraphStatistics, error) {
	ctx, span := s.tracer.Start(ctx, "rowgraph.RefreshStatistics")
	defer span.End()

	if err := checkRelationship("service.refresh_statistics", rel); err != nil {
		return nil, err
	}
	snap, err := s.registry.Refresh(ctx, rel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.logger.Info().
		Str("relationship", snap.Relationship).
		Uint64("version", snap.Version).
		Int64("nodes", snap.TotalNodes).
		Int64("edges", snap.TotalEdges).
		Msg("statistics refreshed")
	return snap, nil
}

// Project fetches columns for the rows of a result: its path when it has
// one, otherwise its visited set.
func (s *Service) Project(ctx context.Context, rel core.Relationship, res *core.TraversalResult, columns []string) ([]rowsource.Row, error) {
	const op = "service.project"
	if s.projector == nil {
		return nil, rgerrors.NewConfigurationError(op, "no row projector configured")
	}
	if res == nil {
		return nil, rgerrors.NewConfigurationError(op, "result is required")
	}
	ids := res.Visited
	if len(res.Path) > 0 {
		ids = res.Path
	}
	if len(ids) == 0 {
		return []rowsource.Row{}, nil
	}
	return s.projector.ProjectRows(ctx, rel, ids, columns)
}
