package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"

	"github.com/23skdu/rowgraph/internal/breaker"
	"github.com/23skdu/rowgraph/internal/cache"
	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/cost"
	"github.com/23skdu/rowgraph/internal/planner"
	"github.com/23skdu/rowgraph/internal/rowsource"
	"github.com/23skdu/rowgraph/internal/service"
	"github.com/23skdu/rowgraph/internal/stats"
	"github.com/23skdu/rowgraph/internal/traverse"
)

// app is the assembled object graph shared by every subcommand.
type app struct {
	cfg      Config
	logger   zerolog.Logger
	alloc    memory.Allocator
	db       *sql.DB
	source   *rowsource.Instrumented
	breaker  *breaker.CircuitBreaker
	registry *stats.Registry
	plans    *cache.PlanCache
	svc      *service.Service
}

func parquetRelationship(cfg *Config) core.Relationship {
	return rowsource.ParquetEdgeRelationship(cfg.ParquetTable)
}

// openSource picks the Parquet-backed memory source when a file is
// configured, otherwise DuckDB.
func openSource(ctx context.Context, cfg *Config, alloc memory.Allocator, logger zerolog.Logger) (rowsource.Source, *sql.DB, error) {
	if cfg.EdgesParquet != "" {
		rec, err := rowsource.ReadParquetEdges(cfg.EdgesParquet, alloc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", cfg.EdgesParquet, err)
		}
		defer rec.Release()

		mem := rowsource.NewMemory()
		if err := mem.LoadRecord(parquetRelationship(cfg), rec); err != nil {
			return nil, nil, err
		}
		logger.Info().
			Str("file", cfg.EdgesParquet).
			Int64("edges", rec.NumRows()).
			Msg("loaded parquet edges")
		return mem, nil, nil
	}

	db, err := rowsource.OpenDuckDB(ctx, cfg.DuckDBDSN)
	if err != nil {
		return nil, nil, err
	}
	return rowsource.NewSQL(db, logger), db, nil
}

func newApp(ctx context.Context, cfg Config, logger zerolog.Logger) (*app, error) {
	alloc := memory.NewGoAllocator()
	inner, db, err := openSource(ctx, &cfg, alloc, logger)
	if err != nil {
		return nil, err
	}

	cb := breaker.NewCircuitBreaker(rowsource.BreakerSettings("source", cfg.BreakerThreshold, cfg.BreakerTimeout))
	src := rowsource.NewInstrumented(inner, cb, rowsource.WithRetry(cfg.Retry))

	registry := stats.NewRegistry(stats.NewCollector(src, cfg.Sample, logger), cfg.StatsCollectTimeout, logger)
	plans := cache.NewPlanCache(cfg.PlanCacheCapacity, cfg.PlanCacheTTL)
	p := planner.New(cost.NewEstimator(cfg.Cost), plans, logger)
	engine := traverse.NewEngine(src, cfg.Traversal, logger)

	opts := []service.Option{service.WithDefaultTimeout(cfg.DefaultTimeout)}
	if db != nil {
		opts = append(opts, service.WithProjector(src))
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		alloc:    alloc,
		db:       db,
		source:   src,
		breaker:  cb,
		registry: registry,
		plans:    plans,
		svc:      service.New(engine, registry, p, plans, logger, opts...),
	}, nil
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
