package health

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/rowgraph/internal/breaker"
	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/rowsource"
)

// DefaultSlowThreshold marks a check that succeeded slowly as degraded.
const DefaultSlowThreshold = 250 * time.Millisecond

func timed(name string, status HealthStatus, message string, start time.Time) *ComponentHealth {
	duration := time.Since(start)
	return &ComponentHealth{
		Name:        name,
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
		Metadata: map[string]interface{}{
			"response_time_ms": duration.Milliseconds(),
			"check_duration":   duration.String(),
		},
	}
}

// DatabaseChecker pings the SQL connection pool behind the relational source.
type DatabaseChecker struct {
	name   string
	db     *sql.DB
	slow   time.Duration
	logger zerolog.Logger
	tracer trace.Tracer
}

func NewDatabaseChecker(db *sql.DB, logger zerolog.Logger, tracer trace.Tracer) *DatabaseChecker {
	return &DatabaseChecker{
		name:   "database",
		db:     db,
		slow:   DefaultSlowThreshold,
		logger: logger,
		tracer: tracer,
	}
}

func (dc *DatabaseChecker) Name() string {
	return dc.name
}

func (dc *DatabaseChecker) Check(ctx context.Context) *ComponentHealth {
	ctx, span := dc.tracer.Start(ctx, "DatabaseChecker.Check")
	defer span.End()

	start := time.Now()
	if err := dc.db.PingContext(ctx); err != nil {
		dc.logger.Warn().Err(err).Msg("database ping failed")
		span.RecordError(err)
		return timed(dc.name, StatusUnhealthy, err.Error(), start)
	}

	h := timed(dc.name, StatusHealthy, "database connection successful", start)
	if time.Since(start) > dc.slow {
		h.Status = StatusDegraded
		h.Message = "database responding slowly"
	}
	stats := dc.db.Stats()
	h.Metadata["open_connections"] = stats.OpenConnections
	h.Metadata["in_use"] = stats.InUse
	return h
}

// SourceChecker runs a census against one relationship to prove the data
// source can answer structural queries.
type SourceChecker struct {
	name   string
	source rowsource.Source
	rel    core.Relationship
	slow   time.Duration
	tracer trace.Tracer
}

func NewSourceChecker(source rowsource.Source, rel core.Relationship, tracer trace.Tracer) *SourceChecker {
	return &SourceChecker{
		name:   "source",
		source: source,
		rel:    rel,
		slow:   DefaultSlowThreshold,
		tracer: tracer,
	}
}

func (sc *SourceChecker) Name() string {
	return sc.name
}

func (sc *SourceChecker) Check(ctx context.Context) *ComponentHealth {
	ctx, span := sc.tracer.Start(ctx, "SourceChecker.Check")
	defer span.End()
	span.SetAttributes(
		attribute.String("rowgraph.source", sc.source.Name()),
		attribute.String("rowgraph.relationship", sc.rel.Descriptor()),
	)

	start := time.Now()
	census, err := sc.source.Census(ctx, sc.rel, 0)
	if err != nil {
		span.RecordError(err)
		return timed(sc.name, StatusUnhealthy, err.Error(), start)
	}

	h := timed(sc.name, StatusHealthy, "source answering census queries", start)
	if time.Since(start) > sc.slow {
		h.Status = StatusDegraded
		h.Message = "source census slow"
	}
	h.Metadata["source"] = sc.source.Name()
	h.Metadata["relationship"] = sc.rel.Descriptor()
	h.Metadata["nodes"] = census.Nodes
	h.Metadata["edges"] = census.Edges
	return h
}

// BreakerChecker reports the data source circuit breaker. An open breaker is
// unhealthy; half open is degraded.
type BreakerChecker struct {
	cb *breaker.CircuitBreaker
}

func NewBreakerChecker(cb *breaker.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{cb: cb}
}

func (bc *BreakerChecker) Name() string {
	return "breaker"
}

func (bc *BreakerChecker) Check(context.Context) *ComponentHealth {
	start := time.Now()
	state := bc.cb.State()

	status := StatusHealthy
	switch state {
	case breaker.StateOpen:
		status = StatusUnhealthy
	case breaker.StateHalfOpen:
		status = StatusDegraded
	}
	h := timed(bc.Name(), status, "circuit "+state.String(), start)
	counts := bc.cb.Counts()
	h.Metadata["breaker"] = bc.cb.Name()
	h.Metadata["consecutive_failures"] = counts.ConsecutiveFailures
	return h
}
