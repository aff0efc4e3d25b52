package rowsource

import (
	"context"
	"time"

	"github.com/23skdu/rowgraph/internal/breaker"
	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/metrics"
	"github.com/23skdu/rowgraph/internal/resilience"
)

// Instrumented decorates a Source with retries, a circuit breaker and call
// metrics. Optional DistanceEstimator and RowProjector support of the inner
// source is passed through.
type Instrumented struct {
	inner Source
	cb    *breaker.CircuitBreaker
	retry *resilience.RetryPolicy
}

// InstrumentedOption configures an Instrumented source.
type InstrumentedOption func(*Instrumented)

// WithRetry retries transient data source failures inside one breaker call.
// Unknown nodes, breaker rejections and cancellations are never retried.
func WithRetry(p resilience.RetryPolicy) InstrumentedOption {
	return func(s *Instrumented) {
		p.RetryableFunc = Retryable
		s.retry = &p
	}
}

// Retryable reports whether err is a transient data source failure.
func Retryable(err error) bool {
	return rgerrors.IsDataSource(err) &&
		!rgerrors.IsNotFound(err) &&
		!rgerrors.IsCancelled(err) &&
		!breaker.IsRejection(err)
}

// BreakerSettings returns breaker settings that only count genuine data source
// failures; unknown nodes, bad relationships and cancellations leave it closed.
func BreakerSettings(name string, threshold uint32, timeout time.Duration) breaker.Settings {
	return breaker.Settings{
		Name:        name,
		Timeout:     timeout,
		ReadyToTrip: breaker.ConsecutiveFailures(threshold),
		IsSuccessful: func(err error) bool {
			return err == nil ||
				rgerrors.IsNotFound(err) ||
				rgerrors.IsRelationship(err) ||
				rgerrors.IsConfiguration(err) ||
				rgerrors.IsCancelled(err)
		},
		OnStateChange: func(name string, from, to breaker.State) {
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	}
}

// NewInstrumented wraps inner. A nil cb disables the breaker.
func NewInstrumented(inner Source, cb *breaker.CircuitBreaker, opts ...InstrumentedOption) *Instrumented {
	s := &Instrumented{inner: inner, cb: cb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unwrap returns the decorated source.
func (s *Instrumented) Unwrap() Source { return s.inner }

// Name implements Source.
func (s *Instrumented) Name() string { return s.inner.Name() }

func observe[T any](ctx context.Context, s *Instrumented, method string, call func() (T, error)) (T, error) {
	start := time.Now()
	var (
		out T
		err error
	)
	fn := call
	if s.retry != nil {
		p := *s.retry
		p.OnRetry = func(int, error) {
			metrics.SourceRetriesTotal.WithLabelValues(s.inner.Name(), method).Inc()
		}
		fn = func() (T, error) { return resilience.Retry(ctx, p, call) }
	}
	if s.cb != nil {
		out, err = breaker.Call(s.cb, fn)
		if breaker.IsRejection(err) {
			metrics.CircuitBreakerRejections.WithLabelValues(s.cb.Name()).Inc()
			err = rgerrors.WrapDataSourceError(err, "source."+method, "data source unavailable").
				WithContext("source", s.inner.Name())
		}
	} else {
		out, err = fn()
	}

	status := "ok"
	switch {
	case err == nil:
	case rgerrors.IsNotFound(err):
		status = "not_found"
	case rgerrors.IsCancelled(err):
		status = "cancelled"
	default:
		status = "error"
	}
	metrics.SourceCallsTotal.WithLabelValues(s.inner.Name(), method, status).Inc()
	metrics.SourceCallDurationSeconds.WithLabelValues(s.inner.Name(), method).Observe(time.Since(start).Seconds())
	return out, err
}

// Neighbors implements Source.
func (s *Instrumented) Neighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	return observe(ctx, s, "neighbors", func() ([]core.Neighbor, error) {
		return s.inner.Neighbors(ctx, rel, id)
	})
}

// ReverseNeighbors implements Source.
func (s *Instrumented) ReverseNeighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	return observe(ctx, s, "reverse_neighbors", func() ([]core.Neighbor, error) {
		return s.inner.ReverseNeighbors(ctx, rel, id)
	})
}

// Census implements Source.
func (s *Instrumented) Census(ctx context.Context, rel core.Relationship, maxRoots int) (*Census, error) {
	return observe(ctx, s, "census", func() (*Census, error) {
		return s.inner.Census(ctx, rel, maxRoots)
	})
}

// Capabilities implements Source. Distance is only advertised when the inner
// source can actually estimate.
func (s *Instrumented) Capabilities(rel core.Relationship) Capabilities {
	caps := s.inner.Capabilities(rel)
	if _, ok := s.inner.(DistanceEstimator); !ok {
		caps.Distance = false
	}
	return caps
}

// EstimateDistance implements DistanceEstimator when the inner source does.
func (s *Instrumented) EstimateDistance(ctx context.Context, rel core.Relationship, from, to core.NodeID) (float64, error) {
	de, ok := s.inner.(DistanceEstimator)
	if !ok {
		return 0, rgerrors.NewConfigurationError("source.estimate_distance", "source has no distance estimator")
	}
	return observe(ctx, s, "estimate_distance", func() (float64, error) {
		return de.EstimateDistance(ctx, rel, from, to)
	})
}

// ProjectRows implements RowProjector when the inner source does.
func (s *Instrumented) ProjectRows(ctx context.Context, rel core.Relationship, ids []core.NodeID, columns []string) ([]Row, error) {
	rp, ok := s.inner.(RowProjector)
	if !ok {
		return nil, rgerrors.NewConfigurationError("source.project_rows", "source cannot project rows")
	}
	return observe(ctx, s, "project_rows", func() ([]Row, error) {
		return rp.ProjectRows(ctx, rel, ids, columns)
	})
}
