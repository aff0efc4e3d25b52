package rowsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/rowgraph/internal/breaker"
	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/metrics"
	"github.com/23skdu/rowgraph/internal/resilience"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Neighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	args := m.Called(ctx, rel, id)
	ns, _ := args.Get(0).([]core.Neighbor)
	return ns, args.Error(1)
}

func (m *mockSource) ReverseNeighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	args := m.Called(ctx, rel, id)
	ns, _ := args.Get(0).([]core.Neighbor)
	return ns, args.Error(1)
}

func (m *mockSource) Census(ctx context.Context, rel core.Relationship, maxRoots int) (*Census, error) {
	args := m.Called(ctx, rel, maxRoots)
	c, _ := args.Get(0).(*Census)
	return c, args.Error(1)
}

func (m *mockSource) Capabilities(core.Relationship) Capabilities {
	return Capabilities{Reverse: true, Distance: true}
}

func TestInstrumented_PassThroughAndMetrics(t *testing.T) {
	inner := new(mockSource)
	inner.On("Neighbors", mock.Anything, edgesRel, core.NodeID(1)).
		Return([]core.Neighbor{{ID: 2, Weight: 1}}, nil)

	src := NewInstrumented(inner, nil)
	before := testutil.ToFloat64(metrics.SourceCallsTotal.WithLabelValues("mock", "neighbors", "ok"))

	ns, err := src.Neighbors(context.Background(), edgesRel, 1)
	require.NoError(t, err)
	assert.Equal(t, []core.NodeID{2}, ids(ns))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SourceCallsTotal.WithLabelValues("mock", "neighbors", "ok")))
	inner.AssertExpectations(t)

	// The mock claims Distance but cannot estimate.
	assert.False(t, src.Capabilities(edgesRel).Distance)
	_, err = src.EstimateDistance(context.Background(), edgesRel, 1, 2)
	assert.True(t, rgerrors.IsConfiguration(err))
}

func TestInstrumented_BreakerOpensOnDataSourceFailures(t *testing.T) {
	inner := new(mockSource)
	boom := rgerrors.WrapDataSourceError(errors.New("connection reset"), "neighbors", "query failed")
	inner.On("Neighbors", mock.Anything, edgesRel, core.NodeID(1)).Return(nil, boom)

	cb := breaker.NewCircuitBreaker(BreakerSettings("test-source", 2, time.Minute))
	src := NewInstrumented(inner, cb)

	for i := 0; i < 2; i++ {
		_, err := src.Neighbors(context.Background(), edgesRel, 1)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, breaker.StateOpen, cb.State())

	_, err := src.Neighbors(context.Background(), edgesRel, 1)
	assert.True(t, rgerrors.IsDataSource(err))
	assert.ErrorIs(t, err, breaker.ErrOpenState)
	inner.AssertNumberOfCalls(t, "Neighbors", 2)
}

func TestInstrumented_NotFoundKeepsBreakerClosed(t *testing.T) {
	inner := new(mockSource)
	inner.On("Neighbors", mock.Anything, edgesRel, core.NodeID(404)).
		Return(nil, rgerrors.NewNotFoundError("neighbors", 404))

	cb := breaker.NewCircuitBreaker(BreakerSettings("test-notfound", 1, time.Minute))
	src := NewInstrumented(inner, cb)

	for i := 0; i < 3; i++ {
		_, err := src.Neighbors(context.Background(), edgesRel, 404)
		assert.True(t, rgerrors.IsNotFound(err))
	}
	assert.Equal(t, breaker.StateClosed, cb.State())
}

func TestInstrumented_MemoryDistancePassThrough(t *testing.T) {
	m := NewMemory()
	m.LoadEdges(edgesRel, []Edge{{From: 1, To: 2}})
	m.SetPosition(1, 0)
	m.SetPosition(2, 2)

	src := NewInstrumented(m, nil)
	assert.True(t, src.Capabilities(edgesRel).Distance)
	d, err := src.EstimateDistance(context.Background(), edgesRel, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 1e-9)
}

func fastRetry(attempts int) resilience.RetryPolicy {
	p := resilience.DefaultRetryPolicy()
	p.MaxAttempts = attempts
	p.InitialDelay = time.Millisecond
	p.Jitter = false
	return p
}

func TestInstrumented_RetriesTransientFailures(t *testing.T) {
	inner := new(mockSource)
	boom := rgerrors.WrapDataSourceError(errors.New("connection reset"), "census", "query failed")
	inner.On("Census", mock.Anything, edgesRel, 0).Return(nil, boom).Once()
	inner.On("Census", mock.Anything, edgesRel, 0).Return(&Census{Nodes: 3}, nil).Once()

	cb := breaker.NewCircuitBreaker(BreakerSettings("test-retry", 1, time.Minute))
	src := NewInstrumented(inner, cb, WithRetry(fastRetry(3)))
	before := testutil.ToFloat64(metrics.SourceRetriesTotal.WithLabelValues("mock", "census"))

	c, err := src.Census(context.Background(), edgesRel, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Nodes)
	assert.Equal(t, breaker.StateClosed, cb.State())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SourceRetriesTotal.WithLabelValues("mock", "census")))
	inner.AssertNumberOfCalls(t, "Census", 2)
}

func TestInstrumented_NotFoundIsNotRetried(t *testing.T) {
	inner := new(mockSource)
	inner.On("Neighbors", mock.Anything, edgesRel, core.NodeID(404)).
		Return(nil, rgerrors.NewNotFoundError("neighbors", 404))

	src := NewInstrumented(inner, nil, WithRetry(fastRetry(5)))
	_, err := src.Neighbors(context.Background(), edgesRel, 404)
	assert.True(t, rgerrors.IsNotFound(err))
	inner.AssertNumberOfCalls(t, "Neighbors", 1)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(rgerrors.NewDataSourceError("q", "down")))
	assert.False(t, Retryable(rgerrors.NewNotFoundError("q", 1)))
	assert.False(t, Retryable(rgerrors.NewConfigurationError("q", "bad")))
	assert.False(t, Retryable(rgerrors.WrapDataSourceError(breaker.ErrOpenState, "q", "unavailable")))
	assert.False(t, Retryable(rgerrors.Cancelled(context.Canceled, "q")))
}
