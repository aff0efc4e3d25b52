package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/23skdu/rowgraph/internal/cache"
	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/cost"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/planner"
	"github.com/23skdu/rowgraph/internal/rowsource"
	"github.com/23skdu/rowgraph/internal/stats"
	"github.com/23skdu/rowgraph/internal/traverse"
)

var managerRel = core.ForeignKeyColumn("employees", "manager_id")

func org() *rowsource.Memory {
	m := rowsource.NewMemory()
	m.AddRow(managerRel, 1, nil)
	for i := 2; i <= 5; i++ {
		parent := core.NodeID(i - 1)
		m.AddRow(managerRel, core.NodeID(i), &parent)
	}
	return m
}

type fixture struct {
	svc   *Service
	plans *cache.PlanCache
	spans *tracetest.SpanRecorder
}

func newFixture(t *testing.T, src rowsource.Source, opts ...Option) fixture {
	t.Helper()
	logger := zerolog.Nop()
	plans := cache.NewPlanCache(32, time.Minute, cache.WithName("service_test"))
	registry := stats.NewRegistry(stats.NewCollector(src, stats.SampleConfig{}, logger), time.Second, logger)
	p := planner.New(cost.NewEstimator(cost.DefaultConstants()), plans, logger)
	engine := traverse.NewEngine(src, traverse.Config{}, logger)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	opts = append([]Option{WithTracer(tp.Tracer("service_test"))}, opts...)
	return fixture{
		svc:   New(engine, registry, p, plans, logger, opts...),
		plans: plans,
		spans: recorder,
	}
}

func TestSubmit_AutoPlansThenCaches(t *testing.T) {
	f := newFixture(t, org())

	first, err := f.svc.Submit(context.Background(), &core.TraversalRequest{
		Start: 1, Goal: core.Goal(5), Relationship: managerRel, MaxDepth: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, core.PlanEstimated, first.PlanSource)
	assert.Equal(t, []core.NodeID{1, 2, 3, 4, 5}, first.Path)
	assert.Equal(t, 4.0, first.Cost)

	second, err := f.svc.Submit(context.Background(), &core.TraversalRequest{
		Start: 2, Goal: core.Goal(4), Relationship: managerRel, MaxDepth: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, core.PlanCached, second.PlanSource)
	assert.Equal(t, first.Strategy, second.Strategy)
	assert.Equal(t, []core.NodeID{2, 3, 4}, second.Path)

	cs := f.svc.CacheStats()
	assert.Equal(t, uint64(1), cs.Hits)
	assert.Equal(t, uint64(1), cs.Misses)
	assert.Equal(t, 1, cs.Size)

	spans := f.spans.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "rowgraph.Submit", spans[0].Name())
}

func TestSubmit_ExplicitStrategy(t *testing.T) {
	f := newFixture(t, org())
	res, err := f.svc.Submit(context.Background(), &core.TraversalRequest{
		Start: 1, Relationship: managerRel, MaxDepth: 2, Strategy: core.StrategyDFS,
	})
	require.NoError(t, err)
	assert.Equal(t, core.PlanExplicit, res.PlanSource)
	assert.Equal(t, core.StrategyDFS, res.Strategy)
	assert.Equal(t, []core.NodeID{1, 2, 3}, res.Visited)
	assert.Nil(t, res.Path)
	assert.Zero(t, f.svc.CacheStats().Size)
}

func TestSubmit_InvalidRequests(t *testing.T) {
	f := newFixture(t, org())
	tests := []struct {
		name string
		req  *core.TraversalRequest
	}{
		{"nil", nil},
		{"zero depth", &core.TraversalRequest{Start: 1, Relationship: managerRel}},
		{"depth too large", &core.TraversalRequest{Start: 1, Relationship: managerRel, MaxDepth: 20000}},
		{"unknown strategy", &core.TraversalRequest{Start: 1, Relationship: managerRel, MaxDepth: 2, Strategy: core.Strategy(42)}},
		{"negative timeout", &core.TraversalRequest{Start: 1, Relationship: managerRel, MaxDepth: 2, Timeout: -time.Second}},
		{"bad identifier", &core.TraversalRequest{Start: 1, Relationship: core.ForeignKeyColumn("emp; drop", "x"), MaxDepth: 2}},
		{"astar without goal", &core.TraversalRequest{Start: 1, Relationship: managerRel, MaxDepth: 2, Strategy: core.StrategyAStar}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tt.req)
			assert.True(t, rgerrors.IsConfiguration(err), "got %v", err)
		})
	}

	for _, s := range f.spans.Ended() {
		assert.Equal(t, "Error", s.Status().Code.String())
	}
}

func TestSubmit_UnknownStart(t *testing.T) {
	f := newFixture(t, org())
	_, err := f.svc.Submit(context.Background(), &core.TraversalRequest{
		Start: 404, Goal: core.Goal(5), Relationship: managerRel, MaxDepth: 4,
	})
	assert.True(t, rgerrors.IsNotFound(err))
}

type slowSource struct {
	*rowsource.Memory
	delay time.Duration
}

func (s slowSource) Neighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return s.Memory.Neighbors(ctx, rel, id)
}

func TestSubmit_RequestTimeout(t *testing.T) {
	f := newFixture(t, slowSource{Memory: org(), delay: 50 * time.Millisecond})
	_, err := f.svc.Submit(context.Background(), &core.TraversalRequest{
		Start: 1, Goal: core.Goal(5), Relationship: managerRel, MaxDepth: 10,
		Strategy: core.StrategyBFS, Timeout: 20 * time.Millisecond,
	})
	assert.True(t, rgerrors.IsCancelled(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmit_DefaultTimeout(t *testing.T) {
	f := newFixture(t, slowSource{Memory: org(), delay: 50 * time.Millisecond}, WithDefaultTimeout(20*time.Millisecond))
	_, err := f.svc.Submit(context.Background(), &core.TraversalRequest{
		Start: 1, Relationship: managerRel, MaxDepth: 10, Strategy: core.StrategyDFS,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStatisticsAndRefresh(t *testing.T) {
	f := newFixture(t, org())
	snap, err := f.svc.Statistics(context.Background(), managerRel)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.TotalNodes)
	assert.Equal(t, int64(4), snap.TotalEdges)

	again, err := f.svc.RefreshStatistics(context.Background(), managerRel)
	require.NoError(t, err)
	assert.Greater(t, again.Version, snap.Version)

	_, err = f.svc.RefreshStatistics(context.Background(), core.Relationship{})
	assert.True(t, rgerrors.IsConfiguration(err))
}

type mockProjector struct {
	mock.Mock
}

func (m *mockProjector) ProjectRows(ctx context.Context, rel core.Relationship, ids []core.NodeID, columns []string) ([]rowsource.Row, error) {
	args := m.Called(ctx, rel, ids, columns)
	rows, _ := args.Get(0).([]rowsource.Row)
	return rows, args.Error(1)
}

func TestProject(t *testing.T) {
	f := newFixture(t, org())
	res := &core.TraversalResult{Visited: []core.NodeID{1, 2, 3}, Path: []core.NodeID{1, 3}}

	_, err := f.svc.Project(context.Background(), managerRel, res, []string{"name"})
	assert.True(t, rgerrors.IsConfiguration(err))

	p := new(mockProjector)
	p.On("ProjectRows", mock.Anything, managerRel, []core.NodeID{1, 3}, []string{"name"}).
		Return([]rowsource.Row{{"id": int64(1), "name": "ada"}, {"id": int64(3), "name": "cy"}}, nil)
	f = newFixture(t, org(), WithProjector(p))

	rows, err := f.svc.Project(context.Background(), managerRel, res, []string{"name"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	p.AssertExpectations(t)
}

var linkRel = core.EdgeTableOf("links", "src", "dst", "")

// forest is a binary tree 1..63 (i -> 2i, 2i+1) next to a chain 100 -> 101 -> 102.
func forest() *rowsource.Memory {
	m := rowsource.NewMemory()
	for i := core.NodeID(1); i <= 31; i++ {
		m.AddEdge(linkRel, i, 2*i, 0)
		m.AddEdge(linkRel, i, 2*i+1, 0)
	}
	m.AddEdge(linkRel, 100, 101, 0)
	m.AddEdge(linkRel, 101, 102, 0)
	return m
}

func TestSubmit_UnreachableComponentVisitsOnlyStartSide(t *testing.T) {
	f := newFixture(t, forest())
	res, err := f.svc.Submit(context.Background(), &core.TraversalRequest{
		Start: 1, Goal: core.Goal(102), Relationship: linkRel, MaxDepth: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, core.PlanEstimated, res.PlanSource)
	assert.Equal(t, core.StrategyBidirectional, res.Strategy)
	assert.False(t, res.Found)
	assert.NotNil(t, res.Path)
	assert.Empty(t, res.Path)
	assert.True(t, math.IsInf(res.Cost, 1))

	want := make([]core.NodeID, 0, 31)
	for i := core.NodeID(1); i <= 31; i++ {
		want = append(want, i)
	}
	assert.ElementsMatch(t, want, res.Visited)
}

// censusDown serves neighbors but cannot collect statistics.
type censusDown struct {
	*rowsource.Memory
}

func (censusDown) Census(context.Context, core.Relationship, int) (*rowsource.Census, error) {
	return nil, rgerrors.NewDataSourceError("census", "database unavailable")
}

func TestSubmit_CachedPlanSkipsStatistics(t *testing.T) {
	logger := zerolog.Nop()
	plans := cache.NewPlanCache(32, time.Minute, cache.WithName("service_cached_test"))
	p := planner.New(cost.NewEstimator(cost.DefaultConstants()), plans, logger)
	build := func(src rowsource.Source) *Service {
		registry := stats.NewRegistry(stats.NewCollector(src, stats.SampleConfig{}, logger), time.Second, logger)
		return New(traverse.NewEngine(src, traverse.Config{}, logger), registry, p, plans, logger)
	}
	req := func() *core.TraversalRequest {
		return &core.TraversalRequest{Start: 1, Goal: core.Goal(5), Relationship: managerRel, MaxDepth: 10}
	}

	warm, err := build(org()).Submit(context.Background(), req())
	require.NoError(t, err)
	require.Equal(t, core.PlanEstimated, warm.PlanSource)

	cold := build(censusDown{org()})
	res, err := cold.Submit(context.Background(), req())
	require.NoError(t, err)
	assert.Equal(t, core.PlanCached, res.PlanSource)
	assert.Equal(t, []core.NodeID{1, 2, 3, 4, 5}, res.Path)

	// A miss still needs statistics.
	miss := req()
	miss.MaxDepth = 3
	_, err = cold.Submit(context.Background(), miss)
	assert.True(t, rgerrors.IsDataSource(err))
}
