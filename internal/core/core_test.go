package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	for _, s := range append([]Strategy{StrategyAuto}, Strategies...) {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseStrategy("  A* ")
	require.NoError(t, err)
	assert.Equal(t, StrategyAStar, got)

	_, err = ParseStrategy("floyd")
	assert.Error(t, err)
}

func TestParseHeuristic(t *testing.T) {
	for _, h := range []Heuristic{HeuristicAuto, HeuristicDepth, HeuristicDistance, HeuristicDensity} {
		got, err := ParseHeuristic(h.String())
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}
	_, err := ParseHeuristic("manhattan")
	assert.Error(t, err)
}

func TestNeedsGoal(t *testing.T) {
	assert.True(t, StrategyAStar.NeedsGoal())
	assert.True(t, StrategyBidirectional.NeedsGoal())
	assert.False(t, StrategyBFS.NeedsGoal())
	assert.False(t, StrategyDijkstra.NeedsGoal())
}

func TestRequestJSON(t *testing.T) {
	raw := `{"start":1,"goal":5,"relationship":{"kind":2,"table":"edges","source_column":"src","target_column":"dst"},"max_depth":4,"strategy":"astar","heuristic":"depth"}`
	var req TraversalRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.Equal(t, NodeID(1), req.Start)
	require.True(t, req.HasGoal())
	assert.Equal(t, NodeID(5), req.GoalID())
	assert.Equal(t, StrategyAStar, req.Strategy)
	assert.Equal(t, HeuristicDepth, req.Heuristic)
	assert.Equal(t, "edge:edges(src->dst)", req.Relationship.Descriptor())
}

func TestRelationshipValidate(t *testing.T) {
	tests := []struct {
		name    string
		rel     Relationship
		wantErr bool
	}{
		{"fk", ForeignKeyColumn("employees", "manager_id"), false},
		{"edge", EdgeTableOf("edges", "src", "dst", ""), false},
		{"weighted edge", EdgeTableOf("roads", "a", "b", "km"), false},
		{"empty table", EdgeTableOf("", "src", "dst", ""), true},
		{"injection", EdgeTableOf("edges; drop table x", "src", "dst", ""), true},
		{"same columns", EdgeTableOf("edges", "src", "SRC", ""), true},
		{"zero kind", Relationship{Table: "t"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rel.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDescriptor(t *testing.T) {
	assert.Equal(t, "fk:employees.manager_id->id", ForeignKeyColumn("employees", "manager_id").Descriptor())
	assert.Equal(t, "edge:roads(a->b,km)", EdgeTableOf("roads", "a", "b", "km").Descriptor())
	assert.True(t, EdgeTableOf("roads", "a", "b", "km").Weighted())
	assert.False(t, ForeignKeyColumn("t", "p").Weighted())
}
