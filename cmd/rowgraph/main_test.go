package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/rowsource"
	"github.com/23skdu/rowgraph/internal/server"
	"github.com/23skdu/rowgraph/internal/stats"
)

func writeEdges(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edges.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, rowsource.WriteParquetEdges(f, []rowsource.EdgeRecord{
		{Source: 1, Target: 2, Weight: 5},
		{Source: 1, Target: 3, Weight: 1},
		{Source: 3, Target: 2, Weight: 1},
		{Source: 2, Target: 4, Weight: 1},
	}))
	require.NoError(t, f.Close())
	return path
}

func execute(t *testing.T, args ...string) []byte {
	t.Helper()
	t.Setenv("ROWGRAPH_EDGES_PARQUET", writeEdges(t))
	t.Setenv("ROWGRAPH_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	require.NoError(t, rootCmd.Execute())
	return out.Bytes()
}

var edgeFlags = []string{"--table", "edges", "--source-column", "source", "--target-column", "target", "--weight-column", "weight"}

func TestQueryCommand(t *testing.T) {
	args := append([]string{"query"}, edgeFlags...)
	args = append(args, "--start", "1", "--goal", "4", "--depth", "5", "--strategy", "dijkstra")

	var resp server.TraverseResponse
	require.NoError(t, json.Unmarshal(execute(t, args...), &resp))
	assert.True(t, resp.Found)
	assert.Equal(t, []core.NodeID{1, 3, 2, 4}, resp.Path)
	require.NotNil(t, resp.Cost)
	assert.Equal(t, 3.0, *resp.Cost)
	assert.Equal(t, core.StrategyDijkstra, resp.Strategy)
}

func TestStatsCommand(t *testing.T) {
	args := append([]string{"stats"}, edgeFlags...)

	var snap stats.GraphStatistics
	require.NoError(t, json.Unmarshal(execute(t, args...), &snap))
	assert.Equal(t, int64(4), snap.TotalNodes)
	assert.Equal(t, int64(4), snap.TotalEdges)
	assert.True(t, snap.Weighted)
}

func TestRelationshipFlags(t *testing.T) {
	fk := relationshipFlags{table: "employees", column: "manager_id", idColumn: "emp_id"}
	r := fk.relationship()
	assert.Equal(t, core.ForeignKey, r.Kind)
	assert.Equal(t, "emp_id", r.Key())

	edge := relationshipFlags{table: "roads", source: "a", target: "b", weightColumn: "km"}
	r = edge.relationship()
	assert.Equal(t, core.EdgeTable, r.Kind)
	assert.True(t, r.Weighted())
}
