package rowsource

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
)

func setupDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDuckDB(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	stmts := []string{
		`CREATE TABLE employees (id BIGINT, manager_id BIGINT, name VARCHAR)`,
		`INSERT INTO employees VALUES (1, NULL, 'ada'), (2, 1, 'bob'), (3, 1, 'cy'), (4, 2, 'di')`,
		`CREATE TABLE roads (a BIGINT, b BIGINT, km DOUBLE)`,
		`INSERT INTO roads VALUES (1, 2, 4.0), (1, 3, 1.5), (3, 2, NULL), (5, 5, 1.0)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return db
}

func TestSQL_ForeignKey(t *testing.T) {
	ctx := context.Background()
	src := NewSQL(setupDuckDB(t), zerolog.Nop())
	rel := core.ForeignKeyColumn("employees", "manager_id")

	children, err := src.Neighbors(ctx, rel, 1)
	require.NoError(t, err)
	assert.Equal(t, []core.NodeID{2, 3}, ids(children))

	leaf, err := src.Neighbors(ctx, rel, 4)
	require.NoError(t, err)
	assert.Empty(t, leaf)

	parent, err := src.ReverseNeighbors(ctx, rel, 4)
	require.NoError(t, err)
	assert.Equal(t, []core.NodeID{2}, ids(parent))

	root, err := src.ReverseNeighbors(ctx, rel, 1)
	require.NoError(t, err)
	assert.Empty(t, root)

	_, err = src.Neighbors(ctx, rel, 99)
	assert.True(t, rgerrors.IsNotFound(err))

	c, err := src.Census(ctx, rel, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Nodes)
	assert.Equal(t, int64(3), c.Edges)
	assert.Equal(t, []core.NodeID{1}, c.Roots)
}

func TestSQL_WeightedEdgeTable(t *testing.T) {
	ctx := context.Background()
	src := NewSQL(setupDuckDB(t), zerolog.Nop())
	rel := core.EdgeTableOf("roads", "a", "b", "km")

	ns, err := src.Neighbors(ctx, rel, 1)
	require.NoError(t, err)
	assert.Equal(t, []core.Neighbor{{ID: 2, Weight: 4}, {ID: 3, Weight: 1.5}}, ns)

	// NULL weights fall back to the default weight.
	ns, err = src.Neighbors(ctx, rel, 3)
	require.NoError(t, err)
	assert.Equal(t, []core.Neighbor{{ID: 2, Weight: core.DefaultWeight}}, ns)

	rev, err := src.ReverseNeighbors(ctx, rel, 2)
	require.NoError(t, err)
	assert.Equal(t, []core.NodeID{1, 3}, ids(rev))

	// 2 only appears as a target.
	none, err := src.Neighbors(ctx, rel, 2)
	require.NoError(t, err)
	assert.Empty(t, none)

	c, err := src.Census(ctx, rel, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Nodes)
	assert.Equal(t, int64(4), c.Edges)
	assert.True(t, c.Weighted)
	assert.Equal(t, []core.NodeID{1}, c.Roots)
}

func TestSQL_SchemaMismatch(t *testing.T) {
	ctx := context.Background()
	src := NewSQL(setupDuckDB(t), zerolog.Nop())

	_, err := src.Neighbors(ctx, core.EdgeTableOf("missing", "a", "b", ""), 1)
	assert.True(t, rgerrors.IsRelationship(err))

	_, err = src.Neighbors(ctx, core.EdgeTableOf("roads", "a", "nope", ""), 1)
	assert.True(t, rgerrors.IsRelationship(err))

	_, err = src.Neighbors(ctx, core.EdgeTableOf("roads;", "a", "b", ""), 1)
	assert.True(t, rgerrors.IsConfiguration(err))
}

func TestSQL_ProjectRows(t *testing.T) {
	ctx := context.Background()
	src := NewSQL(setupDuckDB(t), zerolog.Nop())
	rel := core.ForeignKeyColumn("employees", "manager_id")

	rows, err := src.ProjectRows(ctx, rel, []core.NodeID{4, 1, 77}, []string{"name"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "di", rows[0]["name"])
	assert.Equal(t, "ada", rows[1]["name"])

	_, err = src.ProjectRows(ctx, rel, []core.NodeID{1}, []string{"name; drop"})
	assert.True(t, rgerrors.IsConfiguration(err))

	_, err = src.ProjectRows(ctx, core.EdgeTableOf("roads", "a", "b", ""), []core.NodeID{1}, nil)
	assert.True(t, rgerrors.IsRelationship(err))
}

func TestSQL_CancelledContext(t *testing.T) {
	src := NewSQL(setupDuckDB(t), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Neighbors(ctx, core.ForeignKeyColumn("employees", "manager_id"), 1)
	assert.True(t, rgerrors.IsCancelled(err))
}
