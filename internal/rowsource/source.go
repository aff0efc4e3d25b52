// Package rowsource provides neighbor lookup over relationships stored as rows.
package rowsource

import (
	"context"

	"github.com/23skdu/rowgraph/internal/core"
)

// Capabilities advertises what a source can do for a relationship.
type Capabilities struct {
	// Reverse means ReverseNeighbors is supported.
	Reverse bool
	// Distance means the source implements DistanceEstimator for this relationship.
	Distance bool
}

// Census is the cheap whole-graph summary the statistics collector starts from.
type Census struct {
	Nodes    int64
	Edges    int64
	Weighted bool
	// Roots are up to the requested number of entry points, ascending by id.
	// When the graph has no natural roots the lowest ids are used.
	Roots []core.NodeID
}

// Source answers neighbor queries for a relationship.
//
// Neighbors returns the forward adjacency of id; ReverseNeighbors the nodes
// with an edge into id. An id that is not a node of the relationship yields an
// error satisfying errors.IsNotFound. A node without edges yields an empty slice.
type Source interface {
	Name() string
	Neighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error)
	ReverseNeighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error)
	Census(ctx context.Context, rel core.Relationship, maxRoots int) (*Census, error)
	Capabilities(rel core.Relationship) Capabilities
}

// DistanceEstimator is implemented by sources that can estimate the remaining
// cost between two nodes. Estimates should never exceed the true path cost.
type DistanceEstimator interface {
	EstimateDistance(ctx context.Context, rel core.Relationship, from, to core.NodeID) (float64, error)
}

// Row is one projected row, keyed by column name.
type Row map[string]any

// RowProjector fetches column values for node rows.
type RowProjector interface {
	ProjectRows(ctx context.Context, rel core.Relationship, ids []core.NodeID, columns []string) ([]Row, error)
}
