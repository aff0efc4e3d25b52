package rowsource

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/tidwall/btree"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
)

// Edge is a single directed edge used to load in-memory relationships.
type Edge struct {
	From   core.NodeID
	To     core.NodeID
	Weight float64
}

type memTable struct {
	forward  map[core.NodeID][]core.Neighbor
	reverse  map[core.NodeID][]core.Neighbor
	nodes    btree.Set[core.NodeID]
	targeted btree.Set[core.NodeID]
	edges    int64
	weighted bool
}

func newMemTable() *memTable {
	return &memTable{
		forward: make(map[core.NodeID][]core.Neighbor),
		reverse: make(map[core.NodeID][]core.Neighbor),
	}
}

// Memory is an in-process relationship store. Tables are keyed by the
// relationship descriptor, so the same Memory can serve several relationships.
type Memory struct {
	mu        sync.RWMutex
	tables    map[string]*memTable
	positions map[core.NodeID][]float64
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{
		tables:    make(map[string]*memTable),
		positions: make(map[core.NodeID][]float64),
	}
}

// Name implements Source.
func (m *Memory) Name() string { return "memory" }

func (m *Memory) tableLocked(rel core.Relationship) *memTable {
	key := rel.Descriptor()
	t, ok := m.tables[key]
	if !ok {
		t = newMemTable()
		m.tables[key] = t
	}
	return t
}

// AddNode registers id as a node of rel without edges.
func (m *Memory) AddNode(rel core.Relationship, id core.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tableLocked(rel).nodes.Insert(id)
}

// AddEdge appends a directed edge. A weight of 0 means the default weight.
func (m *Memory) AddEdge(rel core.Relationship, from, to core.NodeID, weight float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addEdgeLocked(m.tableLocked(rel), from, to, weight, rel.Weighted())
}

func (m *Memory) addEdgeLocked(t *memTable, from, to core.NodeID, weight float64, weighted bool) {
	if weight == 0 && !weighted {
		weight = core.DefaultWeight
	}
	t.forward[from] = append(t.forward[from], core.Neighbor{ID: to, Weight: weight})
	t.reverse[to] = append(t.reverse[to], core.Neighbor{ID: from, Weight: weight})
	t.nodes.Insert(from)
	t.nodes.Insert(to)
	t.targeted.Insert(to)
	t.edges++
	t.weighted = t.weighted || weighted
}

// LoadEdges appends edges to an edge table relationship.
func (m *Memory) LoadEdges(rel core.Relationship, edges []Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tableLocked(rel)
	for _, e := range edges {
		m.addEdgeLocked(t, e.From, e.To, e.Weight, rel.Weighted())
	}
}

// AddRow registers a row of a foreign key relationship. A nil parent marks a root.
// The child is a forward neighbor of the parent; the parent is the child's
// only reverse neighbor.
func (m *Memory) AddRow(rel core.Relationship, id core.NodeID, parent *core.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tableLocked(rel)
	t.nodes.Insert(id)
	if parent == nil {
		return
	}
	m.addEdgeLocked(t, *parent, id, core.DefaultWeight, false)
}

// SetPosition assigns coordinates to a node. Once any node has a position the
// source offers Euclidean distance estimates.
func (m *Memory) SetPosition(id core.NodeID, coords ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[id] = slices.Clone(coords)
}

func (m *Memory) lookup(ctx context.Context, op string, rel core.Relationship) (*memTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, rgerrors.Cancelled(err, op)
	}
	t, ok := m.tables[rel.Descriptor()]
	if !ok {
		return nil, rgerrors.NewRelationshipError(op, "relationship not loaded").
			WithContext("relationship", rel.Descriptor())
	}
	return t, nil
}

func (m *Memory) adjacent(ctx context.Context, op string, rel core.Relationship, id core.NodeID, reverse bool) ([]core.Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.lookup(ctx, op, rel)
	if err != nil {
		return nil, err
	}
	if !t.nodes.Contains(id) {
		return nil, rgerrors.NewNotFoundError(op, int64(id))
	}
	src := t.forward[id]
	if reverse {
		src = t.reverse[id]
	}
	return slices.Clone(src), nil
}

// Neighbors implements Source.
func (m *Memory) Neighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	return m.adjacent(ctx, "memory.neighbors", rel, id, false)
}

// ReverseNeighbors implements Source.
func (m *Memory) ReverseNeighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	return m.adjacent(ctx, "memory.reverse_neighbors", rel, id, true)
}

// Census implements Source.
func (m *Memory) Census(ctx context.Context, rel core.Relationship, maxRoots int) (*Census, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.lookup(ctx, "memory.census", rel)
	if err != nil {
		return nil, err
	}

	c := &Census{
		Nodes:    int64(t.nodes.Len()),
		Edges:    t.edges,
		Weighted: t.weighted,
	}
	if maxRoots <= 0 {
		return c, nil
	}
	t.nodes.Scan(func(id core.NodeID) bool {
		if !t.targeted.Contains(id) {
			c.Roots = append(c.Roots, id)
		}
		return len(c.Roots) < maxRoots
	})
	if len(c.Roots) == 0 {
		t.nodes.Scan(func(id core.NodeID) bool {
			c.Roots = append(c.Roots, id)
			return len(c.Roots) < maxRoots
		})
	}
	return c, nil
}

// Capabilities implements Source.
func (m *Memory) Capabilities(core.Relationship) Capabilities {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Capabilities{Reverse: true, Distance: len(m.positions) > 0}
}

// EstimateDistance returns the Euclidean distance between node positions, or
// 0 when either node has none.
func (m *Memory) EstimateDistance(ctx context.Context, _ core.Relationship, from, to core.NodeID) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, rgerrors.Cancelled(err, "memory.estimate_distance")
	}
	m.mu.RLock()
	a, okA := m.positions[from]
	b, okB := m.positions[to]
	m.mu.RUnlock()
	if !okA || !okB {
		return 0, nil
	}

	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
