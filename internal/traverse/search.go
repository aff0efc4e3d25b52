package traverse

import (
	"context"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/pool"
	"github.com/23skdu/rowgraph/internal/rowsource"
)

// searchNode is one arena record. parent is an arena index, -1 for a root.
// A node may own several records when it is reached again along a better path.
type searchNode struct {
	id     core.NodeID
	parent int
	depth  int
	g      float64
	h      float64
	f      float64
}

// search is the per-call state shared by every driver: the arena, the emitted
// set and order, and the accounting the engine reports.
type search struct {
	src      rowsource.Source
	rel      core.Relationship
	start    core.NodeID
	goal     core.NodeID
	hasGoal  bool
	maxDepth int
	budget   int

	arena   []searchNode
	emitted *roaring64.Bitmap
	order   []core.NodeID

	// unreported counts nodes discovered but not reported, such as the goal side
	// of a bidirectional search. They share the node budget with order.
	unreported int

	// goalRec is the arena index of the goal record, -1 until found.
	goalRec     int
	truncated   bool
	maxDepthHit int
	maxFrontier int
}

func newSearch(src rowsource.Source, req *core.TraversalRequest, budget int) *search {
	return &search{
		src:      src,
		rel:      req.Relationship,
		start:    req.Start,
		goal:     req.GoalID(),
		hasGoal:  req.HasGoal(),
		maxDepth: req.MaxDepth,
		budget:   budget,
		arena:    make([]searchNode, 0, 64),
		emitted:  pool.GetBitmap(),
		goalRec:  -1,
	}
}

// release returns the emitted set to the pool. The search must not be used
// afterwards; results only reference order and the arena.
func (s *search) release() {
	pool.PutBitmap(s.emitted)
	s.emitted = nil
}

func (s *search) push(n searchNode) int {
	s.arena = append(s.arena, n)
	return len(s.arena) - 1
}

func (s *search) root() int {
	return s.push(searchNode{id: s.start, parent: -1})
}

func (s *search) child(parent int, nb core.Neighbor) searchNode {
	p := s.arena[parent]
	return searchNode{
		id:     nb.ID,
		parent: parent,
		depth:  p.depth + 1,
		g:      p.g + nb.Weight,
	}
}

func (s *search) isGoal(id core.NodeID) bool {
	return s.hasGoal && id == s.goal
}

func (s *search) seen(id core.NodeID) bool {
	return s.emitted.Contains(uint64(id))
}

// emit appends id to the visited order once. It returns false when the node
// budget is exhausted, in which case the search is marked truncated.
func (s *search) emit(id core.NodeID, depth int) bool {
	if s.emitted.Contains(uint64(id)) {
		return true
	}
	if s.exhausted() {
		return false
	}
	s.emitted.Add(uint64(id))
	s.order = append(s.order, id)
	if depth > s.maxDepthHit {
		s.maxDepthHit = depth
	}
	return true
}

// charge counts an unreported discovery to the node budget.
func (s *search) charge() bool {
	if s.exhausted() {
		return false
	}
	s.unreported++
	return true
}

// exhausted marks the search truncated once the node budget is spent.
func (s *search) exhausted() bool {
	if s.budget > 0 && len(s.order)+s.unreported >= s.budget {
		s.truncated = true
		return true
	}
	return false
}

func (s *search) observeFrontier(n int) {
	if n > s.maxFrontier {
		s.maxFrontier = n
	}
}

func (s *search) found() bool {
	return s.goalRec >= 0
}

// pathTo walks parent links from rec back to its root and returns the ids in
// root-first order.
func (s *search) pathTo(rec int) []core.NodeID {
	var path []core.NodeID
	for i := rec; i >= 0; i = s.arena[i].parent {
		path = append(path, s.arena[i].id)
	}
	slices.Reverse(path)
	return path
}

// fetch loads the neighbors of id in ascending id order. The context is
// checked before and after the call so a cancelled traversal never reports
// a partial frontier as unreachable.
func (s *search) fetch(ctx context.Context, id core.NodeID, reverse bool) ([]core.Neighbor, error) {
	const op = "traverse.fetch"
	if err := ctx.Err(); err != nil {
		return nil, rgerrors.Cancelled(err, op)
	}

	var (
		ns  []core.Neighbor
		err error
	)
	if reverse {
		ns, err = s.src.ReverseNeighbors(ctx, s.rel, id)
	} else {
		ns, err = s.src.Neighbors(ctx, s.rel, id)
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, rgerrors.Cancelled(cerr, op)
	}
	if err != nil {
		if rgerrors.TypeOf(err) != "" {
			return nil, err
		}
		if rgerrors.IsCancelled(err) {
			return nil, rgerrors.Cancelled(err, op)
		}
		return nil, rgerrors.WrapDataSourceError(err, op, "neighbor lookup failed").
			WithContext("node_id", int64(id))
	}

	for _, n := range ns {
		if n.Weight < 0 || math.IsNaN(n.Weight) {
			return nil, rgerrors.NewRelationshipError(op, "edge weight must be non-negative").
				WithContext("from", int64(id)).
				WithContext("to", int64(n.ID)).
				WithContext("weight", n.Weight)
		}
	}
	slices.SortStableFunc(ns, func(a, b core.Neighbor) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return ns, nil
}
