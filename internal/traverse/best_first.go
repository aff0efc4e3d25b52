package traverse

import (
	"container/heap"
	"context"

	"github.com/23skdu/rowgraph/internal/core"
)

type heapItem struct {
	rec int
	id  core.NodeID
	g   float64
	f   float64
}

// priorityQueue orders by (f, g, id) and then by insertion, so equal-cost
// ties always resolve the same way.
type priorityQueue []heapItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	a, b := pq[i], pq[j]
	switch {
	case a.f != b.f:
		return a.f < b.f
	case a.g != b.g:
		return a.g < b.g
	case a.id != b.id:
		return a.id < b.id
	}
	return a.rec < b.rec
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) { *pq = append(*pq, x.(heapItem)) }

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// label is a (cost, depth) pair reached for a node. Under a depth bound a
// cheaper but deeper label does not make a shallower one redundant.
type label struct {
	g     float64
	depth int
}

func dominated(ls []label, g float64, depth int) bool {
	for _, l := range ls {
		if l.g <= g && l.depth <= depth {
			return true
		}
	}
	return false
}

// bestFirst is the lazy-deletion heap search behind dijkstra and astar.
// A node is emitted when first popped; the goal ends the search when popped.
type bestFirst struct {
	*search
	pq       priorityQueue
	h        heuristicFunc
	pushed   map[core.NodeID][]label
	expanded map[core.NodeID][]label
}

func newBestFirst(ctx context.Context, s *search, h heuristicFunc) (*bestFirst, error) {
	d := &bestFirst{
		search:   s,
		h:        h,
		pushed:   make(map[core.NodeID][]label),
		expanded: make(map[core.NodeID][]label),
	}
	r := s.root()
	if err := d.score(ctx, r); err != nil {
		return nil, err
	}
	d.pushed[s.start] = []label{{}}
	heap.Push(&d.pq, d.item(r))
	return d, nil
}

func (d *bestFirst) score(ctx context.Context, rec int) error {
	n := &d.arena[rec]
	h, err := d.h(ctx, n.id, n.depth)
	if err != nil {
		return err
	}
	n.h = h
	n.f = n.g + h
	return nil
}

func (d *bestFirst) item(rec int) heapItem {
	n := d.arena[rec]
	return heapItem{rec: rec, id: n.id, g: n.g, f: n.f}
}

func (d *bestFirst) done() bool {
	return d.pq.Len() == 0 || d.found() || d.truncated
}

func (d *bestFirst) expand(ctx context.Context) error {
	d.observeFrontier(d.pq.Len())
	it := heap.Pop(&d.pq).(heapItem)
	cur := d.arena[it.rec]

	if dominated(d.expanded[cur.id], cur.g, cur.depth) {
		return nil
	}
	d.expanded[cur.id] = append(d.expanded[cur.id], label{g: cur.g, depth: cur.depth})

	if !d.emit(cur.id, cur.depth) {
		return nil
	}
	if d.isGoal(cur.id) {
		d.goalRec = it.rec
		return nil
	}
	if cur.depth >= d.maxDepth {
		return nil
	}

	ns, err := d.fetch(ctx, cur.id, false)
	if err != nil {
		return err
	}
	for _, nb := range ns {
		next := d.child(it.rec, nb)
		if dominated(d.pushed[nb.ID], next.g, next.depth) {
			continue
		}
		d.pushed[nb.ID] = append(d.pushed[nb.ID], label{g: next.g, depth: next.depth})
		rec := d.push(next)
		if err := d.score(ctx, rec); err != nil {
			return err
		}
		heap.Push(&d.pq, d.item(rec))
	}
	return nil
}

// dijkstra is best-first search on path cost alone.
type dijkstra struct {
	*bestFirst
}

func newDijkstra(ctx context.Context, s *search) (*dijkstra, error) {
	bf, err := newBestFirst(ctx, s, zeroHeuristic)
	if err != nil {
		return nil, err
	}
	return &dijkstra{bf}, nil
}

// astar is best-first search on path cost plus a remaining-cost estimate.
type astar struct {
	*bestFirst
}

func newAStar(ctx context.Context, s *search, h heuristicFunc) (*astar, error) {
	bf, err := newBestFirst(ctx, s, h)
	if err != nil {
		return nil, err
	}
	return &astar{bf}, nil
}
