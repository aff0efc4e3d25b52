package traverse

import (
	"context"

	"github.com/23skdu/rowgraph/internal/core"
)

// dfs pops one record per step from an explicit stack. A node is emitted the
// first time it is popped; it is expanded again only when reached at a
// strictly shallower depth, which keeps the reachable set within maxDepth
// identical to bfs.
type dfs struct {
	*search
	stack      []int
	shallowest map[core.NodeID]int
}

func newDFS(s *search) *dfs {
	d := &dfs{search: s, shallowest: make(map[core.NodeID]int)}
	d.stack = append(d.stack, s.root())
	return d
}

func (d *dfs) done() bool {
	return len(d.stack) == 0 || d.found() || d.truncated
}

func (d *dfs) expand(ctx context.Context) error {
	d.observeFrontier(len(d.stack))
	top := len(d.stack) - 1
	rec := d.stack[top]
	d.stack = d.stack[:top]

	cur := d.arena[rec]
	if best, ok := d.shallowest[cur.id]; ok && best <= cur.depth {
		return nil
	}
	d.shallowest[cur.id] = cur.depth

	if !d.emit(cur.id, cur.depth) {
		return nil
	}
	if d.isGoal(cur.id) {
		d.goalRec = rec
		return nil
	}
	if cur.depth >= d.maxDepth {
		return nil
	}

	ns, err := d.fetch(ctx, cur.id, false)
	if err != nil {
		return err
	}
	// Push in descending order so the lowest id is popped first.
	for i := len(ns) - 1; i >= 0; i-- {
		nb := ns[i]
		if best, ok := d.shallowest[nb.ID]; ok && best <= cur.depth+1 {
			continue
		}
		d.stack = append(d.stack, d.push(d.child(rec, nb)))
	}
	return nil
}
