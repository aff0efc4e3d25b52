package traverse

import (
	"context"
)

// bfs expands one queued node per step. Nodes are emitted on discovery, so
// the visited order has non-decreasing depth and the goal ends the search as
// soon as it is discovered.
type bfs struct {
	*search
	queue []int
}

func newBFS(s *search) *bfs {
	d := &bfs{search: s}
	r := s.root()
	s.emit(s.start, 0)
	d.queue = append(d.queue, r)
	return d
}

func (d *bfs) done() bool {
	return len(d.queue) == 0 || d.found() || d.truncated
}

func (d *bfs) expand(ctx context.Context) error {
	d.observeFrontier(len(d.queue))
	rec := d.queue[0]
	d.queue[0] = 0
	d.queue = d.queue[1:]

	cur := d.arena[rec]
	if cur.depth >= d.maxDepth {
		return nil
	}
	ns, err := d.fetch(ctx, cur.id, false)
	if err != nil {
		return err
	}
	for _, nb := range ns {
		if d.seen(nb.ID) {
			continue
		}
		child := d.push(d.child(rec, nb))
		if !d.emit(nb.ID, cur.depth+1) {
			return nil
		}
		if d.isGoal(nb.ID) {
			d.goalRec = child
			return nil
		}
		if cur.depth+1 < d.maxDepth {
			d.queue = append(d.queue, child)
		}
	}
	return nil
}
