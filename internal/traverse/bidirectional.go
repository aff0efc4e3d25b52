package traverse

import (
	"context"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
)

// side is one direction of a bidirectional search. reach maps a discovered
// node to its arena record; parents in the backward arena point toward the goal.
type side struct {
	reverse  bool
	limit    int
	depth    int
	frontier []int
	reach    map[core.NodeID]int
}

func (sd *side) finished() bool {
	return len(sd.frontier) == 0 || sd.depth >= sd.limit
}

// bidirectional grows a forward ball of ceil(d/2) levels from the start and a
// backward ball of floor(d/2) levels from the goal, one whole level per step,
// always advancing the shallower side. The first completed level that touches
// the other side decides the meeting node: minimal combined depth, then the
// lowest id. Without a goal only the forward side runs, to the full depth.
//
// Only nodes reachable from the start are reported as visited. Backward
// discoveries are charged to the node budget and reported only when they
// lie on the returned path. Once the goal is known to be unreachable the
// forward side sweeps on to the full depth, so visited is the whole reachable
// set, as for bfs.
type bidirectional struct {
	*search
	fwd, bwd *side
	meet     core.NodeID
	met      bool
	sweep    bool
	cost     float64
	route    []core.NodeID
}

func newBidirectional(s *search) *bidirectional {
	d := &bidirectional{search: s}

	fwdLimit := s.maxDepth
	if s.hasGoal {
		fwdLimit = (s.maxDepth + 1) / 2
	}
	r := s.root()
	d.fwd = &side{
		limit:    fwdLimit,
		frontier: []int{r},
		reach:    map[core.NodeID]int{s.start: r},
	}
	s.emit(s.start, 0)

	d.bwd = &side{reverse: true}
	if s.hasGoal {
		g := s.push(searchNode{id: s.goal, parent: -1})
		d.bwd.limit = s.maxDepth / 2
		d.bwd.frontier = []int{g}
		d.bwd.reach = map[core.NodeID]int{s.goal: g}
		s.charge()
	}
	return d
}

func (d *bidirectional) done() bool {
	if d.met || d.truncated {
		return true
	}
	if !d.hasGoal || d.sweep {
		return d.fwd.finished()
	}
	// An exhausted side holds everything it can ever reach, and two finished
	// half balls cover every path of at most maxDepth hops, so without a
	// meeting so far the goal is unreachable.
	if len(d.fwd.frontier) == 0 || len(d.bwd.frontier) == 0 || (d.fwd.finished() && d.bwd.finished()) {
		d.sweep = true
		d.fwd.limit = d.maxDepth
		return d.fwd.finished()
	}
	return false
}

func (d *bidirectional) expand(ctx context.Context) error {
	sd, other := d.fwd, d.bwd
	if d.hasGoal && !d.sweep && (d.fwd.finished() || (!d.bwd.finished() && d.bwd.depth < d.fwd.depth)) {
		sd, other = d.bwd, d.fwd
	}
	d.observeFrontier(len(d.fwd.frontier) + len(d.bwd.frontier))

	var next []int
	var fresh []core.NodeID
	for _, rec := range sd.frontier {
		cur := d.arena[rec]
		ns, err := d.fetch(ctx, cur.id, sd.reverse)
		if err != nil {
			if sd.reverse && cur.depth == 0 && rgerrors.IsNotFound(err) {
				// A goal missing from the relationship simply has no predecessors.
				continue
			}
			return err
		}
		for _, nb := range ns {
			if _, ok := sd.reach[nb.ID]; ok {
				continue
			}
			if !d.discover(sd, nb.ID, d.arena[rec].depth+1) {
				return nil
			}
			child := d.push(d.child(rec, nb))
			sd.reach[nb.ID] = child
			fresh = append(fresh, nb.ID)
			next = append(next, child)
		}
	}
	sd.frontier = next
	if len(next) > 0 {
		sd.depth++
	}

	if d.hasGoal && !d.sweep {
		d.pickMeeting(sd, other, fresh)
	}
	return nil
}

// discover accounts for a node newly reached by sd. Forward nodes are
// reported; a node the backward side already charged moves from unreported to
// reported. Backward nodes the forward side has not reached are only charged.
func (d *bidirectional) discover(sd *side, id core.NodeID, depth int) bool {
	if sd.reverse {
		if _, ok := d.fwd.reach[id]; ok {
			return true
		}
		return d.charge()
	}
	if _, ok := d.bwd.reach[id]; ok {
		d.unreported--
	}
	return d.emit(id, depth)
}

// pickMeeting scans the nodes discovered in the level just completed.
func (d *bidirectional) pickMeeting(sd, other *side, fresh []core.NodeID) {
	best := -1
	for _, id := range fresh {
		orec, ok := other.reach[id]
		if !ok {
			continue
		}
		total := d.arena[sd.reach[id]].depth + d.arena[orec].depth
		if best < 0 || total < best || (total == best && id < d.meet) {
			best, d.meet = total, id
		}
	}
	if best < 0 {
		return
	}
	d.met = true
	f, b := d.fwd.reach[d.meet], d.bwd.reach[d.meet]
	d.cost = d.arena[f].g + d.arena[b].g

	// Nodes between the meeting node and the goal are reachable from the
	// start along the route, so they become visited in route order.
	d.route = d.path()
	for depth, id := range d.route {
		if !d.seen(id) {
			d.unreported--
			d.emit(id, depth)
		}
	}
}

func (d *bidirectional) path() []core.NodeID {
	head := d.pathTo(d.fwd.reach[d.meet])
	tail := d.pathTo(d.bwd.reach[d.meet])
	// tail runs goal..meet; append it reversed, skipping the shared meeting node.
	for i := len(tail) - 2; i >= 0; i-- {
		head = append(head, tail[i])
	}
	return head
}
