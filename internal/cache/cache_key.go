package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/23skdu/rowgraph/internal/core"
)

// Key identifies a request shape. Only fields supplied by the caller are part
// of it; the strategy the optimizer picks never is.
type Key struct {
	Relationship string
	MaxDepth     int
	Strategy     core.Strategy
	Heuristic    core.Heuristic
	Directed     bool
}

// KeyFor derives the cache key for a request.
func KeyFor(req *core.TraversalRequest) Key {
	return Key{
		Relationship: req.Relationship.Descriptor(),
		MaxDepth:     req.MaxDepth,
		Strategy:     req.Strategy,
		Heuristic:    req.Heuristic,
		Directed:     req.HasGoal(),
	}
}

// Hash computes the 64-bit lookup hash for a key. Equal keys hash equally;
// callers still compare the stored key since distinct keys may collide.
func (k Key) Hash() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(k.Relationship)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k.MaxDepth))
	_, _ = d.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:4], uint32(k.Strategy))
	binary.LittleEndian.PutUint32(buf[4:], uint32(k.Heuristic))
	_, _ = d.Write(buf[:])

	if k.Directed {
		_, _ = d.Write([]byte{1})
	} else {
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

func (k Key) String() string {
	return fmt.Sprintf("%s depth=%d strategy=%s heuristic=%s directed=%t",
		k.Relationship, k.MaxDepth, k.Strategy, k.Heuristic, k.Directed)
}
