package core

import (
	"math"
	"time"
)

// NodeID is an opaque row identifier.
type NodeID int64

// Neighbor is one outgoing (or incoming, for reverse lookups) edge endpoint.
type Neighbor struct {
	ID     NodeID  `json:"id"`
	Weight float64 `json:"weight"`
}

// DefaultWeight is the cost of an edge without an explicit weight.
const DefaultWeight = 1.0

// Unreachable is the Cost reported when a goal cannot be reached.
var Unreachable = math.Inf(1)

// TraversalRequest is one query against the engine.
type TraversalRequest struct {
	Start        NodeID        `json:"start"`
	Goal         *NodeID       `json:"goal,omitempty"`
	Relationship Relationship  `json:"relationship"`
	MaxDepth     int           `json:"max_depth" validate:"gt=0,lte=10000"`
	Strategy     Strategy      `json:"strategy" validate:"gte=0,lte=5"`
	Heuristic    Heuristic     `json:"heuristic" validate:"gte=0,lte=3"`
	Timeout      time.Duration `json:"timeout,omitempty" validate:"gte=0"`
}

// HasGoal reports whether the request targets a specific node.
func (r *TraversalRequest) HasGoal() bool {
	return r.Goal != nil
}

// GoalID returns the goal or 0 when absent.
func (r *TraversalRequest) GoalID() NodeID {
	if r.Goal == nil {
		return 0
	}
	return *r.Goal
}

// Goal is a small helper for building requests.
func Goal(id NodeID) *NodeID {
	return &id
}

// TraversalResult is the outcome of a traversal.
//
// Path is nil when no goal was requested, and empty but non-nil when the goal
// is unreachable within MaxDepth. Cost is Unreachable in the latter case.
type TraversalResult struct {
	Strategy      Strategy   `json:"strategy"`
	Heuristic     Heuristic  `json:"heuristic"`
	Visited       []NodeID   `json:"visited"`
	GoalRequested bool       `json:"goal_requested"`
	Found         bool       `json:"found"`
	Path          []NodeID   `json:"path"`
	Cost          float64    `json:"cost"`
	DepthReached  int        `json:"depth_reached"`
	Truncated     bool       `json:"truncated"`
	PlanSource    PlanSource `json:"plan_source"`
}

// Reachable reports whether the goal was reached.
func (r *TraversalResult) Reachable() bool {
	return r.GoalRequested && r.Found
}
