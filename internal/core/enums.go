package core

import (
	"fmt"
	"strings"
)

// Strategy identifies a traversal algorithm.
// The zero value StrategyAuto lets the planner choose.
type Strategy int

const (
	StrategyAuto Strategy = iota
	StrategyBFS
	StrategyDFS
	StrategyBidirectional
	StrategyAStar
	StrategyDijkstra
)

// Strategies lists every concrete strategy in tie-break preference order.
var Strategies = []Strategy{
	StrategyBFS,
	StrategyDFS,
	StrategyBidirectional,
	StrategyAStar,
	StrategyDijkstra,
}

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyBFS:
		return "bfs"
	case StrategyDFS:
		return "dfs"
	case StrategyBidirectional:
		return "bidirectional"
	case StrategyAStar:
		return "astar"
	case StrategyDijkstra:
		return "dijkstra"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// NeedsGoal reports whether the strategy only makes sense with a goal node.
func (s Strategy) NeedsGoal() bool {
	return s == StrategyBidirectional || s == StrategyAStar
}

// ParseStrategy converts a user supplied name into a Strategy.
// The empty string maps to StrategyAuto.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return StrategyAuto, nil
	case "bfs", "breadth_first":
		return StrategyBFS, nil
	case "dfs", "depth_first":
		return StrategyDFS, nil
	case "bidirectional", "bidi":
		return StrategyBidirectional, nil
	case "astar", "a*":
		return StrategyAStar, nil
	case "dijkstra":
		return StrategyDijkstra, nil
	default:
		return StrategyAuto, fmt.Errorf("unknown strategy %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Heuristic selects the A* remaining-cost estimate.
type Heuristic int

const (
	HeuristicAuto Heuristic = iota
	// HeuristicDepth estimates maxDepth - currentDepth.
	HeuristicDepth
	// HeuristicDistance asks the data source for an estimate to the goal.
	HeuristicDistance
	// HeuristicDensity scales remaining depth by graph edge density.
	HeuristicDensity
)

func (h Heuristic) String() string {
	switch h {
	case HeuristicAuto:
		return "auto"
	case HeuristicDepth:
		return "depth"
	case HeuristicDistance:
		return "distance"
	case HeuristicDensity:
		return "density"
	default:
		return fmt.Sprintf("heuristic(%d)", int(h))
	}
}

// ParseHeuristic converts a user supplied name into a Heuristic.
func ParseHeuristic(name string) (Heuristic, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return HeuristicAuto, nil
	case "depth":
		return HeuristicDepth, nil
	case "distance":
		return HeuristicDistance, nil
	case "density":
		return HeuristicDensity, nil
	default:
		return HeuristicAuto, fmt.Errorf("unknown heuristic %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (h Heuristic) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Heuristic) UnmarshalText(b []byte) error {
	v, err := ParseHeuristic(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// PlanSource records where a strategy decision came from.
type PlanSource string

const (
	PlanExplicit  PlanSource = "explicit"
	PlanCached    PlanSource = "cached"
	PlanEstimated PlanSource = "estimated"
)
