// Package stats collects and publishes graph statistics snapshots.
package stats

import (
	"time"
)

// DepthBucket counts nodes first reached at Depth during the sampling walk.
type DepthBucket struct {
	Depth int   `json:"depth"`
	Count int64 `json:"count"`
}

// GraphStatistics is an immutable snapshot of a relationship's shape.
// Snapshots are replaced, never mutated, once published.
type GraphStatistics struct {
	Relationship           string        `json:"relationship"`
	TotalNodes             int64         `json:"total_nodes"`
	TotalEdges             int64         `json:"total_edges"`
	AverageBranchingFactor float64       `json:"average_branching_factor"`
	MaxObservedDepth       int           `json:"max_observed_depth"`
	DepthIsLowerBound      bool          `json:"depth_is_lower_bound"`
	DepthDistribution      []DepthBucket `json:"depth_distribution"`
	EdgeDensity            float64       `json:"edge_density"`
	Weighted               bool          `json:"weighted"`

	ObservedBranchingMean   float64 `json:"observed_branching_mean"`
	ObservedBranchingStdDev float64 `json:"observed_branching_stddev"`
	SampledNodes            int     `json:"sampled_nodes"`

	Version     uint64    `json:"version"`
	CollectedAt time.Time `json:"collected_at"`
}

// FromCounts builds a snapshot with the derived ratios filled in.
func FromCounts(nodes, edges int64, weighted bool) *GraphStatistics {
	s := &GraphStatistics{
		TotalNodes: nodes,
		TotalEdges: edges,
		Weighted:   weighted,
	}
	s.derive()
	return s
}

func (s *GraphStatistics) derive() {
	if s.TotalNodes <= 0 {
		s.AverageBranchingFactor = 0
		s.EdgeDensity = 0
		return
	}
	n := float64(s.TotalNodes)
	e := float64(s.TotalEdges)
	s.AverageBranchingFactor = e / n
	d := e / (n * n)
	switch {
	case d < 0:
		d = 0
	case d > 1:
		d = 1
	}
	s.EdgeDensity = d
}

// Clone returns a deep copy.
func (s *GraphStatistics) Clone() *GraphStatistics {
	if s == nil {
		return nil
	}
	c := *s
	c.DepthDistribution = append([]DepthBucket(nil), s.DepthDistribution...)
	return &c
}

// Empty reports whether the graph has no nodes.
func (s *GraphStatistics) Empty() bool {
	return s == nil || s.TotalNodes == 0
}
