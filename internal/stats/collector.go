package stats

import (
	"context"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/rs/zerolog"
	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/stat"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/metrics"
	"github.com/23skdu/rowgraph/internal/rowsource"
)

// SampleConfig bounds the sampling walk made while collecting statistics.
type SampleConfig struct {
	MaxRoots int `envconfig:"STATS_SAMPLE_ROOTS" default:"16"`
	MaxDepth int `envconfig:"STATS_SAMPLE_DEPTH" default:"16"`
	MaxNodes int `envconfig:"STATS_SAMPLE_NODES" default:"10000"`
}

// DefaultSampleConfig returns the default sampling limits.
func DefaultSampleConfig() SampleConfig {
	return SampleConfig{MaxRoots: 16, MaxDepth: 16, MaxNodes: 10000}
}

// Collector computes statistics by asking the source for a census and then
// walking a bounded breadth-first walk out of the roots.
type Collector struct {
	source rowsource.Source
	cfg    SampleConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewCollector creates a collector. Zero limits take the defaults.
func NewCollector(source rowsource.Source, cfg SampleConfig, logger zerolog.Logger) *Collector {
	def := DefaultSampleConfig()
	if cfg.MaxRoots <= 0 {
		cfg.MaxRoots = def.MaxRoots
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = def.MaxNodes
	}
	return &Collector{
		source: source,
		cfg:    cfg,
		logger: logger.With().Str("component", "stats_collector").Logger(),
		now:    time.Now,
	}
}

func sourceError(err error, op string) error {
	if rgerrors.TypeOf(err) != "" {
		return err
	}
	return rgerrors.WrapDataSourceError(err, op, "statistics collection failed")
}

// Collect builds a fresh, unversioned snapshot for rel.
func (c *Collector) Collect(ctx context.Context, rel core.Relationship) (*GraphStatistics, error) {
	const op = "stats.collect"
	start := time.Now()

	census, err := c.source.Census(ctx, rel, c.cfg.MaxRoots)
	if err != nil {
		metrics.StatsCollectionsTotal.WithLabelValues("error").Inc()
		return nil, sourceError(err, op)
	}

	s := FromCounts(census.Nodes, census.Edges, census.Weighted)
	s.Relationship = rel.Descriptor()

	if err := c.walk(ctx, rel, census.Roots, s); err != nil {
		metrics.StatsCollectionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	s.CollectedAt = c.now()

	metrics.StatsCollectionsTotal.WithLabelValues("ok").Inc()
	metrics.StatsCollectionDurationSeconds.Observe(time.Since(start).Seconds())
	c.logger.Debug().
		Str("relationship", s.Relationship).
		Int64("nodes", s.TotalNodes).
		Int64("edges", s.TotalEdges).
		Float64("branching", s.AverageBranchingFactor).
		Int("max_depth", s.MaxObservedDepth).
		Bool("depth_lower_bound", s.DepthIsLowerBound).
		Int("sampled", s.SampledNodes).
		Dur("elapsed", time.Since(start)).
		Msg("statistics collected")
	return s, nil
}

// walk walks level by level from the roots, recording the first-reach depth
// of every node and the out-degree of every expanded node.
func (c *Collector) walk(ctx context.Context, rel core.Relationship, roots []core.NodeID, s *GraphStatistics) error {
	const op = "stats.walk"
	if len(roots) == 0 {
		return nil
	}

	var buckets btree.Map[int, int64]
	visited := roaring64.New()
	degrees := make([]float64, 0, 64)

	frontier := make([]core.NodeID, 0, len(roots))
	for _, r := range roots {
		if visited.CheckedAdd(uint64(r)) {
			frontier = append(frontier, r)
		}
	}
	buckets.Set(0, int64(len(frontier)))

	depth := 0
	lowerBound := false
walk:
	for len(frontier) > 0 {
		if depth >= c.cfg.MaxDepth {
			lowerBound = true
			break
		}
		var next []core.NodeID
		for _, id := range frontier {
			if len(degrees) >= c.cfg.MaxNodes {
				lowerBound = true
				break walk
			}
			if err := ctx.Err(); err != nil {
				return rgerrors.Cancelled(err, op)
			}
			ns, err := c.source.Neighbors(ctx, rel, id)
			if err != nil {
				return sourceError(err, op)
			}
			degrees = append(degrees, float64(len(ns)))
			for _, n := range ns {
				if visited.CheckedAdd(uint64(n.ID)) {
					next = append(next, n.ID)
				}
			}
		}
		if len(next) > 0 {
			depth++
			buckets.Set(depth, int64(len(next)))
		}
		frontier = next
	}

	s.MaxObservedDepth = depth
	s.DepthIsLowerBound = lowerBound
	s.SampledNodes = len(degrees)
	s.DepthDistribution = make([]DepthBucket, 0, buckets.Len())
	buckets.Scan(func(d int, n int64) bool {
		s.DepthDistribution = append(s.DepthDistribution, DepthBucket{Depth: d, Count: n})
		return true
	})

	switch len(degrees) {
	case 0:
	case 1:
		s.ObservedBranchingMean = degrees[0]
	default:
		s.ObservedBranchingMean, s.ObservedBranchingStdDev = stat.MeanStdDev(degrees, nil)
	}
	return nil
}
