package stats

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
	"github.com/23skdu/rowgraph/internal/metrics"
)

type slot struct {
	rel  core.Relationship
	snap atomic.Pointer[GraphStatistics]
}

// Registry holds the published snapshot per relationship. Readers load the
// current snapshot with one atomic pointer read; publishers swap in a new one.
type Registry struct {
	collector      *Collector
	logger         zerolog.Logger
	collectTimeout time.Duration

	mu    sync.RWMutex
	slots map[string]*slot

	group   singleflight.Group
	version atomic.Uint64
}

// NewRegistry creates a registry that collects through collector. Shared
// collections run detached from any single caller, bounded by collectTimeout
// (0 means unbounded).
func NewRegistry(collector *Collector, collectTimeout time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		collector:      collector,
		collectTimeout: collectTimeout,
		logger:         logger.With().Str("component", "stats_registry").Logger(),
		slots:          make(map[string]*slot),
	}
}

func (r *Registry) slotFor(rel core.Relationship) *slot {
	key := rel.Descriptor()

	r.mu.RLock()
	s, ok := r.slots[key]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.slots[key]; ok {
		return s
	}
	s = &slot{rel: rel}
	r.slots[key] = s
	return s
}

// Snapshot returns the published snapshot without collecting.
func (r *Registry) Snapshot(rel core.Relationship) (*GraphStatistics, bool) {
	r.mu.RLock()
	s, ok := r.slots[rel.Descriptor()]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	snap := s.snap.Load()
	return snap, snap != nil
}

// Get returns the published snapshot, collecting one first if none exists.
// Concurrent first calls for the same relationship share a single collection.
func (r *Registry) Get(ctx context.Context, rel core.Relationship) (*GraphStatistics, error) {
	if snap := r.slotFor(rel).snap.Load(); snap != nil {
		return snap, nil
	}
	return r.collectShared(ctx, rel, false)
}

// Refresh collects and publishes a new snapshot. On failure the previous
// snapshot stays published.
func (r *Registry) Refresh(ctx context.Context, rel core.Relationship) (*GraphStatistics, error) {
	return r.collectShared(ctx, rel, true)
}

func (r *Registry) collectShared(ctx context.Context, rel core.Relationship, force bool) (*GraphStatistics, error) {
	key := rel.Descriptor()
	if force {
		key = "refresh:" + key
	}

	ch := r.group.DoChan(key, func() (interface{}, error) {
		if !force {
			if snap := r.slotFor(rel).snap.Load(); snap != nil {
				return snap, nil
			}
		}
		cctx := context.WithoutCancel(ctx)
		if r.collectTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(cctx, r.collectTimeout)
			defer cancel()
		}
		snap, err := r.collector.Collect(cctx, rel)
		if err != nil {
			return nil, err
		}
		return r.publish(rel, snap), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*GraphStatistics), nil
	case <-ctx.Done():
		return nil, rgerrors.Cancelled(ctx.Err(), "stats.get")
	}
}

// Publish installs a caller-supplied snapshot for rel, stamped with a fresh
// version. The argument is copied; the published copy is returned.
func (r *Registry) Publish(rel core.Relationship, s *GraphStatistics) *GraphStatistics {
	c := s.Clone()
	c.Relationship = rel.Descriptor()
	if c.CollectedAt.IsZero() {
		c.CollectedAt = time.Now()
	}
	return r.publish(rel, c)
}

func (r *Registry) publish(rel core.Relationship, s *GraphStatistics) *GraphStatistics {
	s.Version = r.version.Add(1)
	r.slotFor(rel).snap.Store(s)
	metrics.StatsSnapshotVersion.WithLabelValues(s.Relationship).Set(float64(s.Version))
	return s
}

// Relationships lists every relationship the registry has seen, by descriptor.
func (r *Registry) Relationships() []core.Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Relationship, 0, len(r.slots))
	for _, s := range r.slots {
		out = append(out, s.rel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor() < out[j].Descriptor() })
	return out
}

// RefreshAll refreshes every known relationship, logging failures.
// It returns the number of successful refreshes.
func (r *Registry) RefreshAll(ctx context.Context) int {
	ok := 0
	for _, rel := range r.Relationships() {
		if ctx.Err() != nil {
			break
		}
		if _, err := r.Refresh(ctx, rel); err != nil {
			r.logger.Warn().Err(err).Str("relationship", rel.Descriptor()).Msg("statistics refresh failed; keeping previous snapshot")
			continue
		}
		ok++
	}
	return ok
}

// RunRefresher refreshes all known relationships every interval until ctx ends.
func (r *Registry) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("statistics refresher started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("statistics refresher stopped")
			return
		case <-ticker.C:
			n := r.RefreshAll(ctx)
			r.logger.Debug().Int("refreshed", n).Msg("statistics refresh pass complete")
		}
	}
}
