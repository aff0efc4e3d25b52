package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/metrics"
)

// Plan is a memoized optimizer decision.
type Plan struct {
	Key          Key
	Strategy     core.Strategy
	Heuristic    core.Heuristic
	StatsVersion uint64
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
	Size        int    `json:"size"`
	Capacity    int    `json:"capacity"`
}

type entry struct {
	key  Key
	plan Plan
	// tick is the logical time of the last access; the smallest tick is evicted first.
	tick atomic.Uint64
}

// PlanCache is a bounded LRU + TTL map from request shape to Plan.
//
// Get holds only the read lock and records recency through an atomic logical
// clock, so concurrent readers never block each other. Put holds the write lock.
type PlanCache struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	items    map[uint64]*entry

	clock atomic.Uint64
	now   func() time.Time

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	// name labels the Prometheus series
	name string
}

// Option customizes a PlanCache.
type Option func(*PlanCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *PlanCache) { c.now = now }
}

// WithName sets the metrics label.
func WithName(name string) Option {
	return func(c *PlanCache) { c.name = name }
}

// NewPlanCache creates a cache holding at most capacity plans, each valid for ttl.
// A ttl <= 0 disables expiry.
func NewPlanCache(capacity int, ttl time.Duration, opts ...Option) *PlanCache {
	if capacity < 1 {
		capacity = 1
	}
	c := &PlanCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[uint64]*entry, capacity),
		now:      time.Now,
		name:     "plans",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live plan for key.
func (c *PlanCache) Get(key Key) (Plan, bool) {
	h := key.Hash()

	c.mu.RLock()
	e, ok := c.items[h]
	if !ok || e.key != key || c.expired(&e.plan) {
		c.mu.RUnlock()
		c.misses.Add(1)
		metrics.PlanCacheMissesTotal.WithLabelValues(c.name).Inc()
		return Plan{}, false
	}
	e.tick.Store(c.clock.Add(1))
	plan := e.plan
	c.mu.RUnlock()

	c.hits.Add(1)
	metrics.PlanCacheHitsTotal.WithLabelValues(c.name).Inc()
	return plan, true
}

// Put stores plan under key, stamping its creation and expiry times.
func (c *PlanCache) Put(key Key, plan Plan) {
	now := c.now()
	plan.Key = key
	plan.CreatedAt = now
	if c.ttl > 0 {
		plan.ExpiresAt = now.Add(c.ttl)
	} else {
		plan.ExpiresAt = time.Time{}
	}

	e := &entry{key: key, plan: plan}
	e.tick.Store(c.clock.Add(1))
	h := key.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropExpiredLocked(now)

	// A colliding key simply takes over the slot.
	c.items[h] = e

	for len(c.items) > c.capacity {
		c.evictOldestLocked()
	}
	metrics.PlanCacheSize.WithLabelValues(c.name).Set(float64(len(c.items)))
}

// Purge removes every plan.
func (c *PlanCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[uint64]*entry, c.capacity)
	metrics.PlanCacheSize.WithLabelValues(c.name).Set(0)
}

// Len returns the number of stored plans, expired ones included until the next write.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns the cache counters.
func (c *PlanCache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Size:        c.Len(),
		Capacity:    c.capacity,
	}
}

func (c *PlanCache) expired(p *Plan) bool {
	return !p.ExpiresAt.IsZero() && !c.now().Before(p.ExpiresAt)
}

func (c *PlanCache) dropExpiredLocked(now time.Time) {
	if c.ttl <= 0 {
		return
	}
	for h, e := range c.items {
		if !e.plan.ExpiresAt.IsZero() && !now.Before(e.plan.ExpiresAt) {
			delete(c.items, h)
			c.expirations.Add(1)
			metrics.PlanCacheExpirationsTotal.WithLabelValues(c.name).Inc()
		}
	}
}

func (c *PlanCache) evictOldestLocked() {
	var (
		victim uint64
		oldest uint64
		found  bool
	)
	for h, e := range c.items {
		t := e.tick.Load()
		if !found || t < oldest {
			victim, oldest, found = h, t, true
		}
	}
	if !found {
		return
	}
	delete(c.items, victim)
	c.evictions.Add(1)
	metrics.PlanCacheEvictionsTotal.WithLabelValues(c.name).Inc()
}
