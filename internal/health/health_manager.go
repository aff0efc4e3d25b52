// Package health aggregates component checks and serves them as JSON.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/rowgraph/internal/metrics"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// gauge values for rowgraph_health_check_status
func (s HealthStatus) value() float64 {
	switch s {
	case StatusHealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	Status     HealthStatus                `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     string                      `json:"uptime"`
	Version    string                      `json:"version"`
	Components map[string]*ComponentHealth `json:"components"`
	System     *SystemInfo                 `json:"system"`
	CheckCount int64                       `json:"check_count"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	HeapAlloc     uint64 `json:"heap_alloc_bytes"`
	HeapObjects   uint64 `json:"heap_objects"`
	NumGC         uint32 `json:"num_gc"`
}

// HealthChecker defines the interface for component health checks
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) *ComponentHealth
}

// HealthManager manages health checks for all components
type HealthManager struct {
	startTime    time.Time
	version      string
	timeout      time.Duration
	mu           sync.RWMutex
	checkers     map[string]HealthChecker
	logger       zerolog.Logger
	tracer       trace.Tracer
	checkCounter int64
}

// NewHealthManager creates a new health manager. Each component check is
// bounded by timeout when it is positive.
func NewHealthManager(version string, timeout time.Duration, logger zerolog.Logger, tracer trace.Tracer) *HealthManager {
	return &HealthManager{
		startTime: time.Now(),
		version:   version,
		timeout:   timeout,
		checkers:  make(map[string]HealthChecker),
		logger:    logger.With().Str("component", "health").Logger(),
		tracer:    tracer,
	}
}

// RegisterChecker registers a health checker, replacing any with the same name.
func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	hm.checkers[checker.Name()] = checker
	hm.mu.Unlock()
	hm.logger.Debug().Str("checker", checker.Name()).Msg("registered health checker")
}

func (hm *HealthManager) snapshot() []HealthChecker {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make([]HealthChecker, 0, len(hm.checkers))
	for _, c := range hm.checkers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// CheckHealth runs every registered check. The overall status is the worst
// component status.
func (hm *HealthManager) CheckHealth(ctx context.Context) *SystemHealth {
	ctx, span := hm.tracer.Start(ctx, "HealthManager.CheckHealth")
	defer span.End()

	count := atomic.AddInt64(&hm.checkCounter, 1)
	checkStart := time.Now()
	checkers := hm.snapshot()

	health := &SystemHealth{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Uptime:     time.Since(hm.startTime).Round(time.Second).String(),
		Version:    hm.version,
		Components: make(map[string]*ComponentHealth, len(checkers)),
		System:     systemInfo(),
		CheckCount: count,
	}

	for _, checker := range checkers {
		componentHealth := hm.run(ctx, checker)
		metrics.HealthCheckStatus.WithLabelValues(checker.Name()).Set(componentHealth.Status.value())
		health.Components[checker.Name()] = componentHealth

		if componentHealth.Status == StatusUnhealthy {
			health.Status = StatusUnhealthy
		} else if componentHealth.Status == StatusDegraded && health.Status == StatusHealthy {
			health.Status = StatusDegraded
		}
		span.SetAttributes(attribute.String("rowgraph.health."+checker.Name(), string(componentHealth.Status)))
	}
	span.SetAttributes(attribute.String("rowgraph.health.overall_status", string(health.Status)))

	event := hm.logger.Debug()
	if health.Status != StatusHealthy {
		event = hm.logger.Warn()
	}
	event.Str("overall_status", string(health.Status)).
		Int("components_checked", len(checkers)).
		Dur("elapsed", time.Since(checkStart)).
		Msg("health check completed")
	return health
}

func (hm *HealthManager) run(ctx context.Context, checker HealthChecker) *ComponentHealth {
	if hm.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hm.timeout)
		defer cancel()
	}
	h := checker.Check(ctx)
	if h == nil {
		return &ComponentHealth{Name: checker.Name(), Status: StatusUnhealthy, Message: "no result", LastChecked: time.Now()}
	}
	return h
}

func systemInfo() *SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		HeapAlloc:     m.HeapAlloc,
		HeapObjects:   m.HeapObjects,
		NumGC:         m.NumGC,
	}
}

// HTTPHandler returns an http handler for health checks
func (hm *HealthManager) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := hm.CheckHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			hm.logger.Error().Err(err).Msg("failed to encode health response")
		}
	})
}
