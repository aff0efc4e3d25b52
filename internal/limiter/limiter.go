package limiter

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/rowgraph/internal/metrics"
)

// Config holds rate limiter configuration
type Config struct {
	RPS   int `envconfig:"RATE_LIMIT_RPS" default:"0"`   // 0 means disabled
	Burst int `envconfig:"RATE_LIMIT_BURST" default:"0"` // 0 means use RPS
	// Reject fails over-budget calls immediately instead of queueing them
	// until the caller's deadline.
	Reject bool `envconfig:"RATE_LIMIT_REJECT" default:"false"`
}

// RateLimiter wraps the token bucket limiter
type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool
	reject  bool
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg Config) *RateLimiter {
	if cfg.RPS <= 0 {
		return &RateLimiter{enabled: false}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RPS
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		enabled: true,
		reject:  cfg.Reject,
	}
}

// Enabled reports whether requests are being limited.
func (l *RateLimiter) Enabled() bool {
	return l.enabled
}

// admit takes one token for ctx, returning a gRPC status error when refused.
func (l *RateLimiter) admit(ctx context.Context) error {
	if !l.enabled {
		return nil
	}

	if l.reject {
		if !l.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("throttled").Inc()
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		return nil
	}

	if err := l.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return status.FromContextError(err).Err()
		}
		// The wait would outlast the caller's deadline.
		metrics.RateLimitRequestsTotal.WithLabelValues("throttled").Inc()
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}

	metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
	return nil
}

// UnaryInterceptor returns a gRPC unary interceptor
func (l *RateLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := l.admit(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a gRPC stream interceptor. Flight DoAction and
// DoGet are streams, so this is the one that guards traversals.
func (l *RateLimiter) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := l.admit(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
