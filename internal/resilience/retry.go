// Package resilience retries transient failures with exponential backoff.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	rgerrors "github.com/23skdu/rowgraph/internal/errors"
)

// RetryPolicy bounds how a call is retried. MaxAttempts counts the first try,
// so 1 disables retries.
type RetryPolicy struct {
	MaxAttempts  int           `envconfig:"SOURCE_RETRY_ATTEMPTS" default:"2"`
	InitialDelay time.Duration `envconfig:"SOURCE_RETRY_DELAY" default:"50ms"`
	MaxDelay     time.Duration `envconfig:"SOURCE_RETRY_MAX_DELAY" default:"1s"`
	Multiplier   float64       `envconfig:"SOURCE_RETRY_MULTIPLIER" default:"2.0"`
	Jitter       bool          `envconfig:"SOURCE_RETRY_JITTER" default:"true"`

	// RetryableFunc decides whether err is worth another attempt. Nil retries
	// every error.
	RetryableFunc func(error) bool             `ignored:"true"`
	// OnRetry runs before each retry with the attempt about to be made.
	OnRetry       func(attempt int, err error) `ignored:"true"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error or the
// attempts run out. Waiting between attempts honours ctx; a cancelled wait
// returns a cancelled error wrapping ctx.Err().
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if policy.OnRetry != nil {
				policy.OnRetry(attempt+1, err)
			}
			timer := time.NewTimer(delay(policy, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, rgerrors.Cancelled(ctx.Err(), "resilience.retry")
			case <-timer.C:
			}
		}

		result, err = fn()
		if err == nil {
			return result, nil
		}
		if policy.RetryableFunc != nil && !policy.RetryableFunc(err) {
			break
		}
	}
	return result, err
}

// delay is the wait before attempt (1-based retries), capped at MaxDelay.
func delay(policy RetryPolicy, attempt int) time.Duration {
	mult := policy.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(policy.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if policy.MaxDelay > 0 && d > float64(policy.MaxDelay) {
		d = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		d *= 0.8 + 0.4*rand.Float64()
	}
	return time.Duration(d)
}
