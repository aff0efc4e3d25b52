package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

func fail() error { return assert.AnError }
func ok() error   { return nil }

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	clk := &manualClock{t: time.Unix(0, 0)}
	var transitions []string
	cb := NewCircuitBreaker(Settings{
		Name:        "test",
		ReadyToTrip: ConsecutiveFailures(2),
		Timeout:     100 * time.Millisecond,
		Now:         clk.Now,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(fail), assert.AnError)
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ok), ErrOpenState)

	clk.Advance(150 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := &manualClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker(Settings{
		ReadyToTrip: ConsecutiveFailures(1),
		Timeout:     10 * time.Millisecond,
		Now:         clk.Now,
	})

	_ = cb.Execute(fail)
	clk.Advance(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenMaxRequests(t *testing.T) {
	clk := &manualClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker(Settings{
		MaxRequests: 1,
		ReadyToTrip: ConsecutiveFailures(1),
		Timeout:     10 * time.Millisecond,
		Now:         clk.Now,
	})

	_ = cb.Execute(fail)
	clk.Advance(20 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, cb.Execute(ok), ErrTooManyRequests)
	close(release)
}

func TestCircuitBreaker_IsSuccessfulFiltersErrors(t *testing.T) {
	benign := errors.New("not found")
	cb := NewCircuitBreaker(Settings{
		ReadyToTrip:  ConsecutiveFailures(1),
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, benign) },
	})

	assert.ErrorIs(t, cb.Execute(func() error { return benign }), benign)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().TotalSuccesses)
}

func TestCall(t *testing.T) {
	cb := NewCircuitBreaker(Settings{})
	v, err := Call(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	assert.True(t, IsRejection(ErrOpenState))
	assert.False(t, IsRejection(assert.AnError))
}
