package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "chunks",
		FailureThreshold: 2,
		OpenTimeout:      time.Second,
		Now:              clock.Now,
	})

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, "chunks", openErr.Name)
	assert.Equal(t, time.Second, openErr.RetryAfter)
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	tests := []struct {
		name  string
		probe func(context.Context) error
		want  CircuitBreakerState
	}{
		{name: "success closes", probe: succeed, want: CircuitClosed},
		{name: "failure reopens", probe: fail, want: CircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &manualClock{now: time.Unix(1000, 0)}
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				FailureThreshold: 1,
				OpenTimeout:      time.Second,
				Now:              clock.Now,
			})

			_ = cb.Execute(context.Background(), fail)
			clock.Advance(time.Second)
			assert.Equal(t, CircuitHalfOpen, cb.State())

			_ = cb.Execute(context.Background(), tt.probe)
			assert.Equal(t, tt.want, cb.State())
		})
	}
}

func TestCircuitBreaker_IgnoredAndCanceledErrorsAreNeutral(t *testing.T) {
	rejected := errors.New("payload rejected")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Ignore:           func(err error) bool { return errors.Is(err, rejected) },
	})

	assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return rejected }), rejected)
	assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return context.Canceled }), context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	var changes []CircuitBreakerState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "s3",
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		Now:              clock.Now,
		OnStateChange: func(name string, _, to CircuitBreakerState) {
			assert.Equal(t, "s3", name)
			changes = append(changes, to)
		},
	})

	_ = cb.Execute(context.Background(), fail)
	clock.Advance(2 * time.Second)
	_ = cb.Execute(context.Background(), succeed)

	assert.Equal(t, []CircuitBreakerState{CircuitOpen, CircuitHalfOpen, CircuitClosed}, changes)
}
