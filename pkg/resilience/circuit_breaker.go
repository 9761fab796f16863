package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError is returned while the breaker rejects calls. RetryAfter is
// how long until the breaker lets a probe through.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	wait := max(e.RetryAfter, 0)
	if e.Name == "" {
		return fmt.Sprintf("%v: retry in %s", ErrCircuitOpen, wait)
	}
	return fmt.Sprintf("%v for %s: retry in %s", ErrCircuitOpen, e.Name, wait)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

type CircuitBreakerState string

const (
	CircuitClosed   CircuitBreakerState = "closed"
	CircuitOpen     CircuitBreakerState = "open"
	CircuitHalfOpen CircuitBreakerState = "half_open"
)

type CircuitBreakerConfig struct {
	Name              string
	FailureThreshold  int           // consecutive failures that open the circuit
	SuccessThreshold  int           // half-open successes that close it again
	OpenTimeout       time.Duration // time spent open before probing
	HalfOpenMaxFlight int

	// Ignore reports errors that say nothing about backend health, e.g. a
	// rejected payload. They are returned to the caller but not counted.
	Ignore func(error) bool

	// OnStateChange is called without the lock held.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Now defaults to time.Now.
	Now func() time.Time
}

// CircuitBreaker guards calls to a backend that may be down.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig

	state     CircuitBreakerState
	failures  int
	successes int
	inFlight  int
	openUntil time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HalfOpenMaxFlight <= 0 {
		cfg.HalfOpenMaxFlight = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	transition := cb.advanceLocked(cb.cfg.Now())
	state := cb.state
	cb.mu.Unlock()

	cb.notify(transition)
	return state
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

type stateChange struct {
	from, to CircuitBreakerState
}

func (cb *CircuitBreaker) notify(c *stateChange) {
	if c != nil && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, c.from, c.to)
	}
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	now := cb.cfg.Now()
	transition := cb.advanceLocked(now)

	var err error
	switch cb.state {
	case CircuitOpen:
		err = cb.rejectLocked(now)
	case CircuitHalfOpen:
		if cb.inFlight >= cb.cfg.HalfOpenMaxFlight {
			err = cb.rejectLocked(now)
		} else {
			cb.inFlight++
		}
	}
	cb.mu.Unlock()

	cb.notify(transition)
	return err
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	var transition *stateChange

	if cb.state == CircuitHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	switch {
	// Cancellation by the caller and ignored errors are neutral.
	case errors.Is(err, context.Canceled), err != nil && cb.cfg.Ignore != nil && cb.cfg.Ignore(err):
	case err == nil:
		if cb.state == CircuitHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				transition = cb.moveLocked(CircuitClosed)
			}
		} else {
			cb.failures = 0
		}
	default:
		cb.failures++
		if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			transition = cb.moveLocked(CircuitOpen)
		}
	}
	cb.mu.Unlock()

	cb.notify(transition)
}

// advanceLocked moves an expired open circuit to half-open.
func (cb *CircuitBreaker) advanceLocked(now time.Time) *stateChange {
	if cb.state != CircuitOpen || now.Before(cb.openUntil) {
		return nil
	}
	return cb.moveLocked(CircuitHalfOpen)
}

func (cb *CircuitBreaker) moveLocked(to CircuitBreakerState) *stateChange {
	from := cb.state
	cb.state = to
	cb.failures, cb.successes, cb.inFlight = 0, 0, 0
	if to == CircuitOpen {
		cb.openUntil = cb.cfg.Now().Add(cb.cfg.OpenTimeout)
	}
	if from == to {
		return nil
	}
	return &stateChange{from: from, to: to}
}

func (cb *CircuitBreaker) rejectLocked(now time.Time) error {
	return &CircuitOpenError{
		Name:       cb.cfg.Name,
		RetryAfter: max(cb.openUntil.Sub(now), 0),
	}
}
