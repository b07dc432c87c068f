package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/abdhe/frame-insight/pkg/apierr"
	"github.com/abdhe/frame-insight/pkg/metrics"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal: requests pass through
	StateOpen                         // Tripped: requests are rejected
	StateHalfOpen                     // Probing: requests allowed until one fails
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is wrapped in the error returned while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker trips open after consecutive upstream failures and lets
// traffic through again once the cooldown has elapsed.
type CircuitBreaker struct {
	mu sync.Mutex

	name                string
	state               CircuitState
	failureThreshold    int
	consecutiveFailures int
	cooldown            time.Duration
	lastFailure         time.Time
	now                 func() time.Time
}

// CircuitBreakerConfig holds configuration for a CircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // Consecutive failures to trip
	Cooldown         time.Duration // Time to wait before probing
}

// NewCircuitBreaker creates a closed breaker for the named provider.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		now:              time.Now,
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

// Execute runs fn unless the breaker is open. Only upstream failures count
// towards tripping; a rejected request from a bad input does not.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return apierr.Unavailable(cb.name, ErrCircuitOpen)
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && isUpstreamFailure(err) {
		cb.recordFailure()
	} else if err == nil {
		cb.recordSuccess()
	}
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(cb.state))
	return err
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) > cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) > cb.cooldown {
			cb.state = StateHalfOpen
			metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(cb.state))
			return true
		}
		return false
	default:
		return false
	}
}

// recordFailure must be called with mu held.
func (cb *CircuitBreaker) recordFailure() {
	cb.consecutiveFailures++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.failureThreshold {
		cb.state = StateOpen
	}
}

// recordSuccess must be called with mu held.
func (cb *CircuitBreaker) recordSuccess() {
	cb.consecutiveFailures = 0
	cb.state = StateClosed
}

// isUpstreamFailure reports whether err says the provider itself is
// unhealthy: transport errors, throttling and 5xx responses.
func isUpstreamFailure(err error) bool {
	var e *apierr.Error
	if !errors.As(err, &e) {
		return true
	}
	switch e.Kind {
	case apierr.KindTransport, apierr.KindRateLimited, apierr.KindTerminalRateLimit:
		return true
	case apierr.KindProvider:
		return e.Status == 0 || e.Status >= 500
	default:
		return false
	}
}
