// Package resilience provides the fault-tolerance primitives the search
// service wraps its network dependencies in: a circuit breaker for the Redis
// query cache, and backoff retry plus a deadline wrapper for snapshot reads.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

// CircuitBreakerConfig controls failure thresholds and recovery timing.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// IsFailure classifies errors returned by the protected call. The
	// default ignores context cancellation: a caller giving up says nothing
	// about the health of the dependency.
	IsFailure func(error) bool
	// OnStateChange is called with the breaker lock released.
	OnStateChange func(name string, from, to State)
}

func defaultCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}
}

// CircuitBreaker trips open after FailureThreshold consecutive failures.
// Once ResetTimeout has passed it lets HalfOpenMaxRequests probes through;
// one success closes it again, one failure re-opens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenRequests    int
}

// NewCircuitBreaker fills zero config fields with defaults.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	defaults := defaultCBConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaults.IsFailure
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	from := cb.state
	var err error
	switch cb.state {
	case StateOpen:
		if wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt); wait > 0 {
			err = fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
			break
		}
		cb.state = StateHalfOpen
		cb.halfOpenRequests = 1
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.cfg.HalfOpenMaxRequests {
			err = fmt.Errorf("%w: %s (half-open probe in flight)", ErrCircuitOpen, cb.name)
			break
		}
		cb.halfOpenRequests++
	}
	to := cb.state
	cb.mu.Unlock()
	cb.transition(from, to)
	return err
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	from := cb.state
	if err == nil || !cb.cfg.IsFailure(err) {
		cb.consecutiveFailures = 0
		if cb.state == StateHalfOpen {
			if err == nil {
				cb.state = StateClosed
			}
			cb.halfOpenRequests = 0
		}
	} else {
		cb.consecutiveFailures++
		if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
	to := cb.state
	failures := cb.consecutiveFailures
	cb.mu.Unlock()

	if from != to && to == StateOpen {
		cb.logger.Warn("circuit opened", "consecutive_failures", failures, "threshold", cb.cfg.FailureThreshold, "error", err)
	}
	cb.transition(from, to)
}

func (cb *CircuitBreaker) transition(from, to State) {
	if from == to {
		return
	}
	if to != StateOpen {
		cb.logger.Info("circuit state changed", "from", from, "to", to)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
