package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
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

// ErrCircuitOpen is returned without calling fn while the circuit is open
// or its half-open probe slot is taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures uint32
	// ResetTimeout is how long the circuit stays open before probing
	ResetTimeout time.Duration
	// IsFailure decides which errors count against the circuit. Nil counts
	// every non-nil error.
	IsFailure func(error) bool
	// OnStateChange is called after the breaker lock is released.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

// CircuitBreaker short-circuits calls to a dependency that keeps failing.
// A single probe is let through after ResetTimeout; its outcome closes or
// reopens the circuit.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	state    CircuitState
	failures uint32
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Call runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	var from, to CircuitState
	changed := false
	defer func() {
		cb.mu.Unlock()
		if changed && cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(from, to)
		}
	}()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		from, to, changed = cb.state, StateHalfOpen, true
		cb.state = StateHalfOpen
		cb.probing = true
		return nil
	default:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	failed := err != nil
	if failed && cb.cfg.IsFailure != nil {
		failed = cb.cfg.IsFailure(err)
	}

	cb.mu.Lock()
	from := cb.state
	switch {
	case cb.state == StateHalfOpen:
		cb.probing = false
		if failed {
			cb.trip()
		} else {
			cb.state = StateClosed
			cb.failures = 0
		}
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
	default:
		cb.failures = 0
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures = 0
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
}
