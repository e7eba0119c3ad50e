package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(cfg)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Call(func() error { return errBoom }), errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute})

	_ = cb.Call(func() error { return errBoom })
	_ = cb.Call(func() error { return nil })
	_ = cb.Call(func() error { return errBoom })

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})

	_ = cb.Call(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Call(func() error { return errBoom })
	*now = now.Add(2 * time.Minute)
	_ = cb.Call(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State(), "failed half-open call reopens the circuit")
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	rejected := errors.New("rejected")
	var transitions []string
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		IsFailure:    func(err error) bool { return !errors.Is(err, rejected) },
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	assert.ErrorIs(t, cb.Call(func() error { return rejected }), rejected)
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Call(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, []string{"closed->open"}, transitions)
}
