package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines retry backoff behavior
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	BaseDelay  time.Duration // Initial delay
	MaxDelay   time.Duration // Maximum delay
	Multiplier float64       // Exponential multiplier (typically 2.0)
	Jitter     float64       // Jitter factor (0.0-1.0)
}

// SaveRetryBackoff spaces optimistic-lock retries on a subscription row.
//
//   - Attempt 0: ~10ms
//   - Attempt 1: ~20ms
//   - Attempt 2: ~40ms
//   - Attempt 3+: capped at 250ms
func SaveRetryBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   250 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// NotifierBackoff returns backoff configuration for outbound event delivery
//
//   - Attempt 0: ~500ms
//   - Attempt 1: ~1s
//   - Attempt 2: ~2s
//   - Attempt 3+: capped at 10s
func NotifierBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// NextDelay calculates the delay for the given attempt number (0-indexed)
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return eb.BaseDelay
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	jitterAmount := delay * eb.Jitter
	jitter := (rand.Float64()*2 - 1) * jitterAmount

	finalDelay := time.Duration(delay + jitter)
	if finalDelay < 0 {
		finalDelay = eb.BaseDelay
	}

	return finalDelay
}

// FixedBackoff implements a simple fixed delay backoff
type FixedBackoff struct {
	Delay time.Duration
}

// NextDelay returns the fixed delay regardless of attempt number
func (fb *FixedBackoff) NextDelay(attempt int) time.Duration {
	return fb.Delay
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
