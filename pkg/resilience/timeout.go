package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the deadline hierarchy, outermost first:
//
//	HTTP handler (30s)
//	  provider call (10s, fixed per call)
//	  database query (5s)
//
// Cron jobs get their own longer budget. Notifier deliveries are detached
// from the request and bounded per attempt.
type TimeoutConfig struct {
	HTTPHandler      time.Duration
	CronJob          time.Duration
	ProviderCall     time.Duration
	DatabaseQuery    time.Duration
	NotifierDelivery time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:      30 * time.Second,
		CronJob:          5 * time.Minute,
		ProviderCall:     10 * time.Second,
		DatabaseQuery:    5 * time.Second,
		NotifierDelivery: 5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:      5 * time.Second,
		CronJob:          10 * time.Second,
		ProviderCall:     time.Second,
		DatabaseQuery:    time.Second,
		NotifierDelivery: 500 * time.Millisecond,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// CronContext creates a context with timeout for cron jobs
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronJob)
}

// ProviderContext creates the fixed deadline for a single billing provider call
func (tc *TimeoutConfig) ProviderContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ProviderCall)
}

// QueryContext creates a context for a database round trip
func (tc *TimeoutConfig) QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.DatabaseQuery)
}

// NotifierContext creates a context for one notifier delivery attempt
func (tc *TimeoutConfig) NotifierContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.NotifierDelivery)
}
