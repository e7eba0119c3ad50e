package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InFlightTracker counts detached background work, such as notifier
// deliveries that outlive the request that queued them, so shutdown can
// drain it.
type InFlightTracker struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	name   string
	logger *zap.Logger
}

// NewInFlightTracker creates a tracker; name shows up in shutdown logs.
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{name: name, logger: logger}
}

// Go runs fn on a new goroutine unless shutdown has begun, in which case it
// returns false and fn never runs.
func (t *InFlightTracker) Go(fn func()) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		fn()
	}()
	return true
}

// IsShuttingDown reports whether Shutdown has been called.
func (t *InFlightTracker) IsShuttingDown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Shutdown refuses new work and waits for running work or ctx.
func (t *InFlightTracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("In-flight work drained", zap.String("tracker", t.name))
		return nil
	case <-ctx.Done():
		t.logger.Warn("Shutdown deadline hit with work still in flight", zap.String("tracker", t.name))
		return ctx.Err()
	}
}

// PeriodicWorker runs a job on a fixed interval until stopped. The first
// run happens one interval after Start.
type PeriodicWorker struct {
	name     string
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPeriodicWorker creates a stopped worker.
func NewPeriodicWorker(name string, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{name: name, interval: interval, logger: logger}
}

// Start launches the loop. job receives a context cancelled by Stop.
func (w *PeriodicWorker) Start(job func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("Periodic worker started",
			zap.String("worker", w.name),
			zap.Duration("interval", w.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job(ctx)
			}
		}
	}()
}

// Stop cancels the running job and waits for the loop to exit or ctx.
func (w *PeriodicWorker) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
		w.logger.Info("Periodic worker stopped", zap.String("worker", w.name))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
