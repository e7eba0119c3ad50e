package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_shutdown_duration_seconds",
		Help:    "Total time taken to shut down",
		Buckets: []float64{0.5, 1, 5, 10, 20, 30},
	})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_shutdown_errors_total",
		Help: "Shutdown failures by component",
	}, []string{"component"})
)

// Func stops one component within the shared deadline.
type Func func(context.Context) error

type component struct {
	name string
	fn   Func
}

// Manager stops registered components one at a time in reverse
// registration order, so listeners go before the notifiers and pools they
// depend on.
type Manager struct {
	mu         sync.Mutex
	components []component
	timeout    time.Duration
	logger     *zap.Logger
}

// NewManager creates a manager whose whole shutdown is bounded by timeout.
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a component. The last registered stops first.
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, fn: fn})
}

// RegisterCloser registers anything with Close() error.
func (m *Manager) RegisterCloser(name string, c interface{ Close() error }) {
	m.Register(name, func(context.Context) error { return c.Close() })
}

// RegisterFunc registers a shutdown step that cannot fail.
func (m *Manager) RegisterFunc(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// WaitForSignal blocks until SIGINT or SIGTERM, or until ctx is done.
func (m *Manager) WaitForSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
}

// Shutdown runs every component and returns the errors keyed by component.
// A component that misses the deadline does not stop the rest from being
// attempted.
func (m *Manager) Shutdown() map[string]error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	components := make([]component, len(m.components))
	copy(components, m.components)
	m.mu.Unlock()

	failed := make(map[string]error)
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		cStart := time.Now()
		if err := c.fn(ctx); err != nil {
			failed[c.name] = err
			shutdownErrors.WithLabelValues(c.name).Inc()
			m.logger.Error("Component shutdown failed",
				zap.String("component", c.name),
				zap.Duration("elapsed", time.Since(cStart)),
				zap.Error(err))
			continue
		}
		m.logger.Info("Component stopped",
			zap.String("component", c.name),
			zap.Duration("elapsed", time.Since(cStart)))
	}

	shutdownDuration.Observe(time.Since(start).Seconds())
	m.logger.Info("Shutdown complete",
		zap.Int("components", len(components)),
		zap.Int("errors", len(failed)),
		zap.Duration("elapsed", time.Since(start)))
	return failed
}
