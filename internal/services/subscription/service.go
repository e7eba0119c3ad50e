package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	serviceports "github.com/VictorLirio/nimbus-api/internal/services/ports"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
	"github.com/VictorLirio/nimbus-api/pkg/timeutil"
)

// Config tunes the lifecycle engine
type Config struct {
	// SaveMaxRetries bounds optimistic-lock retries per mutation.
	SaveMaxRetries int
	// SweepConcurrency bounds concurrent store lookups during an orphan sweep.
	SweepConcurrency int
	// ExpiringDefaultDays is used when a caller passes no window.
	ExpiringDefaultDays int
	Timeouts            *resilience.TimeoutConfig
	Backoff             resilience.BackoffStrategy
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		SaveMaxRetries:      5,
		SweepConcurrency:    8,
		ExpiringDefaultDays: 7,
		Timeouts:            resilience.DefaultTimeoutConfig(),
		Backoff:             resilience.SaveRetryBackoff(),
	}
}

// Dependencies are the collaborators the engine is built from
type Dependencies struct {
	Store    ports.SubscriptionStore
	Scope    ports.UserScope
	Gateway  ports.BillingGateway
	Plans    ports.PlanCatalog
	Accounts ports.AccountDirectory
	Invoices ports.InvoiceRecorder
	Notifier ports.EventNotifier
	Clock    timeutil.Clock
	Logger   ports.Logger
}

// Service is the subscription lifecycle engine. It runs user commands
// synchronously and merges provider events into local state.
type Service struct {
	store    ports.SubscriptionStore
	scope    ports.UserScope
	gateway  ports.BillingGateway
	plans    ports.PlanCatalog
	accounts ports.AccountDirectory
	invoices ports.InvoiceRecorder
	notifier ports.EventNotifier
	clock    timeutil.Clock
	logger   ports.Logger
	cfg      Config
}

// NewService creates a new subscription service
func NewService(deps Dependencies, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.SaveMaxRetries <= 0 {
		cfg.SaveMaxRetries = def.SaveMaxRetries
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = def.SweepConcurrency
	}
	if cfg.ExpiringDefaultDays <= 0 {
		cfg.ExpiringDefaultDays = def.ExpiringDefaultDays
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = def.Timeouts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = def.Backoff
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}

	return &Service{
		store:    deps.Store,
		scope:    deps.Scope,
		gateway:  deps.Gateway,
		plans:    deps.Plans,
		accounts: deps.Accounts,
		invoices: deps.Invoices,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		logger:   deps.Logger,
		cfg:      cfg,
	}
}

var (
	_ serviceports.SubscriptionService   = (*Service)(nil)
	_ serviceports.ReconciliationService = (*Service)(nil)
	_ serviceports.MaintenanceService    = (*Service)(nil)
)

// callProvider runs fn under the fixed provider deadline. A deadline hit is
// reported as PROVIDER_UNAVAILABLE whatever the gateway returned.
func (s *Service) callProvider(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	pctx, cancel := s.cfg.Timeouts.ProviderContext(ctx)
	defer cancel()

	start := time.Now()
	err := fn(pctx)
	observability.RecordProviderCall(op, outcomeOf(err), time.Since(start))

	if err == nil {
		return nil
	}
	if errors.Is(pctx.Err(), context.DeadlineExceeded) && !domain.IsProviderError(err) {
		return domain.NewProviderUnavailable(err)
	}
	if domain.GetErrorCode(err) == "" {
		return domain.NewProviderUnavailable(err)
	}
	return err
}

// emit hands an event to the notifier and only logs failures.
func (s *Service) emit(ctx context.Context, event domain.SubscriptionEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Emit(ctx, event); err != nil {
		s.logger.Warn("event notification failed",
			ports.String("event", string(event.Name)),
			ports.String("subscription_id", event.SubscriptionID.String()),
			ports.Err(err))
	}
}

// outcomeOf maps an error to a metrics label
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch domain.GetErrorCode(err) {
	case domain.ErrorCodeNotFound:
		return "not_found"
	case domain.ErrorCodeConflict:
		return "conflict"
	case domain.ErrorCodeInvalidState:
		return "invalid_state"
	case domain.ErrorCodeValidation:
		return "validation"
	case domain.ErrorCodeProviderError:
		return "provider_error"
	case domain.ErrorCodeProviderUnavailable:
		return "provider_unavailable"
	case domain.ErrorCodePersistence:
		return "persistence_error"
	default:
		return "error"
	}
}

// asPersistence keeps domain errors as they are and wraps anything else as a
// storage failure.
func asPersistence(message string, err error) error {
	if domain.GetErrorCode(err) != "" {
		return err
	}
	return domain.NewPersistenceError(message, err)
}
