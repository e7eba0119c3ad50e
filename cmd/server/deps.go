package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/adapters/cache"
	"github.com/VictorLirio/nimbus-api/internal/adapters/database"
	"github.com/VictorLirio/nimbus-api/internal/adapters/memory"
	"github.com/VictorLirio/nimbus-api/internal/adapters/notifier"
	"github.com/VictorLirio/nimbus-api/internal/adapters/postgres"
	"github.com/VictorLirio/nimbus-api/internal/adapters/secrets"
	"github.com/VictorLirio/nimbus-api/internal/adapters/stripe"
	"github.com/VictorLirio/nimbus-api/internal/config"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	cronHandler "github.com/VictorLirio/nimbus-api/internal/handlers/cron"
	subscriptionHandler "github.com/VictorLirio/nimbus-api/internal/handlers/subscription"
	webhookHandler "github.com/VictorLirio/nimbus-api/internal/handlers/webhook"
	"github.com/VictorLirio/nimbus-api/internal/seed"
	subscriptionService "github.com/VictorLirio/nimbus-api/internal/services/subscription"
	pkghttp "github.com/VictorLirio/nimbus-api/pkg/http"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
	"github.com/VictorLirio/nimbus-api/pkg/security"
	"github.com/VictorLirio/nimbus-api/pkg/shutdown"
	"github.com/VictorLirio/nimbus-api/pkg/timeutil"
)

// Dependencies holds everything the listeners serve
type Dependencies struct {
	service             *subscriptionService.Service
	subscriptionHandler *subscriptionHandler.Handler
	stripeHandler       *webhookHandler.StripeHandler
	jobsHandler         *cronHandler.JobsHandler
	health              *observability.HealthChecker
	timeouts            *resilience.TimeoutConfig
}

// storage is the persistence side of the engine for the selected driver
type storage struct {
	store    ports.SubscriptionStore
	scope    ports.UserScope
	plans    ports.PlanCatalog
	accounts ports.AccountDirectory
	invoices ports.InvoiceRecorder
}

// initDependencies wires adapters, the engine and handlers. Every component
// that owns a resource registers its shutdown step on sm as it is created.
func initDependencies(ctx context.Context, cfg *config.Config, sm *shutdown.Manager, logger *zap.Logger) (*Dependencies, error) {
	health := observability.NewHealthChecker()
	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.ProviderCall = cfg.Stripe.Timeout
	clock := timeutil.SystemClock{}

	st, err := initStorage(ctx, cfg, clock, health, sm, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	secretStore, err := initSecretStore(ctx, cfg.Secrets, sm, logger)
	if err != nil {
		return nil, fmt.Errorf("secret store: %w", err)
	}
	creds, err := secrets.LoadStripeCredentials(ctx, secretStore, cfg.Stripe.SecretKeyPath, cfg.Stripe.WebhookSecretPath)
	if err != nil {
		return nil, fmt.Errorf("stripe credentials: %w", err)
	}

	gateway := stripe.NewGateway(stripe.Config{
		SecretKey:         creds.SecretKey,
		WebhookSecret:     creds.WebhookSecret,
		BaseURL:           cfg.Stripe.BaseURL,
		HTTPClient:        pkghttp.NewHTTPClient(pkghttp.ProviderClientConfig(), cfg.Stripe.Timeout),
		MaxNetworkRetries: cfg.Stripe.MaxNetworkRetries,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  uint32(cfg.Stripe.CircuitMaxFailures),
			ResetTimeout: cfg.Stripe.CircuitReset,
		},
	}, security.NewZapLogger(logger).Named("stripe"))

	events, err := initNotifiers(cfg.Notifier, timeouts, health, sm, logger)
	if err != nil {
		return nil, fmt.Errorf("notifiers: %w", err)
	}

	service := subscriptionService.NewService(subscriptionService.Dependencies{
		Store:    st.store,
		Scope:    st.scope,
		Gateway:  gateway,
		Plans:    cache.NewPlanCache(st.plans, cfg.PlanCache.Size, cfg.PlanCache.TTL),
		Accounts: st.accounts,
		Invoices: st.invoices,
		Notifier: events,
		Clock:    clock,
		Logger:   security.NewZapLogger(logger).Named("subscriptions"),
	}, subscriptionService.Config{
		SaveMaxRetries:      cfg.Engine.SaveMaxRetries,
		SweepConcurrency:    cfg.Cron.SweepConcurrency,
		ExpiringDefaultDays: cfg.Engine.ExpiringDefaultDays,
		Timeouts:            timeouts,
	})

	return &Dependencies{
		service:             service,
		subscriptionHandler: subscriptionHandler.NewHandler(service, logger.Named("api")),
		stripeHandler:       webhookHandler.NewStripeHandler(stripe.NewEventParser(creds.WebhookSecret), service, logger.Named("webhook")),
		jobsHandler:         cronHandler.NewJobsHandler(service, timeouts, logger.Named("cron"), cfg.Cron.Secret),
		health:              health,
		timeouts:            timeouts,
	}, nil
}

func initStorage(ctx context.Context, cfg *config.Config, clock timeutil.Clock, health *observability.HealthChecker, sm *shutdown.Manager, logger *zap.Logger) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		plans := memory.NewPlanCatalog()
		accounts := memory.NewAccountDirectory()
		if cfg.Database.SeedFile != "" {
			data, err := seed.LoadFile(cfg.Database.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := seed.Apply(ctx, data, plans, accounts); err != nil {
				return nil, err
			}
			logger.Info("Memory store seeded",
				zap.String("file", cfg.Database.SeedFile),
				zap.Int("plans", len(data.Plans)),
				zap.Int("accounts", len(data.Accounts)))
		}
		store := memory.NewSubscriptionStore(clock)
		return &storage{
			store:    store,
			scope:    store,
			plans:    plans,
			accounts: accounts,
			invoices: memory.NewInvoiceRecorder(),
		}, nil
	}

	dbCfg := database.DefaultPostgreSQLConfig(database.BuildDatabaseURL(
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode,
	))
	dbCfg.MaxConns = cfg.Database.MaxConns

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := database.NewPostgreSQLAdapter(connectCtx, dbCfg, logger)
	if err != nil {
		return nil, err
	}
	sm.RegisterFunc("database", db.Close)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	db.StartPoolMonitoring(monitorCtx, 30*time.Second)
	sm.RegisterFunc("pool-monitor", stopMonitor)

	health.Register("database", db.HealthCheck)
	logger.Info("Database connection established", zap.String("database", cfg.Database.Name))

	pool := db.Pool()
	store := postgres.NewSubscriptionStore(pool, db, clock)
	return &storage{
		store:    store,
		scope:    store,
		plans:    postgres.NewPlanCatalog(pool),
		accounts: postgres.NewAccountDirectory(pool),
		invoices: postgres.NewInvoiceRecorder(pool),
	}, nil
}

// initNotifiers builds the event fan-out. The log sink is always on.
func initNotifiers(cfg config.NotifierConfig, timeouts *resilience.TimeoutConfig, health *observability.HealthChecker, sm *shutdown.Manager, logger *zap.Logger) (ports.EventNotifier, error) {
	sinks := []ports.EventNotifier{notifier.NewLogNotifier(security.NewZapLogger(logger).Named("events"))}

	if cfg.NATSURL != "" {
		conn, err := notifier.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		sm.Register("nats", func(ctx context.Context) error {
			defer conn.Close()
			return conn.FlushWithContext(ctx)
		})
		health.Register("nats", func(context.Context) error {
			if conn.Status() != nats.CONNECTED {
				return errors.New(conn.Status().String())
			}
			return nil
		})
		sinks = append(sinks, notifier.NewNATSNotifier(conn, cfg.NATSSubjectPfx, logger))
	}

	if len(cfg.WebhookURLs) > 0 {
		tracker := shutdown.NewInFlightTracker("webhook-notifier", logger)
		sm.Register("webhook-notifier", tracker.Shutdown)
		sinks = append(sinks, notifier.NewWebhookNotifier(notifier.WebhookConfig{
			Endpoints:  cfg.WebhookURLs,
			Secret:     cfg.WebhookSecret,
			Timeouts:   timeouts,
			HTTPClient: pkghttp.NewHTTPClient(pkghttp.WebhookClientConfig(), timeouts.NotifierDelivery),
		}, tracker, logger))
	}

	multi := notifier.NewMulti(sinks...)
	logger.Info("Event sinks configured", zap.Int("sinks", multi.Len()))
	return multi, nil
}
