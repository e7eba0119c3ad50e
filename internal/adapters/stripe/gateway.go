package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
)

const (
	paymentBehaviorErrorIfIncomplete = "error_if_incomplete"
	prorationCreate                  = "create_prorations"
	prorationNone                    = "none"
	defaultListPageSize              = 100
)

// Config holds the provider credentials and client tuning.
type Config struct {
	SecretKey     string
	WebhookSecret string

	// BaseURL overrides the API endpoint, used against local stubs.
	BaseURL           string
	HTTPClient        *http.Client
	MaxNetworkRetries int64
	ListPageSize      int64

	CircuitBreaker resilience.CircuitBreakerConfig
}

// Gateway implements ports.BillingGateway on a per-instance stripe client so
// the process-wide stripe.Key is never touched.
type Gateway struct {
	api      *client.API
	breaker  *resilience.CircuitBreaker
	pageSize int64
	logger   ports.Logger
}

// NewGateway builds the client and its circuit breaker. Only availability
// failures count against the circuit; rejections are the caller's problem.
func NewGateway(cfg Config, logger ports.Logger) *Gateway {
	backendCfg := &stripego.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripego.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     &leveledLogger{logger: logger},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripego.String(cfg.BaseURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
		Connect: stripego.GetBackend(stripego.ConnectBackend),
		Uploads: stripego.GetBackend(stripego.UploadsBackend),
	})

	cbCfg := cfg.CircuitBreaker
	cbCfg.IsFailure = domain.IsProviderUnavailable
	cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
		observability.SetProviderCircuitState(int(to))
		logger.Warn("billing provider circuit changed state",
			ports.String("from", from.String()),
			ports.String("to", to.String()))
	}

	pageSize := cfg.ListPageSize
	if pageSize <= 0 {
		pageSize = defaultListPageSize
	}

	return &Gateway{
		api:      api,
		breaker:  resilience.NewCircuitBreaker(cbCfg),
		pageSize: pageSize,
		logger:   logger,
	}
}

// CreateSubscription opens a subscription that must be paid (or trialing)
// immediately; an incomplete first payment is a rejection.
func (g *Gateway) CreateSubscription(ctx context.Context, req ports.CreateSubscriptionRequest) (*domain.ProviderSubscription, error) {
	params := &stripego.SubscriptionParams{
		Customer:        stripego.String(req.CustomerRef),
		Items:           []*stripego.SubscriptionItemsParams{{Price: stripego.String(req.PriceRef)}},
		PaymentBehavior: stripego.String(paymentBehaviorErrorIfIncomplete),
	}
	params.Context = ctx
	if req.PaymentMethodRef != "" {
		params.DefaultPaymentMethod = stripego.String(req.PaymentMethodRef)
	}
	if req.CouponRef != "" {
		params.Discounts = []*stripego.SubscriptionDiscountParams{{Coupon: stripego.String(req.CouponRef)}}
	}
	if req.TrialDays > 0 {
		params.TrialPeriodDays = stripego.Int64(int64(req.TrialDays))
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	var created *stripego.Subscription
	err := g.call("create", func() (err error) {
		created, err = g.api.Subscriptions.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toProviderSubscription(created), nil
}

// CancelSubscription ends the provider subscription immediately.
func (g *Gateway) CancelSubscription(ctx context.Context, providerRef, idempotencyKey string) error {
	params := &stripego.SubscriptionCancelParams{}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	return g.call("cancel", func() error {
		_, err := g.api.Subscriptions.Cancel(providerRef, params)
		return err
	})
}

// ChangePlan swaps the price on the subscription's single item.
func (g *Gateway) ChangePlan(ctx context.Context, req ports.ChangePlanRequest) (*domain.ProviderSubscription, error) {
	getParams := &stripego.SubscriptionParams{}
	getParams.Context = ctx

	var current *stripego.Subscription
	if err := g.call("get", func() (err error) {
		current, err = g.api.Subscriptions.Get(req.ProviderRef, getParams)
		return err
	}); err != nil {
		return nil, err
	}
	if current.Items == nil || len(current.Items.Data) == 0 || current.Items.Data[0] == nil {
		return nil, domain.NewProviderError("missing_item", "provider subscription has no items", 0)
	}

	proration := prorationNone
	if req.Prorate {
		proration = prorationCreate
	}
	params := &stripego.SubscriptionParams{
		Items: []*stripego.SubscriptionItemsParams{{
			ID:    stripego.String(current.Items.Data[0].ID),
			Price: stripego.String(req.NewPriceRef),
		}},
		ProrationBehavior: stripego.String(proration),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	var updated *stripego.Subscription
	if err := g.call("change_plan", func() (err error) {
		updated, err = g.api.Subscriptions.Update(req.ProviderRef, params)
		return err
	}); err != nil {
		return nil, err
	}
	return toProviderSubscription(updated), nil
}

// ListSubscriptions pages through subscriptions in every status created at
// or after req.CreatedAfter. Limit 0 means no cap.
func (g *Gateway) ListSubscriptions(ctx context.Context, req ports.ListSubscriptionsRequest) ([]*domain.ProviderSubscription, error) {
	params := &stripego.SubscriptionListParams{
		Status: stripego.String("all"),
	}
	if !req.CreatedAfter.IsZero() {
		params.CreatedRange = &stripego.RangeQueryParams{GreaterThanOrEqual: req.CreatedAfter.Unix()}
	}
	params.Context = ctx
	params.Limit = stripego.Int64(g.pageSize)

	var out []*domain.ProviderSubscription
	err := g.call("list", func() error {
		out = out[:0]
		it := g.api.Subscriptions.List(params)
		for it.Next() {
			out = append(out, toProviderSubscription(it.Subscription()))
			if req.Limit > 0 && len(out) >= req.Limit {
				break
			}
		}
		return it.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// call runs fn through the breaker and maps whatever comes back.
func (g *Gateway) call(op string, fn func() error) error {
	start := time.Now()
	err := g.breaker.Call(func() error {
		if err := fn(); err != nil {
			return mapError(op, err)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = domain.NewProviderUnavailable(fmt.Errorf("stripe %s: %w", op, err))
	}
	if err != nil {
		g.logger.Debug("stripe call failed",
			ports.String("operation", op),
			ports.Duration("duration", time.Since(start)),
			ports.Err(err))
	}
	return err
}

// mapError turns a stripe-go error into the domain taxonomy. 4xx responses
// are rejections carrying the provider's code; everything else means the
// provider could not be reached or could not answer.
func mapError(op string, err error) error {
	if domain.GetErrorCode(err) != "" {
		return err
	}
	var se *stripego.Error
	if errors.As(err, &se) {
		status := se.HTTPStatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return domain.NewProviderError(string(se.Code), se.Msg, status)
		}
	}
	return domain.NewProviderUnavailable(fmt.Errorf("stripe %s: %w", op, err))
}

// leveledLogger routes stripe-go's own logging into ports.Logger.
type leveledLogger struct {
	logger ports.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), ports.String("component", "stripe-go"))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), ports.String("component", "stripe-go"))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), ports.String("component", "stripe-go"))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), ports.String("component", "stripe-go"))
}

var _ ports.BillingGateway = (*Gateway)(nil)
