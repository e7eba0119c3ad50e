package ports

import (
	"context"
	"time"

	"github.com/VictorLirio/nimbus-api/internal/domain"
)

// CreateSubscriptionRequest describes a provider-side subscription to open.
type CreateSubscriptionRequest struct {
	CustomerRef      string
	PriceRef         string
	PaymentMethodRef string
	CouponRef        string
	TrialDays        int
	IdempotencyKey   string
	Metadata         map[string]string
}

// ChangePlanRequest moves a provider subscription to another price.
type ChangePlanRequest struct {
	ProviderRef    string
	NewPriceRef    string
	Prorate        bool
	IdempotencyKey string
}

// ListSubscriptionsRequest bounds a provider listing.
type ListSubscriptionsRequest struct {
	CreatedAfter time.Time
	Limit        int
}

// BillingGateway is the typed client for the external billing provider.
// Rejections surface as PROVIDER_ERROR and timeouts or transport failures as
// PROVIDER_UNAVAILABLE. Statuses are normalized before they are returned.
type BillingGateway interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*domain.ProviderSubscription, error)
	CancelSubscription(ctx context.Context, providerRef, idempotencyKey string) error
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*domain.ProviderSubscription, error)
	ListSubscriptions(ctx context.Context, req ListSubscriptionsRequest) ([]*domain.ProviderSubscription, error)
}

// EventParser verifies and decodes a raw provider notification envelope.
type EventParser interface {
	ParseEvent(payload []byte, signature string) (*domain.ReconciliationEvent, error)
}
