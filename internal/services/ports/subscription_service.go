package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/VictorLirio/nimbus-api/internal/domain"
)

// CreateSubscriptionRequest contains parameters for opening a subscription
type CreateSubscriptionRequest struct {
	UserID           string
	PlanID           string
	PaymentMethodRef string
	CouponRef        string
	// IdempotencyKey is forwarded to the provider. Generated when empty.
	IdempotencyKey string
}

// ChangePlanRequest contains parameters for switching a subscription's plan
type ChangePlanRequest struct {
	SubscriptionID uuid.UUID
	UserID         string
	NewPlanID      string
	Prorate        bool
	IdempotencyKey string
}

// OrphanedSubscription is a provider subscription with no local record
type OrphanedSubscription struct {
	ProviderRef string                    `json:"provider_ref"`
	CustomerRef string                    `json:"customer_ref"`
	Status      domain.SubscriptionStatus `json:"status"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// OrphanReport summarizes one orphan sweep
type OrphanReport struct {
	Scanned  int                    `json:"scanned"`
	Orphaned []OrphanedSubscription `json:"orphaned"`
}

// SubscriptionService is the user-facing command and query surface
type SubscriptionService interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*domain.Subscription, error)
	Cancel(ctx context.Context, subscriptionID uuid.UUID, userID string) (*domain.Subscription, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*domain.Subscription, error)

	FindUserSubscriptions(ctx context.Context, userID string) ([]*domain.Subscription, error)
	FindOne(ctx context.Context, subscriptionID uuid.UUID, userID string) (*domain.Subscription, error)
	CurrentSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
	IsSubscriptionActive(ctx context.Context, userID string) (bool, error)
	CurrentPlan(ctx context.Context, userID string) (*domain.Plan, error)
}

// ReconciliationService ingests verified provider events. A nil error means
// the delivery may be acknowledged.
type ReconciliationService interface {
	Reconcile(ctx context.Context, event *domain.ReconciliationEvent) error
}

// MaintenanceService backs the scheduled jobs
type MaintenanceService interface {
	ExpiringSoon(ctx context.Context, days int) ([]*domain.Subscription, error)
	SweepOrphans(ctx context.Context, lookback time.Duration) (*OrphanReport, error)
}
