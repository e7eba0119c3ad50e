package ports

import (
	"context"

	"github.com/VictorLirio/nimbus-api/internal/domain"
)

// PlanCatalog resolves plan ids. Missing or inactive plans are NOT_FOUND.
type PlanCatalog interface {
	ResolvePlan(ctx context.Context, planID string) (*domain.Plan, error)
}

// AccountDirectory is the user directory as seen by billing.
type AccountDirectory interface {
	FindAccount(ctx context.Context, userID string) (*domain.Account, error)
	SetHasActiveSubscription(ctx context.Context, userID string, active bool) error
}

// InvoiceRecorder stores invoice projections, upserting on the provider id.
type InvoiceRecorder interface {
	RecordInvoice(ctx context.Context, invoice *domain.Invoice) error
}

// EventNotifier publishes domain events. Callers treat failures as
// non-fatal.
type EventNotifier interface {
	Emit(ctx context.Context, event domain.SubscriptionEvent) error
}
