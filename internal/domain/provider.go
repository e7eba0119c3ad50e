package domain

import "time"

// ProviderSubscription is the provider's view of a subscription after the
// gateway normalized it. Status is empty when the provider reported a value
// outside the local enum; RawStatus always carries what was sent.
type ProviderSubscription struct {
	ID                 string
	CustomerRef        string
	Status             SubscriptionStatus
	RawStatus          string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	CreatedAt          time.Time
}

// ProviderInvoice is a normalized invoice notification. Amounts are in the
// currency's minor unit.
type ProviderInvoice struct {
	ID              string
	SubscriptionRef string
	BillingReason   string
	AmountDue       int64
	AmountPaid      int64
	Currency        string
	Status          string
	PDFURL          string
	PeriodStart     time.Time
	PeriodEnd       time.Time
}

// ReconciliationEventType is the local name of a provider notification.
type ReconciliationEventType string

const (
	EventSubscriptionUpdated     ReconciliationEventType = "subscription.updated"
	EventSubscriptionDeleted     ReconciliationEventType = "subscription.deleted"
	EventInvoicePaymentSucceeded ReconciliationEventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    ReconciliationEventType = "invoice.payment_failed"
	EventUnsupported             ReconciliationEventType = "unsupported"
)

// ReconciliationEvent is a verified provider notification, transient and
// never persisted.
type ReconciliationEvent struct {
	ID           string
	Type         ReconciliationEventType
	ProviderType string
	Subscription *ProviderSubscription
	Invoice      *ProviderInvoice
}

// ExternalReference returns the provider subscription id the event is about.
func (e *ReconciliationEvent) ExternalReference() string {
	switch {
	case e.Subscription != nil:
		return e.Subscription.ID
	case e.Invoice != nil:
		return e.Invoice.SubscriptionRef
	}
	return ""
}
