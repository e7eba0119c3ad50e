package stripe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// SignatureHeader carries the envelope signature on webhook deliveries.
const SignatureHeader = "Stripe-Signature"

var eventTypes = map[stripego.EventType]domain.ReconciliationEventType{
	"customer.subscription.updated": domain.EventSubscriptionUpdated,
	"customer.subscription.deleted": domain.EventSubscriptionDeleted,
	"invoice.payment_succeeded":     domain.EventInvoicePaymentSucceeded,
	"invoice.payment_failed":        domain.EventInvoicePaymentFailed,
}

// ErrInvalidEnvelope is wrapped by every ParseEvent failure so the webhook
// endpoint can answer 400.
var ErrInvalidEnvelope = errors.New("invalid provider event envelope")

// EventParser verifies webhook signatures and decodes the event payloads the
// engine reconciles.
type EventParser struct {
	secret string
}

// NewEventParser creates a parser bound to the endpoint's signing secret.
func NewEventParser(webhookSecret string) *EventParser {
	return &EventParser{secret: webhookSecret}
}

// ParseEvent checks the signature and tolerance window, then decodes the
// object. Event types outside the reconciled set come back as unsupported
// with no payload.
func (p *EventParser) ParseEvent(payload []byte, signature string) (*domain.ReconciliationEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	out := &domain.ReconciliationEvent{
		ID:           event.ID,
		ProviderType: string(event.Type),
		Type:         domain.EventUnsupported,
	}
	kind, ok := eventTypes[event.Type]
	if !ok {
		return out, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data object", ErrInvalidEnvelope, event.ID)
	}
	out.Type = kind

	switch kind {
	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sp subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sp); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", ErrInvalidEnvelope, err)
		}
		out.Subscription = sp.toDomain()
	default:
		var ip invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &ip); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", ErrInvalidEnvelope, err)
		}
		out.Invoice = ip.toDomain()
	}
	return out, nil
}

// expandableID accepts either a bare id or an expanded object with an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type subscriptionPayload struct {
	ID                string       `json:"id"`
	Customer          expandableID `json:"customer"`
	Status            string       `json:"status"`
	CancelAtPeriodEnd bool         `json:"cancel_at_period_end"`
	TrialEnd          int64        `json:"trial_end"`
	Created           int64        `json:"created"`

	// Older API versions carry the period on the subscription itself.
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`

	Items struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (sp *subscriptionPayload) toDomain() *domain.ProviderSubscription {
	start, end := sp.CurrentPeriodStart, sp.CurrentPeriodEnd
	if len(sp.Items.Data) > 0 && sp.Items.Data[0].CurrentPeriodEnd > 0 {
		start, end = sp.Items.Data[0].CurrentPeriodStart, sp.Items.Data[0].CurrentPeriodEnd
	}
	return &domain.ProviderSubscription{
		ID:                 sp.ID,
		CustomerRef:        string(sp.Customer),
		Status:             NormalizeStatus(sp.Status),
		RawStatus:          sp.Status,
		CurrentPeriodStart: fromUnix(start),
		CurrentPeriodEnd:   fromUnix(end),
		TrialEnd:           optionalUnix(sp.TrialEnd),
		CancelAtPeriodEnd:  sp.CancelAtPeriodEnd,
		CreatedAt:          fromUnix(sp.Created),
	}
}

type invoicePayload struct {
	ID            string       `json:"id"`
	Subscription  expandableID `json:"subscription"`
	BillingReason string       `json:"billing_reason"`
	AmountDue     int64        `json:"amount_due"`
	AmountPaid    int64        `json:"amount_paid"`
	Currency      string       `json:"currency"`
	Status        string       `json:"status"`
	InvoicePDF    string       `json:"invoice_pdf"`
	PeriodStart   int64        `json:"period_start"`
	PeriodEnd     int64        `json:"period_end"`

	Parent *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (ip *invoicePayload) subscriptionRef() string {
	if ip.Subscription != "" {
		return string(ip.Subscription)
	}
	if ip.Parent != nil && ip.Parent.SubscriptionDetails != nil {
		return string(ip.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (ip *invoicePayload) toDomain() *domain.ProviderInvoice {
	return &domain.ProviderInvoice{
		ID:              ip.ID,
		SubscriptionRef: ip.subscriptionRef(),
		BillingReason:   ip.BillingReason,
		AmountDue:       ip.AmountDue,
		AmountPaid:      ip.AmountPaid,
		Currency:        ip.Currency,
		Status:          ip.Status,
		PDFURL:          ip.InvoicePDF,
		PeriodStart:     fromUnix(ip.PeriodStart),
		PeriodEnd:       fromUnix(ip.PeriodEnd),
	}
}

var _ ports.EventParser = (*EventParser)(nil)
