package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingReasonSubscriptionCreate marks the first invoice of a subscription.
const BillingReasonSubscriptionCreate = "subscription_create"

// Invoice is the local projection of a paid provider invoice.
type Invoice struct {
	ID                uuid.UUID       `json:"id"`
	ProviderInvoiceID string          `json:"provider_invoice_id"`
	SubscriptionID    uuid.UUID       `json:"subscription_id"`
	UserID            string          `json:"user_id"`
	AmountDue         decimal.Decimal `json:"amount_due"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	PDFURL            string          `json:"pdf_url,omitempty"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	BillingReason     string          `json:"billing_reason"`
	CreatedAt         time.Time       `json:"created_at"`
}

// IsFirst returns true for the invoice that opened the subscription
func (i *Invoice) IsFirst() bool {
	return i.BillingReason == BillingReasonSubscriptionCreate
}

// NewInvoiceProjection converts a provider invoice for the given subscription.
func NewInvoiceProjection(pi *ProviderInvoice, sub *Subscription, now time.Time) *Invoice {
	return &Invoice{
		ID:                uuid.New(),
		ProviderInvoiceID: pi.ID,
		SubscriptionID:    sub.ID,
		UserID:            sub.UserID,
		AmountDue:         MinorToMajor(pi.AmountDue, pi.Currency),
		AmountPaid:        MinorToMajor(pi.AmountPaid, pi.Currency),
		Currency:          strings.ToUpper(pi.Currency),
		Status:            pi.Status,
		PDFURL:            pi.PDFURL,
		PeriodStart:       pi.PeriodStart,
		PeriodEnd:         pi.PeriodEnd,
		BillingReason:     pi.BillingReason,
		CreatedAt:         now,
	}
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// MinorToMajor converts an amount in minor units to a decimal amount.
func MinorToMajor(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}
