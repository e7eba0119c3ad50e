package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is catalog data resolved by id. Read-only here.
type Plan struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	BillingCycleDays int             `json:"billing_cycle_days"`
	TrialPeriodDays  int             `json:"trial_period_days"`
	ProviderPriceRef string          `json:"provider_price_ref"`
	Active           bool            `json:"active"`
}

// HasTrial returns true if new subscriptions to the plan start trialing
func (p *Plan) HasTrial() bool {
	return p.TrialPeriodDays > 0
}

// BillingCycle returns the cycle length as a duration.
func (p *Plan) BillingCycle() time.Duration {
	return time.Duration(p.BillingCycleDays) * 24 * time.Hour
}

// Account is the slice of the user directory this service needs.
type Account struct {
	ID                    string `json:"id"`
	Email                 string `json:"email"`
	ProviderCustomerRef   string `json:"provider_customer_ref"`
	HasActiveSubscription bool   `json:"has_active_subscription"`
}
