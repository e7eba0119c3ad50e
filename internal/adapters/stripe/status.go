package stripe

import (
	"time"

	stripego "github.com/stripe/stripe-go/v82"

	"github.com/VictorLirio/nimbus-api/internal/domain"
)

// NormalizeStatus maps a provider subscription status onto the local enum.
// Statuses with no local meaning (incomplete, paused) return "".
func NormalizeStatus(raw string) domain.SubscriptionStatus {
	switch stripego.SubscriptionStatus(raw) {
	case stripego.SubscriptionStatusActive:
		return domain.SubscriptionStatusActive
	case stripego.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusTrialing
	case stripego.SubscriptionStatusPastDue, stripego.SubscriptionStatusUnpaid:
		return domain.SubscriptionStatusPastDue
	case stripego.SubscriptionStatusCanceled, stripego.SubscriptionStatusIncompleteExpired:
		return domain.SubscriptionStatusCanceled
	default:
		return ""
	}
}

func fromUnix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func optionalUnix(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := fromUnix(sec)
	return &t
}

// toProviderSubscription converts an API response. Billing periods live on
// the subscription items since the 2025-03 API version.
func toProviderSubscription(s *stripego.Subscription) *domain.ProviderSubscription {
	ps := &domain.ProviderSubscription{
		ID:                s.ID,
		RawStatus:         string(s.Status),
		Status:            NormalizeStatus(string(s.Status)),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialEnd:          optionalUnix(s.TrialEnd),
		CreatedAt:         fromUnix(s.Created),
	}
	if s.Customer != nil {
		ps.CustomerRef = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0] != nil {
		item := s.Items.Data[0]
		ps.CurrentPeriodStart = fromUnix(item.CurrentPeriodStart)
		ps.CurrentPeriodEnd = fromUnix(item.CurrentPeriodEnd)
	}
	return ps
}
