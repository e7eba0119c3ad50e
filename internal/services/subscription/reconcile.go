package subscription

import (
	"context"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
)

// Reconciliation outcomes, used as metric labels
const (
	outcomeApplied   = "applied"
	outcomeNoop      = "noop"
	outcomeUnmatched = "unmatched"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

// Reconcile merges one verified provider event into local state. Only
// storage failures are returned; everything else is acknowledged so the
// provider does not redeliver it.
func (s *Service) Reconcile(ctx context.Context, event *domain.ReconciliationEvent) error {
	if event == nil {
		return nil
	}

	var (
		outcome string
		err     error
	)
	switch event.Type {
	case domain.EventSubscriptionUpdated:
		outcome, err = s.onSubscriptionUpdated(ctx, event)
	case domain.EventSubscriptionDeleted:
		outcome, err = s.onSubscriptionDeleted(ctx, event)
	case domain.EventInvoicePaymentSucceeded:
		outcome, err = s.onPaymentSucceeded(ctx, event)
	case domain.EventInvoicePaymentFailed:
		outcome, err = s.onPaymentFailed(ctx, event)
	default:
		s.logger.Debug("ignoring provider event",
			ports.String("event_id", event.ID),
			ports.String("provider_type", event.ProviderType))
		outcome = outcomeIgnored
	}

	if err != nil {
		outcome = outcomeFailed
		s.logger.Error("reconciliation failed",
			ports.String("event_id", event.ID),
			ports.String("event_type", string(event.Type)),
			ports.String("external_reference_id", event.ExternalReference()),
			ports.Err(err))
	}
	observability.RecordReconciliationEvent(string(event.Type), outcome)
	return err
}

// match finds the local subscription an event refers to. A miss is not an
// error.
func (s *Service) match(ctx context.Context, event *domain.ReconciliationEvent) (*domain.Subscription, error) {
	ref := event.ExternalReference()
	if ref == "" {
		s.logger.Warn("provider event has no subscription reference",
			ports.String("event_id", event.ID),
			ports.String("event_type", string(event.Type)))
		return nil, nil
	}

	sub, err := s.store.FindByExternalReference(ctx, ref)
	if domain.IsNotFound(err) {
		s.logger.Warn("subscription not found for provider event",
			ports.String("event_id", event.ID),
			ports.String("event_type", string(event.Type)),
			ports.String("external_reference_id", ref))
		return nil, nil
	}
	if err != nil {
		return nil, asPersistence("match provider event", err)
	}
	return sub, nil
}

func (s *Service) onSubscriptionUpdated(ctx context.Context, event *domain.ReconciliationEvent) (string, error) {
	ps := event.Subscription
	if ps == nil {
		return outcomeIgnored, nil
	}
	local, err := s.match(ctx, event)
	if err != nil || local == nil {
		return outcomeUnmatched, err
	}
	if !ps.Status.Valid() {
		s.logger.Warn("provider reported unmappable subscription status",
			ports.String("event_id", event.ID),
			ports.String("subscription_id", local.ID.String()),
			ports.String("raw_status", ps.RawStatus))
		return outcomeIgnored, nil
	}

	now := s.clock.Now()
	var cancelRequested bool
	sub, changed, err := s.mutate(ctx, "reconcile_updated", local.ID, func(cur *domain.Subscription) (bool, error) {
		res := cur.MergeProviderState(ps, now)
		if res.StatusIgnored {
			s.logger.Debug("provider status not applicable",
				ports.String("subscription_id", cur.ID.String()),
				ports.String("status", string(cur.Status)),
				ports.String("reported", string(ps.Status)))
		}
		cancelRequested = ps.CancelAtPeriodEnd && cur.RequestCancellation(now)
		return res.Changed || cancelRequested, nil
	})
	if err != nil {
		s.logDrift("reconcile_updated", local, ps.ID, err)
		return outcomeFailed, err
	}
	if !changed {
		return outcomeNoop, nil
	}

	s.logger.Info("subscription reconciled",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("status", string(sub.Status)),
		ports.Bool("cancel_requested", cancelRequested))

	if cancelRequested {
		s.emit(ctx, domain.NewSubscriptionEvent(domain.EventNameSubscriptionCancelled, sub, now).WithCancelAtPeriodEnd(true))
	}
	return outcomeApplied, nil
}

func (s *Service) onSubscriptionDeleted(ctx context.Context, event *domain.ReconciliationEvent) (string, error) {
	local, err := s.match(ctx, event)
	if err != nil || local == nil {
		return outcomeUnmatched, err
	}

	now := s.clock.Now()
	sub, changed, err := s.mutate(ctx, "reconcile_deleted", local.ID, func(cur *domain.Subscription) (bool, error) {
		return cur.MarkEnded(now), nil
	})
	if err != nil {
		s.logDrift("reconcile_deleted", local, local.ExternalRef(), err)
		return outcomeFailed, err
	}

	// Another live subscription keeps the flag set.
	other, err := s.store.FindActiveForUser(ctx, sub.UserID)
	if err != nil {
		return outcomeFailed, asPersistence("check active subscription", err)
	}
	if other == nil {
		if err := s.accounts.SetHasActiveSubscription(ctx, sub.UserID, false); err != nil {
			return outcomeFailed, asPersistence("clear account subscription flag", err)
		}
	}

	if !changed {
		return outcomeNoop, nil
	}
	s.logger.Info("subscription ended by provider",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("user_id", sub.UserID))
	return outcomeApplied, nil
}

func (s *Service) onPaymentSucceeded(ctx context.Context, event *domain.ReconciliationEvent) (string, error) {
	inv := event.Invoice
	if inv == nil {
		return outcomeIgnored, nil
	}
	sub, err := s.match(ctx, event)
	if err != nil || sub == nil {
		return outcomeUnmatched, err
	}

	projection := domain.NewInvoiceProjection(inv, sub, s.clock.Now())
	if err := s.invoices.RecordInvoice(ctx, projection); err != nil {
		return outcomeFailed, asPersistence("record invoice", err)
	}

	if projection.IsFirst() && sub.IsLive() {
		if err := s.accounts.SetHasActiveSubscription(ctx, sub.UserID, true); err != nil {
			return outcomeFailed, asPersistence("set account subscription flag", err)
		}
	}

	s.logger.Info("invoice recorded",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("provider_invoice_id", inv.ID),
		ports.String("amount_paid", projection.AmountPaid.String()),
		ports.String("currency", projection.Currency))
	return outcomeApplied, nil
}

func (s *Service) onPaymentFailed(ctx context.Context, event *domain.ReconciliationEvent) (string, error) {
	local, err := s.match(ctx, event)
	if err != nil || local == nil {
		return outcomeUnmatched, err
	}

	sub, changed, err := s.mutate(ctx, "reconcile_payment_failed", local.ID, func(cur *domain.Subscription) (bool, error) {
		if cur.Status != domain.SubscriptionStatusActive {
			return false, nil
		}
		return cur.TransitionTo(domain.SubscriptionStatusPastDue), nil
	})
	if err != nil {
		s.logDrift("reconcile_payment_failed", local, local.ExternalRef(), err)
		return outcomeFailed, err
	}
	if !changed {
		return outcomeNoop, nil
	}

	s.logger.Warn("subscription payment failed",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("user_id", sub.UserID))
	return outcomeApplied, nil
}
