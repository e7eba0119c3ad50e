package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	serviceports "github.com/VictorLirio/nimbus-api/internal/services/ports"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
)

// Create opens a provider subscription for the user and records it. The
// check for an existing live subscription, the provider call and the insert
// all happen inside the user's scope.
func (s *Service) Create(ctx context.Context, req serviceports.CreateSubscriptionRequest) (sub *domain.Subscription, err error) {
	start := time.Now()
	defer func() { observability.RecordSubscriptionCommand("create", outcomeOf(err), time.Since(start)) }()

	if req.UserID == "" || req.PlanID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidation, "user id and plan id are required")
	}

	plan, err := s.plans.ResolvePlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindAccount(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if account.ProviderCustomerRef == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidation, "account has no billing customer").
			WithDetail("user_id", req.UserID)
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	var providerRef string
	err = s.scope.WithUserLock(ctx, req.UserID, func(ctx context.Context, store ports.SubscriptionStore) error {
		existing, err := store.FindActiveForUser(ctx, req.UserID)
		if err != nil {
			return asPersistence("check active subscription", err)
		}
		if existing != nil {
			return domain.WrapError(domain.ErrorCodeConflict, "user already has an active subscription", domain.ErrActiveSubscription).
				WithDetail("subscription_id", existing.ID.String())
		}

		var ps *domain.ProviderSubscription
		err = s.callProvider(ctx, "create", func(ctx context.Context) error {
			var err error
			ps, err = s.gateway.CreateSubscription(ctx, ports.CreateSubscriptionRequest{
				CustomerRef:      account.ProviderCustomerRef,
				PriceRef:         plan.ProviderPriceRef,
				PaymentMethodRef: req.PaymentMethodRef,
				CouponRef:        req.CouponRef,
				TrialDays:        plan.TrialPeriodDays,
				IdempotencyKey:   idempotencyKey,
				Metadata:         map[string]string{"user_id": req.UserID, "plan_id": plan.ID},
			})
			return err
		})
		if err != nil {
			return err
		}
		providerRef = ps.ID

		if !ps.Status.Valid() {
			return domain.NewProviderError("unsupported_status",
				"provider returned status "+ps.RawStatus, 0)
		}

		sub = domain.NewSubscriptionFromProvider(req.UserID, plan.ID, ps, s.clock.Now())
		if err := store.Save(ctx, sub); err != nil {
			return asPersistence("insert subscription", err)
		}
		return nil
	})

	if err != nil {
		if providerRef != "" {
			s.logDrift("create", sub, providerRef, err)
			return nil, asPersistence("insert subscription", err)
		}
		if !domain.IsConflict(err) {
			s.logger.Warn("create subscription failed",
				ports.String("user_id", req.UserID),
				ports.String("plan_id", req.PlanID),
				ports.Err(err))
		}
		return nil, err
	}

	s.logger.Info("subscription created",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("user_id", sub.UserID),
		ports.String("plan_id", sub.PlanID),
		ports.String("status", string(sub.Status)),
		ports.String("external_reference_id", providerRef))

	s.emit(ctx, domain.NewSubscriptionEvent(domain.EventNameSubscriptionCreated, sub, s.clock.Now()))
	return sub, nil
}

// Cancel terminates a live subscription immediately at the provider and
// records the cancellation locally.
func (s *Service) Cancel(ctx context.Context, subscriptionID uuid.UUID, userID string) (sub *domain.Subscription, err error) {
	start := time.Now()
	defer func() { observability.RecordSubscriptionCommand("cancel", outcomeOf(err), time.Since(start)) }()

	current, err := s.FindOne(ctx, subscriptionID, userID)
	if err != nil {
		return nil, err
	}
	if !current.IsLive() {
		return nil, domain.NewDomainError(domain.ErrorCodeInvalidState, "only active or trialing subscriptions can be canceled").
			WithDetail("status", string(current.Status))
	}

	ref := current.ExternalRef()
	err = s.callProvider(ctx, "cancel", func(ctx context.Context) error {
		return s.gateway.CancelSubscription(ctx, ref, "cancel:"+current.ID.String())
	})
	if err != nil {
		s.logger.Warn("provider cancel failed",
			ports.String("subscription_id", current.ID.String()),
			ports.Err(err))
		return nil, err
	}

	now := s.clock.Now()
	sub, changed, err := s.mutate(ctx, "cancel", current.ID, func(cur *domain.Subscription) (bool, error) {
		changed := cur.TransitionTo(domain.SubscriptionStatusCanceled)
		if cur.IsTrial || cur.TrialEndsAt != nil {
			cur.IsTrial = false
			cur.TrialEndsAt = nil
			changed = true
		}
		if cur.CanceledAt == nil {
			cur.CanceledAt = &now
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		s.logDrift("cancel", current, ref, err)
		return nil, err
	}
	// A concurrent cancel or provider deletion committed first and already
	// announced the cancellation.
	if !changed {
		return nil, domain.NewDomainError(domain.ErrorCodeInvalidState, "subscription is already canceled").
			WithDetail("status", string(sub.Status))
	}

	s.logger.Info("subscription canceled",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("user_id", sub.UserID))

	s.emit(ctx, domain.NewSubscriptionEvent(domain.EventNameSubscriptionCancelled, sub, now).WithCancelAtPeriodEnd(false))
	return sub, nil
}

// ChangePlan moves a subscription to another plan. Asking for the current
// plan returns the subscription untouched without contacting the provider.
func (s *Service) ChangePlan(ctx context.Context, req serviceports.ChangePlanRequest) (sub *domain.Subscription, err error) {
	start := time.Now()
	defer func() { observability.RecordSubscriptionCommand("change_plan", outcomeOf(err), time.Since(start)) }()

	current, err := s.FindOne(ctx, req.SubscriptionID, req.UserID)
	if err != nil {
		return nil, err
	}
	if req.NewPlanID == current.PlanID {
		return current, nil
	}
	if current.IsCanceled() {
		return nil, domain.NewDomainError(domain.ErrorCodeInvalidState, "canceled subscriptions cannot change plan")
	}

	plan, err := s.plans.ResolvePlan(ctx, req.NewPlanID)
	if err != nil {
		return nil, err
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	ref := current.ExternalRef()
	var ps *domain.ProviderSubscription
	err = s.callProvider(ctx, "change_plan", func(ctx context.Context) error {
		var err error
		ps, err = s.gateway.ChangePlan(ctx, ports.ChangePlanRequest{
			ProviderRef:    ref,
			NewPriceRef:    plan.ProviderPriceRef,
			Prorate:        req.Prorate,
			IdempotencyKey: idempotencyKey,
		})
		return err
	})
	if err != nil {
		s.logger.Warn("provider plan change failed",
			ports.String("subscription_id", current.ID.String()),
			ports.String("new_plan_id", plan.ID),
			ports.Err(err))
		return nil, err
	}

	previousPlan := current.PlanID
	now := s.clock.Now()
	sub, _, err = s.mutate(ctx, "change_plan", current.ID, func(cur *domain.Subscription) (bool, error) {
		changed := false
		if cur.PlanID != plan.ID {
			cur.PlanID = plan.ID
			changed = true
		}
		if ps.Status.Valid() && cur.MergeProviderState(ps, now).Changed {
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		s.logDrift("change_plan", current, ref, err)
		return nil, err
	}

	s.logger.Info("subscription plan changed",
		ports.String("subscription_id", sub.ID.String()),
		ports.String("previous_plan_id", previousPlan),
		ports.String("plan_id", sub.PlanID),
		ports.Bool("prorate", req.Prorate))

	event := domain.NewSubscriptionEvent(domain.EventNameSubscriptionPlanChanged, sub, now)
	event.PreviousPlanID = previousPlan
	s.emit(ctx, event)
	return sub, nil
}
