package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VictorLirio/nimbus-api/internal/domain"
)

// FindUserSubscriptions returns every subscription of the user, newest first
func (s *Service) FindUserSubscriptions(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	subs, err := s.store.FindAllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user subscriptions: %w", err)
	}
	return subs, nil
}

// FindOne returns the subscription only if userID owns it. Someone else's
// subscription is reported as not found.
func (s *Service) FindOne(ctx context.Context, subscriptionID uuid.UUID, userID string) (*domain.Subscription, error) {
	sub, err := s.store.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	if sub.UserID != userID {
		return nil, domain.NewSubscriptionNotFound(subscriptionID.String())
	}
	return sub, nil
}

// CurrentSubscription returns the user's active or trialing subscription
func (s *Service) CurrentSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.store.FindActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find active subscription: %w", err)
	}
	if sub == nil {
		return nil, domain.WrapError(domain.ErrorCodeNotFound, "user has no active subscription", domain.ErrSubscriptionNotFound).
			WithDetail("user_id", userID)
	}
	return sub, nil
}

// IsSubscriptionActive reports whether the user has an active or trialing
// subscription
func (s *Service) IsSubscriptionActive(ctx context.Context, userID string) (bool, error) {
	sub, err := s.store.FindActiveForUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("find active subscription: %w", err)
	}
	return sub != nil, nil
}

// CurrentPlan resolves the plan of the user's current subscription
func (s *Service) CurrentPlan(ctx context.Context, userID string) (*domain.Plan, error) {
	sub, err := s.CurrentSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.plans.ResolvePlan(ctx, sub.PlanID)
}

// ExpiringSoon lists live subscriptions whose period ends within days.
// A non-positive value uses the configured default.
func (s *Service) ExpiringSoon(ctx context.Context, days int) ([]*domain.Subscription, error) {
	if days <= 0 {
		days = s.cfg.ExpiringDefaultDays
	}
	subs, err := s.store.FindExpiringWithin(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("find expiring subscriptions: %w", err)
	}
	return subs, nil
}
