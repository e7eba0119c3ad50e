package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/VictorLirio/nimbus-api/internal/domain"
)

// SubscriptionStore is the durable record of subscriptions.
//
// Lookups that miss return a NOT_FOUND domain error, except FindActiveForUser
// which returns nil, nil when the user has no active or trialing subscription.
type SubscriptionStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	FindByExternalReference(ctx context.Context, ref string) (*domain.Subscription, error)
	FindActiveForUser(ctx context.Context, userID string) (*domain.Subscription, error)

	// FindAllForUser returns the user's subscriptions newest first.
	FindAllForUser(ctx context.Context, userID string) ([]*domain.Subscription, error)

	// Save inserts sub when Version is zero and otherwise updates it only if
	// the stored version still equals sub.Version. On success sub.Version is
	// advanced; a lost race yields a VERSION_CONFLICT domain error and a
	// duplicate external reference a CONFLICT.
	Save(ctx context.Context, sub *domain.Subscription) error

	// FindExpiringWithin returns live subscriptions whose current period ends
	// between now and now+window, soonest first.
	FindExpiringWithin(ctx context.Context, window time.Duration) ([]*domain.Subscription, error)
}

// UserScope provides per-user mutual exclusion. fn runs while no other scope
// for the same user is held, and the store it receives reads its own writes.
// Writes made through that store become visible to others only if fn
// returns nil.
type UserScope interface {
	WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, store SubscriptionStore) error) error
}
