package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/timeutil"
)

const subscriptionColumns = `id, user_id, plan_id, external_reference_id, status,
	current_period_start, current_period_end, is_trial, trial_ends_at,
	canceled_at, ended_at, version, created_at, updated_at`

const (
	selectSubscriptionByID = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	selectSubscriptionByRef = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE external_reference_id = $1`

	selectActiveSubscription = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE user_id = $1 AND status IN ('active', 'trialing')
		ORDER BY created_at DESC
		LIMIT 1`

	selectUserSubscriptions = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC, id`

	selectExpiringSubscriptions = `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status IN ('active', 'trialing')
		  AND current_period_end >= $1
		  AND current_period_end <= $2
		ORDER BY current_period_end ASC`

	insertSubscription = `INSERT INTO subscriptions (
		id, user_id, plan_id, external_reference_id, status,
		current_period_start, current_period_end, is_trial, trial_ends_at,
		canceled_at, ended_at, version, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)`

	updateSubscription = `UPDATE subscriptions SET
		plan_id = $3,
		external_reference_id = $4,
		status = $5,
		current_period_start = $6,
		current_period_end = $7,
		is_trial = $8,
		trial_ends_at = $9,
		canceled_at = $10,
		ended_at = $11,
		updated_at = $12,
		version = version + 1
	WHERE id = $1 AND version = $2`

	subscriptionExists = `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`

	// Transaction-scoped, released on commit or rollback.
	lockUser = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	subscriptionsPrimaryKey = "subscriptions_pkey"
)

// SubscriptionStore implements ports.SubscriptionStore and ports.UserScope
// on PostgreSQL
type SubscriptionStore struct {
	db    ports.DBTX
	tm    ports.TransactionManager
	clock timeutil.Clock
}

// NewSubscriptionStore creates a store that reads and writes through db and
// opens user scopes through tm
func NewSubscriptionStore(db ports.DBTX, tm ports.TransactionManager, clock timeutil.Clock) *SubscriptionStore {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &SubscriptionStore{db: db, tm: tm, clock: clock}
}

func (s *SubscriptionStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, selectSubscriptionByID, id))
	if isNoRows(err) {
		return nil, domain.NewSubscriptionNotFound(id.String())
	}
	if err != nil {
		return nil, wrapQueryError("find subscription", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) FindByExternalReference(ctx context.Context, ref string) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, selectSubscriptionByRef, ref))
	if isNoRows(err) {
		return nil, domain.NewSubscriptionNotFound(ref)
	}
	if err != nil {
		return nil, wrapQueryError("find subscription by reference", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) FindActiveForUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, selectActiveSubscription, userID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapQueryError("find active subscription", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) FindAllForUser(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	return s.list(ctx, "list user subscriptions", selectUserSubscriptions, userID)
}

func (s *SubscriptionStore) FindExpiringWithin(ctx context.Context, window time.Duration) ([]*domain.Subscription, error) {
	now := s.clock.Now()
	return s.list(ctx, "list expiring subscriptions", selectExpiringSubscriptions, now, now.Add(window))
}

func (s *SubscriptionStore) list(ctx context.Context, op, query string, args ...interface{}) ([]*domain.Subscription, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError(op, err)
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, wrapQueryError(op, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(op, err)
	}
	return subs, nil
}

// Save inserts or conditionally updates sub. See ports.SubscriptionStore.
func (s *SubscriptionStore) Save(ctx context.Context, sub *domain.Subscription) error {
	if sub.Version == 0 {
		return s.insert(ctx, sub)
	}
	return s.update(ctx, sub)
}

func (s *SubscriptionStore) insert(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.db.Exec(ctx, insertSubscription,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.ExternalReferenceID,
		string(sub.Status),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.IsTrial,
		sub.TrialEndsAt,
		sub.CanceledAt,
		sub.EndedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		switch uniqueConstraint(err) {
		case "":
			return wrapQueryError("insert subscription", err)
		case subscriptionsPrimaryKey:
			return domain.NewVersionConflict(sub.ID.String())
		default:
			return domain.WrapError(domain.ErrorCodeConflict, "external reference already in use", err).
				WithDetail("external_reference_id", sub.ExternalRef())
		}
	}
	sub.Version = 1
	return nil
}

func (s *SubscriptionStore) update(ctx context.Context, sub *domain.Subscription) error {
	tag, err := s.db.Exec(ctx, updateSubscription,
		sub.ID,
		sub.Version,
		sub.PlanID,
		sub.ExternalReferenceID,
		string(sub.Status),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.IsTrial,
		sub.TrialEndsAt,
		sub.CanceledAt,
		sub.EndedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return domain.WrapError(domain.ErrorCodeConflict, "external reference already in use", err).
				WithDetail("external_reference_id", sub.ExternalRef())
		}
		return wrapQueryError("update subscription", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, subscriptionExists, sub.ID).Scan(&exists); err != nil {
			return wrapQueryError("update subscription", err)
		}
		if !exists {
			return domain.NewSubscriptionNotFound(sub.ID.String())
		}
		return domain.NewVersionConflict(sub.ID.String())
	}

	sub.Version++
	return nil
}

// WithUserLock runs fn in a transaction holding the user's advisory lock.
// fn's store reads and writes through that transaction.
func (s *SubscriptionStore) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, store ports.SubscriptionStore) error) error {
	err := s.tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockUser, userID); err != nil {
			return domain.NewPersistenceError("acquire user scope", err)
		}
		return fn(ctx, &SubscriptionStore{db: tx, tm: s.tm, clock: s.clock})
	})
	if err != nil {
		return wrapQueryError(fmt.Sprintf("user scope %s", userID), err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub    domain.Subscription
		status string
	)
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.ExternalReferenceID,
		&status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.IsTrial,
		&sub.TrialEndsAt,
		&sub.CanceledAt,
		&sub.EndedAt,
		&sub.Version,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Status, err = domain.ParseSubscriptionStatus(status)
	if err != nil {
		return nil, err
	}
	sub.CurrentPeriodStart = sub.CurrentPeriodStart.UTC()
	sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	sub.TrialEndsAt = utcPtr(sub.TrialEndsAt)
	sub.CanceledAt = utcPtr(sub.CanceledAt)
	sub.EndedAt = utcPtr(sub.EndedAt)
	return &sub, nil
}

var (
	_ ports.SubscriptionStore = (*SubscriptionStore)(nil)
	_ ports.UserScope         = (*SubscriptionStore)(nil)
)
