package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
)

// applyFunc changes the fields its caller owns on a freshly read record and
// reports whether anything changed. It may run more than once.
type applyFunc func(sub *domain.Subscription) (bool, error)

// mutate is an optimistic read-modify-write on one subscription. A lost race
// re-reads the row and reapplies; unchanged records are not written.
func (s *Service) mutate(ctx context.Context, op string, id uuid.UUID, apply applyFunc) (*domain.Subscription, bool, error) {
	for attempt := 0; ; attempt++ {
		current, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, false, asPersistence("load subscription", err)
		}

		changed, err := apply(current)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return current, false, nil
		}

		current.UpdatedAt = s.clock.Now()
		err = s.store.Save(ctx, current)
		if err == nil {
			return current, true, nil
		}
		if !domain.IsVersionConflict(err) {
			return nil, false, asPersistence("save subscription", err)
		}
		if attempt >= s.cfg.SaveMaxRetries {
			return nil, false, domain.NewPersistenceError("save subscription: retries exhausted", err)
		}

		observability.RecordOptimisticRetry(op)
		s.logger.Debug("subscription write lost race, retrying",
			ports.String("operation", op),
			ports.String("subscription_id", id.String()),
			ports.Int("attempt", attempt+1))

		if err := resilience.Sleep(ctx, s.cfg.Backoff.NextDelay(attempt)); err != nil {
			return nil, false, domain.NewPersistenceError("save subscription", err)
		}
	}
}

// logDrift records a storage failure that left local state behind the
// provider.
func (s *Service) logDrift(op string, sub *domain.Subscription, providerRef string, err error) {
	observability.RecordPersistenceFailure(op)
	fields := []ports.Field{
		ports.String("operation", op),
		ports.String("external_reference_id", providerRef),
		ports.Err(err),
	}
	if sub != nil {
		fields = append(fields,
			ports.String("subscription_id", sub.ID.String()),
			ports.String("user_id", sub.UserID))
	}
	s.logger.Error("local subscription state diverged from provider", fields...)
}
