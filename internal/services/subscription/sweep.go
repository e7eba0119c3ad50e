package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	serviceports "github.com/VictorLirio/nimbus-api/internal/services/ports"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
)

// SweepOrphans looks for provider subscriptions created within lookback
// that have no local record. Orphans are reported and alerted on, never
// repaired.
func (s *Service) SweepOrphans(ctx context.Context, lookback time.Duration) (*serviceports.OrphanReport, error) {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}

	var listed []*domain.ProviderSubscription
	err := s.callProvider(ctx, "list", func(ctx context.Context) error {
		var err error
		listed, err = s.gateway.ListSubscriptions(ctx, ports.ListSubscriptionsRequest{
			CreatedAfter: s.clock.Now().Add(-lookback),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &serviceports.OrphanReport{Orphaned: []serviceports.OrphanedSubscription{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)

	for _, ps := range listed {
		if ps.Status == domain.SubscriptionStatusCanceled {
			continue
		}
		ps := ps
		g.Go(func() error {
			_, err := s.store.FindByExternalReference(gctx, ps.ID)
			if err == nil {
				mu.Lock()
				report.Scanned++
				mu.Unlock()
				return nil
			}
			if !domain.IsNotFound(err) {
				return fmt.Errorf("lookup %s: %w", ps.ID, err)
			}

			s.logger.Error("provider subscription has no local record",
				ports.Bool("alert", true),
				ports.String("external_reference_id", ps.ID),
				ports.String("customer_ref", ps.CustomerRef),
				ports.String("status", ps.RawStatus),
				ports.Time("created_at", ps.CreatedAt))

			mu.Lock()
			report.Scanned++
			report.Orphaned = append(report.Orphaned, serviceports.OrphanedSubscription{
				ProviderRef: ps.ID,
				CustomerRef: ps.CustomerRef,
				Status:      ps.Status,
				CreatedAt:   ps.CreatedAt,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, asPersistence("orphan sweep", err)
	}

	observability.RecordOrphanedProviderSubscriptions(len(report.Orphaned))
	s.logger.Info("orphan sweep completed",
		ports.Int("listed", len(listed)),
		ports.Int("scanned", report.Scanned),
		ports.Int("orphaned", len(report.Orphaned)))
	return report, nil
}
