package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// PlanCache is a read-through expiring LRU over a PlanCatalog. Only
// successful lookups are cached, so a plan that is deactivated disappears
// at most one TTL later and a missing plan is retried every time.
type PlanCache struct {
	inner ports.PlanCatalog
	lru   *expirable.LRU[string, *domain.Plan]
}

// NewPlanCache wraps inner with room for size plans kept for ttl.
func NewPlanCache(inner ports.PlanCatalog, size int, ttl time.Duration) *PlanCache {
	if size <= 0 {
		size = 256
	}
	return &PlanCache{
		inner: inner,
		lru:   expirable.NewLRU[string, *domain.Plan](size, nil, ttl),
	}
}

// ResolvePlan returns a copy so callers cannot mutate the cached plan.
func (c *PlanCache) ResolvePlan(ctx context.Context, planID string) (*domain.Plan, error) {
	if p, ok := c.lru.Get(planID); ok {
		cp := *p
		return &cp, nil
	}
	p, err := c.inner.ResolvePlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	cp := *p
	c.lru.Add(planID, &cp)
	return p, nil
}

// Invalidate forgets planID, e.g. after a catalog update.
func (c *PlanCache) Invalidate(planID string) {
	c.lru.Remove(planID)
}

// Len is the number of cached plans.
func (c *PlanCache) Len() int {
	return c.lru.Len()
}

var _ ports.PlanCatalog = (*PlanCache)(nil)
