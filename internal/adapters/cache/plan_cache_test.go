package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictorLirio/nimbus-api/internal/adapters/memory"
	"github.com/VictorLirio/nimbus-api/internal/domain"
)

func testPlan(id string, active bool) *domain.Plan {
	return &domain.Plan{
		ID:               id,
		Name:             "Pro",
		Price:            decimal.RequireFromString("29.99"),
		Currency:         "USD",
		BillingCycleDays: 30,
		ProviderPriceRef: "price_" + id,
		Active:           active,
	}
}

func TestPlanCache_ServesRepeatLookupsFromCache(t *testing.T) {
	catalog := memory.NewPlanCatalog(testPlan("plan-b", true))
	c := NewPlanCache(catalog, 8, time.Minute)

	for i := 0; i < 3; i++ {
		p, err := c.ResolvePlan(context.Background(), "plan-b")
		require.NoError(t, err)
		assert.Equal(t, "price_plan-b", p.ProviderPriceRef)
	}
	assert.Equal(t, 1, catalog.Lookups())
	assert.Equal(t, 1, c.Len())
}

func TestPlanCache_DoesNotCacheMisses(t *testing.T) {
	catalog := memory.NewPlanCatalog(testPlan("plan-old", false))
	c := NewPlanCache(catalog, 8, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := c.ResolvePlan(context.Background(), "plan-old")
		assert.True(t, domain.IsNotFound(err))
	}
	assert.Equal(t, 2, catalog.Lookups())
	assert.Equal(t, 0, c.Len())
}

func TestPlanCache_ReturnsCopies(t *testing.T) {
	catalog := memory.NewPlanCatalog(testPlan("plan-b", true))
	c := NewPlanCache(catalog, 8, time.Minute)

	p, err := c.ResolvePlan(context.Background(), "plan-b")
	require.NoError(t, err)
	p.ProviderPriceRef = "tampered"

	again, err := c.ResolvePlan(context.Background(), "plan-b")
	require.NoError(t, err)
	assert.Equal(t, "price_plan-b", again.ProviderPriceRef)
}

func TestPlanCache_InvalidateAndExpiry(t *testing.T) {
	catalog := memory.NewPlanCatalog(testPlan("plan-b", true))
	c := NewPlanCache(catalog, 8, 20*time.Millisecond)

	_, err := c.ResolvePlan(context.Background(), "plan-b")
	require.NoError(t, err)

	catalog.Put(testPlan("plan-b", false))
	c.Invalidate("plan-b")
	_, err = c.ResolvePlan(context.Background(), "plan-b")
	assert.True(t, domain.IsNotFound(err), "deactivated plan is visible after invalidation")

	catalog.Put(testPlan("plan-b", true))
	_, err = c.ResolvePlan(context.Background(), "plan-b")
	require.NoError(t, err)
	lookups := catalog.Lookups()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, err = c.ResolvePlan(context.Background(), "plan-b")
	require.NoError(t, err)
	assert.Equal(t, lookups+1, catalog.Lookups())
}
