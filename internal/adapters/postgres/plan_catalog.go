package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

const (
	selectPlan = `SELECT id, name, price, currency, billing_cycle_days, trial_period_days, provider_price_ref, active
		FROM plans WHERE id = $1`

	upsertPlan = `INSERT INTO plans (id, name, price, currency, billing_cycle_days, trial_period_days, provider_price_ref, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			billing_cycle_days = EXCLUDED.billing_cycle_days,
			trial_period_days = EXCLUDED.trial_period_days,
			provider_price_ref = EXCLUDED.provider_price_ref,
			active = EXCLUDED.active,
			updated_at = NOW()`
)

// PlanCatalog reads plans from the plans table
type PlanCatalog struct {
	db ports.DBTX
}

// NewPlanCatalog creates a new plan catalog
func NewPlanCatalog(db ports.DBTX) *PlanCatalog {
	return &PlanCatalog{db: db}
}

// ResolvePlan returns an active plan. Inactive plans are not found.
func (c *PlanCatalog) ResolvePlan(ctx context.Context, planID string) (*domain.Plan, error) {
	var (
		plan  domain.Plan
		price pgtype.Numeric
	)
	err := c.db.QueryRow(ctx, selectPlan, planID).Scan(
		&plan.ID,
		&plan.Name,
		&price,
		&plan.Currency,
		&plan.BillingCycleDays,
		&plan.TrialPeriodDays,
		&plan.ProviderPriceRef,
		&plan.Active,
	)
	if isNoRows(err) {
		return nil, domain.NewPlanNotFound(planID)
	}
	if err != nil {
		return nil, wrapQueryError("resolve plan", err)
	}
	if !plan.Active {
		return nil, domain.NewPlanNotFound(planID)
	}

	plan.Price, err = pgNumericToDecimal(price)
	if err != nil {
		return nil, wrapQueryError("resolve plan", err)
	}
	return &plan, nil
}

// UpsertPlan creates or replaces a catalog entry
func (c *PlanCatalog) UpsertPlan(ctx context.Context, plan *domain.Plan) error {
	price, err := decimalToNumeric(plan.Price)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(ctx, upsertPlan,
		plan.ID,
		plan.Name,
		price,
		plan.Currency,
		plan.BillingCycleDays,
		plan.TrialPeriodDays,
		plan.ProviderPriceRef,
		plan.Active,
	)
	if err != nil {
		return wrapQueryError("upsert plan", err)
	}
	return nil
}

var _ ports.PlanCatalog = (*PlanCatalog)(nil)
