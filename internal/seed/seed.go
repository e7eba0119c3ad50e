// Package seed loads plan catalog and account fixtures from YAML and writes
// them through the catalog and directory adapters.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/VictorLirio/nimbus-api/internal/domain"
)

// PlanWriter is implemented by the postgres and memory plan catalogs
type PlanWriter interface {
	UpsertPlan(ctx context.Context, plan *domain.Plan) error
}

// AccountWriter is implemented by the postgres and memory account directories
type AccountWriter interface {
	UpsertAccount(ctx context.Context, acct *domain.Account) error
}

type planDoc struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Price            string `yaml:"price"`
	Currency         string `yaml:"currency"`
	BillingCycleDays int    `yaml:"billing_cycle_days"`
	TrialPeriodDays  int    `yaml:"trial_period_days"`
	ProviderPriceRef string `yaml:"provider_price_ref"`
	Active           *bool  `yaml:"active"`
}

type accountDoc struct {
	ID                  string `yaml:"id"`
	Email               string `yaml:"email"`
	ProviderCustomerRef string `yaml:"provider_customer_ref"`
}

type fileDoc struct {
	Plans    []planDoc    `yaml:"plans"`
	Accounts []accountDoc `yaml:"accounts"`
}

// Data is a validated fixture set
type Data struct {
	Plans    []*domain.Plan
	Accounts []*domain.Account
}

// LoadFile reads and validates a fixture file
func LoadFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates fixture YAML. Plans default to active and a
// 30 day cycle.
func Parse(raw []byte) (*Data, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	data := &Data{}
	seen := make(map[string]bool)
	for i, p := range doc.Plans {
		if p.ID == "" || p.ProviderPriceRef == "" {
			return nil, fmt.Errorf("plan %d: id and provider_price_ref are required", i)
		}
		if seen["plan:"+p.ID] {
			return nil, fmt.Errorf("plan %q listed twice", p.ID)
		}
		seen["plan:"+p.ID] = true

		price, err := decimal.NewFromString(p.Price)
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("plan %q: invalid price %q", p.ID, p.Price)
		}
		cycle := p.BillingCycleDays
		if cycle == 0 {
			cycle = 30
		}
		active := true
		if p.Active != nil {
			active = *p.Active
		}
		data.Plans = append(data.Plans, &domain.Plan{
			ID:               p.ID,
			Name:             p.Name,
			Price:            price,
			Currency:         strings.ToLower(p.Currency),
			BillingCycleDays: cycle,
			TrialPeriodDays:  p.TrialPeriodDays,
			ProviderPriceRef: p.ProviderPriceRef,
			Active:           active,
		})
	}

	for i, a := range doc.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account %d: id is required", i)
		}
		if seen["account:"+a.ID] {
			return nil, fmt.Errorf("account %q listed twice", a.ID)
		}
		seen["account:"+a.ID] = true
		data.Accounts = append(data.Accounts, &domain.Account{
			ID:                  a.ID,
			Email:               a.Email,
			ProviderCustomerRef: a.ProviderCustomerRef,
		})
	}
	return data, nil
}

// Apply upserts every plan and account
func Apply(ctx context.Context, data *Data, plans PlanWriter, accounts AccountWriter) error {
	for _, p := range data.Plans {
		if err := plans.UpsertPlan(ctx, p); err != nil {
			return fmt.Errorf("seed plan %s: %w", p.ID, err)
		}
	}
	for _, a := range data.Accounts {
		if err := accounts.UpsertAccount(ctx, a); err != nil {
			return fmt.Errorf("seed account %s: %w", a.ID, err)
		}
	}
	return nil
}
