package memory

import (
	"context"
	"sync"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// PlanCatalog is a fixed set of plans
type PlanCatalog struct {
	mu    sync.RWMutex
	plans map[string]*domain.Plan
	hits  int
}

// NewPlanCatalog creates a catalog seeded with plans
func NewPlanCatalog(plans ...*domain.Plan) *PlanCatalog {
	c := &PlanCatalog{plans: make(map[string]*domain.Plan)}
	for _, p := range plans {
		c.Put(p)
	}
	return c
}

// Put adds or replaces a plan
func (c *PlanCatalog) Put(p *domain.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.plans[p.ID] = &cp
}

// UpsertPlan stores p, matching the postgres catalog's write surface
func (c *PlanCatalog) UpsertPlan(_ context.Context, p *domain.Plan) error {
	c.Put(p)
	return nil
}

// Lookups returns how many times ResolvePlan was called
func (c *PlanCatalog) Lookups() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits
}

func (c *PlanCatalog) ResolvePlan(ctx context.Context, planID string) (*domain.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++

	p, ok := c.plans[planID]
	if !ok || !p.Active {
		return nil, domain.NewPlanNotFound(planID)
	}
	cp := *p
	return &cp, nil
}

// AccountDirectory stores accounts by id
type AccountDirectory struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	setErr   error
}

// NewAccountDirectory creates a directory seeded with accounts
func NewAccountDirectory(accounts ...*domain.Account) *AccountDirectory {
	d := &AccountDirectory{accounts: make(map[string]*domain.Account)}
	for _, a := range accounts {
		cp := *a
		d.accounts[a.ID] = &cp
	}
	return d
}

// UpsertAccount adds or replaces an account
func (d *AccountDirectory) UpsertAccount(_ context.Context, a *domain.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *a
	d.accounts[a.ID] = &cp
	return nil
}

// FailUpdatesWith makes SetHasActiveSubscription fail
func (d *AccountDirectory) FailUpdatesWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setErr = err
}

func (d *AccountDirectory) FindAccount(ctx context.Context, userID string) (*domain.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[userID]
	if !ok {
		return nil, domain.NewAccountNotFound(userID)
	}
	cp := *a
	return &cp, nil
}

func (d *AccountDirectory) SetHasActiveSubscription(ctx context.Context, userID string, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.setErr != nil {
		return d.setErr
	}
	a, ok := d.accounts[userID]
	if !ok {
		return domain.NewAccountNotFound(userID)
	}
	a.HasActiveSubscription = active
	return nil
}

// InvoiceRecorder keeps invoice projections keyed by provider invoice id
type InvoiceRecorder struct {
	mu       sync.RWMutex
	invoices map[string]*domain.Invoice
	writes   int
}

// NewInvoiceRecorder creates an empty recorder
func NewInvoiceRecorder() *InvoiceRecorder {
	return &InvoiceRecorder{invoices: make(map[string]*domain.Invoice)}
}

func (r *InvoiceRecorder) RecordInvoice(ctx context.Context, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes++
	cp := *inv
	if existing, ok := r.invoices[inv.ProviderInvoiceID]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	r.invoices[inv.ProviderInvoiceID] = &cp
	return nil
}

// Invoice returns the projection for a provider invoice id
func (r *InvoiceRecorder) Invoice(providerID string) (*domain.Invoice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[providerID]
	if !ok {
		return nil, false
	}
	cp := *inv
	return &cp, true
}

// Count returns the number of distinct invoices
func (r *InvoiceRecorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.invoices)
}

var (
	_ ports.PlanCatalog      = (*PlanCatalog)(nil)
	_ ports.AccountDirectory = (*AccountDirectory)(nil)
	_ ports.InvoiceRecorder  = (*InvoiceRecorder)(nil)
)
