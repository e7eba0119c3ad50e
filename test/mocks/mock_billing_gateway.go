package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// MockBillingGateway is an in-memory provider. It keeps provider-side state
// so tests can assert what the provider saw.
type MockBillingGateway struct {
	mu sync.Mutex

	createError error
	cancelError error
	changeError error
	listError   error
	createDelay time.Duration
	createHook  func(req ports.CreateSubscriptionRequest)
	cancelHook  func(providerRef string)

	nextID        int
	subscriptions map[string]*domain.ProviderSubscription
	now           func() time.Time

	// Call tracking
	CreateCalls     int
	CancelCalls     int
	ChangePlanCalls int
	ListCalls       int

	CreateRequests []ports.CreateSubscriptionRequest
	LastChangeReq  *ports.ChangePlanRequest
	LastCancelRef  string
	LastCancelKey  string
}

// NewMockBillingGateway creates a new mock billing gateway
func NewMockBillingGateway(now func() time.Time) *MockBillingGateway {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MockBillingGateway{
		subscriptions: make(map[string]*domain.ProviderSubscription),
		now:           now,
	}
}

// SetCreateError makes CreateSubscription fail
func (m *MockBillingGateway) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createError = err
}

// SetCancelError makes CancelSubscription fail
func (m *MockBillingGateway) SetCancelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelError = err
}

// SetChangePlanError makes ChangePlan fail
func (m *MockBillingGateway) SetChangePlanError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeError = err
}

// SetListError makes ListSubscriptions fail
func (m *MockBillingGateway) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listError = err
}

// SetCreateDelay simulates provider latency on create
func (m *MockBillingGateway) SetCreateDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createDelay = d
}

// OnCreate registers a hook run before each create returns
func (m *MockBillingGateway) OnCreate(fn func(req ports.CreateSubscriptionRequest)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createHook = fn
}

// Seed places a provider-side subscription the local system never created
func (m *MockBillingGateway) Seed(ps *domain.ProviderSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ps
	m.subscriptions[ps.ID] = &c
}

// Provider returns a copy of the provider-side record
func (m *MockBillingGateway) Provider(ref string) (*domain.ProviderSubscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.subscriptions[ref]
	if !ok {
		return nil, false
	}
	c := *ps
	return &c, true
}

// Calls returns create, cancel, and change-plan call counts
func (m *MockBillingGateway) Calls() (create, cancel, change int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls, m.CancelCalls, m.ChangePlanCalls
}

// CreateSubscription opens a provider subscription, trialing when the
// request carries trial days
func (m *MockBillingGateway) CreateSubscription(ctx context.Context, req ports.CreateSubscriptionRequest) (*domain.ProviderSubscription, error) {
	m.mu.Lock()
	m.CreateCalls++
	m.CreateRequests = append(m.CreateRequests, req)
	delay, hook, createErr := m.createDelay, m.createHook, m.createError
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, domain.NewProviderUnavailable(ctx.Err())
		}
	}
	if hook != nil {
		hook(req)
	}
	if createErr != nil {
		return nil, createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := m.now()
	ps := &domain.ProviderSubscription{
		ID:                 fmt.Sprintf("sub_mock_%d", m.nextID),
		CustomerRef:        req.CustomerRef,
		Status:             domain.SubscriptionStatusActive,
		RawStatus:          "active",
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, 30),
		CreatedAt:          now,
	}
	if req.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, req.TrialDays)
		ps.Status = domain.SubscriptionStatusTrialing
		ps.RawStatus = "trialing"
		ps.CurrentPeriodEnd = trialEnd
		ps.TrialEnd = &trialEnd
	}
	m.subscriptions[ps.ID] = ps

	c := *ps
	return &c, nil
}

// SetCancelHook runs fn inside every CancelSubscription call before it
// returns, outside the mock's lock so fn may call back into the gateway.
func (m *MockBillingGateway) SetCancelHook(fn func(providerRef string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelHook = fn
}

// CancelSubscription cancels the provider-side subscription immediately
func (m *MockBillingGateway) CancelSubscription(ctx context.Context, providerRef, idempotencyKey string) error {
	m.mu.Lock()
	m.CancelCalls++
	m.LastCancelRef = providerRef
	m.LastCancelKey = idempotencyKey
	if m.cancelError != nil {
		err := m.cancelError
		m.mu.Unlock()
		return err
	}
	if ps, ok := m.subscriptions[providerRef]; ok {
		ps.Status = domain.SubscriptionStatusCanceled
		ps.RawStatus = "canceled"
	}
	hook := m.cancelHook
	m.mu.Unlock()

	if hook != nil {
		hook(providerRef)
	}
	return nil
}

// ChangePlan swaps the price and starts a fresh period when not prorating
func (m *MockBillingGateway) ChangePlan(ctx context.Context, req ports.ChangePlanRequest) (*domain.ProviderSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ChangePlanCalls++
	r := req
	m.LastChangeReq = &r
	if m.changeError != nil {
		return nil, m.changeError
	}

	ps, ok := m.subscriptions[req.ProviderRef]
	if !ok {
		return nil, domain.NewProviderError("resource_missing", "No such subscription", 404)
	}
	if !req.Prorate {
		now := m.now()
		ps.CurrentPeriodStart = now
		ps.CurrentPeriodEnd = now.AddDate(0, 0, 30)
	}
	c := *ps
	return &c, nil
}

// ListSubscriptions returns provider subscriptions created after the bound
func (m *MockBillingGateway) ListSubscriptions(ctx context.Context, req ports.ListSubscriptionsRequest) ([]*domain.ProviderSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.listError != nil {
		return nil, m.listError
	}

	out := make([]*domain.ProviderSubscription, 0, len(m.subscriptions))
	for _, ps := range m.subscriptions {
		if ps.CreatedAt.Before(req.CreatedAfter) {
			continue
		}
		c := *ps
		out = append(out, &c)
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

var _ ports.BillingGateway = (*MockBillingGateway)(nil)
