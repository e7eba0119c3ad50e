package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/VictorLirio/nimbus-api/internal/adapters/memory"
	"github.com/VictorLirio/nimbus-api/internal/domain"
	serviceports "github.com/VictorLirio/nimbus-api/internal/services/ports"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
	"github.com/VictorLirio/nimbus-api/pkg/timeutil"
	"github.com/VictorLirio/nimbus-api/test/mocks"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// MockNotifier mocks the event notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Emit(ctx context.Context, event domain.SubscriptionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// Events returns emitted events with the given name
func (m *MockNotifier) Events(name domain.EventName) []domain.SubscriptionEvent {
	var out []domain.SubscriptionEvent
	for _, c := range m.Calls {
		e := c.Arguments.Get(1).(domain.SubscriptionEvent)
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *memory.SubscriptionStore
	gateway  *mocks.MockBillingGateway
	plans    *memory.PlanCatalog
	accounts *memory.AccountDirectory
	invoices *memory.InvoiceRecorder
	notifier *MockNotifier
	logger   *mocks.MockLogger
	clock    *timeutil.FixedClock
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()

	clock := timeutil.NewFixedClock(testNow)
	f := &fixture{
		store:   memory.NewSubscriptionStore(clock),
		gateway: mocks.NewMockBillingGateway(clock.Now),
		plans: memory.NewPlanCatalog(
			&domain.Plan{ID: "plan-a", Name: "Pro Trial", Price: decimal.RequireFromString("19.99"), Currency: "USD", BillingCycleDays: 30, TrialPeriodDays: 14, ProviderPriceRef: "price_a", Active: true},
			&domain.Plan{ID: "plan-b", Name: "Pro", Price: decimal.RequireFromString("29.99"), Currency: "USD", BillingCycleDays: 30, ProviderPriceRef: "price_b", Active: true},
			&domain.Plan{ID: "plan-old", Name: "Legacy", Price: decimal.RequireFromString("9.99"), Currency: "USD", BillingCycleDays: 30, ProviderPriceRef: "price_old", Active: false},
		),
		accounts: memory.NewAccountDirectory(
			&domain.Account{ID: "u1", Email: "u1@example.com", ProviderCustomerRef: "cus_u1"},
			&domain.Account{ID: "u2", Email: "u2@example.com", ProviderCustomerRef: "cus_u2"},
			&domain.Account{ID: "u-new", Email: "new@example.com"},
		),
		invoices: memory.NewInvoiceRecorder(),
		notifier: &MockNotifier{},
		logger:   mocks.NewMockLogger(),
		clock:    clock,
	}
	f.notifier.On("Emit", mock.Anything, mock.Anything).Return(nil)

	cfg := Config{
		SaveMaxRetries: 3,
		Timeouts:       resilience.TestTimeoutConfig(),
		Backoff:        &resilience.FixedBackoff{Delay: time.Millisecond},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f.svc = NewService(Dependencies{
		Store:    f.store,
		Scope:    f.store,
		Gateway:  f.gateway,
		Plans:    f.plans,
		Accounts: f.accounts,
		Invoices: f.invoices,
		Notifier: f.notifier,
		Clock:    clock,
		Logger:   f.logger,
	}, cfg)
	return f
}

func (f *fixture) create(t *testing.T, userID, planID string) *domain.Subscription {
	t.Helper()
	sub, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: userID, PlanID: planID})
	require.NoError(t, err)
	return sub
}

func TestCreate_TrialPlanStartsTrialing(t *testing.T) {
	f := newFixture(t)

	sub := f.create(t, "u1", "plan-a")

	assert.Equal(t, domain.SubscriptionStatusTrialing, sub.Status)
	assert.True(t, sub.IsTrial)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, testNow.AddDate(0, 0, 14), *sub.TrialEndsAt)
	assert.Equal(t, "sub_mock_1", sub.ExternalRef())

	require.Len(t, f.gateway.CreateRequests, 1)
	req := f.gateway.CreateRequests[0]
	assert.Equal(t, "cus_u1", req.CustomerRef)
	assert.Equal(t, "price_a", req.PriceRef)
	assert.Equal(t, 14, req.TrialDays)
	assert.NotEmpty(t, req.IdempotencyKey)

	stored, err := f.store.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Status, stored.Status)

	created := f.notifier.Events(domain.EventNameSubscriptionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, sub.ID, created[0].SubscriptionID)
}

func TestCreate_ForwardsCallerInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{
		UserID:           "u1",
		PlanID:           "plan-b",
		PaymentMethodRef: "pm_card",
		CouponRef:        "WELCOME10",
		IdempotencyKey:   "client-key-1",
	})
	require.NoError(t, err)

	req := f.gateway.CreateRequests[0]
	assert.Equal(t, "client-key-1", req.IdempotencyKey)
	assert.Equal(t, "pm_card", req.PaymentMethodRef)
	assert.Equal(t, "WELCOME10", req.CouponRef)
	assert.Equal(t, 0, req.TrialDays)
	assert.Equal(t, "u1", req.Metadata["user_id"])
}

func TestCreate_ConcurrentForSameUser(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetCreateDelay(20 * time.Millisecond)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plan := "plan-a"
			if i%2 == 1 {
				plan = "plan-b"
			}
			_, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: plan})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case domain.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	create, _, _ := f.gateway.Calls()
	assert.Equal(t, 1, create, "losers must not reach the provider")

	subs, err := f.svc.FindUserSubscriptions(context.Background(), "u1")
	require.NoError(t, err)
	live := 0
	for _, s := range subs {
		if s.IsLive() {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestCreate_ConcurrentUsersDoNotBlockEachOther(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: user, PlanID: "plan-b"})
		}(i, user)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 2, f.store.Len())
}

func TestCreate_ExistingLiveSubscriptionConflicts(t *testing.T) {
	f := newFixture(t)
	f.create(t, "u1", "plan-a")

	_, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: "plan-b"})

	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.ErrorIs(t, err, domain.ErrActiveSubscription)
	create, _, _ := f.gateway.Calls()
	assert.Equal(t, 1, create)
}

func TestCreate_AllowedAfterCancel(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "u1", "plan-b")
	_, err := f.svc.Cancel(context.Background(), first.ID, "u1")
	require.NoError(t, err)

	second := f.create(t, "u1", "plan-a")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreate_Preconditions(t *testing.T) {
	tests := []struct {
		name  string
		req   serviceports.CreateSubscriptionRequest
		check func(error) bool
	}{
		{"unknown plan", serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: "plan-x"}, domain.IsNotFound},
		{"inactive plan", serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: "plan-old"}, domain.IsNotFound},
		{"unknown account", serviceports.CreateSubscriptionRequest{UserID: "ghost", PlanID: "plan-a"}, domain.IsNotFound},
		{"account without customer", serviceports.CreateSubscriptionRequest{UserID: "u-new", PlanID: "plan-a"}, domain.IsValidation},
		{"missing plan id", serviceports.CreateSubscriptionRequest{UserID: "u1"}, domain.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Create(context.Background(), tt.req)

			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			create, _, _ := f.gateway.Calls()
			assert.Equal(t, 0, create)
			assert.Equal(t, 0, f.store.Len())
		})
	}
}

func TestCreate_ProviderRejectionLeavesNoRow(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetCreateError(domain.NewProviderError("card_declined", "Your card was declined.", 402))

	_, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: "plan-b"})

	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "card_declined", perr.Code)
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.notifier.Events(domain.EventNameSubscriptionCreated))
}

func TestCreate_ProviderTimeoutIsUnavailable(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Timeouts = &resilience.TimeoutConfig{ProviderCall: 30 * time.Millisecond}
	})
	f.gateway.SetCreateDelay(time.Second)

	_, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: "plan-b"})

	require.Error(t, err)
	assert.True(t, domain.IsProviderUnavailable(err))
	assert.Equal(t, 0, f.store.Len())
}

func TestCreate_TransportErrorIsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetCreateError(errors.New("connection reset by peer"))

	_, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: "plan-b"})

	assert.True(t, domain.IsProviderUnavailable(err))
}

func TestCreate_PersistenceFailureAfterProviderCall(t *testing.T) {
	f := newFixture(t)
	f.store.FailSavesWith(func(*domain.Subscription) error { return errors.New("disk full") })

	_, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: "plan-b"})

	require.Error(t, err)
	assert.True(t, domain.IsPersistenceError(err))
	assert.Equal(t, 0, f.store.Len())

	_, ok := f.gateway.Provider("sub_mock_1")
	assert.True(t, ok, "provider side was created")
	require.True(t, f.logger.HasError("local subscription state diverged from provider"))
	for _, c := range f.logger.Errors() {
		if c.Message == "local subscription state diverged from provider" {
			assert.Equal(t, "sub_mock_1", c.Field("external_reference_id"))
		}
	}
	assert.Empty(t, f.notifier.Events(domain.EventNameSubscriptionCreated))
}

func TestCreate_NotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier = &MockNotifier{}
	f.notifier.On("Emit", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.svc.notifier = f.notifier

	sub, err := f.svc.Create(context.Background(), serviceports.CreateSubscriptionRequest{UserID: "u1", PlanID: "plan-b"})

	require.NoError(t, err)
	assert.NotNil(t, sub)
	assert.True(t, f.logger.HasWarning("event notification failed"))
}

func TestCancel_LiveSubscription(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-a")
	f.clock.Advance(time.Hour)

	canceled, err := f.svc.Cancel(context.Background(), sub.ID, "u1")

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, canceled.Status)
	assert.False(t, canceled.IsTrial)
	assert.Nil(t, canceled.TrialEndsAt)
	require.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, testNow.Add(time.Hour), *canceled.CanceledAt)
	assert.Nil(t, canceled.EndedAt, "ended is only set on provider confirmation")

	assert.Equal(t, "sub_mock_1", f.gateway.LastCancelRef)
	assert.Equal(t, "cancel:"+sub.ID.String(), f.gateway.LastCancelKey)

	events := f.notifier.Events(domain.EventNameSubscriptionCancelled)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].CancelAtPeriodEnd)
	assert.False(t, *events[0].CancelAtPeriodEnd)
}

func TestCancel_AlreadyCanceledSkipsProvider(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")
	_, err := f.svc.Cancel(context.Background(), sub.ID, "u1")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), sub.ID, "u1")

	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))
	_, cancel, _ := f.gateway.Calls()
	assert.Equal(t, 1, cancel)
}

func TestCancel_LosingConcurrentCancelDoesNotAnnounceTwice(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")

	// The first provider call lets a second cancel run to completion before
	// the first one writes locally.
	var raced bool
	var winnerErr error
	f.gateway.SetCancelHook(func(string) {
		if raced {
			return
		}
		raced = true
		_, winnerErr = f.svc.Cancel(context.Background(), sub.ID, "u1")
	})

	_, err := f.svc.Cancel(context.Background(), sub.ID, "u1")

	require.NoError(t, winnerErr)
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))
	assert.Len(t, f.notifier.Events(domain.EventNameSubscriptionCancelled), 1)

	stored, err := f.store.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, stored.Status)
}

func TestCancel_RacingProviderDeletionWins(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")
	f.gateway.SetCancelHook(func(ref string) {
		require.NoError(t, f.svc.Reconcile(context.Background(), subscriptionDeleted("evt_del", ref)))
	})

	_, err := f.svc.Cancel(context.Background(), sub.ID, "u1")

	assert.True(t, domain.IsInvalidState(err))
	assert.Empty(t, f.notifier.Events(domain.EventNameSubscriptionCancelled))

	stored, err := f.store.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.EndedAt)
	assert.NotNil(t, stored.CanceledAt)
}

func TestCancel_PastDueIsInvalidState(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")
	require.NoError(t, f.svc.Reconcile(context.Background(), paymentFailed("evt_1", sub.ExternalRef())))

	_, err := f.svc.Cancel(context.Background(), sub.ID, "u1")

	assert.True(t, domain.IsInvalidState(err))
}

func TestCancel_OtherUsersSubscriptionIsNotFound(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")

	_, err := f.svc.Cancel(context.Background(), sub.ID, "u2")

	assert.True(t, domain.IsNotFound(err))
	_, cancel, _ := f.gateway.Calls()
	assert.Equal(t, 0, cancel)
}

func TestCancel_ProviderFailureKeepsLocalState(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")
	f.gateway.SetCancelError(domain.NewProviderError("resource_missing", "No such subscription", 404))

	_, err := f.svc.Cancel(context.Background(), sub.ID, "u1")

	assert.True(t, domain.IsProviderError(err))
	stored, err := f.store.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
	assert.Nil(t, stored.CanceledAt)
}

func TestChangePlan_SamePlanIsNoop(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")
	lookups := f.plans.Lookups()

	got, err := f.svc.ChangePlan(context.Background(), serviceports.ChangePlanRequest{
		SubscriptionID: sub.ID, UserID: "u1", NewPlanID: "plan-b", Prorate: true,
	})

	require.NoError(t, err)
	assert.Equal(t, sub, got)
	_, _, change := f.gateway.Calls()
	assert.Equal(t, 0, change)
	assert.Equal(t, lookups, f.plans.Lookups())
	assert.Empty(t, f.notifier.Events(domain.EventNameSubscriptionPlanChanged))
}

func TestChangePlan_SwitchesPlan(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")
	f.clock.Advance(48 * time.Hour)

	got, err := f.svc.ChangePlan(context.Background(), serviceports.ChangePlanRequest{
		SubscriptionID: sub.ID, UserID: "u1", NewPlanID: "plan-a", Prorate: false,
	})

	require.NoError(t, err)
	assert.Equal(t, "plan-a", got.PlanID)
	assert.Equal(t, f.clock.Now(), got.CurrentPeriodStart, "period restarts without proration")
	assert.Equal(t, domain.SubscriptionStatusActive, got.Status)

	require.NotNil(t, f.gateway.LastChangeReq)
	assert.Equal(t, "price_a", f.gateway.LastChangeReq.NewPriceRef)
	assert.False(t, f.gateway.LastChangeReq.Prorate)
	assert.NotEmpty(t, f.gateway.LastChangeReq.IdempotencyKey)

	events := f.notifier.Events(domain.EventNameSubscriptionPlanChanged)
	require.Len(t, events, 1)
	assert.Equal(t, "plan-b", events[0].PreviousPlanID)
	assert.Equal(t, "plan-a", events[0].PlanID)
}

func TestChangePlan_Rejections(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, "u1", "plan-b")

	_, err := f.svc.ChangePlan(context.Background(), serviceports.ChangePlanRequest{SubscriptionID: sub.ID, UserID: "u1", NewPlanID: "plan-old"})
	assert.True(t, domain.IsNotFound(err), "inactive plan")

	_, err = f.svc.ChangePlan(context.Background(), serviceports.ChangePlanRequest{SubscriptionID: sub.ID, UserID: "u2", NewPlanID: "plan-a"})
	assert.True(t, domain.IsNotFound(err), "foreign subscription")

	_, err = f.svc.Cancel(context.Background(), sub.ID, "u1")
	require.NoError(t, err)
	_, err = f.svc.ChangePlan(context.Background(), serviceports.ChangePlanRequest{SubscriptionID: sub.ID, UserID: "u1", NewPlanID: "plan-a"})
	assert.True(t, domain.IsInvalidState(err), "canceled subscription")

	_, _, change := f.gateway.Calls()
	assert.Equal(t, 0, change)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active, err := f.svc.IsSubscriptionActive(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = f.svc.CurrentSubscription(ctx, "u1")
	assert.True(t, domain.IsNotFound(err))
	_, err = f.svc.CurrentPlan(ctx, "u1")
	assert.True(t, domain.IsNotFound(err))

	first := f.create(t, "u1", "plan-b")
	_, err = f.svc.Cancel(ctx, first.ID, "u1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second := f.create(t, "u1", "plan-a")

	current, err := f.svc.CurrentSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	plan, err := f.svc.CurrentPlan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "plan-a", plan.ID)

	all, err := f.svc.FindUserSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	_, err = f.svc.FindOne(ctx, uuid.New(), "u1")
	assert.True(t, domain.IsNotFound(err))
}

func TestExpiringSoon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.create(t, "u1", "plan-b")

	subs, err := f.svc.ExpiringSoon(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, subs)

	f.clock.Advance(25 * 24 * time.Hour)

	subs, err = f.svc.ExpiringSoon(ctx, 0)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)

	subs, err = f.svc.ExpiringSoon(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSweepOrphans(t *testing.T) {
	f := newFixture(t)
	tracked := f.create(t, "u1", "plan-b")

	f.gateway.Seed(&domain.ProviderSubscription{
		ID: "sub_orphan", CustomerRef: "cus_u2", Status: domain.SubscriptionStatusActive,
		RawStatus: "active", CreatedAt: testNow.Add(-time.Hour),
	})
	f.gateway.Seed(&domain.ProviderSubscription{
		ID: "sub_gone", CustomerRef: "cus_u2", Status: domain.SubscriptionStatusCanceled,
		RawStatus: "canceled", CreatedAt: testNow.Add(-2 * time.Hour),
	})
	f.gateway.Seed(&domain.ProviderSubscription{
		ID: "sub_ancient", CustomerRef: "cus_u2", Status: domain.SubscriptionStatusActive,
		RawStatus: "active", CreatedAt: testNow.Add(-72 * time.Hour),
	})

	report, err := f.svc.SweepOrphans(context.Background(), 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	require.Len(t, report.Orphaned, 1)
	assert.Equal(t, "sub_orphan", report.Orphaned[0].ProviderRef)
	assert.NotEqual(t, tracked.ExternalRef(), report.Orphaned[0].ProviderRef)

	require.True(t, f.logger.HasError("provider subscription has no local record"))
	for _, c := range f.logger.Errors() {
		if c.Message == "provider subscription has no local record" {
			assert.Equal(t, true, c.Field("alert"))
		}
	}
	assert.Equal(t, 1, f.store.Len(), "sweep never creates local rows")
}

func TestSweepOrphans_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetListError(errors.New("network unreachable"))

	_, err := f.svc.SweepOrphans(context.Background(), time.Hour)

	assert.True(t, domain.IsProviderUnavailable(err))
}
