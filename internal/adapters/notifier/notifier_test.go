package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
	"github.com/VictorLirio/nimbus-api/pkg/shutdown"
	"github.com/VictorLirio/nimbus-api/test/mocks"
)

func sampleEvent() domain.SubscriptionEvent {
	return domain.SubscriptionEvent{
		Name:           domain.EventNameSubscriptionCreated,
		SubscriptionID: uuid.MustParse("7f7b3c1e-0d6a-4c39-9b0f-3f1f1c3f6a10"),
		UserID:         "u1",
		PlanID:         "plan-a",
		Status:         domain.SubscriptionStatusTrialing,
		OccurredAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newWebhook(t *testing.T, endpoints ...string) (*WebhookNotifier, *shutdown.InFlightTracker) {
	t.Helper()
	tracker := shutdown.NewInFlightTracker("notifier", zap.NewNop())
	n := NewWebhookNotifier(WebhookConfig{
		Endpoints:   endpoints,
		Secret:      "hook-secret",
		MaxAttempts: 3,
		Backoff:     &resilience.FixedBackoff{Delay: time.Millisecond},
		Timeouts:    resilience.TestTimeoutConfig(),
	}, tracker, zap.NewNop())
	return n, tracker
}

func TestWebhookNotifier_SignsAndDelivers(t *testing.T) {
	type received struct {
		body                  []byte
		sig, ts, event, ctype string
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			body:  body,
			sig:   r.Header.Get(SignatureHeader),
			ts:    r.Header.Get(TimestampHeader),
			event: r.Header.Get(EventHeader),
			ctype: r.Header.Get("Content-Type"),
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, tracker := newWebhook(t, srv.URL)
	require.NoError(t, n.Emit(context.Background(), sampleEvent()))
	require.NoError(t, tracker.Shutdown(context.Background()))

	r := <-got
	assert.Equal(t, "subscription.created", r.event)
	assert.Equal(t, "application/json", r.ctype)
	assert.Equal(t, Sign("hook-secret", r.ts, r.body), r.sig)

	var decoded domain.SubscriptionEvent
	require.NoError(t, json.Unmarshal(r.body, &decoded))
	assert.Equal(t, "u1", decoded.UserID)
	assert.Equal(t, domain.SubscriptionStatusTrialing, decoded.Status)
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, tracker := newWebhook(t, srv.URL)
	require.NoError(t, n.Emit(context.Background(), sampleEvent()))
	require.NoError(t, tracker.Shutdown(context.Background()))

	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifier_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n, tracker := newWebhook(t, srv.URL)
	require.NoError(t, n.Emit(context.Background(), sampleEvent()))
	require.NoError(t, tracker.Shutdown(context.Background()))

	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifier_FansOutToEveryEndpoint(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	handler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[name]++
			mu.Unlock()
		}
	}
	a := httptest.NewServer(handler("a"))
	defer a.Close()
	b := httptest.NewServer(handler("b"))
	defer b.Close()

	n, tracker := newWebhook(t, a.URL, b.URL)
	require.NoError(t, n.Emit(context.Background(), sampleEvent()))
	require.NoError(t, tracker.Shutdown(context.Background()))

	assert.Equal(t, map[string]int{"a": 1, "b": 1}, hits)
}

func TestWebhookNotifier_RefusesAfterShutdown(t *testing.T) {
	n, tracker := newWebhook(t, "http://127.0.0.1:1")
	require.NoError(t, tracker.Shutdown(context.Background()))

	assert.ErrorIs(t, n.Emit(context.Background(), sampleEvent()), ErrShuttingDown)
}

func TestWebhookNotifier_NoEndpointsIsNoop(t *testing.T) {
	n, _ := newWebhook(t)
	assert.NoError(t, n.Emit(context.Background(), sampleEvent()))
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSNotifier_PublishesOnEventSubject(t *testing.T) {
	pub := &fakePublisher{}
	n := newNATSNotifier(pub, "", zap.NewNop())

	ev := sampleEvent()
	ev.Name = domain.EventNameSubscriptionPlanChanged
	ev.PreviousPlanID = "plan-a"
	require.NoError(t, n.Emit(context.Background(), ev))

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "billing.subscription.plan_changed", pub.subjects[0])
	assert.JSONEq(t, `{
		"name": "subscription.plan_changed",
		"subscription_id": "7f7b3c1e-0d6a-4c39-9b0f-3f1f1c3f6a10",
		"user_id": "u1",
		"plan_id": "plan-a",
		"previous_plan_id": "plan-a",
		"status": "trialing",
		"occurred_at": "2026-03-01T09:00:00Z"
	}`, string(pub.payloads[0]))
}

func TestNATSNotifier_PublishFailure(t *testing.T) {
	n := newNATSNotifier(&fakePublisher{err: errors.New("nats: connection closed")}, "events", zap.NewNop())

	err := n.Emit(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.subscription.created")
}

type failingNotifier struct{ err error }

func (f failingNotifier) Emit(context.Context, domain.SubscriptionEvent) error { return f.err }

func TestMulti_CallsEverySinkAndJoinsErrors(t *testing.T) {
	logger := mocks.NewMockLogger()
	pub := &fakePublisher{}
	boom := errors.New("boom")

	m := NewMulti(failingNotifier{err: boom}, nil, NewLogNotifier(logger), newNATSNotifier(pub, "billing", zap.NewNop()))
	assert.Equal(t, 3, m.Len())

	err := m.Emit(context.Background(), sampleEvent().WithCancelAtPeriodEnd(true))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, pub.subjects, 1, "later sinks still run")
	assert.Len(t, logger.Infos(), 1)
}
