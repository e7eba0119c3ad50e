package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
	"github.com/VictorLirio/nimbus-api/test/mocks"
)

const subscriptionJSON = `{
	"id": "sub_123",
	"object": "subscription",
	"customer": "cus_1",
	"status": "%s",
	"cancel_at_period_end": false,
	"created": 1772323200,
	"trial_end": %s,
	"items": {"object": "list", "data": [
		{"id": "si_1", "object": "subscription_item", "current_period_start": 1772323200, "current_period_end": 1775001600}
	]}
}`

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGateway(Config{
		SecretKey:         "sk_test_123",
		BaseURL:           srv.URL,
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: 0,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	}, mocks.NewMockLogger())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestGateway_CreateSubscription(t *testing.T) {
	var method, path, key string
	var form map[string]string

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		method, path, key = r.Method, r.URL.Path, r.Header.Get("Idempotency-Key")
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf(subscriptionJSON, "trialing", "1773532800"))
	})

	ps, err := gw.CreateSubscription(context.Background(), ports.CreateSubscriptionRequest{
		CustomerRef:      "cus_1",
		PriceRef:         "price_a",
		PaymentMethodRef: "pm_1",
		CouponRef:        "SPRING",
		TrialDays:        14,
		IdempotencyKey:   "idem-1",
		Metadata:         map[string]string{"user_id": "u1"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/v1/subscriptions", path)
	assert.Equal(t, "idem-1", key)
	assert.Equal(t, "cus_1", form["customer"])
	assert.Equal(t, "price_a", form["items[0][price]"])
	assert.Equal(t, "pm_1", form["default_payment_method"])
	assert.Equal(t, "SPRING", form["discounts[0][coupon]"])
	assert.Equal(t, "14", form["trial_period_days"])
	assert.Equal(t, "error_if_incomplete", form["payment_behavior"])
	assert.Equal(t, "u1", form["metadata[user_id]"])

	assert.Equal(t, "sub_123", ps.ID)
	assert.Equal(t, domain.SubscriptionStatusTrialing, ps.Status)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), ps.CurrentPeriodEnd)
	require.NotNil(t, ps.TrialEnd)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *ps.TrialEnd)
}

func TestGateway_UnmappedStatusKeepsRaw(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fmt.Sprintf(subscriptionJSON, "incomplete", "null"))
	})

	ps, err := gw.CreateSubscription(context.Background(), ports.CreateSubscriptionRequest{CustomerRef: "cus_1", PriceRef: "price_a"})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatus(""), ps.Status)
	assert.Equal(t, "incomplete", ps.RawStatus)
	assert.Nil(t, ps.TrialEnd)
}

func TestGateway_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rejected    bool
		wantCode    string
		unavailable bool
	}{
		{
			name:     "card declined",
			status:   http.StatusPaymentRequired,
			body:     `{"error": {"type": "card_error", "code": "card_declined", "message": "Your card was declined."}}`,
			rejected: true,
			wantCode: "card_declined",
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"error": {"type": "invalid_request_error", "code": "resource_missing", "message": "No such price"}}`,
			rejected: true,
			wantCode: "resource_missing",
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			body:        `{"error": {"type": "api_error", "message": "internal"}}`,
			unavailable: true,
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"error": {"type": "invalid_request_error", "code": "rate_limit", "message": "slow down"}}`,
			unavailable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := gw.CreateSubscription(context.Background(), ports.CreateSubscriptionRequest{CustomerRef: "cus_1", PriceRef: "price_a"})
			require.Error(t, err)
			assert.Equal(t, tt.rejected, domain.IsProviderError(err))
			assert.Equal(t, tt.unavailable, domain.IsProviderUnavailable(err))

			if tt.rejected {
				var pe *domain.ProviderError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, tt.wantCode, pe.Code)
				assert.Equal(t, tt.status, pe.StatusCode)
			}
		})
	}
}

func TestGateway_CircuitOpensOnOutages(t *testing.T) {
	var hits atomic.Int32
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{"error": {"type": "api_error", "message": "down"}}`)
	})

	for i := 0; i < 2; i++ {
		err := gw.CancelSubscription(context.Background(), "sub_123", "cancel:1")
		require.True(t, domain.IsProviderUnavailable(err))
	}
	assert.Equal(t, resilience.StateOpen, gw.breaker.State())

	err := gw.CancelSubscription(context.Background(), "sub_123", "cancel:1")
	assert.True(t, domain.IsProviderUnavailable(err))
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(2), hits.Load(), "open circuit must not reach the provider")
}

func TestGateway_RejectionsDoNotTripCircuit(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, `{"error": {"type": "card_error", "code": "card_declined", "message": "declined"}}`)
	})

	for i := 0; i < 5; i++ {
		_, err := gw.CreateSubscription(context.Background(), ports.CreateSubscriptionRequest{CustomerRef: "cus_1", PriceRef: "price_a"})
		require.True(t, domain.IsProviderError(err))
	}
	assert.Equal(t, resilience.StateClosed, gw.breaker.State())
}

func TestGateway_CancelSubscription(t *testing.T) {
	var method, path, key string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		method, path, key = r.Method, r.URL.Path, r.Header.Get("Idempotency-Key")
		writeJSON(w, http.StatusOK, fmt.Sprintf(subscriptionJSON, "canceled", "null"))
	})

	require.NoError(t, gw.CancelSubscription(context.Background(), "sub_123", "cancel:abc"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/v1/subscriptions/sub_123", path)
	assert.Equal(t, "cancel:abc", key)
}

func TestGateway_ChangePlan(t *testing.T) {
	var updateForm map[string]string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, fmt.Sprintf(subscriptionJSON, "active", "null"))
			return
		}
		require.NoError(t, r.ParseForm())
		updateForm = map[string]string{}
		for k := range r.PostForm {
			updateForm[k] = r.PostForm.Get(k)
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf(subscriptionJSON, "active", "null"))
	})

	ps, err := gw.ChangePlan(context.Background(), ports.ChangePlanRequest{
		ProviderRef:    "sub_123",
		NewPriceRef:    "price_b",
		Prorate:        false,
		IdempotencyKey: "chg-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, ps.Status)
	assert.Equal(t, "si_1", updateForm["items[0][id]"])
	assert.Equal(t, "price_b", updateForm["items[0][price]"])
	assert.Equal(t, "none", updateForm["proration_behavior"])
}

func TestGateway_ListSubscriptions(t *testing.T) {
	var query string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		writeJSON(w, http.StatusOK, `{"object": "list", "url": "/v1/subscriptions", "has_more": false, "data": [`+
			fmt.Sprintf(subscriptionJSON, "active", "null")+`,`+
			fmt.Sprintf(subscriptionJSON, "canceled", "null")+`]}`)
	})

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	subs, err := gw.ListSubscriptions(context.Background(), ports.ListSubscriptionsRequest{CreatedAfter: since})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, domain.SubscriptionStatusCanceled, subs[1].Status)
	assert.Contains(t, query, "status=all")
	assert.Contains(t, query, "1772323200")
}

func TestGateway_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gw := NewGateway(Config{SecretKey: "sk_test_123", BaseURL: url}, mocks.NewMockLogger())
	_, err := gw.CreateSubscription(context.Background(), ports.CreateSubscriptionRequest{CustomerRef: "cus_1", PriceRef: "price_a"})
	assert.True(t, domain.IsProviderUnavailable(err))
}
