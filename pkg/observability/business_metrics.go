package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscriptionCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_subscription_commands_total",
		Help: "Subscription commands by outcome",
	}, []string{
		"command", // create, cancel, change_plan
		"outcome", // ok, conflict, not_found, invalid_state, provider_error, provider_unavailable, persistence_error
	})

	subscriptionCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_subscription_command_duration_seconds",
		Help:    "End-to-end duration of subscription commands",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"command"})

	reconciliationEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_reconciliation_events_total",
		Help: "Provider events processed by outcome",
	}, []string{
		"event_type",
		"outcome", // applied, noop, unmatched, ignored, failed
	})

	providerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_provider_calls_total",
		Help: "Billing provider API calls",
	}, []string{"operation", "outcome"})

	providerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_provider_call_duration_seconds",
		Help:    "Billing provider API latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	providerCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billing_provider_circuit_state",
		Help: "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	orphanedProviderSubscriptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_orphaned_provider_subscriptions_total",
		Help: "Provider subscriptions found with no local record",
	})

	persistenceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_persistence_failures_total",
		Help: "Storage failures after a provider side effect",
	}, []string{"operation"})

	optimisticRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_optimistic_retries_total",
		Help: "Subscription writes retried after a version conflict",
	}, []string{"operation"})

	notifierDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_event_deliveries_total",
		Help: "Domain event deliveries by sink and outcome",
	}, []string{"sink", "event", "outcome"})
)

// RecordSubscriptionCommand records a lifecycle command outcome
func RecordSubscriptionCommand(command, outcome string, duration time.Duration) {
	subscriptionCommandsTotal.WithLabelValues(command, outcome).Inc()
	subscriptionCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordReconciliationEvent records how a provider event was handled
func RecordReconciliationEvent(eventType, outcome string) {
	reconciliationEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordProviderCall records a provider API call
func RecordProviderCall(operation, outcome string, duration time.Duration) {
	providerCallsTotal.WithLabelValues(operation, outcome).Inc()
	providerCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetProviderCircuitState publishes the breaker state
func SetProviderCircuitState(state int) {
	providerCircuitState.Set(float64(state))
}

// RecordOrphanedProviderSubscriptions adds to the orphan counter
func RecordOrphanedProviderSubscriptions(n int) {
	orphanedProviderSubscriptions.Add(float64(n))
}

// RecordPersistenceFailure records a storage failure that implies drift
func RecordPersistenceFailure(operation string) {
	persistenceFailuresTotal.WithLabelValues(operation).Inc()
}

// RecordOptimisticRetry records a retried write
func RecordOptimisticRetry(operation string) {
	optimisticRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordEventDelivery records a notifier delivery
func RecordEventDelivery(sink, event, outcome string) {
	notifierDeliveriesTotal.WithLabelValues(sink, event, outcome).Inc()
}
