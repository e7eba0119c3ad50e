package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventName identifies a domain event for downstream consumers.
type EventName string

const (
	EventNameSubscriptionCreated     EventName = "subscription.created"
	EventNameSubscriptionCancelled   EventName = "subscription.cancelled"
	EventNameSubscriptionPlanChanged EventName = "subscription.plan_changed"
)

// SubscriptionEvent is the payload of every subscription domain event.
type SubscriptionEvent struct {
	Name              EventName          `json:"name"`
	SubscriptionID    uuid.UUID          `json:"subscription_id"`
	UserID            string             `json:"user_id"`
	PlanID            string             `json:"plan_id"`
	PreviousPlanID    string             `json:"previous_plan_id,omitempty"`
	Status            SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd *bool              `json:"cancel_at_period_end,omitempty"`
	OccurredAt        time.Time          `json:"occurred_at"`
}

// NewSubscriptionEvent snapshots sub into an event.
func NewSubscriptionEvent(name EventName, sub *Subscription, at time.Time) SubscriptionEvent {
	return SubscriptionEvent{
		Name:           name,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		Status:         sub.Status,
		OccurredAt:     at,
	}
}

// WithCancelAtPeriodEnd sets the cancellation mode on a cancelled event.
func (e SubscriptionEvent) WithCancelAtPeriodEnd(atPeriodEnd bool) SubscriptionEvent {
	e.CancelAtPeriodEnd = &atPeriodEnd
	return e
}
