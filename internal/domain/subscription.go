package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the subscription state
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Valid reports whether s is one of the four known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing,
		SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// IsLive is true for statuses that grant access (active or trialing).
func (s SubscriptionStatus) IsLive() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// ParseSubscriptionStatus parses a stored status value.
func ParseSubscriptionStatus(v string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown subscription status %q", v)
	}
	return s, nil
}

// Allowed status moves. Trialing is only ever an initial state and
// canceled is terminal.
var transitions = map[SubscriptionStatus]map[SubscriptionStatus]bool{
	SubscriptionStatusTrialing: {
		SubscriptionStatusTrialing: true,
		SubscriptionStatusActive:   true,
		SubscriptionStatusPastDue:  true,
		SubscriptionStatusCanceled: true,
	},
	SubscriptionStatusActive: {
		SubscriptionStatusActive:   true,
		SubscriptionStatusPastDue:  true,
		SubscriptionStatusCanceled: true,
	},
	SubscriptionStatusPastDue: {
		SubscriptionStatusPastDue:  true,
		SubscriptionStatusActive:   true,
		SubscriptionStatusCanceled: true,
	},
	SubscriptionStatusCanceled: {
		SubscriptionStatusCanceled: true,
	},
}

// CanTransition reports whether a subscription in status from may move to to.
func CanTransition(from, to SubscriptionStatus) bool {
	return transitions[from][to]
}

// Subscription is the locally owned record of a provider-side subscription.
type Subscription struct {
	ID                  uuid.UUID          `json:"id"`
	UserID              string             `json:"user_id"`
	PlanID              string             `json:"plan_id"`
	ExternalReferenceID *string            `json:"external_reference_id,omitempty"`
	Status              SubscriptionStatus `json:"status"`
	CurrentPeriodStart  time.Time          `json:"current_period_start"`
	CurrentPeriodEnd    time.Time          `json:"current_period_end"`
	IsTrial             bool               `json:"is_trial"`
	TrialEndsAt         *time.Time         `json:"trial_ends_at,omitempty"`
	CanceledAt          *time.Time         `json:"canceled_at,omitempty"`
	EndedAt             *time.Time         `json:"ended_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`

	// Version is the optimistic concurrency token. Zero means not yet stored.
	Version int64 `json:"-"`
}

// NewSubscriptionFromProvider builds the first local record for a
// subscription the provider has just confirmed.
func NewSubscriptionFromProvider(userID, planID string, ps *ProviderSubscription, now time.Time) *Subscription {
	ref := ps.ID
	sub := &Subscription{
		ID:                  uuid.New(),
		UserID:              userID,
		PlanID:              planID,
		ExternalReferenceID: &ref,
		Status:              ps.Status,
		CurrentPeriodStart:  ps.CurrentPeriodStart,
		CurrentPeriodEnd:    ps.CurrentPeriodEnd,
		IsTrial:             ps.Status == SubscriptionStatusTrialing,
		TrialEndsAt:         copyTime(ps.TrialEnd),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if ps.Status == SubscriptionStatusCanceled {
		sub.CanceledAt = &now
	}
	return sub
}

// IsLive returns true if the subscription currently grants access
func (s *Subscription) IsLive() bool {
	return s.Status.IsLive()
}

// IsCanceled returns true once the subscription reached the terminal status
func (s *Subscription) IsCanceled() bool {
	return s.Status == SubscriptionStatusCanceled
}

// ExternalRef returns the provider reference or an empty string.
func (s *Subscription) ExternalRef() string {
	if s.ExternalReferenceID == nil {
		return ""
	}
	return *s.ExternalReferenceID
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.ExternalReferenceID != nil {
		ref := *s.ExternalReferenceID
		c.ExternalReferenceID = &ref
	}
	c.TrialEndsAt = copyTime(s.TrialEndsAt)
	c.CanceledAt = copyTime(s.CanceledAt)
	c.EndedAt = copyTime(s.EndedAt)
	return &c
}

// TransitionTo moves the subscription to status to when the state machine
// allows it. It returns false when nothing changed.
func (s *Subscription) TransitionTo(to SubscriptionStatus) bool {
	if s.Status == to || !CanTransition(s.Status, to) {
		return false
	}
	s.Status = to
	return true
}

// AdvancePeriod replaces the billing period unless the new end would move
// the current end backward.
func (s *Subscription) AdvancePeriod(start, end time.Time) bool {
	if start.IsZero() || end.IsZero() || end.Before(s.CurrentPeriodEnd) {
		return false
	}
	if start.Equal(s.CurrentPeriodStart) && end.Equal(s.CurrentPeriodEnd) {
		return false
	}
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = end
	return true
}

// RequestCancellation records the intent to cancel. It is a no-op once
// cancellation was already recorded or the subscription is canceled.
func (s *Subscription) RequestCancellation(at time.Time) bool {
	if s.CanceledAt != nil || s.IsCanceled() {
		return false
	}
	s.CanceledAt = &at
	return true
}

// MarkEnded applies a provider-confirmed termination.
func (s *Subscription) MarkEnded(at time.Time) bool {
	changed := false
	if s.Status != SubscriptionStatusCanceled {
		s.Status = SubscriptionStatusCanceled
		changed = true
	}
	if s.CanceledAt == nil {
		s.CanceledAt = &at
		changed = true
	}
	if s.EndedAt == nil {
		s.EndedAt = &at
		changed = true
	}
	if s.IsTrial || s.TrialEndsAt != nil {
		s.IsTrial = false
		s.TrialEndsAt = nil
		changed = true
	}
	return changed
}

// MergeResult describes what MergeProviderState did.
type MergeResult struct {
	Changed bool
	// StatusIgnored is set when the provider reported a status the state
	// machine does not allow from the current one.
	StatusIgnored bool
}

// MergeProviderState folds a provider snapshot into the record. Status
// follows the transition table, the period never moves backward, and the
// trial fields are derived from the resulting status: the provider's trial
// end while trialing, nothing otherwise.
func (s *Subscription) MergeProviderState(ps *ProviderSubscription, now time.Time) MergeResult {
	var res MergeResult

	if ps.Status != s.Status {
		if s.TransitionTo(ps.Status) {
			res.Changed = true
		} else {
			res.StatusIgnored = true
		}
	}

	if s.AdvancePeriod(ps.CurrentPeriodStart, ps.CurrentPeriodEnd) {
		res.Changed = true
	}

	isTrial := s.Status == SubscriptionStatusTrialing
	if s.IsTrial != isTrial {
		s.IsTrial = isTrial
		res.Changed = true
	}
	var trialEnd *time.Time
	if isTrial {
		trialEnd = ps.TrialEnd
	}
	if !timeEqual(s.TrialEndsAt, trialEnd) {
		s.TrialEndsAt = copyTime(trialEnd)
		res.Changed = true
	}

	if s.Status == SubscriptionStatusCanceled && s.CanceledAt == nil {
		s.CanceledAt = &now
		res.Changed = true
	}

	return res
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
