package notifier

import (
	"context"
	"errors"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// Multi hands every event to each sink in order. One sink failing does not
// skip the others; the failures are joined.
type Multi struct {
	sinks []ports.EventNotifier
}

// NewMulti drops nil sinks.
func NewMulti(sinks ...ports.EventNotifier) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) Emit(ctx context.Context, event domain.SubscriptionEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len is the number of configured sinks.
func (m *Multi) Len() int { return len(m.sinks) }

var _ ports.EventNotifier = (*Multi)(nil)
