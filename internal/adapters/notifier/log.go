package notifier

import (
	"context"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

// LogNotifier writes events to the log. It is the sink used when no
// external consumer is configured.
type LogNotifier struct {
	logger ports.Logger
}

func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Emit(_ context.Context, event domain.SubscriptionEvent) error {
	fields := []ports.Field{
		ports.String("event", string(event.Name)),
		ports.String("subscription_id", event.SubscriptionID.String()),
		ports.String("user_id", event.UserID),
		ports.String("plan_id", event.PlanID),
		ports.String("status", string(event.Status)),
	}
	if event.PreviousPlanID != "" {
		fields = append(fields, ports.String("previous_plan_id", event.PreviousPlanID))
	}
	if event.CancelAtPeriodEnd != nil {
		fields = append(fields, ports.Bool("cancel_at_period_end", *event.CancelAtPeriodEnd))
	}
	n.logger.Info("subscription event", fields...)
	return nil
}

var _ ports.EventNotifier = (*LogNotifier)(nil)
