package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/encoding"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
)

// publisher is the part of *nats.Conn the notifier uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes each event as JSON on "<prefix>.<event name>",
// e.g. billing.subscription.created.
type NATSNotifier struct {
	pub    publisher
	prefix string
	logger *zap.Logger
}

// ConnectNATS dials the server with reconnects enabled and connection
// state changes logged.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("nimbus-billing"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// NewNATSNotifier publishes on conn under prefix.
func NewNATSNotifier(conn *nats.Conn, prefix string, logger *zap.Logger) *NATSNotifier {
	return newNATSNotifier(conn, prefix, logger)
}

func newNATSNotifier(pub publisher, prefix string, logger *zap.Logger) *NATSNotifier {
	if prefix == "" {
		prefix = "billing"
	}
	return &NATSNotifier{pub: pub, prefix: prefix, logger: logger}
}

// Subject returns the subject an event name is published on.
func (n *NATSNotifier) Subject(name domain.EventName) string {
	return n.prefix + "." + string(name)
}

// Emit publishes without waiting for a server ack; the client buffers while
// reconnecting.
func (n *NATSNotifier) Emit(_ context.Context, event domain.SubscriptionEvent) error {
	data, err := encoding.EncodeJSON(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := n.Subject(event.Name)
	if err := n.pub.Publish(subject, data); err != nil {
		observability.RecordEventDelivery("nats", string(event.Name), "failed")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	observability.RecordEventDelivery("nats", string(event.Name), "delivered")
	n.logger.Debug("Event published", zap.String("subject", subject))
	return nil
}

var _ ports.EventNotifier = (*NATSNotifier)(nil)
