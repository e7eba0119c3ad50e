package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/encoding"
	"github.com/VictorLirio/nimbus-api/pkg/observability"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
	"github.com/VictorLirio/nimbus-api/pkg/shutdown"
)

const (
	SignatureHeader = "X-Billing-Signature"
	EventHeader     = "X-Billing-Event"
	TimestampHeader = "X-Billing-Timestamp"

	defaultMaxAttempts = 4
)

// ErrShuttingDown is returned by Emit once the tracker stopped taking work.
var ErrShuttingDown = errors.New("notifier is shutting down")

// WebhookConfig configures signed HTTP delivery.
type WebhookConfig struct {
	Endpoints   []string
	Secret      string
	MaxAttempts int
	Backoff     resilience.BackoffStrategy
	Timeouts    *resilience.TimeoutConfig
	HTTPClient  *http.Client
}

// WebhookNotifier POSTs each event to every endpoint, signed with
// HMAC-SHA256 over "<timestamp>.<body>". Delivery runs detached from the
// caller and retries 5xx and transport failures.
type WebhookNotifier struct {
	cfg     WebhookConfig
	client  *http.Client
	tracker *shutdown.InFlightTracker
	logger  *zap.Logger
	now     func() time.Time
}

// NewWebhookNotifier creates the notifier. Deliveries are registered on
// tracker so shutdown can drain them.
func NewWebhookNotifier(cfg WebhookConfig, tracker *shutdown.InFlightTracker, logger *zap.Logger) *WebhookNotifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = resilience.NotifierBackoff()
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{
		cfg:     cfg,
		client:  client,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
}

// Emit queues delivery and returns. Only serialization and shutdown are
// reported to the caller.
func (n *WebhookNotifier) Emit(_ context.Context, event domain.SubscriptionEvent) error {
	if len(n.cfg.Endpoints) == 0 {
		return nil
	}
	body, err := encoding.EncodeJSON(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	started := n.tracker.Go(func() {
		for _, endpoint := range n.cfg.Endpoints {
			n.deliver(endpoint, event.Name, body)
		}
	})
	if !started {
		return ErrShuttingDown
	}
	return nil
}

func (n *WebhookNotifier) deliver(endpoint string, name domain.EventName, body []byte) {
	var lastErr error
	for attempt := 0; attempt < n.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(n.cfg.Backoff.NextDelay(attempt - 1))
		}
		retry, err := n.post(endpoint, name, body)
		if err == nil {
			observability.RecordEventDelivery("webhook", string(name), "delivered")
			n.logger.Debug("Event delivered",
				zap.String("endpoint", endpoint),
				zap.String("event", string(name)),
				zap.Int("attempt", attempt+1))
			return
		}
		lastErr = err
		if !retry {
			break
		}
	}

	observability.RecordEventDelivery("webhook", string(name), "failed")
	n.logger.Warn("Event delivery failed",
		zap.String("endpoint", endpoint),
		zap.String("event", string(name)),
		zap.Error(lastErr))
}

// post makes one attempt; the bool says whether another attempt may help.
func (n *WebhookNotifier) post(endpoint string, name domain.EventName, body []byte) (bool, error) {
	ctx, cancel := n.cfg.Timeouts.NotifierContext(context.Background())
	defer cancel()

	ts := strconv.FormatInt(n.now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, string(name))
	req.Header.Set(TimestampHeader, ts)
	req.Header.Set(SignatureHeader, Sign(n.cfg.Secret, ts, body))

	resp, err := n.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}
}

// Sign computes the hex HMAC-SHA256 receivers check against SignatureHeader.
func Sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

var _ ports.EventNotifier = (*WebhookNotifier)(nil)
