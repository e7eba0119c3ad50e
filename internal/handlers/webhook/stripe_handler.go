package webhook

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/adapters/stripe"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/internal/handlers/response"
	serviceports "github.com/VictorLirio/nimbus-api/internal/services/ports"
)

// Provider payloads are small; anything past this is not a real event.
const maxPayloadBytes = 512 << 10

// StripeHandler receives provider event deliveries. A 2xx tells the provider
// to stop redelivering, so it is only sent once the event is fully handled
// or deliberately dropped.
type StripeHandler struct {
	parser     ports.EventParser
	reconciler serviceports.ReconciliationService
	logger     *zap.Logger
}

// NewStripeHandler creates the webhook handler
func NewStripeHandler(parser ports.EventParser, reconciler serviceports.ReconciliationService, logger *zap.Logger) *StripeHandler {
	return &StripeHandler{
		parser:     parser,
		reconciler: reconciler,
		logger:     logger,
	}
}

// ServeHTTP handles POST /webhooks/stripe
func (h *StripeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Message(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST method is allowed")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		response.Message(w, h.logger, http.StatusBadRequest, "INVALID_EVENT", "unreadable body")
		return
	}

	event, err := h.parser.ParseEvent(payload, r.Header.Get(stripe.SignatureHeader))
	if err != nil {
		if !errors.Is(err, stripe.ErrInvalidEnvelope) {
			h.logger.Error("Failed to parse provider event", zap.Error(err))
		} else {
			h.logger.Warn("Rejected provider event",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err))
		}
		response.Message(w, h.logger, http.StatusBadRequest, "INVALID_EVENT", "invalid event")
		return
	}

	if err := h.reconciler.Reconcile(r.Context(), event); err != nil {
		h.logger.Error("Provider event not acknowledged",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.ProviderType),
			zap.Error(err))
		response.Message(w, h.logger, http.StatusInternalServerError, "INTERNAL", "event not processed")
		return
	}

	response.JSON(w, h.logger, http.StatusOK, map[string]bool{"received": true})
}
