package subscription

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/handlers/response"
	"github.com/VictorLirio/nimbus-api/internal/services/ports"
)

const (
	// UserIDHeader carries the caller identity set by the upstream auth layer.
	UserIDHeader         = "X-User-ID"
	IdempotencyKeyHeader = "Idempotency-Key"

	maxBodyBytes = 64 << 10
)

// Handler serves the subscription REST API
type Handler struct {
	service ports.SubscriptionService
	logger  *zap.Logger
}

// NewHandler creates a new subscription handler
func NewHandler(service ports.SubscriptionService, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the routes on mux. The runtime mux tries the most recently
// registered pattern first, so the literal /current and /active routes go
// after /{id}.
func (h *Handler) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, pattern string
		fn              runtime.HandlerFunc
	}{
		{http.MethodPost, "/api/v1/subscriptions", h.Create},
		{http.MethodGet, "/api/v1/subscriptions", h.List},
		{http.MethodGet, "/api/v1/subscriptions/{id}", h.Get},
		{http.MethodDelete, "/api/v1/subscriptions/{id}/cancel", h.Cancel},
		{http.MethodPatch, "/api/v1/subscriptions/{id}/change-plan", h.ChangePlan},
		{http.MethodGet, "/api/v1/subscriptions/current", h.Current},
		{http.MethodGet, "/api/v1/subscriptions/current/plan", h.CurrentPlan},
		{http.MethodGet, "/api/v1/subscriptions/active", h.Active},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.fn); err != nil {
			return err
		}
	}
	return nil
}

type createRequest struct {
	PlanID          string `json:"planId"`
	PaymentMethodID string `json:"paymentMethodId"`
	CouponCode      string `json:"couponCode"`
}

type changePlanRequest struct {
	NewPlanID string `json:"newPlanId"`
	Prorate   *bool  `json:"prorate"`
}

type listResponse struct {
	Subscriptions []*domain.Subscription `json:"subscriptions"`
}

type activeResponse struct {
	Active bool `json:"active"`
}

// Create handles POST /api/v1/subscriptions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PlanID == "" {
		h.invalid(w, "planId is required")
		return
	}

	h.logger.Info("CreateSubscription request received",
		zap.String("user_id", userID),
		zap.String("plan_id", req.PlanID),
	)

	sub, err := h.service.Create(r.Context(), ports.CreateSubscriptionRequest{
		UserID:           userID,
		PlanID:           req.PlanID,
		PaymentMethodRef: req.PaymentMethodID,
		CouponRef:        req.CouponCode,
		IdempotencyKey:   r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, h.logger, http.StatusCreated, sub)
}

// List handles GET /api/v1/subscriptions
func (h *Handler) List(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	subs, err := h.service.FindUserSubscriptions(r.Context(), userID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}
	response.JSON(w, h.logger, http.StatusOK, listResponse{Subscriptions: subs})
}

// Get handles GET /api/v1/subscriptions/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.subscriptionID(w, params)
	if !ok {
		return
	}
	sub, err := h.service.FindOne(r.Context(), id, userID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, h.logger, http.StatusOK, sub)
}

// Current handles GET /api/v1/subscriptions/current
func (h *Handler) Current(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	sub, err := h.service.CurrentSubscription(r.Context(), userID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, h.logger, http.StatusOK, sub)
}

// CurrentPlan handles GET /api/v1/subscriptions/current/plan
func (h *Handler) CurrentPlan(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	plan, err := h.service.CurrentPlan(r.Context(), userID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, h.logger, http.StatusOK, plan)
}

// Active handles GET /api/v1/subscriptions/active
func (h *Handler) Active(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	active, err := h.service.IsSubscriptionActive(r.Context(), userID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, h.logger, http.StatusOK, activeResponse{Active: active})
}

// Cancel handles DELETE /api/v1/subscriptions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.subscriptionID(w, params)
	if !ok {
		return
	}

	h.logger.Info("CancelSubscription request received",
		zap.String("user_id", userID),
		zap.String("subscription_id", id.String()),
	)

	sub, err := h.service.Cancel(r.Context(), id, userID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, h.logger, http.StatusOK, sub)
}

// ChangePlan handles PATCH /api/v1/subscriptions/{id}/change-plan
func (h *Handler) ChangePlan(w http.ResponseWriter, r *http.Request, params map[string]string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.subscriptionID(w, params)
	if !ok {
		return
	}

	var req changePlanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.NewPlanID == "" {
		h.invalid(w, "newPlanId is required")
		return
	}
	prorate := true
	if req.Prorate != nil {
		prorate = *req.Prorate
	}

	h.logger.Info("ChangePlan request received",
		zap.String("user_id", userID),
		zap.String("subscription_id", id.String()),
		zap.String("new_plan_id", req.NewPlanID),
		zap.Bool("prorate", prorate),
	)

	sub, err := h.service.ChangePlan(r.Context(), ports.ChangePlanRequest{
		SubscriptionID: id,
		UserID:         userID,
		NewPlanID:      req.NewPlanID,
		Prorate:        prorate,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, h.logger, http.StatusOK, sub)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		response.Message(w, h.logger, http.StatusUnauthorized, "UNAUTHENTICATED", "missing "+UserIDHeader+" header")
		return "", false
	}
	return userID, true
}

func (h *Handler) subscriptionID(w http.ResponseWriter, params map[string]string) (uuid.UUID, bool) {
	id, err := uuid.Parse(params["id"])
	if err != nil {
		h.invalid(w, "invalid subscription id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.invalid(w, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) invalid(w http.ResponseWriter, message string) {
	response.Message(w, h.logger, http.StatusBadRequest, string(domain.ErrorCodeValidation), message)
}
