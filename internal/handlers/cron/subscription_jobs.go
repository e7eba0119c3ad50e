package cron

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/handlers/response"
	"github.com/VictorLirio/nimbus-api/internal/services/ports"
	"github.com/VictorLirio/nimbus-api/pkg/resilience"
)

// SecretHeader authenticates calls from the scheduler.
const SecretHeader = "X-Cron-Secret"

// JobsHandler serves the scheduled subscription jobs
type JobsHandler struct {
	maintenance ports.MaintenanceService
	timeouts    *resilience.TimeoutConfig
	logger      *zap.Logger
	cronSecret  string
}

// NewJobsHandler creates the cron handler. An empty secret rejects every call.
func NewJobsHandler(
	maintenance ports.MaintenanceService,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
	cronSecret string,
) *JobsHandler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &JobsHandler{
		maintenance: maintenance,
		timeouts:    timeouts,
		logger:      logger,
		cronSecret:  cronSecret,
	}
}

// Register mounts the job routes
func (h *JobsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/cron/subscriptions/expiring", h.ExpiringSoon)
	mux.HandleFunc("/cron/subscriptions/orphan-sweep", h.OrphanSweep)
}

// ExpiringResponse lists subscriptions approaching their period end
type ExpiringResponse struct {
	Days          int                    `json:"days"`
	Count         int                    `json:"count"`
	Subscriptions []*domain.Subscription `json:"subscriptions"`
	ProcessedAt   string                 `json:"processed_at"`
}

// SweepResponse is the orphan sweep report
type SweepResponse struct {
	*ports.OrphanReport
	Lookback    string `json:"lookback"`
	ProcessedAt string `json:"processed_at"`
}

// ExpiringSoon handles POST /cron/subscriptions/expiring?days=N
func (h *JobsHandler) ExpiringSoon(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, "expiring") {
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			response.Message(w, h.logger, http.StatusBadRequest, string(domain.ErrorCodeValidation), "days must be between 1 and 365")
			return
		}
		days = n
	}

	ctx, cancel := h.timeouts.CronContext(r.Context())
	defer cancel()

	subs, err := h.maintenance.ExpiringSoon(ctx, days)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}

	h.logger.Info("Expiring subscriptions listed",
		zap.Int("days", days),
		zap.Int("count", len(subs)))

	response.JSON(w, h.logger, http.StatusOK, ExpiringResponse{
		Days:          days,
		Count:         len(subs),
		Subscriptions: subs,
		ProcessedAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

// OrphanSweep handles POST /cron/subscriptions/orphan-sweep?lookback=24h
func (h *JobsHandler) OrphanSweep(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, "orphan-sweep") {
		return
	}

	lookback := 24 * time.Hour
	if v := r.URL.Query().Get("lookback"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 || d > 90*24*time.Hour {
			response.Message(w, h.logger, http.StatusBadRequest, string(domain.ErrorCodeValidation), "lookback must be a positive duration up to 2160h")
			return
		}
		lookback = d
	}

	ctx, cancel := h.timeouts.CronContext(r.Context())
	defer cancel()

	report, err := h.maintenance.SweepOrphans(ctx, lookback)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}

	h.logger.Info("Orphan sweep completed",
		zap.Duration("lookback", lookback),
		zap.Int("scanned", report.Scanned),
		zap.Int("orphaned", len(report.Orphaned)))

	response.JSON(w, h.logger, http.StatusOK, SweepResponse{
		OrphanReport: report,
		Lookback:     lookback.String(),
		ProcessedAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *JobsHandler) admit(w http.ResponseWriter, r *http.Request, job string) bool {
	h.logger.Info("Cron job triggered",
		zap.String("job", job),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()))

	if r.Method != http.MethodPost {
		response.Message(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST method is allowed")
		return false
	}
	if !h.authenticate(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("job", job),
			zap.String("remote_addr", r.RemoteAddr))
		response.Message(w, h.logger, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthorized")
		return false
	}
	return true
}

// authenticate accepts the secret in X-Cron-Secret or as a bearer token.
func (h *JobsHandler) authenticate(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	if v := r.Header.Get(SecretHeader); v != "" {
		return secretEqual(v, h.cronSecret)
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return secretEqual(auth[len(prefix):], h.cronSecret)
	}
	return false
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
