package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"repogator/internal/audit"
	"repogator/internal/event"
	"repogator/internal/platform/metrics"
	"repogator/internal/platform/middleware"
	"repogator/internal/queue"
	"repogator/internal/repos"
	"repogator/internal/settings"
	derrors "repogator/pkg/domain-errors"
)

// maxBodyBytes bounds webhook payload size; provider payloads are far below
// this in practice.
const maxBodyBytes = 10 << 20

// HealthChecker reports the liveness of one external collaborator.
type HealthChecker func(ctx context.Context) error

// Handler is the ingress gateway: it verifies, persists, and enqueues inbound
// events, acknowledging before any processing happens.
type Handler struct {
	globalSecret string
	events       event.Store
	queue        queue.Queue
	repos        repos.Store
	settings     settings.Store
	audit        *audit.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	health       map[string]HealthChecker
}

// New creates the ingress handler.
func New(
	globalSecret string,
	events event.Store,
	q queue.Queue,
	repoStore repos.Store,
	settingsStore settings.Store,
	auditPub *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	health map[string]HealthChecker,
) *Handler {
	return &Handler{
		globalSecret: globalSecret,
		events:       events,
		queue:        q,
		repos:        repoStore,
		settings:     settingsStore,
		audit:        auditPub,
		metrics:      m,
		logger:       logger,
		health:       health,
	}
}

// Register registers the webhook routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Post("/webhook", h.handleWebhook)
	router.Post("/webhook/{owner}/{repo}", h.handlePerRepoWebhook)
	router.Get("/health", h.handleHealth)

	r.Mount("/", router)
}

// handleWebhook is the legacy single-secret intake route.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), h.globalSecret) {
		h.reject(w, r, "signature", derrors.New(derrors.CodeUnauthorized, "invalid webhook signature"))
		return
	}

	h.accept(w, r, body, "", nil, false)
}

// handlePerRepoWebhook is the multi-tenant intake route with per-repo secrets.
func (h *Handler) handlePerRepoWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")

	tracked, err := h.repos.GetActiveByFullName(r.Context(), fullName)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			h.reject(w, r, "untracked", derrors.New(derrors.CodeNotFound, "repository not tracked"))
			return
		}
		h.logger.ErrorContext(r.Context(), "tracked repo lookup failed", "repo", fullName, "error", err.Error())
		writeError(w, derrors.Wrap(derrors.CodeUnavailable, "repository lookup failed", err))
		return
	}

	if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), tracked.WebhookSecret) {
		h.reject(w, r, "signature", derrors.New(derrors.CodeUnauthorized, "invalid webhook signature"))
		return
	}

	overrides, admin := h.tenantOverrides(r.Context(), tracked.TenantID)
	h.accept(w, r, body, fullName, overrides, admin)
}

// accept persists the event and enqueues it. The 202 acknowledgement goes out
// as soon as the queue push succeeds; processing is entirely asynchronous. If
// the push fails the persisted row stays received and startup recovery will
// re-enqueue it, so persistence rather than the queue is the durability
// source of truth.
func (h *Handler) accept(w http.ResponseWriter, r *http.Request, body []byte, repoOverride string, overrides *queue.TenantOverrides, admin bool) {
	ctx := r.Context()

	var payload struct {
		Action     string `json:"action"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		h.reject(w, r, "malformed", derrors.New(derrors.CodeBadRequest, "invalid JSON payload"))
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		eventType = "unknown"
	}
	action := payload.Action
	if action == "" {
		action = "unknown"
	}
	repoFullName := repoOverride
	if repoFullName == "" {
		repoFullName = payload.Repository.FullName
	}

	correlationID := uuid.NewString()
	e := event.NewEvent(correlationID, eventType, action, repoFullName, body)

	if err := h.events.CreateEvent(ctx, e); err != nil {
		h.logger.ErrorContext(ctx, "failed to persist event",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		writeError(w, derrors.Wrap(derrors.CodeUnavailable, "could not persist event", err))
		return
	}

	msg := queue.Message{
		EventID:       e.ID,
		CorrelationID: correlationID,
		EventType:     eventType,
		Action:        action,
		RepoFullName:  repoFullName,
		Payload:       body,
		Overrides:     overrides,
		Admin:         admin,
	}
	if err := h.queue.Push(ctx, msg); err != nil {
		h.logger.ErrorContext(ctx, "failed to enqueue event, recovery will re-enqueue on next boot",
			"event_id", e.ID,
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		writeError(w, derrors.Wrap(derrors.CodeUnavailable, "could not enqueue event", err))
		return
	}

	h.metrics.EventsReceived.WithLabelValues(eventType).Inc()
	h.emitAudit(ctx, correlationID, e.ID, eventType, action, repoFullName)

	h.logger.InfoContext(ctx, "webhook received and enqueued",
		"event_id", e.ID,
		"correlation_id", correlationID,
		"event_type", eventType,
		"action", action,
		"repo", repoFullName,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":         "accepted",
		"correlation_id": correlationID,
	})
}

// handleHealth aggregates collaborator connectivity into healthy/degraded.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := make(map[string]string, len(h.health))
	healthy := true
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "service", name, "error", err.Error())
			services[name] = "error"
			healthy = false
		} else {
			services[name] = "ok"
		}
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   status,
		"services": services,
	})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, derrors.New(derrors.CodeBadRequest, "could not read request body"))
		return nil, false
	}
	return body, true
}

// tenantOverrides loads the tenant's stored API-key overrides and admin flag
// in a single lookup; absence means service defaults, never an error.
func (h *Handler) tenantOverrides(ctx context.Context, tenantID string) (*queue.TenantOverrides, bool) {
	st, err := h.settings.GetByTenant(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, settings.ErrNotFound) {
			h.logger.WarnContext(ctx, "settings lookup failed", "tenant_id", tenantID, "error", err.Error())
		}
		return &queue.TenantOverrides{TenantID: tenantID}, false
	}
	return &queue.TenantOverrides{
		TenantID:        tenantID,
		OpenRouterKey:   st.OpenRouterKey,
		OpenRouterModel: st.OpenRouterModel,
		EmbeddingKey:    st.EmbeddingKey,
		EmbeddingModel:  st.EmbeddingModel,
	}, st.Admin
}

// reject logs and answers a rejected delivery; rejected events leave no trace
// beyond the log line and counter.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, reason string, err *derrors.Error) {
	h.metrics.WebhooksRejected.WithLabelValues(reason).Inc()
	h.logger.WarnContext(r.Context(), "webhook rejected",
		"reason", reason,
		"path", r.URL.Path,
	)
	writeError(w, err)
}

// writeError translates a domain error into the JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := derrors.CodeInternal
	var de *derrors.Error
	if errors.As(err, &de) {
		code = de.Code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(derrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": string(code)})
}

func (h *Handler) emitAudit(ctx context.Context, correlationID, eventID, eventType, action, repo string) {
	err := h.audit.Emit(ctx, audit.Entry{
		CorrelationID: correlationID,
		Level:         "info",
		Message:       "webhook accepted",
		Context: map[string]any{
			"event_id":   eventID,
			"event_type": eventType,
			"action":     action,
			"repo":       repo,
		},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to emit audit entry",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
	}
}
