package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
	"lockbox/internal/license"
	"lockbox/internal/middleware"
	"lockbox/internal/services"
)

// AgentHandler serves the self-hosted agent's local surface: license status,
// manual sync, and entitlement inspection. The agent binds to localhost; it
// exposes nothing remote.
type AgentHandler struct {
	store          *license.Store
	verifier       *license.Verifier
	sync           services.SyncService
	installationID uuid.UUID
	logger         *slog.Logger
}

// NewAgentHandler creates the agent's local handler.
func NewAgentHandler(store *license.Store, verifier *license.Verifier, sync services.SyncService, installationID uuid.UUID, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		store:          store,
		verifier:       verifier,
		sync:           sync,
		installationID: installationID,
		logger:         logger.With(slog.String("handler", "agent")),
	}
}

// LicenseStatusResponse summarizes the stored license for operators.
type LicenseStatusResponse struct {
	Status    string     `json:"status"` // valid|unusable|unverified|missing
	Reasons   []string   `json:"reasons,omitempty"`
	Plan      string     `json:"plan,omitempty"`
	Expires   *time.Time `json:"expires,omitempty"`
	Refresh   *time.Time `json:"refresh,omitempty"`
	Trial     bool       `json:"trial,omitempty"`
	Version   int        `json:"version,omitempty"`
	TraceID   string     `json:"trace_id"`
	Timestamp time.Time  `json:"timestamp"`
}

// Routes returns the agent's local router.
func (h *AgentHandler) Routes(logger *slog.Logger, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))

	gate := middleware.NewLicenseGate(h.store, h.verifier, h.installationID, logger)

	r.Get("/healthz", NewHealthHandler().Healthz)
	r.Get("/license/status", h.GetStatus)
	r.Post("/license/sync", h.TriggerSync)
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireLicense)
		r.Get("/license/entitlements", h.GetEntitlements)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

// GetStatus handles GET /license/status.
func (h *AgentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()
	resp := LicenseStatusResponse{
		TraceID:   infrastructure.GetTraceID(ctx),
		Timestamp: now,
	}

	l, err := h.store.Load(ctx)
	if err != nil {
		resp.Status = "missing"
		render.JSON(w, r, resp)
		return
	}

	resp.Plan = string(l.Plan)
	resp.Expires = &l.Expires
	resp.Refresh = &l.Refresh
	resp.Trial = l.Trial
	resp.Version = l.Version

	switch ok, reasons := l.CanUse(h.installationID, now); {
	case !ok:
		resp.Status = "unusable"
		resp.Reasons = reasons
	case !h.verifier.VerifyIntegrity(l):
		resp.Status = "unverified"
	default:
		resp.Status = "valid"
	}
	render.JSON(w, r, resp)
}

// TriggerSync handles POST /license/sync.
func (h *AgentHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	l, err := h.sync.Sync(ctx)
	if err != nil {
		h.renderSyncError(w, r, err, traceID)
		return
	}
	render.JSON(w, r, l)
}

func (h *AgentHandler) renderSyncError(w http.ResponseWriter, r *http.Request, err error, traceID string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, lberrors.ErrSyncDisabled):
		render.Render(w, r, lberrors.NewProblemDetails(
			http.StatusConflict,
			"/errors/sync-disabled",
			"Sync Disabled",
			err.Error(),
			r.URL.Path,
		).WithExtension("trace_id", traceID))
	case errors.Is(err, lberrors.ErrInvalidSyncConfig):
		render.Render(w, r, lberrors.NewInvalidRequestError(err.Error(), traceID))
	case errors.Is(err, lberrors.ErrSyncKeyRejected):
		render.Render(w, r, lberrors.NewSyncKeyRejectedError(traceID))
	case errors.Is(err, lberrors.ErrSyncFailed), errors.Is(err, lberrors.ErrVerificationFailed):
		h.logger.ErrorContext(ctx, "license sync failed",
			slog.String("error", err.Error()),
			slog.Bool("retryable", lberrors.IsRetryable(err)))
		render.Render(w, r, lberrors.NewProblemDetails(
			http.StatusBadGateway,
			"/errors/sync-failed",
			"Sync Failed",
			err.Error(),
			r.URL.Path,
		).WithExtension("trace_id", traceID).WithExtension("retryable", lberrors.IsRetryable(err)))
	default:
		h.logger.ErrorContext(ctx, "license sync failed",
			slog.String("error", err.Error()))
		render.Render(w, r, lberrors.NewInternalError(traceID))
	}
}

// GetEntitlements handles GET /license/entitlements. The gate guarantees a
// verified, usable license is stored; claims from the token win over the
// legacy fields when a token is present.
func (h *AgentHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	l, err := h.store.Load(ctx)
	if err != nil {
		render.Render(w, r, lberrors.NewLicenseNotFoundError(traceID))
		return
	}

	if l.Token != "" {
		claims, err := h.verifier.ParseToken(l.Token)
		if err == nil {
			render.JSON(w, r, claims)
			return
		}
		h.logger.WarnContext(ctx, "stored license token did not parse, falling back to fields",
			slog.String("error", err.Error()))
	}

	claims := make(map[string]string, 32)
	for _, c := range license.BuildOrganizationClaims(l) {
		claims[c.Key] = c.Value
	}
	render.JSON(w, r, claims)
}
