package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
	"lockbox/internal/license"
	"lockbox/internal/middleware"
	"lockbox/internal/services"
	api "lockbox/pkg/contracts/api/v1"
)

// LicenseHandler serves the cloud licensing endpoints.
type LicenseHandler struct {
	issuance services.IssuanceService
	logger   *slog.Logger
	validate *validator.Validate
	metrics  *infrastructure.LicensingMetrics
}

// NewLicenseHandler creates the licensing endpoint handler. metrics may be
// nil.
func NewLicenseHandler(issuance services.IssuanceService, logger *slog.Logger, metrics *infrastructure.LicensingMetrics) *LicenseHandler {
	return &LicenseHandler{
		issuance: issuance,
		logger:   logger.With(slog.String("handler", "license")),
		validate: validator.New(),
		metrics:  metrics,
	}
}

// organizationLicenseRequest wraps the contract type with render binding.
type organizationLicenseRequest struct {
	api.OrganizationLicenseRequest
}

func (req *organizationLicenseRequest) Bind(r *http.Request) error {
	if req.LicenseKey == "" {
		return errors.New("licenseKey is required")
	}
	if req.BillingSyncKey == "" {
		return errors.New("billingSyncKey is required")
	}
	return nil
}

// Routes returns the chi router for the licensing endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/organization/{id}", h.IssueOrganization)
	return r
}

// IssueOrganization handles POST /api/licenses/organization/{id}. The caller
// is an authenticated installation; the response body is the serialized
// license.
func (h *LicenseHandler) IssueOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license.issue_organization")
	defer span.End()

	orgID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Render(w, r, lberrors.NewInvalidRequestError("organization id must be a UUID", traceID))
		return
	}
	span.SetAttributes(attribute.String("organization_id", orgID.String()))

	installationID := middleware.InstallationFromContext(ctx)
	if installationID == uuid.Nil {
		render.Render(w, r, lberrors.NewUnauthorizedError(traceID))
		return
	}

	req := &organizationLicenseRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, lberrors.NewInvalidRequestError(err.Error(), traceID))
		return
	}
	if err := h.validate.Struct(req.OrganizationLicenseRequest); err != nil {
		render.Render(w, r, lberrors.NewInvalidRequestError(err.Error(), traceID))
		return
	}

	l, err := h.issuance.IssueOrganizationLicense(ctx, services.IssueOrganizationRequest{
		OrganizationID: orgID,
		InstallationID: installationID,
		LicenseKey:     req.LicenseKey,
		BillingSyncKey: req.BillingSyncKey,
	})
	if err != nil {
		h.renderIssuanceError(w, r, err, traceID)
		return
	}

	if h.metrics != nil {
		h.metrics.LicensesIssued.Add(ctx, 1,
			metric.WithAttributes(attribute.Int("version", l.Version)))
	}
	render.JSON(w, r, l)
}

func (h *LicenseHandler) renderIssuanceError(w http.ResponseWriter, r *http.Request, err error, traceID string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, lberrors.ErrInvalidInstallation):
		render.Render(w, r, lberrors.NewInvalidInstallationError(traceID))
	case errors.Is(err, lberrors.ErrOrganizationNotFound):
		render.Render(w, r, lberrors.NewLicenseNotFoundError(traceID))
	case errors.Is(err, lberrors.ErrSyncKeyRejected):
		render.Render(w, r, lberrors.NewSyncKeyRejectedError(traceID))
	case license.IsUnsupportedVersion(err):
		render.Render(w, r, lberrors.NewInvalidRequestError(err.Error(), traceID))
	default:
		h.logger.ErrorContext(ctx, "license issuance failed",
			slog.String("error", err.Error()))
		render.Render(w, r, lberrors.NewInternalError(traceID))
	}
}
