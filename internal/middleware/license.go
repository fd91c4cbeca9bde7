package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
	"lockbox/internal/license"
)

// LicenseLoader is the narrow surface the gate needs from the license store.
type LicenseLoader interface {
	Load(ctx context.Context) (*license.OrganizationLicense, error)
}

// LicenseGate guards entitlement-requiring routes on a self-hosted
// deployment. A request only passes when the stored license verifies against
// the trusted keys and may be used by this installation right now.
type LicenseGate struct {
	store          LicenseLoader
	verifier       *license.Verifier
	installationID uuid.UUID
	logger         *slog.Logger
	now            func() time.Time
}

// NewLicenseGate wires the gate for this installation.
func NewLicenseGate(store LicenseLoader, verifier *license.Verifier, installationID uuid.UUID, logger *slog.Logger) *LicenseGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseGate{
		store:          store,
		verifier:       verifier,
		installationID: installationID,
		logger:         logger.With(slog.String("component", "license_gate")),
		now:            time.Now,
	}
}

// RequireLicense rejects requests with 403 unless a usable, verified license
// is stored. The response lists the reasons the license cannot be used.
func (g *LicenseGate) RequireLicense(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		traceID := infrastructure.GetTraceID(ctx)

		l, err := g.store.Load(ctx)
		if err != nil {
			g.logger.WarnContext(ctx, "no usable license on record",
				slog.String("error", err.Error()))
			render.Render(w, r, lberrors.NewLicenseNotFoundError(traceID))
			return
		}

		now := g.now()
		if ok, reasons := l.CanUse(g.installationID, now); !ok {
			g.logger.WarnContext(ctx, "license cannot be used",
				slog.Any("reasons", reasons))
			render.Render(w, r, lberrors.NewProblemDetails(
				http.StatusForbidden,
				"/errors/license-unusable",
				"License Unusable",
				"The stored license cannot be applied to this installation",
				r.URL.Path,
			).WithExtension("trace_id", traceID).WithExtension("reasons", reasons))
			return
		}

		if !g.verifier.VerifyIntegrity(l) {
			g.logger.ErrorContext(ctx, "stored license failed verification")
			render.Render(w, r, lberrors.NewProblemDetails(
				http.StatusForbidden,
				"/errors/license-verification-failed",
				"License Verification Failed",
				"The stored license did not verify against the trusted keys",
				r.URL.Path,
			).WithExtension("trace_id", traceID))
			return
		}

		next.ServeHTTP(w, r)
	})
}
