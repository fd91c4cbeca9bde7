package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
)

// installationIDKey carries the authenticated installation id.
const installationIDKey contextKey = "installation-id"

// TokenValidator is the narrow surface the bearer middleware needs from the
// identity service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, raw string) (uuid.UUID, error)
}

// InstallationAuth requires a valid bearer token minted by the identity
// endpoint and stores the authenticated installation id in the context.
func InstallationAuth(validator TokenValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			traceID := infrastructure.GetTraceID(ctx)

			raw := bearerToken(r)
			if raw == "" {
				render.Render(w, r, lberrors.NewUnauthorizedError(traceID))
				return
			}

			installationID, err := validator.ValidateToken(ctx, raw)
			if err != nil {
				logger.WarnContext(ctx, "rejected bearer token",
					slog.String("error", err.Error()))
				render.Render(w, r, lberrors.NewUnauthorizedError(traceID))
				return
			}

			ctx = context.WithValue(ctx, installationIDKey, installationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InstallationFromContext returns the authenticated installation id, or
// uuid.Nil when the request did not pass InstallationAuth.
func InstallationFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(installationIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}
