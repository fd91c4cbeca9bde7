package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
	"lockbox/internal/services"
	api "lockbox/pkg/contracts/api/v1"
)

// TokenHandler serves the client-credentials identity endpoint consumed by
// self-hosted sync clients.
type TokenHandler struct {
	identity services.IdentityService
	logger   *slog.Logger
	metrics  *infrastructure.LicensingMetrics
}

// NewTokenHandler creates the identity endpoint handler. metrics may be nil.
func NewTokenHandler(identity services.IdentityService, logger *slog.Logger, metrics *infrastructure.LicensingMetrics) *TokenHandler {
	return &TokenHandler{
		identity: identity,
		logger:   logger.With(slog.String("handler", "token")),
		metrics:  metrics,
	}
}

// oauthError is the RFC 6749 error body OAuth2 clients expect.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// IssueToken handles POST /connect/token. Credentials arrive either as HTTP
// basic auth or as form parameters; both are accepted.
func (h *TokenHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, oauthError{Error: "invalid_request"})
		return
	}

	req := api.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Scope:        r.PostFormValue("scope"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}

	if req.GrantType != "client_credentials" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, oauthError{Error: "unsupported_grant_type"})
		return
	}

	resp, err := h.identity.IssueToken(ctx, req)
	if err != nil {
		if errors.Is(err, lberrors.ErrInvalidInstallation) {
			w.Header().Set("WWW-Authenticate", `Basic realm="lockbox"`)
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, oauthError{Error: "invalid_client"})
			return
		}
		h.logger.ErrorContext(ctx, "token issuance failed",
			slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, oauthError{Error: "server_error"})
		return
	}

	if h.metrics != nil {
		h.metrics.TokensIssued.Add(ctx, 1)
	}
	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, resp)
}
