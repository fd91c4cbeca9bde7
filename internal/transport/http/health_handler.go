package http

import (
	"net/http"

	"github.com/go-chi/render"

	"lockbox/pkg/contracts"
	api "lockbox/pkg/contracts/api/v1"
)

// HealthHandler serves liveness checks.
type HealthHandler struct{}

// NewHealthHandler creates the health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Healthz handles GET /healthz.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.HealthResponse{
		Status:  "ok",
		Version: contracts.Version,
	})
}
