package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"lockbox/internal/config"
	"lockbox/internal/infrastructure"
	"lockbox/internal/middleware"
	"lockbox/internal/services"
)

// ServerDeps carries everything the cloud licensing router needs.
type ServerDeps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Identity services.IdentityService
	Issuance services.IssuanceService
	// Metrics serves GET /metrics; nil disables the route.
	Metrics http.Handler
	// Instruments are the service counters; nil disables recording.
	Instruments *infrastructure.LicensingMetrics
}

// NewRouter assembles the cloud licensing server's routes and middleware
// chain.
func NewRouter(deps ServerDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics(deps.Instruments))
	r.Use(chimiddleware.Timeout(deps.Config.Server.WriteTimeout))

	limited := func(next http.Handler) http.Handler { return next }
	if deps.Config.Server.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			deps.Config.Server.RateLimit.RPS,
			deps.Config.Server.RateLimit.Burst,
			deps.Logger,
		)
		limited = limiter.Handler
	}

	tokenHandler := NewTokenHandler(deps.Identity, deps.Logger, deps.Instruments)
	licenseHandler := NewLicenseHandler(deps.Issuance, deps.Logger, deps.Instruments)
	healthHandler := NewHealthHandler()

	r.Group(func(r chi.Router) {
		r.Use(limited)
		r.Post("/connect/token", tokenHandler.IssueToken)
	})

	r.Route("/api/licenses", func(r chi.Router) {
		r.Use(limited)
		r.Use(middleware.InstallationAuth(deps.Identity, deps.Logger))
		r.Mount("/", licenseHandler.Routes())
	})

	r.Get("/healthz", healthHandler.Healthz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}
