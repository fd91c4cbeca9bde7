package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"lockbox/internal/config"
	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
	"lockbox/internal/license"
	"lockbox/internal/services"
	transport "lockbox/internal/transport/http"
)

// syncCheckInterval is how often the agent looks at the stored license's
// refresh date. The sync itself only happens when the license is due.
const syncCheckInterval = time.Hour

// AgentApplication is the self-hosted license agent: it syncs the
// organization license from the cloud and serves a local status surface.
type AgentApplication struct {
	Config *config.Config
	Logger *slog.Logger

	InstallationID uuid.UUID
	Store          *license.Store
	Verifier       *license.Verifier
	Sync           services.SyncService
	Server         *http.Server
}

// NewAgentApplication wires the agent from configuration.
func NewAgentApplication() (*AgentApplication, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	installationID := uuid.Nil
	if cfg.Installation.ID != "" {
		installationID, err = uuid.Parse(cfg.Installation.ID)
		if err != nil {
			return nil, fmt.Errorf("installation id: %w", err)
		}
	}

	trusted, err := loadTrustedKeys(cfg)
	if err != nil {
		return nil, err
	}
	verifier, err := license.NewVerifier(trusted)
	if err != nil {
		return nil, fmt.Errorf("agent requires trusted licensing keys: %w", err)
	}

	store := license.NewStore(cfg.Licensing.LicenseFile, logger)

	providers, err := infrastructure.InitializeOTel(&infrastructure.OTelConfig{
		ServiceName:    "lockbox-license-agent",
		ServiceVersion: infrastructure.ServiceVersion,
		Environment:    os.Getenv("ENVIRONMENT"),
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		SampleRatio:    1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	metrics, err := infrastructure.CreateLicensingMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	syncSvc := services.NewSyncService(cfg, store, verifier, logger, metrics)

	// License entitlement gauges scrape the stored license directly.
	registry := prometheus.NewRegistry()
	registry.MustRegister(license.NewMetricsCollector(store, func(l *license.OrganizationLicense, now time.Time) bool {
		ok, _ := l.CanUse(installationID, now)
		return ok && verifier.VerifyIntegrity(l)
	}))

	handler := transport.NewAgentHandler(store, verifier, syncSvc, installationID, logger)
	router := handler.Routes(logger, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &AgentApplication{
		Config:         cfg,
		Logger:         logger,
		InstallationID: installationID,
		Store:          store,
		Verifier:       verifier,
		Sync:           syncSvc,
		Server: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}, nil
}

// SyncOnce performs a single sync and reports the result. Used by the
// --sync-now flag.
func (a *AgentApplication) SyncOnce(ctx context.Context) error {
	l, err := a.Sync.Sync(ctx)
	if err != nil {
		a.Logger.ErrorContext(ctx, "license sync failed",
			slog.String("error", err.Error()),
			slog.Bool("retryable", lberrors.IsRetryable(err)))
		return err
	}
	a.Logger.InfoContext(ctx, "license sync complete",
		slog.String("organization_id", l.ID.String()),
		slog.Time("expires", l.Expires),
		slog.Time("refresh", l.Refresh))
	return nil
}

// Run serves the local surface and keeps the license fresh until
// interrupted.
func (a *AgentApplication) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Logger.InfoContext(ctx, "starting license agent",
		slog.String("addr", a.Server.Addr),
		slog.String("license_file", a.Store.Path()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.refreshLoop(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		infrastructure.CloseLogFile()
		return nil
	})

	return g.Wait()
}

// refreshLoop syncs whenever the stored license passes its refresh date. A
// missing license triggers an immediate sync attempt. Failures are logged
// and retried on the next tick; a rejected sync key is terminal for the loop
// since retrying cannot help.
func (a *AgentApplication) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(syncCheckInterval)
	defer ticker.Stop()

	a.syncIfDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.syncIfDue(ctx)
		}
	}
}

func (a *AgentApplication) syncIfDue(ctx context.Context) {
	now := time.Now()
	stored, err := a.Store.Load(ctx)
	if err == nil && now.Before(stored.Refresh) && now.Before(stored.Expires) {
		return
	}

	if err := a.SyncOnce(ctx); err != nil {
		if !lberrors.IsRetryable(err) {
			a.Logger.WarnContext(ctx, "sync failure is not retryable, waiting for operator action")
		}
	}
}
