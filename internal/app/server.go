package app

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"lockbox/internal/config"
	"lockbox/internal/infrastructure"
	"lockbox/internal/license"
	"lockbox/internal/services"
	transport "lockbox/internal/transport/http"
)

// ServerApplication is the cloud licensing server: identity endpoint,
// issuance endpoint, health and metrics.
type ServerApplication struct {
	Config *config.Config
	Logger *slog.Logger

	OTelProviders *infrastructure.OTelProviders
	Registry      *services.Registry
	Signer        *license.Signer
	Verifier      *license.Verifier
	Server        *http.Server
}

// NewServerApplication wires the cloud server from configuration.
func NewServerApplication() (*ServerApplication, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(nil)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	if cfg.Licensing.SigningKeyFile == "" {
		return nil, fmt.Errorf("licensing.signing_key_file is required on the cloud server")
	}
	key, err := license.LoadPrivateKey(cfg.Licensing.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	signer, err := license.NewSigner(key, cfg.Licensing.SigningKeyID)
	if err != nil {
		return nil, err
	}

	trusted, err := loadTrustedKeys(cfg)
	if err != nil {
		return nil, err
	}
	// The server always trusts its own signing key so it can validate the
	// access tokens it mints.
	trusted[cfg.Licensing.SigningKeyID] = signer.PublicKey()
	verifier, err := license.NewVerifier(trusted)
	if err != nil {
		return nil, err
	}

	registry, err := services.NewRegistry(
		cfg.Registry.InstallationsFile,
		cfg.Registry.OrganizationsFile,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	identity := services.NewIdentityService(registry, signer, verifier, logger)
	issuance := services.NewIssuanceService(registry, registry, signer, logger)

	var instruments *infrastructure.LicensingMetrics
	if providers.Meter != nil {
		instruments, err = infrastructure.CreateLicensingMetrics(providers.Meter)
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
	}

	router := transport.NewRouter(transport.ServerDeps{
		Config:      cfg,
		Logger:      logger,
		Identity:    identity,
		Issuance:    issuance,
		Metrics:     providers.PrometheusHTTP,
		Instruments: instruments,
	})

	app := &ServerApplication{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Registry:      registry,
		Signer:        signer,
		Verifier:      verifier,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
	return app, nil
}

func loadTrustedKeys(cfg *config.Config) (map[string]*rsa.PublicKey, error) {
	trusted := make(map[string]*rsa.PublicKey, len(cfg.Licensing.TrustedKeyFiles)+1)
	for keyID, path := range cfg.Licensing.TrustedKeyFiles {
		pub, err := license.LoadPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load trusted key %s: %w", keyID, err)
		}
		trusted[keyID] = pub
	}
	return trusted, nil
}

// Run serves until interrupted, then shuts down gracefully.
func (a *ServerApplication) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Logger.InfoContext(ctx, "starting licensing server",
		slog.Int("port", a.Config.Server.Port),
		slog.String("signing_key_id", a.Signer.KeyID()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *ServerApplication) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.Logger.InfoContext(shutdownCtx, "shutting down licensing server")
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(shutdownCtx, "telemetry shutdown failed",
				slog.String("error", err.Error()))
		}
	}
	infrastructure.CloseLogFile()
	a.Logger.Info("licensing server shutdown complete",
		slog.Duration("timeout", a.Config.Server.ShutdownTimeout))
	return nil
}
