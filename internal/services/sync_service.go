package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"lockbox/internal/config"
	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
	"lockbox/internal/license"
	api "lockbox/pkg/contracts/api/v1"
	"lockbox/pkg/contracts/domain"
)

// SyncService pulls the organization license from the cloud and atomically
// replaces the stored copy. Every precondition failure happens before any
// network traffic.
type SyncService interface {
	Sync(ctx context.Context) (*license.OrganizationLicense, error)
}

type syncService struct {
	cfg      *config.Config
	store    *license.Store
	verifier *license.Verifier
	logger   *slog.Logger
	metrics  *infrastructure.LicensingMetrics

	// tokenSource caches the bearer token across syncs until it nears
	// expiry, so back-to-back syncs perform a single credential exchange.
	tokenMu     sync.Mutex
	tokenSource oauth2.TokenSource

	// httpClient is swapped in tests.
	httpClient *http.Client
}

// NewSyncService wires the self-hosted sync client. metrics may be nil.
func NewSyncService(cfg *config.Config, store *license.Store, verifier *license.Verifier, logger *slog.Logger, metrics *infrastructure.LicensingMetrics) SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &syncService{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "sync")),
		metrics:  metrics,
	}
}

func (s *syncService) Sync(ctx context.Context) (*license.OrganizationLicense, error) {
	ctx, span := otel.Tracer(infrastructure.MeterName).Start(ctx, "license.sync")
	defer span.End()

	started := time.Now()
	if s.metrics != nil {
		s.metrics.SyncAttempts.Add(ctx, 1)
	}

	l, err := s.sync(ctx)
	if s.metrics != nil {
		s.metrics.SyncDuration.Record(ctx, time.Since(started).Seconds())
		if err != nil {
			s.metrics.SyncFailures.Add(ctx, 1)
		}
	}
	if err != nil {
		span.SetAttributes(attribute.String("sync.error", err.Error()))
		return nil, err
	}
	return l, nil
}

func (s *syncService) sync(ctx context.Context) (*license.OrganizationLicense, error) {
	logger := infrastructure.LoggerWithContext(ctx).With(slog.String("component", "sync"))

	conn, installationID, err := s.preconditions()
	if err != nil {
		logger.WarnContext(ctx, "sync preconditions not met", slog.String("error", err.Error()))
		return nil, err
	}

	licenseKey := s.licenseKey(ctx)
	if licenseKey == "" {
		return nil, fmt.Errorf("%w: no license key available", lberrors.ErrInvalidSyncConfig)
	}

	client, err := s.client(ctx, installationID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(api.OrganizationLicenseRequest{
		LicenseKey:     licenseKey,
		BillingSyncKey: conn.BillingSyncKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}

	url := fmt.Sprintf("%s/api/licenses/organization/%s", s.cfg.Cloud.APIURL, conn.CloudOrganizationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &lberrors.SyncFailure{Phase: "licensing request", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logger.ErrorContext(ctx, "billing sync key rejected by cloud",
			slog.Int("status", resp.StatusCode))
		return nil, lberrors.ErrSyncKeyRejected
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &lberrors.SyncFailure{
			Phase: "licensing request",
			Err:   fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &lberrors.SyncFailure{Phase: "response read", Err: err}
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, &lberrors.SyncFailure{
			Phase: "response read",
			Err:   fmt.Errorf("empty license body"),
		}
	}

	var received license.OrganizationLicense
	if err := json.Unmarshal(payload, &received); err != nil {
		return nil, &lberrors.SyncFailure{Phase: "response decode", Err: err}
	}

	if s.metrics != nil {
		s.metrics.VerificationsTotal.Add(ctx, 1)
	}
	if !s.verifier.VerifyIntegrity(&received) {
		if s.metrics != nil {
			s.metrics.VerificationFailed.Add(ctx, 1)
		}
		logger.ErrorContext(ctx, "received license failed integrity check")
		return nil, lberrors.ErrVerificationFailed
	}

	if err := s.store.Replace(ctx, &received); err != nil {
		return nil, fmt.Errorf("store synced license: %w", err)
	}

	logger.InfoContext(ctx, "license sync complete",
		slog.String("organization_id", received.ID.String()),
		slog.Time("expires", received.Expires))
	return &received, nil
}

// preconditions checks the deployment and connection state. It performs no
// network calls.
func (s *syncService) preconditions() (domain.BillingSyncConfig, uuid.UUID, error) {
	var conn domain.BillingSyncConfig

	if !s.cfg.SelfHosted {
		return conn, uuid.Nil, fmt.Errorf("%w: deployment is not self-hosted", lberrors.ErrSyncDisabled)
	}
	if !s.cfg.Cloud.EnableCloudCommunication {
		return conn, uuid.Nil, fmt.Errorf("%w: cloud communication is turned off", lberrors.ErrSyncDisabled)
	}
	if !s.cfg.BillingSync.Enabled {
		return conn, uuid.Nil, fmt.Errorf("%w: billing sync connection is not enabled", lberrors.ErrSyncDisabled)
	}

	orgID, err := uuid.Parse(s.cfg.BillingSync.OrganizationID)
	if err != nil {
		return conn, uuid.Nil, fmt.Errorf("%w: cloud organization id: %v", lberrors.ErrInvalidSyncConfig, err)
	}
	conn = domain.BillingSyncConfig{
		Enabled:             true,
		BillingSyncKey:      s.cfg.BillingSync.Key,
		CloudOrganizationID: orgID,
	}
	if !conn.Valid() {
		return conn, uuid.Nil, fmt.Errorf("%w: billing sync key is missing", lberrors.ErrInvalidSyncConfig)
	}

	installationID, err := uuid.Parse(s.cfg.Installation.ID)
	if err != nil {
		return conn, uuid.Nil, fmt.Errorf("%w: installation id: %v", lberrors.ErrInvalidSyncConfig, err)
	}
	if s.cfg.Installation.Key == "" {
		return conn, uuid.Nil, fmt.Errorf("%w: installation key is missing", lberrors.ErrInvalidSyncConfig)
	}
	return conn, installationID, nil
}

// licenseKey prefers the stored license's key; config seeds the very first
// sync.
func (s *syncService) licenseKey(ctx context.Context) string {
	stored, err := s.store.Load(ctx)
	if err == nil && stored.LicenseKey != "" {
		return stored.LicenseKey
	}
	return s.cfg.BillingSync.LicenseKey
}

func (s *syncService) client(ctx context.Context, installationID uuid.UUID) (*http.Client, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	if s.tokenSource == nil {
		cc := clientcredentials.Config{
			ClientID:     installationID.String(),
			ClientSecret: s.cfg.Installation.Key,
			TokenURL:     s.cfg.Cloud.IdentityURL + "/connect/token",
			Scopes:       []string{ScopeAPILicensing},
		}
		base := context.Background()
		if s.httpClient != nil {
			base = context.WithValue(base, oauth2.HTTPClient, s.httpClient)
		}
		s.tokenSource = cc.TokenSource(base)
	}

	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	client := oauth2.NewClient(ctx, s.tokenSource)
	client.Timeout = s.cfg.Cloud.SyncTimeout
	return client, nil
}
