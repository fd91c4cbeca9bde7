package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockbox/internal/config"
	lberrors "lockbox/internal/errors"
	"lockbox/internal/license"
)

// cloudStub fakes the identity and licensing endpoints a self-hosted sync
// talks to.
type cloudStub struct {
	server *httptest.Server

	tokenRequests   atomic.Int64
	licenseRequests atomic.Int64

	// licenseHandler serves POST /api/licenses/organization/{id}. Defaults to
	// returning a freshly signed license.
	licenseHandler http.HandlerFunc
}

func newCloudStub(t *testing.T, issued *license.OrganizationLicense) *cloudStub {
	t.Helper()
	stub := &cloudStub{}
	stub.licenseHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(issued))
	}

	r := chi.NewRouter()
	r.Post("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		stub.tokenRequests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "stub-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	r.Post("/api/licenses/organization/{id}", func(w http.ResponseWriter, r *http.Request) {
		stub.licenseRequests.Add(1)
		if r.Header.Get("Authorization") != "Bearer stub-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		stub.licenseHandler(w, r)
	})

	stub.server = httptest.NewServer(r)
	t.Cleanup(stub.server.Close)
	return stub
}

func issuedTestLicense(t *testing.T) *license.OrganizationLicense {
	t.Helper()
	registry := seededRegistry(t)
	l, err := NewIssuanceService(registry, registry, testSigner(t), nil).
		IssueOrganizationLicense(context.Background(), validIssueRequest())
	require.NoError(t, err)
	return l
}

func newSyncFixture(t *testing.T, stub *cloudStub) (*syncService, *license.Store) {
	t.Helper()
	store := license.NewStore(filepath.Join(t.TempDir(), "license.json"), nil)
	cfg := &config.Config{
		SelfHosted: true,
		Installation: config.InstallationConfig{
			ID:  testInstallationID.String(),
			Key: "installation-secret-0001",
		},
		Cloud: config.CloudConfig{
			IdentityURL:              stub.server.URL,
			APIURL:                   stub.server.URL,
			EnableCloudCommunication: true,
			SyncTimeout:              5 * time.Second,
		},
		BillingSync: config.BillingSyncConfig{
			Enabled:        true,
			Key:            "billing-sync-key-0001",
			OrganizationID: testOrganizationID.String(),
			LicenseKey:     "org-license-key-0001",
		},
	}
	svc := NewSyncService(cfg, store, testVerifier(t), nil, nil).(*syncService)
	svc.httpClient = stub.server.Client()
	return svc, store
}

func TestSyncReplacesStoredLicense(t *testing.T) {
	ctx := context.Background()
	issued := issuedTestLicense(t)
	stub := newCloudStub(t, issued)
	svc, store := newSyncFixture(t, stub)

	got, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, issued.Signature, got.Signature)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, issued.Hash, stored.Hash)
}

func TestSyncPreconditionsBlockNetworkTraffic(t *testing.T) {
	ctx := context.Background()
	stub := newCloudStub(t, issuedTestLicense(t))

	cases := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
	}{
		{
			name:    "cloud deployment",
			mutate:  func(cfg *config.Config) { cfg.SelfHosted = false },
			wantErr: lberrors.ErrSyncDisabled,
		},
		{
			name:    "cloud communication off",
			mutate:  func(cfg *config.Config) { cfg.Cloud.EnableCloudCommunication = false },
			wantErr: lberrors.ErrSyncDisabled,
		},
		{
			name:    "billing sync not enabled",
			mutate:  func(cfg *config.Config) { cfg.BillingSync.Enabled = false },
			wantErr: lberrors.ErrSyncDisabled,
		},
		{
			name:    "malformed organization id",
			mutate:  func(cfg *config.Config) { cfg.BillingSync.OrganizationID = "not-a-uuid" },
			wantErr: lberrors.ErrInvalidSyncConfig,
		},
		{
			name:    "missing billing sync key",
			mutate:  func(cfg *config.Config) { cfg.BillingSync.Key = "" },
			wantErr: lberrors.ErrInvalidSyncConfig,
		},
		{
			name:    "missing installation id",
			mutate:  func(cfg *config.Config) { cfg.Installation.ID = "" },
			wantErr: lberrors.ErrInvalidSyncConfig,
		},
		{
			name:    "missing installation key",
			mutate:  func(cfg *config.Config) { cfg.Installation.Key = "" },
			wantErr: lberrors.ErrInvalidSyncConfig,
		},
		{
			name: "no license key anywhere",
			mutate: func(cfg *config.Config) {
				cfg.BillingSync.LicenseKey = ""
			},
			wantErr: lberrors.ErrInvalidSyncConfig,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newSyncFixture(t, stub)
			tc.mutate(svc.cfg)

			before := stub.tokenRequests.Load() + stub.licenseRequests.Load()
			_, err := svc.Sync(ctx)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.False(t, lberrors.IsRetryable(err))
			assert.Equal(t, before, stub.tokenRequests.Load()+stub.licenseRequests.Load(),
				"precondition failures must not touch the network")
		})
	}
}

func TestSyncRejectedKeyIsNotRetryable(t *testing.T) {
	stub := newCloudStub(t, issuedTestLicense(t))
	stub.licenseHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}
	svc, store := newSyncFixture(t, stub)

	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, lberrors.ErrSyncKeyRejected)
	assert.ErrorIs(t, err, lberrors.ErrSyncFailed)
	assert.False(t, lberrors.IsRetryable(err))

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, license.ErrNoStoredLicense)
}

func TestSyncServerErrorIsRetryable(t *testing.T) {
	stub := newCloudStub(t, issuedTestLicense(t))
	stub.licenseHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	svc, _ := newSyncFixture(t, stub)

	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, lberrors.ErrSyncFailed)
	assert.True(t, lberrors.IsRetryable(err))
}

func TestSyncEmptyAndMalformedBodies(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		stub := newCloudStub(t, issuedTestLicense(t))
		stub.licenseHandler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}
		svc, _ := newSyncFixture(t, stub)

		_, err := svc.Sync(context.Background())
		assert.ErrorIs(t, err, lberrors.ErrSyncFailed)
		assert.True(t, lberrors.IsRetryable(err))
	})

	t.Run("malformed json", func(t *testing.T) {
		stub := newCloudStub(t, issuedTestLicense(t))
		stub.licenseHandler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}
		svc, _ := newSyncFixture(t, stub)

		_, err := svc.Sync(context.Background())
		assert.ErrorIs(t, err, lberrors.ErrSyncFailed)
	})
}

func TestSyncRejectsTamperedLicense(t *testing.T) {
	issued := issuedTestLicense(t)
	tampered := *issued
	tampered.Seats = intPtr(5000)

	stub := newCloudStub(t, &tampered)
	svc, store := newSyncFixture(t, stub)

	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, lberrors.ErrVerificationFailed)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, license.ErrNoStoredLicense)
}

func TestSyncReusesBearerToken(t *testing.T) {
	ctx := context.Background()
	stub := newCloudStub(t, issuedTestLicense(t))
	svc, _ := newSyncFixture(t, stub)

	_, err := svc.Sync(ctx)
	require.NoError(t, err)
	_, err = svc.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stub.tokenRequests.Load(),
		"second sync inside the token validity window must reuse the token")
	assert.Equal(t, int64(2), stub.licenseRequests.Load())
}

func TestSyncPrefersStoredLicenseKey(t *testing.T) {
	ctx := context.Background()
	issued := issuedTestLicense(t)
	stub := newCloudStub(t, issued)

	var gotKey atomic.Value
	stub.licenseHandler = func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LicenseKey string `json:"licenseKey"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotKey.Store(req.LicenseKey)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(issued)
	}

	svc, store := newSyncFixture(t, stub)
	require.NoError(t, store.Replace(ctx, issued))
	svc.cfg.BillingSync.LicenseKey = "stale-config-key"

	_, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, issued.LicenseKey, gotKey.Load())
}
