package http

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lberrors "lockbox/internal/errors"
	"lockbox/internal/license"
)

// stubSync satisfies services.SyncService with canned results.
type stubSync struct {
	license *license.OrganizationLicense
	err     error
	calls   int
}

func (s *stubSync) Sync(ctx context.Context) (*license.OrganizationLicense, error) {
	s.calls++
	return s.license, s.err
}

type agentFixture struct {
	handler *AgentHandler
	router  chi.Router
	store   *license.Store
	sync    *stubSync
	signer  *license.Signer
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()
	key := testSigningKey(t)
	signer, err := license.NewSigner(key, "test-key-1")
	require.NoError(t, err)
	verifier, err := license.NewVerifier(map[string]*rsa.PublicKey{"test-key-1": &key.PublicKey})
	require.NoError(t, err)

	store := license.NewStore(filepath.Join(t.TempDir(), "license.json"), nil)
	syncStub := &stubSync{}
	handler := NewAgentHandler(store, verifier, syncStub, fixtureInstallationID, slog.Default())
	return &agentFixture{
		handler: handler,
		router:  handler.Routes(slog.Default(), nil),
		store:   store,
		sync:    syncStub,
		signer:  signer,
	}
}

func (f *agentFixture) signedLicense(t *testing.T) *license.OrganizationLicense {
	t.Helper()
	seats := 25
	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 2, 0)
	periodStart := periodEnd.AddDate(-1, 0, 0)
	l, err := license.NewOrganizationLicense(license.Organization{
		ID:         fixtureOrganizationID,
		Name:       "Acme Rockets",
		LicenseKey: "org-license-key-0001",
		Enabled:    true,
		Plan:       license.PlanEnterpriseAnnually,
		Seats:      &seats,
		SelfHost:   true,
	}, license.Context{
		Subscription: &license.Subscription{
			PeriodStartDate: &periodStart,
			PeriodEndDate:   &periodEnd,
		},
		InstallationID: fixtureInstallationID,
	}, now, nil)
	require.NoError(t, err)
	require.NoError(t, f.signer.SignOrganizationLicense(l))
	return l
}

func (f *agentFixture) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestAgentLicenseStatus(t *testing.T) {
	t.Run("missing license", func(t *testing.T) {
		f := newAgentFixture(t)

		rec := f.do(http.MethodGet, "/license/status")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LicenseStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "missing", resp.Status)
	})

	t.Run("valid license", func(t *testing.T) {
		f := newAgentFixture(t)
		require.NoError(t, f.store.Replace(context.Background(), f.signedLicense(t)))

		rec := f.do(http.MethodGet, "/license/status")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LicenseStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "valid", resp.Status)
		assert.Empty(t, resp.Reasons)
		assert.Equal(t, string(license.PlanEnterpriseAnnually), resp.Plan)
		assert.NotNil(t, resp.Expires)
	})

	t.Run("license bound to another installation", func(t *testing.T) {
		f := newAgentFixture(t)
		l := f.signedLicense(t)
		require.NoError(t, f.store.Replace(context.Background(), l))

		other := NewAgentHandler(f.store, f.handler.verifier, f.sync, uuid.New(), slog.Default())
		rec := httptest.NewRecorder()
		other.Routes(slog.Default(), nil).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/license/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LicenseStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unusable", resp.Status)
		assert.NotEmpty(t, resp.Reasons)
	})

	t.Run("tampered license", func(t *testing.T) {
		f := newAgentFixture(t)
		l := f.signedLicense(t)
		bigger := 9999
		l.Seats = &bigger
		require.NoError(t, f.store.Replace(context.Background(), l))

		rec := f.do(http.MethodGet, "/license/status")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LicenseStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unverified", resp.Status)
	})
}

func TestAgentTriggerSync(t *testing.T) {
	t.Run("success returns the synced license", func(t *testing.T) {
		f := newAgentFixture(t)
		f.sync.license = f.signedLicense(t)

		rec := f.do(http.MethodPost, "/license/sync")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, f.sync.calls)

		var l license.OrganizationLicense
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l))
		assert.Equal(t, fixtureOrganizationID, l.ID)
	})

	t.Run("disabled sync maps to 409", func(t *testing.T) {
		f := newAgentFixture(t)
		f.sync.err = lberrors.ErrSyncDisabled

		rec := f.do(http.MethodPost, "/license/sync")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejected sync key maps to 400", func(t *testing.T) {
		f := newAgentFixture(t)
		f.sync.err = lberrors.ErrSyncKeyRejected

		rec := f.do(http.MethodPost, "/license/sync")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("transient failure maps to 502 with retryable flag", func(t *testing.T) {
		f := newAgentFixture(t)
		f.sync.err = &lberrors.SyncFailure{Phase: "licensing request", Err: context.DeadlineExceeded}

		rec := f.do(http.MethodPost, "/license/sync")
		require.Equal(t, http.StatusBadGateway, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["retryable"])
	})
}

func TestAgentEntitlements(t *testing.T) {
	t.Run("gated behind a stored license", func(t *testing.T) {
		f := newAgentFixture(t)

		rec := f.do(http.MethodGet, "/license/entitlements")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns the token claims", func(t *testing.T) {
		f := newAgentFixture(t)
		require.NoError(t, f.store.Replace(context.Background(), f.signedLicense(t)))

		rec := f.do(http.MethodGet, "/license/entitlements")
		require.Equal(t, http.StatusOK, rec.Code)

		var claims map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claims))
		assert.Equal(t, "organization", claims["LicenseType"])
		assert.Equal(t, fixtureOrganizationID.String(), claims["Id"])
		assert.Equal(t, "25", claims["Seats"])
	})
}
