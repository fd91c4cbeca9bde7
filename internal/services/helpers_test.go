package services

import (
	"crypto/rand"
	"crypto/rsa"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lockbox/internal/license"
	"lockbox/pkg/contracts/domain"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

func testSigner(t *testing.T) *license.Signer {
	t.Helper()
	signer, err := license.NewSigner(testPrivateKey(t), "test-key-1")
	require.NoError(t, err)
	return signer
}

func testVerifier(t *testing.T) *license.Verifier {
	t.Helper()
	verifier, err := license.NewVerifier(map[string]*rsa.PublicKey{
		"test-key-1": &testPrivateKey(t).PublicKey,
	})
	require.NoError(t, err)
	return verifier
}

func intPtr(v int) *int { return &v }

var (
	testInstallationID = uuid.MustParse("91f1a1f7-58c1-4a34-9f62-7e2f5f6f2b11")
	testOrganizationID = uuid.MustParse("5f4c8128-a5d1-4a02-9c6d-3d4bbf1a9a01")
)

func seededRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry("", "", slog.Default())
	require.NoError(t, err)

	registry.AddInstallation(domain.Installation{
		ID:      testInstallationID,
		Key:     "installation-secret-0001",
		Enabled: true,
	})

	periodEnd := time.Now().UTC().AddDate(0, 2, 0)
	periodStart := periodEnd.AddDate(-1, 0, 0)
	registry.AddOrganization(OrganizationRecord{
		Organization: license.Organization{
			ID:           testOrganizationID,
			Name:         "Acme Rockets",
			BillingEmail: "billing@acme.test",
			LicenseKey:   "org-license-key-0001",
			Enabled:      true,
			Plan:         license.PlanEnterpriseAnnually,
			Seats:        intPtr(25),
			SelfHost:     true,
			UseSso:       true,
		},
		Subscription: &license.Subscription{
			PeriodStartDate: &periodStart,
			PeriodEndDate:   &periodEnd,
		},
		BillingSyncKey: "billing-sync-key-0001",
	})
	return registry
}
