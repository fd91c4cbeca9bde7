package license

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// testPrivateKey generates one RSA key for the whole package's tests.
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

func testSigner(t *testing.T) *Signer {
	t.Helper()
	signer, err := NewSigner(testPrivateKey(t), "test-key-1")
	require.NoError(t, err)
	return signer
}

func testVerifier(t *testing.T) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(map[string]*rsa.PublicKey{
		"test-key-1": &testPrivateKey(t).PublicKey,
	})
	require.NoError(t, err)
	return verifier
}

func intPtr(v int) *int              { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func testOrganization() Organization {
	return Organization{
		ID:           uuid.MustParse("5f4c8128-a5d1-4a02-9c6d-3d4bbf1a9a01"),
		Name:         "Acme Rockets",
		BillingEmail: "billing@acme.test",
		LicenseKey:   "org-license-key-0001",
		Enabled:      true,
		Plan:         PlanEnterpriseAnnually,
		Seats:        intPtr(25),
		UseSso:       true,
		UseGroups:    true,
		SelfHost:     true,
	}
}

func testIssuedLicense(t *testing.T, now time.Time) *OrganizationLicense {
	t.Helper()
	installationID := uuid.MustParse("91f1a1f7-58c1-4a34-9f62-7e2f5f6f2b11")
	sub := &Subscription{
		PeriodStartDate: timePtr(now.AddDate(-1, 0, 30)),
		PeriodEndDate:   timePtr(now.AddDate(0, 0, 30)),
	}
	l, err := NewOrganizationLicense(testOrganization(), Context{
		Subscription:   sub,
		InstallationID: installationID,
	}, now, nil)
	require.NoError(t, err)
	require.NoError(t, testSigner(t).SignOrganizationLicense(l))
	return l
}
