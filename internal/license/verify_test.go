package license

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyOrganization(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := testIssuedLicense(t, now)
	verifier := testVerifier(t)
	org := testOrganization()

	t.Run("valid license passes every check", func(t *testing.T) {
		assert.True(t, verifier.VerifyOrganization(l, org, l.InstallationID, now))
	})

	t.Run("nil license fails closed", func(t *testing.T) {
		assert.False(t, verifier.VerifyOrganization(nil, org, l.InstallationID, now))
	})

	t.Run("tampered field fails the hash check", func(t *testing.T) {
		tampered := *l
		tampered.Seats = intPtr(9999)
		assert.False(t, verifier.VerifyOrganization(&tampered, org, l.InstallationID, now))
	})

	t.Run("recomputed hash without resigning fails the signature check", func(t *testing.T) {
		tampered := *l
		tampered.Enabled = false
		hash, err := tampered.ComputeHash()
		require.NoError(t, err)
		tampered.Hash = hash
		assert.False(t, verifier.VerifyOrganization(&tampered, org, l.InstallationID, now))
	})

	t.Run("wrong installation fails", func(t *testing.T) {
		assert.False(t, verifier.VerifyOrganization(l, org, uuid.New(), now))
	})

	t.Run("subscriber mismatch fails", func(t *testing.T) {
		other := org
		other.LicenseKey = "some-other-key"
		assert.False(t, verifier.VerifyOrganization(l, other, l.InstallationID, now))
	})

	t.Run("expired license fails", func(t *testing.T) {
		afterExpiry := l.Expires.Add(time.Second)
		assert.False(t, verifier.VerifyOrganization(l, org, l.InstallationID, afterExpiry))
	})

	t.Run("expiry instant itself still passes", func(t *testing.T) {
		assert.True(t, verifier.VerifyOrganization(l, org, l.InstallationID, l.Expires))
	})

	t.Run("missing signature fails", func(t *testing.T) {
		unsigned := *l
		unsigned.Signature = ""
		assert.False(t, verifier.VerifyOrganization(&unsigned, org, l.InstallationID, now))
	})
}

func TestVerifyUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	user := User{
		ID:         uuid.New(),
		Name:       "Jo Doe",
		Email:      "jo@example.test",
		LicenseKey: "user-license-key-0001",
		Premium:    true,
	}
	l, err := NewUserLicense(user, Context{}, now, nil)
	require.NoError(t, err)
	require.NoError(t, testSigner(t).SignUserLicense(l))
	verifier := testVerifier(t)

	assert.True(t, verifier.VerifyUser(l, user, now))

	t.Run("email comparison is case-insensitive", func(t *testing.T) {
		upper := user
		upper.Email = "JO@EXAMPLE.TEST"
		assert.True(t, verifier.VerifyUser(l, upper, now))
	})

	t.Run("different account fails", func(t *testing.T) {
		other := user
		other.ID = uuid.New()
		assert.False(t, verifier.VerifyUser(l, other, now))
	})
}

func TestVerifyIntegrity(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := testIssuedLicense(t, now)
	verifier := testVerifier(t)

	assert.True(t, verifier.VerifyIntegrity(l))
	assert.False(t, verifier.VerifyIntegrity(nil))

	tampered := *l
	tampered.Trial = !tampered.Trial
	assert.False(t, verifier.VerifyIntegrity(&tampered))
}

func TestCanUse(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := testIssuedLicense(t, now)

	t.Run("usable license has no reasons", func(t *testing.T) {
		ok, reasons := l.CanUse(l.InstallationID, now)
		assert.True(t, ok)
		assert.Empty(t, reasons)
	})

	t.Run("accumulates every failure reason", func(t *testing.T) {
		bad := *l
		bad.Enabled = false
		bad.SelfHost = false
		ok, reasons := bad.CanUse(uuid.New(), bad.Expires.Add(time.Hour))
		assert.False(t, ok)
		assert.Len(t, reasons, 4)
	})

	t.Run("future issue date is rejected", func(t *testing.T) {
		ok, reasons := l.CanUse(l.InstallationID, now.Add(-time.Hour))
		assert.False(t, ok)
		assert.Contains(t, reasons, "the license has not been issued yet")
	})
}
