package license

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignOrganizationLicense(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := testIssuedLicense(t, now)

	assert.NotEmpty(t, l.Hash)
	assert.NotEmpty(t, l.Signature)
	assert.NotEmpty(t, l.Token)

	expected, err := l.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, expected, l.Hash, "stored hash must cover the final field values")
}

func TestVerifySignatureRoundtrip(t *testing.T) {
	signer := testSigner(t)
	verifier := testVerifier(t)

	payload := []byte("license:organization|Enabled:true")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	assert.True(t, verifier.VerifySignature(payload, sig))
	assert.False(t, verifier.VerifySignature([]byte("license:organization|Enabled:false"), sig))
	assert.False(t, verifier.VerifySignature(payload, sig[:len(sig)-1]))
}

func TestVerifierKeyRotation(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	oldSigner, err := NewSigner(oldKey, "licensing-1")
	require.NoError(t, err)

	payload := []byte("license:user|Premium:true")
	sig, err := oldSigner.Sign(payload)
	require.NoError(t, err)

	// A verifier trusting both keys accepts licenses from either era.
	both, err := NewVerifier(map[string]*rsa.PublicKey{
		"licensing-1": &oldKey.PublicKey,
		"licensing-2": &newKey.PublicKey,
	})
	require.NoError(t, err)
	assert.True(t, both.VerifySignature(payload, sig))

	onlyNew, err := NewVerifier(map[string]*rsa.PublicKey{
		"licensing-2": &newKey.PublicKey,
	})
	require.NoError(t, err)
	assert.False(t, onlyNew.VerifySignature(payload, sig))
}

func TestNewVerifierRequiresKeys(t *testing.T) {
	_, err := NewVerifier(nil)
	assert.Error(t, err)
}

func TestNewSignerRequiresKey(t *testing.T) {
	_, err := NewSigner(nil, "id")
	assert.ErrorIs(t, err, ErrMissingPrivateKey)
}
