package license

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Signer signs licenses with the deployment tier's private key. The key is
// loaded once at process start and is immutable afterwards; Sign is stateless
// and safe for concurrent use.
type Signer struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewSigner wraps a private key. keyID names the key in minted tokens so a
// verifier holding several trusted keys can pick the right one.
func NewSigner(key *rsa.PrivateKey, keyID string) (*Signer, error) {
	if key == nil {
		return nil, ErrMissingPrivateKey
	}
	if keyID == "" {
		return nil, errors.New("signing key id is required")
	}
	return &Signer{key: key, keyID: keyID}, nil
}

// KeyID returns the identifier stamped into minted tokens.
func (s *Signer) KeyID() string { return s.keyID }

// PublicKey returns the public half of the signing key.
func (s *Signer) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// Sign produces an RSA-SHA256 PKCS#1 v1.5 signature over data. The algorithm
// is a wire contract: every verifier in the field holds the matching public
// key and expects exactly this scheme.
func (s *Signer) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign license payload: %w", err)
	}
	return sig, nil
}

// SignOrganizationLicense computes and stores the license's Hash, Signature,
// and Token, strictly in that order. The license must not be mutated after
// this returns.
func (s *Signer) SignOrganizationLicense(l *OrganizationLicense) error {
	hash, err := l.ComputeHash()
	if err != nil {
		return err
	}
	l.Hash = hash

	payload, err := l.CanonicalBytes(false)
	if err != nil {
		return err
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return err
	}
	l.Signature = base64.StdEncoding.EncodeToString(sig)

	token, err := s.MintToken(BuildOrganizationClaims(l), l.Expires)
	if err != nil {
		return err
	}
	l.Token = token
	return nil
}

// SignUserLicense computes and stores Hash, Signature, and Token for a user
// license, in that order.
func (s *Signer) SignUserLicense(l *UserLicense) error {
	hash, err := l.ComputeHash()
	if err != nil {
		return err
	}
	l.Hash = hash

	payload, err := l.CanonicalBytes(false)
	if err != nil {
		return err
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return err
	}
	l.Signature = base64.StdEncoding.EncodeToString(sig)

	token, err := s.MintToken(BuildUserClaims(l), l.Expires)
	if err != nil {
		return err
	}
	l.Token = token
	return nil
}

// Verifier checks license signatures. It can hold several trusted public
// keys so a deployment survives a signing key rotation window.
type Verifier struct {
	keys map[string]*rsa.PublicKey
}

// NewVerifier builds a verifier over the given trusted keys, keyed by key id.
func NewVerifier(keys map[string]*rsa.PublicKey) (*Verifier, error) {
	if len(keys) == 0 {
		return nil, errors.New("verifier requires at least one trusted public key")
	}
	trusted := make(map[string]*rsa.PublicKey, len(keys))
	for id, key := range keys {
		trusted[id] = key
	}
	return &Verifier{keys: trusted}, nil
}

// VerifySignature reports whether sig is a valid signature over data by any
// trusted key. It never returns an error a caller could mistake for success.
func (v *Verifier) VerifySignature(data, sig []byte) bool {
	digest := sha256.Sum256(data)
	for _, key := range v.keys {
		if rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig) == nil {
			return true
		}
	}
	return false
}

// LoadPrivateKey reads a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s is not RSA", path)
	}
	return key, nil
}

// LoadPublicKey reads a PEM-encoded RSA public key (PKIX or PKCS#1).
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key %s is not RSA", path)
	}
	return key, nil
}
