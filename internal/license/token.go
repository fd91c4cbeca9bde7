package license

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Token handling. The token is a compact JWS (RS256) carrying the claims the
// builder emitted, identified by key id so verifiers with several trusted
// keys can select the right one. Claims added here never require a canonical
// layout change.
const (
	tokenIssuer    = "lockbox-licensing"
	tokenHeaderKID = "kid"
)

var tokenValidMethods = []string{"RS256"}

var (
	// ErrTokenMissingKeyID indicates a token whose JOSE header names no key.
	ErrTokenMissingKeyID = errors.New("license token header must contain kid")
	// ErrTokenUntrustedKey indicates a token signed by an unknown key.
	ErrTokenUntrustedKey = errors.New("license token signed by untrusted key")
)

// MintToken returns a signed compact token for the ordered claim list,
// expiring with the license.
func (s *Signer) MintToken(claims []Claim, expires time.Time) (string, error) {
	mapped := jwt.MapClaims{
		"iss": tokenIssuer,
		"iat": jwt.NewNumericDate(time.Now().UTC()),
		"exp": jwt.NewNumericDate(expires.UTC()),
	}
	for _, c := range claims {
		mapped[c.Key] = c.Value
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, mapped)
	tok.Header[tokenHeaderKID] = s.keyID
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("mint license token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a license token against the trusted keys and returns
// its claims. Expired or tampered tokens fail; claims from a parsed token may
// be trusted over the legacy license fields.
func (v *Verifier) ParseToken(raw string) (map[string]string, error) {
	tok, err := jwt.Parse(
		raw,
		v.tokenKeyFunc,
		jwt.WithValidMethods(tokenValidMethods),
	)
	if err != nil {
		return nil, fmt.Errorf("parse license token: %w", err)
	}
	mapped, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("license token claims are malformed")
	}

	claims := make(map[string]string, len(mapped))
	for key, value := range mapped {
		if s, ok := value.(string); ok {
			claims[key] = s
		}
	}
	return claims, nil
}

func (v *Verifier) tokenKeyFunc(tok *jwt.Token) (interface{}, error) {
	keyID, ok := tok.Header[tokenHeaderKID].(string)
	if !ok {
		return nil, ErrTokenMissingKeyID
	}
	key, ok := v.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenUntrustedKey, keyID)
	}
	return key, nil
}
