package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
	"lockbox/internal/license"
	api "lockbox/pkg/contracts/api/v1"
)

// ScopeAPILicensing is the only scope the identity endpoint grants.
const ScopeAPILicensing = "api.licensing"

// accessTokenTTL bounds how long a sync client can reuse a bearer token.
const accessTokenTTL = time.Hour

// IdentityService exchanges installation credentials for short-lived bearer
// tokens and validates them on the licensing endpoints.
type IdentityService interface {
	IssueToken(ctx context.Context, req api.TokenRequest) (*api.TokenResponse, error)
	ValidateToken(ctx context.Context, raw string) (uuid.UUID, error)
}

type identityService struct {
	installations InstallationStore
	signer        *license.Signer
	verifier      *license.Verifier
	logger        *slog.Logger
}

// NewIdentityService wires the client-credentials identity endpoint. The
// verifier must trust the signer's key.
func NewIdentityService(installations InstallationStore, signer *license.Signer, verifier *license.Verifier, logger *slog.Logger) IdentityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &identityService{
		installations: installations,
		signer:        signer,
		verifier:      verifier,
		logger:        logger.With(slog.String("component", "identity")),
	}
}

func (s *identityService) IssueToken(ctx context.Context, req api.TokenRequest) (*api.TokenResponse, error) {
	logger := infrastructure.LoggerWithContext(ctx).With(slog.String("component", "identity"))

	if req.GrantType != "client_credentials" || req.Scope != ScopeAPILicensing {
		logger.WarnContext(ctx, "rejected token request",
			slog.String("grant_type", req.GrantType),
			slog.String("scope", req.Scope))
		return nil, lberrors.ErrInvalidInstallation
	}

	installationID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return nil, lberrors.ErrInvalidInstallation
	}
	inst, err := s.installations.Installation(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("look up installation: %w", err)
	}
	if inst == nil || !inst.Enabled {
		logger.WarnContext(ctx, "rejected token request for unknown or disabled installation",
			slog.String("installation_id", installationID.String()))
		return nil, lberrors.ErrInvalidInstallation
	}
	if subtle.ConstantTimeCompare([]byte(inst.Key), []byte(req.ClientSecret)) != 1 {
		logger.WarnContext(ctx, "rejected token request for bad installation key",
			slog.String("installation_id", installationID.String()))
		return nil, lberrors.ErrInvalidInstallation
	}

	expires := time.Now().Add(accessTokenTTL)
	token, err := s.signer.MintToken([]license.Claim{
		{Key: "sub", Value: installationID.String()},
		{Key: "scope", Value: ScopeAPILicensing},
	}, expires)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	logger.InfoContext(ctx, "issued access token",
		slog.String("installation_id", installationID.String()))
	return &api.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessTokenTTL.Seconds()),
		Scope:       ScopeAPILicensing,
	}, nil
}

func (s *identityService) ValidateToken(ctx context.Context, raw string) (uuid.UUID, error) {
	claims, err := s.verifier.ParseToken(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("validate access token: %w", err)
	}
	if claims["scope"] != ScopeAPILicensing {
		return uuid.Nil, fmt.Errorf("access token scope %q is not %s", claims["scope"], ScopeAPILicensing)
	}
	installationID, err := uuid.Parse(claims["sub"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("access token subject is not an installation id: %w", err)
	}
	return installationID, nil
}
