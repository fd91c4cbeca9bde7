package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lberrors "lockbox/internal/errors"
	"lockbox/internal/infrastructure"
	"lockbox/internal/license"
)

// IssuanceService issues signed organization licenses on the cloud side.
type IssuanceService interface {
	// IssueOrganizationLicense validates the caller's installation and the
	// organization's sync credentials, then builds, hashes, signs, and
	// tokenizes a license in one atomic step. No partially signed license is
	// ever returned.
	IssueOrganizationLicense(ctx context.Context, req IssueOrganizationRequest) (*license.OrganizationLicense, error)

	// IssueUserLicense issues a premium user license bound to no
	// installation.
	IssueUserLicense(ctx context.Context, user license.User, sub *license.Subscription, version *int) (*license.UserLicense, error)
}

// IssueOrganizationRequest carries everything the issuance path needs.
type IssueOrganizationRequest struct {
	OrganizationID uuid.UUID
	InstallationID uuid.UUID
	LicenseKey     string
	BillingSyncKey string
	// Version pins the license version; nil means current.
	Version *int
}

type issuanceService struct {
	installations InstallationStore
	organizations OrganizationStore
	signer        *license.Signer
	logger        *slog.Logger
	now           func() time.Time
}

// NewIssuanceService wires the issuance orchestrator.
func NewIssuanceService(installations InstallationStore, organizations OrganizationStore, signer *license.Signer, logger *slog.Logger) IssuanceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &issuanceService{
		installations: installations,
		organizations: organizations,
		signer:        signer,
		logger:        logger.With(slog.String("component", "issuance")),
		now:           time.Now,
	}
}

func (s *issuanceService) IssueOrganizationLicense(ctx context.Context, req IssueOrganizationRequest) (*license.OrganizationLicense, error) {
	logger := infrastructure.LoggerWithContext(ctx).With(
		slog.String("component", "issuance"),
		slog.String("organization_id", req.OrganizationID.String()),
		slog.String("installation_id", req.InstallationID.String()))

	inst, err := s.installations.Installation(ctx, req.InstallationID)
	if err != nil {
		return nil, fmt.Errorf("look up installation: %w", err)
	}
	if inst == nil || !inst.Enabled {
		logger.WarnContext(ctx, "rejected issuance for unknown or disabled installation")
		return nil, lberrors.ErrInvalidInstallation
	}

	rec, err := s.organizations.Organization(ctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("look up organization: %w", err)
	}
	if rec == nil || rec.Organization.LicenseKey != req.LicenseKey {
		logger.WarnContext(ctx, "rejected issuance for unknown organization or license key mismatch")
		return nil, lberrors.ErrOrganizationNotFound
	}
	if rec.BillingSyncKey == "" || rec.BillingSyncKey != req.BillingSyncKey {
		logger.WarnContext(ctx, "rejected issuance for bad billing sync key")
		return nil, lberrors.ErrSyncKeyRejected
	}

	now := s.now()
	l, err := license.NewOrganizationLicense(rec.Organization, license.Context{
		Subscription:   rec.Subscription,
		InstallationID: req.InstallationID,
	}, now, req.Version)
	if err != nil {
		return nil, err
	}
	if err := s.signer.SignOrganizationLicense(l); err != nil {
		return nil, fmt.Errorf("sign organization license: %w", err)
	}

	logger.InfoContext(ctx, "issued organization license",
		slog.Int("version", l.Version),
		slog.Time("expires", l.Expires),
		slog.Bool("trial", l.Trial))
	return l, nil
}

func (s *issuanceService) IssueUserLicense(ctx context.Context, user license.User, sub *license.Subscription, version *int) (*license.UserLicense, error) {
	now := s.now()
	l, err := license.NewUserLicense(user, license.Context{Subscription: sub}, now, version)
	if err != nil {
		return nil, err
	}
	if err := s.signer.SignUserLicense(l); err != nil {
		return nil, fmt.Errorf("sign user license: %w", err)
	}
	infrastructure.LoggerWithContext(ctx).InfoContext(ctx, "issued user license",
		slog.String("component", "issuance"),
		slog.String("user_id", user.ID.String()),
		slog.Int("version", l.Version))
	return l, nil
}
