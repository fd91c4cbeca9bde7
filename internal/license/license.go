package license

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the two license shapes.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindUser         Kind = "user"
)

// PlanType identifies the billing plan a license asserts.
type PlanType string

const (
	PlanFree               PlanType = "Free"
	PlanFamilies           PlanType = "Families"
	PlanTeamsMonthly       PlanType = "TeamsMonthly"
	PlanTeamsAnnually      PlanType = "TeamsAnnually"
	PlanEnterpriseMonthly  PlanType = "EnterpriseMonthly"
	PlanEnterpriseAnnually PlanType = "EnterpriseAnnually"
	PlanCustom             PlanType = "Custom"
)

// Supported license format versions. These are closed sets: a version outside
// the set fails with UnsupportedVersionError at construction and at
// serialization, never silently.
const (
	// OrganizationLicenseVersion is the current organization license format.
	OrganizationLicenseVersion = 3
	// UserLicenseVersion is the current (and only) user license format.
	UserLicenseVersion = 1
)

var (
	organizationVersions = map[int]bool{1: true, 2: true, 3: true}
	userVersions         = map[int]bool{1: true}
)

// OrganizationLicense is a signed, time-bounded entitlement record for an
// organization. Once signed it is immutable; a new license is issued rather
// than patching an existing one.
type OrganizationLicense struct {
	Version        int       `json:"Version"`
	ID             uuid.UUID `json:"Id"`
	Name           string    `json:"Name,omitempty"`
	BillingEmail   string    `json:"BillingEmail,omitempty"`
	BusinessName   string    `json:"BusinessName,omitempty"`
	LicenseKey     string    `json:"LicenseKey,omitempty"`
	InstallationID uuid.UUID `json:"InstallationId"`
	Enabled        bool      `json:"Enabled"`
	Plan           PlanType  `json:"PlanType"`

	Seats             *int `json:"Seats"`
	MaxCollections    *int `json:"MaxCollections"`
	MaxStorageGb      *int `json:"MaxStorageGb"`
	SmSeats           *int `json:"SmSeats"`
	SmServiceAccounts *int `json:"SmServiceAccounts"`

	UseSso                    bool `json:"UseSso"`
	UseKeyConnector           bool `json:"UseKeyConnector"`
	UseScim                   bool `json:"UseScim"`
	UseGroups                 bool `json:"UseGroups"`
	UseEvents                 bool `json:"UseEvents"`
	UseDirectory              bool `json:"UseDirectory"`
	UseTotp                   bool `json:"UseTotp"`
	Use2fa                    bool `json:"Use2fa"`
	UseApi                    bool `json:"UseApi"`
	UseResetPassword          bool `json:"UseResetPassword"`
	SelfHost                  bool `json:"SelfHost"`
	UsersGetPremium           bool `json:"UsersGetPremium"`
	UseCustomPermissions      bool `json:"UseCustomPermissions"`
	UsePasswordManager        bool `json:"UsePasswordManager"`
	UseSecretsManager         bool `json:"UseSecretsManager"`
	LimitCollectionManagement bool `json:"LimitCollectionManagement"`

	// Informational flags carried only in the token claims; they are not part
	// of any frozen canonical layout.
	UseRiskInsights           bool `json:"UseRiskInsights"`
	UseAdminSponsoredFamilies bool `json:"UseAdminSponsoredFamilies"`

	Issued                       time.Time  `json:"Issued"`
	Expires                      time.Time  `json:"Expires"`
	ExpirationWithoutGracePeriod *time.Time `json:"ExpirationWithoutGracePeriod"`
	Refresh                      time.Time  `json:"Refresh"`
	Trial                        bool       `json:"Trial"`

	Hash      string `json:"Hash,omitempty"`
	Signature string `json:"Signature,omitempty"`
	Token     string `json:"Token,omitempty"`
}

// Kind returns KindOrganization.
func (l *OrganizationLicense) Kind() Kind { return KindOrganization }

// UserLicense is a signed, time-bounded entitlement record for an individual
// premium user.
type UserLicense struct {
	Version    int       `json:"Version"`
	ID         uuid.UUID `json:"Id"`
	Name       string    `json:"Name,omitempty"`
	Email      string    `json:"Email,omitempty"`
	LicenseKey string    `json:"LicenseKey,omitempty"`
	Premium    bool      `json:"Premium"`

	MaxStorageGb *int `json:"MaxStorageGb"`

	Issued                       time.Time  `json:"Issued"`
	Expires                      time.Time  `json:"Expires"`
	ExpirationWithoutGracePeriod *time.Time `json:"ExpirationWithoutGracePeriod"`
	Refresh                      time.Time  `json:"Refresh"`
	Trial                        bool       `json:"Trial"`

	Hash      string `json:"Hash,omitempty"`
	Signature string `json:"Signature,omitempty"`
	Token     string `json:"Token,omitempty"`
}

// Kind returns KindUser.
func (l *UserLicense) Kind() Kind { return KindUser }

// SupportedVersion reports whether version is a shipped format for the kind.
func SupportedVersion(kind Kind, version int) bool {
	switch kind {
	case KindOrganization:
		return organizationVersions[version]
	case KindUser:
		return userVersions[version]
	default:
		return false
	}
}

// resolveVersion picks the explicit version when given, otherwise the current
// one, and rejects anything outside the closed set.
func resolveVersion(kind Kind, explicit *int) (int, error) {
	version := 0
	switch kind {
	case KindOrganization:
		version = OrganizationLicenseVersion
	case KindUser:
		version = UserLicenseVersion
	}
	if explicit != nil {
		version = *explicit
	}
	if !SupportedVersion(kind, version) {
		return 0, &UnsupportedVersionError{Kind: kind, Version: version}
	}
	return version, nil
}
