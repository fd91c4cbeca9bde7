package license

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the immutable subscriber snapshot an organization license
// is issued from. The issuance path copies the record it looks up so a
// concurrent update can never leak into a half-built license.
type Organization struct {
	ID           uuid.UUID
	Name         string
	BillingEmail string
	BusinessName string
	LicenseKey   string
	Enabled      bool
	Plan         PlanType

	Seats             *int
	MaxCollections    *int
	MaxStorageGb      *int
	SmSeats           *int
	SmServiceAccounts *int

	UseSso                    bool
	UseKeyConnector           bool
	UseScim                   bool
	UseGroups                 bool
	UseEvents                 bool
	UseDirectory              bool
	UseTotp                   bool
	Use2fa                    bool
	UseApi                    bool
	UseResetPassword          bool
	SelfHost                  bool
	UsersGetPremium           bool
	UseCustomPermissions      bool
	UsePasswordManager        bool
	UseSecretsManager         bool
	LimitCollectionManagement bool
	UseRiskInsights           bool
	UseAdminSponsoredFamilies bool

	// ExpirationDate is the expiration recorded against the subscriber, if
	// any. The temporal rules never extend a date that is already in the
	// past.
	ExpirationDate *time.Time
}

// User is the immutable subscriber snapshot a user license is issued from.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	LicenseKey   string
	Premium      bool
	MaxStorageGb *int

	PremiumExpirationDate *time.Time
}

// Subscription is the opaque billing snapshot supplied by the billing
// collaborator. All fields are read-only to this package.
type Subscription struct {
	TrialEndDate     *time.Time
	PeriodStartDate  *time.Time
	PeriodEndDate    *time.Time
	CollectionMethod string
}

// Context carries the optional issuance inputs: the subscription snapshot
// from billing and the identity of the installation the license is bound to.
type Context struct {
	Subscription   *Subscription
	InstallationID uuid.UUID
}
