package license

import (
	"time"
)

// NewOrganizationLicense populates a fresh, unsigned organization license
// from an immutable subscriber snapshot. version nil means the current
// format; an unsupported version fails here, before any field is stamped.
// The caller signs the result exactly once and never mutates it afterwards.
func NewOrganizationLicense(org Organization, licenseCtx Context, now time.Time, version *int) (*OrganizationLicense, error) {
	v, err := resolveVersion(KindOrganization, version)
	if err != nil {
		return nil, err
	}

	terms := Compute(licenseCtx.Subscription, org.Plan, org.ExpirationDate, now)

	l := &OrganizationLicense{
		Version:        v,
		ID:             org.ID,
		Name:           org.Name,
		BillingEmail:   org.BillingEmail,
		BusinessName:   org.BusinessName,
		LicenseKey:     org.LicenseKey,
		InstallationID: licenseCtx.InstallationID,
		Enabled:        org.Enabled,
		Plan:           org.Plan,

		Seats:             org.Seats,
		MaxCollections:    org.MaxCollections,
		MaxStorageGb:      org.MaxStorageGb,
		SmSeats:           org.SmSeats,
		SmServiceAccounts: org.SmServiceAccounts,

		UseSso:                    org.UseSso,
		UseKeyConnector:           org.UseKeyConnector,
		UseScim:                   org.UseScim,
		UseGroups:                 org.UseGroups,
		UseEvents:                 org.UseEvents,
		UseDirectory:              org.UseDirectory,
		UseTotp:                   org.UseTotp,
		Use2fa:                    org.Use2fa,
		UseApi:                    org.UseApi,
		UseResetPassword:          org.UseResetPassword,
		SelfHost:                  org.SelfHost,
		UsersGetPremium:           org.UsersGetPremium,
		UseCustomPermissions:      org.UseCustomPermissions,
		UsePasswordManager:        org.UsePasswordManager,
		UseSecretsManager:         org.UseSecretsManager,
		LimitCollectionManagement: org.LimitCollectionManagement,
		UseRiskInsights:           org.UseRiskInsights,
		UseAdminSponsoredFamilies: org.UseAdminSponsoredFamilies,

		Issued:                       now,
		Expires:                      terms.Expires,
		ExpirationWithoutGracePeriod: terms.ExpirationWithoutGracePeriod,
		Refresh:                      terms.Refresh,
		Trial:                        terms.Trial,
	}
	return l, nil
}

// NewUserLicense populates a fresh, unsigned user license from an immutable
// subscriber snapshot.
func NewUserLicense(user User, licenseCtx Context, now time.Time, version *int) (*UserLicense, error) {
	v, err := resolveVersion(KindUser, version)
	if err != nil {
		return nil, err
	}

	plan := PlanFree
	if user.Premium {
		plan = PlanCustom
	}
	terms := Compute(licenseCtx.Subscription, plan, user.PremiumExpirationDate, now)

	l := &UserLicense{
		Version:    v,
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		LicenseKey: user.LicenseKey,
		Premium:    user.Premium,

		MaxStorageGb: user.MaxStorageGb,

		Issued:                       now,
		Expires:                      terms.Expires,
		ExpirationWithoutGracePeriod: terms.ExpirationWithoutGracePeriod,
		Refresh:                      terms.Refresh,
		Trial:                        terms.Trial,
	}
	return l, nil
}
