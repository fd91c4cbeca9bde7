package license

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Claim is one named assertion in a license's portable token.
type Claim struct {
	Key   string
	Value string
}

// Claim value formats are fixed so two processes on two machines emit
// byte-identical claims for the same inputs: booleans via strconv.FormatBool,
// numbers base-10, dates RFC 3339 UTC.
func claimTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

type claimList []Claim

func (c *claimList) add(key, value string) {
	*c = append(*c, Claim{Key: key, Value: value})
}

func (c *claimList) addBool(key string, v bool) {
	c.add(key, strconv.FormatBool(v))
}

func (c *claimList) addOptional(key, value string) {
	if value != "" {
		c.add(key, value)
	}
}

func (c *claimList) addOptionalInt(key string, v *int) {
	if v != nil {
		c.add(key, strconv.Itoa(*v))
	}
}

// BuildOrganizationClaims maps a populated organization license to its
// ordered claim list. Pure; no I/O. The core set is always emitted;
// subscriber-dependent claims are appended only when the field is present.
// This is the forward-compatible channel for new capabilities: a claim can be
// added here without touching any frozen canonical layout.
func BuildOrganizationClaims(l *OrganizationLicense) []Claim {
	var claims claimList

	claims.add("LicenseType", string(KindOrganization))
	claims.add("Id", l.ID.String())
	claims.addBool("Enabled", l.Enabled)
	claims.addBool("UseSso", l.UseSso)
	claims.addBool("UseKeyConnector", l.UseKeyConnector)
	claims.addBool("UseScim", l.UseScim)
	claims.addBool("UseGroups", l.UseGroups)
	claims.addBool("UseEvents", l.UseEvents)
	claims.addBool("UseDirectory", l.UseDirectory)
	claims.addBool("UseTotp", l.UseTotp)
	claims.addBool("Use2fa", l.Use2fa)
	claims.addBool("UseApi", l.UseApi)
	claims.addBool("UseResetPassword", l.UseResetPassword)
	claims.addBool("SelfHost", l.SelfHost)
	claims.addBool("UsersGetPremium", l.UsersGetPremium)
	claims.addBool("UseCustomPermissions", l.UseCustomPermissions)
	claims.addBool("UsePasswordManager", l.UsePasswordManager)
	claims.addBool("UseSecretsManager", l.UseSecretsManager)
	claims.addBool("LimitCollectionManagement", l.LimitCollectionManagement)
	claims.addBool("UseRiskInsights", l.UseRiskInsights)
	claims.addBool("UseAdminSponsoredFamilies", l.UseAdminSponsoredFamilies)
	claims.add("Issued", claimTime(l.Issued))
	claims.add("Expires", claimTime(l.Expires))
	claims.add("Refresh", claimTime(l.Refresh))
	if l.ExpirationWithoutGracePeriod != nil {
		claims.add("ExpirationWithoutGracePeriod", claimTime(*l.ExpirationWithoutGracePeriod))
	}
	claims.addBool("Trial", l.Trial)

	claims.addOptional("Name", l.Name)
	claims.addOptional("BillingEmail", l.BillingEmail)
	claims.addOptional("Plan", string(l.Plan))
	claims.addOptional("BusinessName", l.BusinessName)
	claims.addOptional("LicenseKey", l.LicenseKey)
	if l.InstallationID != uuid.Nil {
		claims.add("InstallationId", l.InstallationID.String())
	}
	claims.addOptionalInt("Seats", l.Seats)
	claims.addOptionalInt("MaxCollections", l.MaxCollections)
	claims.addOptionalInt("MaxStorageGb", l.MaxStorageGb)
	claims.addOptionalInt("SmSeats", l.SmSeats)
	claims.addOptionalInt("SmServiceAccounts", l.SmServiceAccounts)

	return claims
}

// BuildUserClaims maps a populated user license to its ordered claim list.
// Pure; no I/O.
func BuildUserClaims(l *UserLicense) []Claim {
	var claims claimList

	claims.add("LicenseType", string(KindUser))
	claims.add("Id", l.ID.String())
	claims.addBool("Premium", l.Premium)
	claims.add("Issued", claimTime(l.Issued))
	claims.add("Expires", claimTime(l.Expires))
	claims.add("Refresh", claimTime(l.Refresh))
	if l.ExpirationWithoutGracePeriod != nil {
		claims.add("ExpirationWithoutGracePeriod", claimTime(*l.ExpirationWithoutGracePeriod))
	}
	claims.addBool("Trial", l.Trial)

	claims.addOptional("Name", l.Name)
	claims.addOptional("Email", l.Email)
	claims.addOptional("LicenseKey", l.LicenseKey)
	claims.addOptionalInt("MaxStorageGb", l.MaxStorageGb)

	return claims
}
