package license

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// canonicalField is one present-or-absent entry in a license's canonical
// field list. Absent optional fields are omitted from the serialization
// entirely, never encoded as empty.
type canonicalField struct {
	name    string
	since   int // license version that introduced the field
	value   string
	present bool
}

// Canonical value formats. These are frozen wire contracts verified against
// regression fixtures from already-issued files.
func formatBool(v bool) string       { return strconv.FormatBool(v) }
func formatTime(t time.Time) string  { return strconv.FormatInt(t.UTC().Unix(), 10) }
func formatUUID(id uuid.UUID) string { return id.String() }
func formatInt(v int) string         { return strconv.Itoa(v) }

func stringField(name string, since int, v string) canonicalField {
	return canonicalField{name: name, since: since, value: v, present: v != ""}
}

func boolField(name string, since int, v bool) canonicalField {
	return canonicalField{name: name, since: since, value: formatBool(v), present: true}
}

func intField(name string, since int, v *int) canonicalField {
	f := canonicalField{name: name, since: since}
	if v != nil {
		f.value = formatInt(*v)
		f.present = true
	}
	return f
}

func timeField(name string, since int, v time.Time) canonicalField {
	return canonicalField{name: name, since: since, value: formatTime(v), present: true}
}

func optionalTimeField(name string, since int, v *time.Time) canonicalField {
	f := canonicalField{name: name, since: since}
	if v != nil {
		f.value = formatTime(*v)
		f.present = true
	}
	return f
}

// serializeCanonical renders "license:{kind}|Key1:Value1|..." with keys
// ascending by field name, including only fields present on the subscriber
// and introduced at or before the license's version.
func serializeCanonical(kind Kind, version int, fields []canonicalField) []byte {
	included := make([]canonicalField, 0, len(fields))
	for _, f := range fields {
		if f.present && f.since <= version {
			included = append(included, f)
		}
	}
	sort.Slice(included, func(i, j int) bool { return included[i].name < included[j].name })

	var b strings.Builder
	b.WriteString("license:")
	b.WriteString(string(kind))
	for _, f := range included {
		b.WriteByte('|')
		b.WriteString(f.name)
		b.WriteByte(':')
		b.WriteString(f.value)
	}
	return []byte(b.String())
}

func hashCanonical(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// CanonicalBytes returns the canonical serialization of the license.
// forHash excludes Hash and Signature; otherwise only Signature (and the
// token, which is never part of any canonical layout) is excluded.
func (l *OrganizationLicense) CanonicalBytes(forHash bool) ([]byte, error) {
	if !SupportedVersion(KindOrganization, l.Version) {
		return nil, &UnsupportedVersionError{Kind: KindOrganization, Version: l.Version}
	}

	fields := []canonicalField{
		intField("Version", 1, &l.Version),
		stringField("Id", 1, formatUUID(l.ID)),
		stringField("Name", 1, l.Name),
		stringField("BillingEmail", 1, l.BillingEmail),
		stringField("BusinessName", 1, l.BusinessName),
		stringField("LicenseKey", 1, l.LicenseKey),
		{name: "InstallationId", since: 1, value: formatUUID(l.InstallationID), present: l.InstallationID != uuid.Nil},
		boolField("Enabled", 1, l.Enabled),
		stringField("PlanType", 1, string(l.Plan)),
		intField("Seats", 1, l.Seats),
		intField("MaxCollections", 1, l.MaxCollections),
		intField("MaxStorageGb", 1, l.MaxStorageGb),
		boolField("SelfHost", 1, l.SelfHost),
		boolField("UseGroups", 1, l.UseGroups),
		boolField("UseDirectory", 1, l.UseDirectory),
		boolField("UseTotp", 1, l.UseTotp),
		boolField("Use2fa", 1, l.Use2fa),
		boolField("UseApi", 1, l.UseApi),
		boolField("UseEvents", 1, l.UseEvents),
		boolField("UseResetPassword", 1, l.UseResetPassword),
		boolField("UseSso", 1, l.UseSso),
		boolField("UsersGetPremium", 1, l.UsersGetPremium),
		timeField("Issued", 1, l.Issued),
		timeField("Expires", 1, l.Expires),
		timeField("Refresh", 1, l.Refresh),
		boolField("Trial", 1, l.Trial),

		// Version 2 additions. Frozen.
		boolField("UseKeyConnector", 2, l.UseKeyConnector),
		boolField("UseScim", 2, l.UseScim),
		boolField("UseCustomPermissions", 2, l.UseCustomPermissions),
		optionalTimeField("ExpirationWithoutGracePeriod", 2, l.ExpirationWithoutGracePeriod),

		// Version 3 additions. Frozen. Anything newer ships as token claims.
		boolField("UsePasswordManager", 3, l.UsePasswordManager),
		boolField("UseSecretsManager", 3, l.UseSecretsManager),
		intField("SmSeats", 3, l.SmSeats),
		intField("SmServiceAccounts", 3, l.SmServiceAccounts),
		boolField("LimitCollectionManagement", 3, l.LimitCollectionManagement),
	}
	if !forHash {
		fields = append(fields, stringField("Hash", 1, l.Hash))
	}
	return serializeCanonical(KindOrganization, l.Version, fields), nil
}

// ComputeHash returns the base64 SHA-256 of the canonical serialization
// excluding Hash and Signature.
func (l *OrganizationLicense) ComputeHash() (string, error) {
	data, err := l.CanonicalBytes(true)
	if err != nil {
		return "", err
	}
	return hashCanonical(data), nil
}

// CanonicalBytes returns the canonical serialization of the license. See
// OrganizationLicense.CanonicalBytes for the forHash contract.
func (l *UserLicense) CanonicalBytes(forHash bool) ([]byte, error) {
	if !SupportedVersion(KindUser, l.Version) {
		return nil, &UnsupportedVersionError{Kind: KindUser, Version: l.Version}
	}

	fields := []canonicalField{
		intField("Version", 1, &l.Version),
		stringField("Id", 1, formatUUID(l.ID)),
		stringField("Name", 1, l.Name),
		stringField("Email", 1, l.Email),
		stringField("LicenseKey", 1, l.LicenseKey),
		boolField("Premium", 1, l.Premium),
		intField("MaxStorageGb", 1, l.MaxStorageGb),
		timeField("Issued", 1, l.Issued),
		timeField("Expires", 1, l.Expires),
		timeField("Refresh", 1, l.Refresh),
		optionalTimeField("ExpirationWithoutGracePeriod", 1, l.ExpirationWithoutGracePeriod),
		boolField("Trial", 1, l.Trial),
	}
	if !forHash {
		fields = append(fields, stringField("Hash", 1, l.Hash))
	}
	return serializeCanonical(KindUser, l.Version, fields), nil
}

// ComputeHash returns the base64 SHA-256 of the canonical serialization
// excluding Hash and Signature.
func (l *UserLicense) ComputeHash() (string, error) {
	data, err := l.CanonicalBytes(true)
	if err != nil {
		return "", err
	}
	return hashCanonical(data), nil
}
