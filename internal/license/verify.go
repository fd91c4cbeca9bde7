package license

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VerifyOrganization performs the consumer-side checks on a stored or
// received organization license, in order: recompute and compare the hash,
// verify the signature, match the installation, match the live subscriber,
// and check expiry. All must pass; any single failure fails the whole call
// closed. The result is strictly boolean so no caller can mistake a failure
// for an entitlement.
func (v *Verifier) VerifyOrganization(l *OrganizationLicense, org Organization, installationID uuid.UUID, now time.Time) bool {
	if l == nil {
		return false
	}

	if !v.verifyIntegrity(l, l.Hash, l.Signature) {
		return false
	}

	if l.InstallationID != installationID {
		return false
	}

	if l.ID != org.ID ||
		l.Name != org.Name ||
		l.LicenseKey == "" ||
		l.LicenseKey != org.LicenseKey {
		return false
	}

	return !now.After(l.Expires)
}

// VerifyUser performs the consumer-side checks on a user license. User
// licenses are not installation-bound; the subscriber comparison uses the
// account's email case-insensitively, matching how accounts are keyed.
func (v *Verifier) VerifyUser(l *UserLicense, user User, now time.Time) bool {
	if l == nil {
		return false
	}

	if !v.verifyIntegrity(l, l.Hash, l.Signature) {
		return false
	}

	if l.ID != user.ID ||
		!strings.EqualFold(l.Email, user.Email) ||
		l.LicenseKey == "" ||
		l.LicenseKey != user.LicenseKey {
		return false
	}

	return !now.After(l.Expires)
}

// VerifyIntegrity checks only the hash and signature of a received
// organization license. The sync client uses it before storing a license,
// where no live subscriber record exists to compare against.
func (v *Verifier) VerifyIntegrity(l *OrganizationLicense) bool {
	if l == nil {
		return false
	}
	return v.verifyIntegrity(l, l.Hash, l.Signature)
}

// canonicalizer is the narrow surface verifyIntegrity needs from a license.
type canonicalizer interface {
	CanonicalBytes(forHash bool) ([]byte, error)
}

func (v *Verifier) verifyIntegrity(l canonicalizer, storedHash, storedSignature string) bool {
	if storedHash == "" || storedSignature == "" {
		return false
	}

	hashInput, err := l.CanonicalBytes(true)
	if err != nil {
		return false
	}
	if hashCanonical(hashInput) != storedHash {
		return false
	}

	payload, err := l.CanonicalBytes(false)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(storedSignature)
	if err != nil {
		return false
	}
	return v.VerifySignature(payload, sig)
}

// CanUse reports whether a verified organization license may be applied to
// this installation at all, with the human-readable reasons it may not.
// This is the operational gate in front of entitlement checks: it rejects
// disabled organizations, licenses not issued for self-hosting, and licenses
// bound to a different installation.
func (l *OrganizationLicense) CanUse(installationID uuid.UUID, now time.Time) (bool, []string) {
	var reasons []string

	if !l.Enabled {
		reasons = append(reasons, "the cloud-hosted organization is currently disabled")
	}
	if l.Issued.After(now) {
		reasons = append(reasons, "the license has not been issued yet")
	}
	if now.After(l.Expires) {
		reasons = append(reasons, "the license has expired")
	}
	if !SupportedVersion(KindOrganization, l.Version) {
		reasons = append(reasons, "the license version is not supported")
	}
	if !l.SelfHost {
		reasons = append(reasons, "the license does not allow on-premise hosting")
	}
	if l.InstallationID != installationID {
		reasons = append(reasons, "the installation id does not match this installation")
	}

	return len(reasons) == 0, reasons
}
