package license

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingPrivateKey indicates a signing attempt without key material.
	ErrMissingPrivateKey = errors.New("license signing key is not loaded")
	// ErrUnsignedLicense indicates a verification attempt on a license that
	// was never signed.
	ErrUnsignedLicense = errors.New("license has no signature")
)

// UnsupportedVersionError is returned when a license names a format version
// outside the closed supported set for its kind.
type UnsupportedVersionError struct {
	Kind    Kind
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%s license version %d is not supported", e.Kind, e.Version)
}

// IsUnsupportedVersion reports whether err is an UnsupportedVersionError.
func IsUnsupportedVersion(err error) bool {
	var uve *UnsupportedVersionError
	return errors.As(err, &uve)
}
