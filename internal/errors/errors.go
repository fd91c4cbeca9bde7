// Package errors defines the licensing error taxonomy and its mapping to
// RFC 7807 problem responses.
//
// The taxonomy separates failures that need operator action (invalid
// installation, disabled sync, broken sync configuration) from transient
// sync failures that a caller may retry with backoff, and from verification
// failures, which always fail closed and are never retried automatically.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInstallation indicates the installation record is missing or
	// disabled. Fatal to the attempt; requires operator action.
	ErrInvalidInstallation = errors.New("invalid installation")

	// ErrSyncDisabled indicates cloud communication or the organization's
	// sync connection is turned off. Fatal for this call; not retried.
	ErrSyncDisabled = errors.New("billing sync is disabled")

	// ErrInvalidSyncConfig indicates the sync connection data is missing or
	// malformed. Fatal until reconfigured.
	ErrInvalidSyncConfig = errors.New("invalid billing sync configuration")

	// ErrSyncFailed indicates a network error, a non-success status, or an
	// empty response body. Retryable with backoff.
	ErrSyncFailed = errors.New("license sync failed")

	// ErrSyncKeyRejected indicates the remote accepted the connection but
	// rejected the billing sync key. Distinguished from connectivity
	// problems so the operator fixes the key instead of waiting out an
	// outage. Wraps ErrSyncFailed.
	ErrSyncKeyRejected = fmt.Errorf("%w: billing sync key rejected", ErrSyncFailed)

	// ErrOrganizationNotFound indicates no organization record matches the
	// requested id and license key.
	ErrOrganizationNotFound = errors.New("organization license not found")

	// ErrVerificationFailed indicates a hash, signature, installation, or
	// subscriber mismatch, or expiry. Fails closed; logged for audit;
	// never auto-retried because it may indicate tampering.
	ErrVerificationFailed = errors.New("license verification failed")
)

// IsRetryable reports whether a sync attempt that failed with err may be
// retried with backoff. Only transient sync failures qualify; a rejected
// sync key is not retryable until the operator replaces it.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSyncFailed) && !errors.Is(err, ErrSyncKeyRejected)
}

// SyncFailure wraps a transient sync error with the phase it failed in, so
// "could not reach or authenticate" reads differently from "remote rejected
// the request" in logs and user-visible messages.
type SyncFailure struct {
	Phase string // "licensing request", "response read", "response decode"
	Err   error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("license sync failed during %s: %v", e.Phase, e.Err)
}

func (e *SyncFailure) Unwrap() error { return e.Err }

// Is makes every SyncFailure match ErrSyncFailed.
func (e *SyncFailure) Is(target error) bool { return target == ErrSyncFailed }
