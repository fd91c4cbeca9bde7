// Package license implements issuance, signing, and verification of
// tamper-evident entitlement licenses for organizations and users.
//
// A license is built in a fixed order: domain fields are populated from an
// immutable subscriber snapshot, the hash is computed over the canonical
// serialization, the signature is computed over the canonical serialization
// including the hash, and finally a portable signed token is minted from the
// claims. The canonical serialization of a shipped version is a frozen wire
// contract; new capabilities are added as token claims, never by changing the
// canonical layout of an existing version.
package license
