// Package services contains the business logic layer: license issuance on
// the cloud side, client-credential identity for registered installations,
// and the self-hosted sync client. Services accept store interfaces and
// return domain types; HTTP concerns live in transport.
package services
