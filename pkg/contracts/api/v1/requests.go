// Package api contains API contract definitions for the Lockbox licensing
// service. Version v1 represents the current stable API version.
package api

// OrganizationLicenseRequest is the body a self-hosted installation posts to
// the cloud licensing endpoint when syncing its organization license.
type OrganizationLicenseRequest struct {
	LicenseKey     string `json:"licenseKey" validate:"required,min=10"`
	BillingSyncKey string `json:"billingSyncKey" validate:"required"`
}

// TokenRequest carries the client-credentials parameters accepted by the
// identity endpoint. The fields arrive form-encoded per OAuth2 but are kept
// here as the parsed contract.
type TokenRequest struct {
	GrantType    string `json:"grant_type" validate:"required,eq=client_credentials"`
	ClientID     string `json:"client_id" validate:"required,uuid4"`
	ClientSecret string `json:"client_secret" validate:"required"`
	Scope        string `json:"scope" validate:"required"`
}

// TokenResponse is the identity endpoint's success body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// HealthResponse is the healthz body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
