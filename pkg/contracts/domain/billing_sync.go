package domain

import "github.com/google/uuid"

// BillingSyncConfig is the self-hosted side's connection to its cloud
// organization. A sync is only attempted when the connection is enabled and
// well formed.
type BillingSyncConfig struct {
	Enabled             bool      `json:"enabled"`
	BillingSyncKey      string    `json:"billing_sync_key" validate:"required_if=Enabled true"`
	CloudOrganizationID uuid.UUID `json:"cloud_organization_id"`
}

// Valid reports whether the connection is enabled and carries everything a
// sync needs.
func (c BillingSyncConfig) Valid() bool {
	return c.Enabled && c.BillingSyncKey != "" && c.CloudOrganizationID != uuid.Nil
}
