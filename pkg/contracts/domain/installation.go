// Package domain contains the core domain models for the Lockbox licensing
// subsystem. These types serve as the Single Source of Truth (SSOT) for all
// layers of the application.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Installation represents a registered self-hosted installation known to the
// cloud licensing service. The installation key doubles as the client secret
// for the identity endpoint.
type Installation struct {
	ID        uuid.UUID `json:"id" validate:"required"`
	Key       string    `json:"key" validate:"required,min=16"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}
