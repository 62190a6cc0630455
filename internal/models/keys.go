package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderKey is a caller-supplied (BYOK) provider secret. The secret
// is stored opaquely; encryption at rest is the deployment's concern,
// not the engine's.
type ProviderKey struct {
	ID       uuid.UUID `json:"id"`
	Provider string    `json:"provider"`
	Enabled  bool      `json:"enabled"`
	Secret   string    `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}
