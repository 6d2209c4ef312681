// Package settings stores per-tenant collaborator credentials and model
// preferences that ride along with queued events on the per-repo path.
package settings

import (
	"context"
	"time"

	derrors "repogator/pkg/domain-errors"
)

// ErrNotFound is returned when a tenant has no stored settings. Callers treat
// it as "use service defaults", not a failure.
var ErrNotFound = derrors.New(derrors.CodeNotFound, "settings not found")

// Settings holds a tenant's API-key overrides and model choices.
type Settings struct {
	TenantID        string
	OpenRouterKey   string
	OpenRouterModel string
	EmbeddingKey    string
	EmbeddingModel  string
	Admin           bool
	UpdatedAt       time.Time
}

// Store persists per-tenant settings.
type Store interface {
	GetByTenant(ctx context.Context, tenantID string) (*Settings, error)
	Upsert(ctx context.Context, s *Settings) error
}
