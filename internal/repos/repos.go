// Package repos tracks which repositories are wired for per-repo webhooks and
// holds the per-repo shared secrets used by the tenant ingress path.
package repos

import (
	"context"
	"time"

	derrors "repogator/pkg/domain-errors"
)

// ErrNotFound keeps repo lookups consistent across implementations.
var ErrNotFound = derrors.New(derrors.CodeNotFound, "repository not tracked")

// TrackedRepo is a repository registered by a tenant for webhook processing.
type TrackedRepo struct {
	ID            string
	TenantID      string
	RepoFullName  string
	WebhookSecret string
	WebhookID     *int64
	Active        bool
	CreatedAt     time.Time
}

// Store resolves tracked repositories. Secret resolution for the per-repo
// ingress path goes through GetActiveByFullName.
type Store interface {
	Create(ctx context.Context, r *TrackedRepo) error
	// GetActiveByFullName returns the active tracking record for a repo, or
	// ErrNotFound when the repo is untracked or deactivated.
	GetActiveByFullName(ctx context.Context, fullName string) (*TrackedRepo, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*TrackedRepo, error)
	Deactivate(ctx context.Context, id string) error
}
