package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/store"
)

// AdminGate controls the time-boxed admin privilege flag. Its TTL is
// independent of the session's, but session cleanup always removes the grant.
type AdminGate struct {
	repo store.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewAdminGate creates an admin privilege gate with the given grant TTL.
func NewAdminGate(repo store.Repository, ttl time.Duration) *AdminGate {
	return &AdminGate{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Grant activates admin mode with a fresh expiry window.
func (g *AdminGate) Grant(ctx context.Context) error {
	now := g.now()
	grant := &domain.AdminGrant{
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.repo.PutAdminGrant(ctx, grant); err != nil {
		return fmt.Errorf("grant admin mode: %w", err)
	}
	slog.Info("Admin mode enabled", "expires_at", grant.ExpiresAt)
	return nil
}

// IsActive reports whether a live, unexpired, active grant exists. Any other
// state is lazily deleted and reported as inactive.
func (g *AdminGate) IsActive(ctx context.Context) (bool, error) {
	grant, err := g.repo.GetAdminGrant(ctx)
	if err != nil {
		return false, err
	}
	if grant == nil {
		return false, nil
	}
	if grant.Expired(g.now()) || !grant.Active {
		if err := g.repo.DeleteAdminGrant(ctx); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Revoke removes the grant regardless of its remaining TTL.
func (g *AdminGate) Revoke(ctx context.Context) error {
	return g.repo.DeleteAdminGrant(ctx)
}
