// Package store provides the typed repository over the widget's key-value
// persistence scope.
package store

import (
	"context"

	"github.com/storehive/assist/internal/domain"
)

// Repository persists the four entity kinds owned by one widget instance:
// the session record, the admin grant, and the two per-visitor history
// buffers. Reads that hit an unparseable record treat it as absent, clear the
// offending key, and return nil rather than an error.
type Repository interface {
	// GetSession retrieves the session record, or nil if absent.
	GetSession(ctx context.Context) (*domain.Session, error)

	// PutSession stores the session record, replacing any existing one.
	PutSession(ctx context.Context, sess *domain.Session) error

	// DeleteSession removes the session record.
	DeleteSession(ctx context.Context) error

	// GetAdminGrant retrieves the admin grant, or nil if absent.
	GetAdminGrant(ctx context.Context) (*domain.AdminGrant, error)

	// PutAdminGrant stores the admin grant.
	PutAdminGrant(ctx context.Context, grant *domain.AdminGrant) error

	// DeleteAdminGrant removes the admin grant.
	DeleteAdminGrant(ctx context.Context) error

	// GetHistory retrieves one of a visitor's message buffers, or nil if absent.
	GetHistory(ctx context.Context, kind domain.HistoryKind, visitorID string) (*domain.History, error)

	// PutHistory stores one of a visitor's message buffers.
	PutHistory(ctx context.Context, kind domain.HistoryKind, visitorID string, h *domain.History) error

	// DeleteHistory removes one of a visitor's message buffers.
	DeleteHistory(ctx context.Context, kind domain.HistoryKind, visitorID string) error

	// DeleteAllHistories removes every message buffer regardless of owner and
	// returns the number of deleted buffers. Used by the orphan sweep.
	DeleteAllHistories(ctx context.Context) (int64, error)

	// Ping verifies the persistence substrate is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying store.
	Close() error
}
