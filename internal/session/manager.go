// Package session owns the visitor session lifecycle: creation, validation,
// expiry sweeps and cascading cleanup of dependent state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/identity"
	"github.com/storehive/assist/internal/store"
)

// Manager drives the session state machine: NoSession -> ValidSession ->
// ExpiredSession -> (cleanup) -> NoSession. Expiry is detected lazily on every
// lifecycle check; cleanup cascades to everything the session owns.
type Manager struct {
	repo store.Repository
	ids  *identity.Store
	ttl  time.Duration
	now  func() time.Time
}

// NewManager creates a session lifecycle manager.
func NewManager(repo store.Repository, ids *identity.Store, ttl time.Duration) *Manager {
	return &Manager{
		repo: repo,
		ids:  ids,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Init reports the visitor identity and session validity at widget startup.
type Init struct {
	VisitorID       string `json:"userId"`
	HasValidSession bool   `json:"hasValidSession"`
}

// InitSession sweeps expired and orphaned state, then reports the visitor
// identity and whether a valid session exists. When no live record exists the
// returned visitor ID is a fresh candidate that is not persisted until
// CreateSession runs.
func (m *Manager) InitSession(ctx context.Context, siteHint string) (Init, error) {
	if err := m.Sweep(ctx); err != nil {
		return Init{}, err
	}

	sess, err := m.repo.GetSession(ctx)
	if err != nil {
		return Init{}, err
	}
	if sess != nil && !sess.Expired(m.now()) {
		return Init{VisitorID: sess.VisitorID, HasValidSession: true}, nil
	}
	return Init{VisitorID: m.ids.Derive(siteHint)}, nil
}

// CreateSession persists a new session record for the given visitor ID with
// the submitted contact-form fields.
func (m *Manager) CreateSession(ctx context.Context, visitorID string, formFields map[string]string) (*domain.Session, error) {
	sess := m.ids.NewRecord(visitorID, formFields)
	if err := m.repo.PutSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("Session created", "visitor_id", sess.VisitorID, "expires_at", sess.ExpiresAt)
	return sess, nil
}

// IsValid reports whether a live, unexpired session exists. An expired record
// triggers the full cascade cleanup before returning false.
func (m *Manager) IsValid(ctx context.Context) (bool, error) {
	sess, err := m.repo.GetSession(ctx)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}
	if sess.Expired(m.now()) {
		if err := m.purge(ctx, sess.VisitorID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// SessionData returns the current session record, or nil when none exists.
func (m *Manager) SessionData(ctx context.Context) (*domain.Session, error) {
	return m.repo.GetSession(ctx)
}

// Logout force-cleans the session and everything it owns, regardless of
// remaining validity.
func (m *Manager) Logout(ctx context.Context) error {
	sess, err := m.repo.GetSession(ctx)
	if err != nil {
		return err
	}

	visitorID := ""
	if sess != nil {
		visitorID = sess.VisitorID
	}
	if err := m.purge(ctx, visitorID); err != nil {
		return err
	}
	slog.Info("Visitor logged out", "visitor_id", visitorID)
	return nil
}

// Sweep performs the lazy lifecycle maintenance pass: expired sessions are
// purged with their dependents, state with no owning session is removed, and
// stale history buffers and expired admin grants are dropped even while the
// session itself is still valid.
func (m *Manager) Sweep(ctx context.Context) error {
	sess, err := m.repo.GetSession(ctx)
	if err != nil {
		return err
	}
	now := m.now()

	if sess == nil {
		return m.sweepOrphans(ctx)
	}

	if sess.Expired(now) {
		slog.Info("Session expired, clearing visitor data", "visitor_id", sess.VisitorID)
		return m.purge(ctx, sess.VisitorID)
	}

	var errs []error
	for _, kind := range []domain.HistoryKind{domain.HistoryBot, domain.HistoryAdmin} {
		h, err := m.repo.GetHistory(ctx, kind, sess.VisitorID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if h != nil && h.Stale(now, m.ttl) {
			slog.Info("Clearing stale history buffer", "kind", kind, "visitor_id", sess.VisitorID)
			if err := m.repo.DeleteHistory(ctx, kind, sess.VisitorID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	grant, err := m.repo.GetAdminGrant(ctx)
	if err != nil {
		errs = append(errs, err)
	} else if grant != nil && grant.Expired(now) {
		slog.Info("Clearing expired admin grant")
		if err := m.repo.DeleteAdminGrant(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// sweepOrphans removes state that has no owning session: leftover admin grants
// and history buffers would otherwise accumulate without bound.
func (m *Manager) sweepOrphans(ctx context.Context) error {
	var errs []error
	if err := m.repo.DeleteAdminGrant(ctx); err != nil {
		errs = append(errs, err)
	}
	deleted, err := m.repo.DeleteAllHistories(ctx)
	if err != nil {
		errs = append(errs, err)
	} else if deleted > 0 {
		slog.Info("Removed orphaned history buffers", "count", deleted)
	}
	return errors.Join(errs...)
}

// purge deletes the session record, the admin grant and both history buffers.
// The deletes are not transactional: every key is attempted even when an
// earlier one fails, and the orphan sweep recovers from partial completion.
func (m *Manager) purge(ctx context.Context, visitorID string) error {
	var errs []error
	if err := m.repo.DeleteSession(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.repo.DeleteAdminGrant(ctx); err != nil {
		errs = append(errs, err)
	}
	if visitorID != "" {
		for _, kind := range []domain.HistoryKind{domain.HistoryBot, domain.HistoryAdmin} {
			if err := m.repo.DeleteHistory(ctx, kind, visitorID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// History returns one of the current visitor's message buffers, or nil when no
// valid session exists or the buffer is stale. Stale buffers are purged on
// read, never handed to callers.
func (m *Manager) History(ctx context.Context, kind domain.HistoryKind) (*domain.History, error) {
	valid, err := m.IsValid(ctx)
	if err != nil || !valid {
		return nil, err
	}

	sess, err := m.repo.GetSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}

	h, err := m.repo.GetHistory(ctx, kind, sess.VisitorID)
	if err != nil || h == nil {
		return nil, err
	}
	if h.Stale(m.now(), m.ttl) {
		if err := m.repo.DeleteHistory(ctx, kind, sess.VisitorID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return h, nil
}

// AppendHistory appends an entry to one of the current visitor's message
// buffers and stamps the buffer's write time.
func (m *Manager) AppendHistory(ctx context.Context, kind domain.HistoryKind, entry domain.HistoryEntry) error {
	valid, err := m.IsValid(ctx)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("append history: no valid session")
	}

	sess, err := m.repo.GetSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("append history: no valid session")
	}

	h, err := m.History(ctx, kind)
	if err != nil {
		return err
	}
	if h == nil {
		h = &domain.History{}
	}
	h.Entries = append(h.Entries, entry)
	h.Timestamp = m.now()

	if err := m.repo.PutHistory(ctx, kind, sess.VisitorID, h); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
