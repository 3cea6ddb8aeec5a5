// Package identity derives and persists the durable anonymous identity
// assigned to a visitor.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/store"
)

// Store owns the visitor identity record: derivation, persistence and
// expiry-triggered regeneration.
type Store struct {
	repo store.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates an identity store with the given session validity window.
func NewStore(repo store.Repository, ttl time.Duration) *Store {
	return &Store{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Ensure returns the live identity record, creating and persisting a fresh one
// when none exists or the existing one has expired. Calling it twice within
// the validity window returns the same visitor ID.
func (s *Store) Ensure(ctx context.Context, siteHint string) (*domain.Session, error) {
	cur, err := s.repo.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if cur != nil && !cur.Expired(s.now()) {
		return cur, nil
	}

	sess := s.NewRecord(s.Derive(siteHint), nil)
	if err := s.repo.PutSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist identity: %w", err)
	}
	return sess, nil
}

// NewRecord builds an identity record for the given visitor ID without
// persisting it.
func (s *Store) NewRecord(visitorID string, formFields map[string]string) *domain.Session {
	now := s.now()
	return &domain.Session{
		VisitorID:  visitorID,
		Token:      NewToken(),
		FormFields: formFields,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
}

// Derive builds a candidate visitor ID from the embedding site without
// persisting anything. Used before the visitor has submitted the contact form.
func (s *Store) Derive(siteHint string) string {
	return fmt.Sprintf("user_%d_%s_%s", s.now().UnixMilli(), randomSuffix(), NormalizeSiteHint(siteHint))
}

// NewToken mints an opaque session token.
func NewToken() string {
	return uuid.NewString()
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NormalizeSiteHint canonicalizes the embedding site: scheme and "www." prefix
// stripped, path suffix dropped. An empty hint yields "unknown" so visitor IDs
// stay well-formed.
func NormalizeSiteHint(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimPrefix(h, "www.")
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if h == "" {
		return "unknown"
	}
	return h
}
