// Package domain contains core domain types for the assist chat widget.
package domain

import (
	"time"
)

// Session is the durable anonymous identity record for a visitor, bound to a
// time-boxed validity window. Exactly one live record exists per widget
// persistence scope.
type Session struct {
	VisitorID  string            `json:"userId"`
	Token      string            `json:"token"`
	FormFields map[string]string `json:"formFields,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

// Expired reports whether the session's validity window has passed.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || now.After(s.ExpiresAt)
}

// Remaining returns the time left in the validity window, or 0 if expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.Expired(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// AdminGrant is the time-boxed admin privilege flag. Its lifecycle is
// independent of the session's, but it never outlives the session it was
// granted under: session cleanup always removes it.
type AdminGrant struct {
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the grant's validity window has passed.
func (g *AdminGrant) Expired(now time.Time) bool {
	return g == nil || now.After(g.ExpiresAt)
}
