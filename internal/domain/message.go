package domain

import (
	"time"
)

// SenderRole identifies which of the three chat parties authored a message.
type SenderRole string

const (
	// RoleUser is the human visitor embedding the widget.
	RoleUser SenderRole = "user"
	// RoleAdmin is the human operator answering from the console.
	RoleAdmin SenderRole = "admin"
	// RoleBot is the AI auto-responder.
	RoleBot SenderRole = "bot"
)

// Valid reports whether the role is one of the three known parties.
func (r SenderRole) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleBot:
		return true
	}
	return false
}

// Envelope is the normalized, role-tagged chat message unit exchanged over the
// shared relay channel. Subscribers discard envelopes addressed to a different
// session.
type Envelope struct {
	SessionID string     `json:"session_id"`
	Sender    SenderRole `json:"sender_type"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
}

// TypingSignal is a transient typing-state notification. It is never persisted;
// the receiver derives a bounded-lifetime "remote is typing" flag from it.
type TypingSignal struct {
	SessionID string     `json:"session_id"`
	Sender    SenderRole `json:"sender_type"`
	IsTyping  bool       `json:"is_typing"`
	Timestamp time.Time  `json:"timestamp"`
}
