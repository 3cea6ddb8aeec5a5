package domain

import (
	"time"
)

// HistoryKind selects one of the two independent per-visitor message buffers.
type HistoryKind string

const (
	// HistoryBot is the visitor's conversation with the AI auto-responder.
	HistoryBot HistoryKind = "bot"
	// HistoryAdmin is the visitor's conversation with the human operator.
	HistoryAdmin HistoryKind = "admin"
)

// HistoryEntry is a single cached message.
type HistoryEntry struct {
	Sender    SenderRole `json:"sender"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
}

// History is a per-visitor message buffer. Timestamp records the last write
// and anchors the staleness check: a buffer older than the session validity
// window is purged before use, not merely on schedule.
type History struct {
	Timestamp time.Time      `json:"timestamp"`
	Entries   []HistoryEntry `json:"entries"`
}

// Stale reports whether the buffer's last write is older than the validity
// window.
func (h *History) Stale(now time.Time, ttl time.Duration) bool {
	return h == nil || h.Timestamp.IsZero() || now.Sub(h.Timestamp) > ttl
}
