package widget

import "sync"

// Notifications tracks messages that arrived while the conversation view was
// not in focus. State is in-memory only; it resets with the process.
type Notifications struct {
	mu     sync.Mutex
	unread int
}

// MarkUnread records one unseen message.
func (n *Notifications) MarkUnread() {
	n.mu.Lock()
	n.unread++
	n.mu.Unlock()
}

// Clear resets the unread counter, called when the conversation gains focus.
func (n *Notifications) Clear() {
	n.mu.Lock()
	n.unread = 0
	n.mu.Unlock()
}

// Unread returns the number of unseen messages.
func (n *Notifications) Unread() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unread
}

// HasUnread reports whether any unseen message is pending.
func (n *Notifications) HasUnread() bool {
	return n.Unread() > 0
}
