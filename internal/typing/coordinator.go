// Package typing implements the ephemeral typing-presence protocol: local
// transitions are published, the remote party's transitions are debounced
// into a bounded-lifetime "remote is typing" flag.
package typing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/transport"
)

const (
	// ChannelName is the pub/sub topic carrying typing signals.
	ChannelName = "typing-indicator"
	// EventTyping is the event name typing signals are published under.
	EventTyping = "typing"
	// DefaultTimeout auto-expires a remote typing state that never received an
	// explicit stop. A stale "is typing" can therefore never persist.
	DefaultTimeout = 3 * time.Second
)

// Coordinator tracks the remote counterparty's typing state for one session.
// State machine: Idle -> Typing -> (timeout | explicit stop) -> Idle.
type Coordinator struct {
	ch        transport.Channel
	sessionID string
	role      domain.SenderRole
	timeout   time.Duration
	onChange  func(bool)
	now       func() time.Time

	mu           sync.Mutex
	remoteTyping bool
	timer        *time.Timer
	timerGen     uint64
	unsub        transport.Unsubscribe
	closed       bool
}

// NewCoordinator creates a typing coordinator for the given session and local
// role. onChange fires on every remote typing transition; it may be nil.
func NewCoordinator(conn transport.Connection, sessionID string, role domain.SenderRole, timeout time.Duration, onChange func(bool)) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		ch:        conn.Channel(ChannelName),
		sessionID: sessionID,
		role:      role,
		timeout:   timeout,
		onChange:  onChange,
		now:       time.Now,
	}
}

// Attach subscribes to the typing channel. Must be called before remote
// transitions are observed.
func (c *Coordinator) Attach() error {
	unsub, err := c.ch.Subscribe(c.handle)
	if err != nil {
		return fmt.Errorf("subscribe typing channel: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return nil
	}
	c.unsub = unsub
	c.mu.Unlock()
	return nil
}

// StartTyping publishes a local typing-started signal. Callers send it once
// per contiguous typing burst; the receive side owns debouncing.
func (c *Coordinator) StartTyping(ctx context.Context) error {
	return c.publish(ctx, true)
}

// StopTyping publishes a local typing-stopped signal, sent on blur or send.
func (c *Coordinator) StopTyping(ctx context.Context) error {
	return c.publish(ctx, false)
}

func (c *Coordinator) publish(ctx context.Context, isTyping bool) error {
	sig := domain.TypingSignal{
		SessionID: c.sessionID,
		Sender:    c.role,
		IsTyping:  isTyping,
		Timestamp: c.now().UTC(),
	}
	if err := c.ch.Publish(ctx, EventTyping, sig); err != nil {
		return fmt.Errorf("publish typing signal: %w", err)
	}
	return nil
}

// IsRemoteTyping reports the debounced remote typing state.
func (c *Coordinator) IsRemoteTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteTyping
}

func (c *Coordinator) handle(msg transport.Message) {
	if msg.Name != EventTyping {
		return
	}

	var sig domain.TypingSignal
	if err := json.Unmarshal(msg.Data, &sig); err != nil {
		slog.Debug("Dropping malformed typing signal", "error", err)
		return
	}
	// Other sessions' presence and echoes of our own signals are not ours.
	if sig.SessionID != c.sessionID || sig.Sender == c.role {
		return
	}

	if sig.IsTyping {
		c.setTyping()
	} else {
		c.clearTyping()
	}
}

// setTyping marks the remote party typing and arms the expiry timer. A signal
// arriving while the timer is pending resets it, so the flag stays up for one
// full timeout after the last signal.
func (c *Coordinator) setTyping() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	changed := !c.remoteTyping
	c.remoteTyping = true
	if c.timer != nil {
		c.timer.Stop()
	}
	// Each arm gets a new generation. A superseded timer whose callback
	// already left Stop's reach sees a stale generation and must not clear
	// the flag the fresh timer now owns.
	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(c.timeout, func() { c.expire(gen) })
	cb := c.onChange
	c.mu.Unlock()

	if changed && cb != nil {
		cb(true)
	}
}

func (c *Coordinator) clearTyping() {
	c.mu.Lock()
	if c.closed || !c.remoteTyping {
		c.mu.Unlock()
		return
	}
	c.remoteTyping = false
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(false)
	}
}

// expire fires when no signal arrived within the timeout for the timer
// generation it was armed under. Racing an explicit stop or a fresh signal is
// harmless: the state is already clear or the generation is stale, and this
// is a no-op either way.
func (c *Coordinator) expire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen || !c.remoteTyping {
		c.mu.Unlock()
		return
	}
	c.remoteTyping = false
	c.timer = nil
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(false)
	}
}

// Disconnect detaches the channel and clears the pending timer without
// publishing a farewell signal; the remote side's timeout heals any stuck
// state. Idempotent, and no callback fires after it returns.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.remoteTyping = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
