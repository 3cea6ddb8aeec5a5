// Package relay routes chat message envelopes over the shared pub/sub
// channel, filtering inbound traffic by session identity and sender role.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/transport"
)

const (
	// ChannelName is the shared relay topic carrying all chat traffic.
	ChannelName = "chat-messages"
	// EventNewMessage is the event name envelopes are published under.
	EventNewMessage = "new.message"
)

// Router publishes role-tagged envelopes and dispatches inbound envelopes to
// subscribers. Delivery is best-effort: no acknowledgement, no retry, no
// dedup of duplicate frames.
type Router struct {
	ch  transport.Channel
	now func() time.Time
}

// NewRouter creates a relay router on the connection's shared chat channel.
func NewRouter(conn transport.Connection) *Router {
	return &Router{
		ch:  conn.Channel(ChannelName),
		now: time.Now,
	}
}

// Publish emits an envelope for the given session tagged with the sender
// role. Fire-and-forget; an error only means the local transport refused the
// frame.
func (r *Router) Publish(ctx context.Context, sessionID string, sender domain.SenderRole, text string) error {
	env := domain.Envelope{
		SessionID: sessionID,
		Sender:    sender,
		Text:      text,
		Timestamp: r.now().UTC(),
	}
	if err := r.ch.Publish(ctx, EventNewMessage, env); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// OnMessage subscribes for envelopes addressed to sessionID and authored by
// the accept role. Everything else on the shared channel (other sessions,
// echoes of the subscriber's own messages, unknown payload shapes) is
// silently discarded. The returned unsubscribe is idempotent and detaches the
// underlying transport listener.
func (r *Router) OnMessage(sessionID string, accept domain.SenderRole, fn func(domain.Envelope)) (transport.Unsubscribe, error) {
	return r.ch.Subscribe(func(msg transport.Message) {
		env, ok := decodeEnvelope(msg)
		if !ok {
			return
		}
		if env.SessionID != sessionID || env.Sender != accept {
			return
		}
		fn(env)
	})
}

// OnAnyMessage subscribes across all sessions. The operator console uses this
// to fan in the whole channel; envelope filtering is the console's business.
func (r *Router) OnAnyMessage(fn func(domain.Envelope)) (transport.Unsubscribe, error) {
	return r.ch.Subscribe(func(msg transport.Message) {
		env, ok := decodeEnvelope(msg)
		if !ok {
			return
		}
		fn(env)
	})
}
