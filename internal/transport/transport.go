// Package transport wraps the hosted pub/sub connection consumed by the relay
// router and typing coordinator. The adapter reflects connection state and
// moves frames; reconnection policy belongs to the underlying client.
package transport

import (
	"context"
	"encoding/json"
)

// State is the observable connection state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
)

// ChannelState is the observable per-channel attachment state.
type ChannelState string

const (
	ChannelAttached ChannelState = "attached"
	ChannelFailed   ChannelState = "failed"
)

// Message is one named event frame delivered on a channel.
type Message struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Handler receives frames delivered on a subscribed channel.
type Handler func(Message)

// Unsubscribe detaches a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Channel is a named pub/sub topic.
type Channel interface {
	// Publish sends a named event with a JSON-encoded payload. Fire-and-forget;
	// delivery is best-effort.
	Publish(ctx context.Context, event string, payload any) error

	// Subscribe registers a handler for every frame on the channel.
	Subscribe(h Handler) (Unsubscribe, error)

	// OnState registers a channel attach/fail observer.
	OnState(fn func(ChannelState)) Unsubscribe
}

// Connection is an established transport connection.
type Connection interface {
	// Channel returns the named channel, creating its local handle on demand.
	Channel(name string) Channel

	// State returns the current connection state.
	State() State

	// OnStateChange registers a connection-state observer.
	OnStateChange(fn func(State)) Unsubscribe

	// Close detaches every channel and releases the connection.
	Close() error
}
