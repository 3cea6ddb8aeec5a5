package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis-backed transport.
type RedisConfig struct {
	Addr string
	DB   int
}

// ConnectRedis establishes a Redis pub/sub transport connection. The token
// source is consulted first; its credential authenticates the connection and
// the client ID names it. An auth failure aborts before any dial.
func ConnectRedis(ctx context.Context, cfg RedisConfig, ts TokenSource) (Connection, error) {
	tok, err := ts.Token(ctx)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		DB:         cfg.DB,
		Password:   tok.Token,
		ClientName: tok.ClientID,
	})

	conn := &redisConn{
		client:   client,
		state:    StateConnecting,
		watchers: make(map[int]func(State)),
		channels: make(map[string]*redisChannel),
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect realtime transport: %w", err)
	}
	conn.setState(StateConnected)

	return conn, nil
}

type redisConn struct {
	client *redis.Client

	mu       sync.Mutex
	state    State
	watchers map[int]func(State)
	nextID   int
	channels map[string]*redisChannel
	closed   bool
}

func (c *redisConn) Channel(name string) Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := &redisChannel{
		conn:     c,
		name:     name,
		handlers: make(map[int]Handler),
		stateFns: make(map[int]func(ChannelState)),
	}
	c.channels[name] = ch
	return ch
}

func (c *redisConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *redisConn) OnStateChange(fn func(State)) Unsubscribe {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

func (c *redisConn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fns := make([]func(State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Close detaches every channel and releases the client. Detach failures are
// logged and do not stop the remaining teardown.
func (c *redisConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	channels := make([]*redisChannel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		ch.detach()
	}

	err := c.client.Close()
	c.setState(StateDisconnected)
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

type redisChannel struct {
	conn *redisConn
	name string

	mu       sync.Mutex
	pubsub   *redis.PubSub
	handlers map[int]Handler
	stateFns map[int]func(ChannelState)
	nextID   int
}

// Publish wraps the payload in a named frame and sends it on the channel.
func (ch *redisChannel) Publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %q: %w", event, err)
	}
	frame, err := json.Marshal(Message{Name: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode frame for %q: %w", event, err)
	}
	if err := ch.conn.client.Publish(ctx, ch.name, frame).Err(); err != nil {
		return fmt.Errorf("publish %q on %q: %w", event, ch.name, err)
	}
	return nil
}

// Subscribe registers a handler, attaching the underlying Redis subscription
// on first use. The returned Unsubscribe is idempotent and detaches the Redis
// subscription when the last handler leaves.
func (ch *redisChannel) Subscribe(h Handler) (Unsubscribe, error) {
	ch.mu.Lock()
	if ch.pubsub == nil {
		if err := ch.attachLocked(); err != nil {
			ch.mu.Unlock()
			ch.notifyState(ChannelFailed)
			return nil, err
		}
		ch.notifyStateLocked(ChannelAttached)
	}
	id := ch.nextID
	ch.nextID++
	ch.handlers[id] = h
	ch.mu.Unlock()

	return func() {
		ch.mu.Lock()
		if _, ok := ch.handlers[id]; !ok {
			ch.mu.Unlock()
			return
		}
		delete(ch.handlers, id)
		var ps *redis.PubSub
		if len(ch.handlers) == 0 {
			ps = ch.pubsub
			ch.pubsub = nil
		}
		ch.mu.Unlock()

		if ps != nil {
			if err := ps.Close(); err != nil {
				slog.Debug("Failed to close channel subscription", "channel", ch.name, "error", err)
			}
		}
	}, nil
}

func (ch *redisChannel) OnState(fn func(ChannelState)) Unsubscribe {
	ch.mu.Lock()
	id := ch.nextID
	ch.nextID++
	ch.stateFns[id] = fn
	ch.mu.Unlock()

	return func() {
		ch.mu.Lock()
		delete(ch.stateFns, id)
		ch.mu.Unlock()
	}
}

// attachLocked opens the Redis subscription and waits for confirmation.
func (ch *redisChannel) attachLocked() error {
	ps := ch.conn.client.Subscribe(context.Background(), ch.name)

	confirmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ps.Receive(confirmCtx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("attach channel %q: %w", ch.name, err)
	}

	ch.pubsub = ps
	go ch.receive(ps)
	return nil
}

func (ch *redisChannel) receive(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		var frame Message
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			slog.Debug("Dropping malformed frame", "channel", ch.name, "error", err)
			continue
		}
		ch.dispatch(frame)
	}
}

func (ch *redisChannel) dispatch(frame Message) {
	ch.mu.Lock()
	handlers := make([]Handler, 0, len(ch.handlers))
	for _, h := range ch.handlers {
		handlers = append(handlers, h)
	}
	ch.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}

// detach drops every handler and closes the subscription. Called on
// connection teardown.
func (ch *redisChannel) detach() {
	ch.mu.Lock()
	ch.handlers = make(map[int]Handler)
	ps := ch.pubsub
	ch.pubsub = nil
	ch.mu.Unlock()

	if ps != nil {
		if err := ps.Close(); err != nil {
			slog.Debug("Failed to close channel subscription", "channel", ch.name, "error", err)
		}
	}
}

func (ch *redisChannel) notifyState(s ChannelState) {
	ch.mu.Lock()
	ch.notifyStateLocked(s)
	ch.mu.Unlock()
}

func (ch *redisChannel) notifyStateLocked(s ChannelState) {
	fns := make([]func(ChannelState), 0, len(ch.stateFns))
	for _, fn := range ch.stateFns {
		fns = append(fns, fn)
	}
	go func() {
		for _, fn := range fns {
			fn(s)
		}
	}()
}
