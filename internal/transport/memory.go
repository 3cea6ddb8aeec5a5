package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryHub is an in-process transport shared by every Connection it hands
// out. It backs tests and single-process development runs where the widget
// and the operator console live in the same binary.
type MemoryHub struct {
	mu     sync.Mutex
	topics map[string]map[int]Handler
	nextID int
}

// NewMemoryHub creates an empty in-process transport hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{topics: make(map[string]map[int]Handler)}
}

// Connect returns a new Connection attached to the hub. Connections share
// channels: a frame published on one is delivered to subscribers on all.
func (h *MemoryHub) Connect() Connection {
	return &memoryConn{
		hub:      h,
		state:    StateConnected,
		watchers: make(map[int]func(State)),
		channels: make(map[string]*memoryChannel),
	}
}

func (h *MemoryHub) publish(topic string, frame Message) {
	h.mu.Lock()
	handlers := make([]Handler, 0, len(h.topics[topic]))
	for _, fn := range h.topics[topic] {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(frame)
	}
}

func (h *MemoryHub) subscribe(topic string, fn Handler) (id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[int]Handler)
	}
	id = h.nextID
	h.nextID++
	h.topics[topic][id] = fn
	return id
}

func (h *MemoryHub) unsubscribe(topic string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[topic], id)
}

type memoryConn struct {
	hub *MemoryHub

	mu       sync.Mutex
	state    State
	watchers map[int]func(State)
	nextID   int
	channels map[string]*memoryChannel
	closed   bool
}

func (c *memoryConn) Channel(name string) Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := &memoryChannel{conn: c, name: name, subs: make(map[int]int)}
	c.channels[name] = ch
	return ch
}

func (c *memoryConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *memoryConn) OnStateChange(fn func(State)) Unsubscribe {
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

func (c *memoryConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	channels := make([]*memoryChannel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	fns := make([]func(State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		ch.detach()
	}
	for _, fn := range fns {
		fn(StateDisconnected)
	}
	return nil
}

type memoryChannel struct {
	conn *memoryConn
	name string

	mu   sync.Mutex
	subs map[int]int // local id -> hub id
	next int
}

func (ch *memoryChannel) Publish(_ context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %q: %w", event, err)
	}
	ch.conn.hub.publish(ch.name, Message{Name: event, Data: data})
	return nil
}

func (ch *memoryChannel) Subscribe(h Handler) (Unsubscribe, error) {
	ch.mu.Lock()
	localID := ch.next
	ch.next++
	hubID := ch.conn.hub.subscribe(ch.name, h)
	ch.subs[localID] = hubID
	ch.mu.Unlock()

	return func() {
		ch.mu.Lock()
		hubID, ok := ch.subs[localID]
		if ok {
			delete(ch.subs, localID)
		}
		ch.mu.Unlock()
		if ok {
			ch.conn.hub.unsubscribe(ch.name, hubID)
		}
	}, nil
}

func (ch *memoryChannel) OnState(fn func(ChannelState)) Unsubscribe {
	// In-process channels attach instantly and never fail.
	fn(ChannelAttached)
	return func() {}
}

func (ch *memoryChannel) detach() {
	ch.mu.Lock()
	subs := ch.subs
	ch.subs = make(map[int]int)
	ch.mu.Unlock()
	for _, hubID := range subs {
		ch.conn.hub.unsubscribe(ch.name, hubID)
	}
}
