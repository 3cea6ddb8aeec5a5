// Package widget composes the chat widget core: persistent identity, session
// lifecycle, the realtime relay and typing presence behind one facade.
package widget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storehive/assist/internal/assistant"
	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/identity"
	"github.com/storehive/assist/internal/relay"
	"github.com/storehive/assist/internal/session"
	"github.com/storehive/assist/internal/store"
	"github.com/storehive/assist/internal/transport"
	"github.com/storehive/assist/internal/typing"
)

// Config carries the widget's tunables. Zero durations fall back to the
// defaults used by the hosted deployment.
type Config struct {
	SiteHint      string
	SessionTTL    time.Duration
	AdminTTL      time.Duration
	TypingTimeout time.Duration
	Role          domain.SenderRole
}

// DefaultTTL is the session and admin grant validity window.
const DefaultTTL = 24 * time.Hour

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultTTL
	}
	if c.AdminTTL <= 0 {
		c.AdminTTL = DefaultTTL
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = typing.DefaultTimeout
	}
	if c.Role == "" {
		c.Role = domain.RoleUser
	}
	return c
}

// counterpart returns the role whose messages this widget instance accepts.
func counterpart(role domain.SenderRole) domain.SenderRole {
	if role == domain.RoleAdmin {
		return domain.RoleUser
	}
	return domain.RoleAdmin
}

// Widget is the chat widget facade. One instance serves one visitor on one
// transport connection.
type Widget struct {
	cfg  Config
	repo store.Repository
	conn transport.Connection
	gen  assistant.Generator
	ids  *identity.Store

	Sessions      *session.Manager
	Admin         *session.AdminGate
	Notifications *Notifications

	router *relay.Router

	mu        sync.Mutex
	sessionID string
	typing    *typing.Coordinator
	unsubMsg  transport.Unsubscribe
	onReply   func(domain.Envelope)
	closed    bool
}

// New creates a widget over the given store and transport connection. gen may
// be nil when the AI responder is not deployed.
func New(repo store.Repository, conn transport.Connection, gen assistant.Generator, cfg Config) *Widget {
	cfg = cfg.withDefaults()
	ids := identity.NewStore(repo, cfg.SessionTTL)
	return &Widget{
		cfg:           cfg,
		repo:          repo,
		conn:          conn,
		gen:           gen,
		ids:           ids,
		Sessions:      session.NewManager(repo, ids, cfg.SessionTTL),
		Admin:         session.NewAdminGate(repo, cfg.AdminTTL),
		Notifications: &Notifications{},
		router:        relay.NewRouter(conn),
	}
}

// Init reports the visitor identity and session validity at startup. When a
// valid session already exists the realtime wiring is attached immediately.
func (w *Widget) Init(ctx context.Context) (session.Init, error) {
	init, err := w.Sessions.InitSession(ctx, w.cfg.SiteHint)
	if err != nil {
		return session.Init{}, err
	}
	if init.HasValidSession {
		if err := w.attach(init.VisitorID); err != nil {
			return session.Init{}, err
		}
	}
	return init, nil
}

// Open starts a conversation: it reuses the live session when one exists, and
// otherwise creates one from the submitted contact-form fields. The realtime
// relay and typing presence are attached either way.
func (w *Widget) Open(ctx context.Context, formFields map[string]string) (*domain.Session, error) {
	init, err := w.Sessions.InitSession(ctx, w.cfg.SiteHint)
	if err != nil {
		return nil, err
	}

	if init.HasValidSession {
		// Ensure returns the live record, and heals the window where the
		// session expired between the validity check and this call.
		sess, err := w.ids.Ensure(ctx, w.cfg.SiteHint)
		if err != nil {
			return nil, err
		}
		if err := w.attach(sess.VisitorID); err != nil {
			return nil, err
		}
		return sess, nil
	}

	sess, err := w.Sessions.CreateSession(ctx, init.VisitorID, formFields)
	if err != nil {
		return nil, err
	}
	if err := w.attach(sess.VisitorID); err != nil {
		return nil, err
	}
	return sess, nil
}

// attach subscribes the relay and typing channels for the given session.
// Idempotent for the same session; a different session replaces the wiring.
func (w *Widget) attach(sessionID string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("widget closed")
	}
	if w.sessionID == sessionID && w.unsubMsg != nil {
		w.mu.Unlock()
		return nil
	}
	w.detachLocked()
	w.sessionID = sessionID
	w.mu.Unlock()

	unsub, err := w.router.OnMessage(sessionID, counterpart(w.cfg.Role), w.handleInbound)
	if err != nil {
		return fmt.Errorf("attach relay: %w", err)
	}

	coord := typing.NewCoordinator(w.conn, sessionID, w.cfg.Role, w.cfg.TypingTimeout, nil)
	if err := coord.Attach(); err != nil {
		unsub()
		return fmt.Errorf("attach typing presence: %w", err)
	}

	w.mu.Lock()
	w.unsubMsg = unsub
	w.typing = coord
	w.mu.Unlock()
	return nil
}

// handleInbound caches the counterpart's message, bumps the unread counter and
// forwards to the registered callback.
func (w *Widget) handleInbound(env domain.Envelope) {
	entry := domain.HistoryEntry{
		Sender:    env.Sender,
		Text:      env.Text,
		Timestamp: env.Timestamp,
	}
	if err := w.Sessions.AppendHistory(context.Background(), domain.HistoryAdmin, entry); err != nil {
		slog.Warn("Failed to cache inbound message", "error", err)
	}
	w.Notifications.MarkUnread()

	w.mu.Lock()
	fn := w.onReply
	w.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

// OnReply registers the callback invoked for each inbound counterpart
// message. Passing nil removes it.
func (w *Widget) OnReply(fn func(domain.Envelope)) {
	w.mu.Lock()
	w.onReply = fn
	w.mu.Unlock()
}

// Send publishes a message in the operator conversation and caches it
// locally. The widget must be open.
func (w *Widget) Send(ctx context.Context, text string) error {
	sessionID, err := w.requireOpen()
	if err != nil {
		return err
	}

	entry := domain.HistoryEntry{
		Sender:    w.cfg.Role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	if err := w.Sessions.AppendHistory(ctx, domain.HistoryAdmin, entry); err != nil {
		return err
	}
	return w.router.Publish(ctx, sessionID, w.cfg.Role, text)
}

// Ask sends the text to the AI responder and caches both sides of the
// exchange in the bot conversation.
func (w *Widget) Ask(ctx context.Context, text string) (string, error) {
	sessionID, err := w.requireOpen()
	if err != nil {
		return "", err
	}
	if w.gen == nil {
		return "", fmt.Errorf("assistant not configured")
	}

	if err := w.Sessions.AppendHistory(ctx, domain.HistoryBot, domain.HistoryEntry{
		Sender:    domain.RoleUser,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return "", err
	}

	reply, err := w.gen.Generate(ctx, sessionID, text)
	if err != nil {
		return "", err
	}

	if err := w.Sessions.AppendHistory(ctx, domain.HistoryBot, domain.HistoryEntry{
		Sender:    domain.RoleBot,
		Text:      reply,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	return reply, nil
}

// StartTyping signals the counterpart that the local user is typing.
func (w *Widget) StartTyping(ctx context.Context) error {
	coord, err := w.requireTyping()
	if err != nil {
		return err
	}
	return coord.StartTyping(ctx)
}

// StopTyping signals the counterpart that the local user stopped typing.
func (w *Widget) StopTyping(ctx context.Context) error {
	coord, err := w.requireTyping()
	if err != nil {
		return err
	}
	return coord.StopTyping(ctx)
}

// RemoteTyping reports whether the counterpart is currently typing.
func (w *Widget) RemoteTyping() bool {
	w.mu.Lock()
	coord := w.typing
	w.mu.Unlock()
	return coord != nil && coord.IsRemoteTyping()
}

// History returns the cached conversation of the given kind, or nil when no
// valid session or cache exists.
func (w *Widget) History(ctx context.Context, kind domain.HistoryKind) (*domain.History, error) {
	return w.Sessions.History(ctx, kind)
}

// Logout detaches the realtime wiring and removes the session with everything
// it owns.
func (w *Widget) Logout(ctx context.Context) error {
	w.mu.Lock()
	w.detachLocked()
	w.mu.Unlock()
	return w.Sessions.Logout(ctx)
}

// Close releases realtime subscriptions. The store and connection belong to
// the caller and stay open.
func (w *Widget) Close() {
	w.mu.Lock()
	w.closed = true
	w.detachLocked()
	w.mu.Unlock()
}

func (w *Widget) detachLocked() {
	if w.typing != nil {
		w.typing.Disconnect()
		w.typing = nil
	}
	if w.unsubMsg != nil {
		w.unsubMsg()
		w.unsubMsg = nil
	}
	w.sessionID = ""
}

func (w *Widget) requireOpen() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", fmt.Errorf("widget closed")
	}
	if w.sessionID == "" {
		return "", fmt.Errorf("no open conversation")
	}
	return w.sessionID, nil
}

func (w *Widget) requireTyping() (*typing.Coordinator, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.typing == nil {
		return nil, fmt.Errorf("no open conversation")
	}
	return w.typing, nil
}
