package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/relay"
	"github.com/storehive/assist/internal/transport"
	"github.com/storehive/assist/internal/typing"
)

// ConsoleHandler bridges the operator console over WebSocket: every envelope
// on the relay fans in to the console, and console frames fan out as operator
// messages or typing signals.
type ConsoleHandler struct {
	transcripts   *TranscriptStore
	router        *relay.Router
	conn          transport.Connection
	allowedOrigin string
	isDev         bool
}

// NewConsoleHandler creates the operator console handler.
func NewConsoleHandler(transcripts *TranscriptStore, router *relay.Router, conn transport.Connection, allowedOrigin string, isDev bool) *ConsoleHandler {
	return &ConsoleHandler{
		transcripts:   transcripts,
		router:        router,
		conn:          conn,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// consoleFrame is the console's WebSocket message structure, both directions.
type consoleFrame struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Sender    string    `json:"sender_type,omitempty"`
	Text      string    `json:"text,omitempty"`
	IsTyping  bool      `json:"is_typing,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *ConsoleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Console connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept console WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "console closed"); closeErr != nil {
			slog.Debug("Failed to close console websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Fan-in: every relay envelope goes to the console.
	unsub, err := h.router.OnAnyMessage(func(env domain.Envelope) {
		frame := consoleFrame{
			Type:      "message",
			SessionID: env.SessionID,
			Sender:    string(env.Sender),
			Text:      env.Text,
			Timestamp: env.Timestamp,
		}
		if err := h.writeJSON(ws, frame); err != nil {
			slog.Debug("Console write failed", "error", err)
			cancel()
		}
	})
	if err != nil {
		slog.Error("Failed to attach console to relay", "error", err)
		return
	}
	defer unsub()

	h.inputLoop(ctx, ws)
	slog.Info("Console session ended")
}

func (h *ConsoleHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Console origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *ConsoleHandler) inputLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Console closed by client")
			} else if ctx.Err() == nil {
				slog.Warn("Console read error", "error", err)
			}
			return
		}

		var frame consoleFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Debug("Dropping malformed console frame", "error", err)
			continue
		}

		switch frame.Type {
		case "message":
			if frame.SessionID == "" || frame.Text == "" {
				continue
			}
			h.transcripts.RecordOperator(frame.SessionID, domain.RoleAdmin, frame.Text)
			if err := h.router.Publish(ctx, frame.SessionID, domain.RoleAdmin, frame.Text); err != nil {
				slog.Warn("Failed to relay console message", "error", err)
			}
		case "typing":
			if frame.SessionID == "" {
				continue
			}
			sig := domain.TypingSignal{
				SessionID: frame.SessionID,
				Sender:    domain.RoleAdmin,
				IsTyping:  frame.IsTyping,
				Timestamp: time.Now().UTC(),
			}
			if err := h.conn.Channel(typing.ChannelName).Publish(ctx, typing.EventTyping, sig); err != nil {
				slog.Warn("Failed to publish console typing signal", "error", err)
			}
		case "ping":
			if err := h.writeJSON(ws, consoleFrame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func (h *ConsoleHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
