// Package api provides the HTTP surface of the chat backend: the realtime
// auth endpoint, operator transcript routes and the websocket console.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storehive/assist/internal/relay"
)

// Handler carries the shared dependencies of the HTTP routes.
type Handler struct {
	transcripts *TranscriptStore
	router      *relay.Router
	credential  string
}

// NewHandler creates the API handler. credential is the realtime transport
// secret handed out by the auth endpoint.
func NewHandler(transcripts *TranscriptStore, router *relay.Router, credential string) *Handler {
	return &Handler{
		transcripts: transcripts,
		router:      router,
		credential:  credential,
	}
}

// JSON writes a JSON response with the given status code. The status line is
// already on the wire when encoding runs, so an encode failure can only be
// logged, never turned into a second response.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the transcript and auth routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/realtime/auth", h.HandleRealtimeAuth)

	r.Post("/api/user/chat", h.HandleUserChat)
	r.Get("/api/user/chat/{userId}", h.HandleGetOperatorThread)
	r.Post("/api/admin/chat", h.HandleAdminChat)
	r.Get("/api/admin/chat/{userId}", h.HandleGetOperatorThread)
	r.Post("/api/admin/repost", h.HandleRepost)
	r.Get("/api/admin/issues", h.HandleIssues)
	r.Get("/api/chats", h.HandleBotThreads)
}

// HandleRealtimeAuth handles POST /api/realtime/auth. Each call issues the
// shared transport credential under a fresh client ID.
func (h *Handler) HandleRealtimeAuth(w http.ResponseWriter, r *http.Request) {
	if h.credential == "" {
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"message": "realtime transport not configured",
		})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]string{
			"token":    h.credential,
			"clientId": "widget-" + uuid.NewString(),
		},
	})
}
