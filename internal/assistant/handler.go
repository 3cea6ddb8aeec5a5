package assistant

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/storehive/assist/internal/domain"
)

// maxRequestBodySize bounds /api/gen request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Recorder stores generated turns in the server-side bot transcript.
type Recorder interface {
	RecordBot(userID string, sender domain.SenderRole, text string)
}

// Handler serves the /api/gen completion endpoint.
type Handler struct {
	gen         Generator
	rec         Recorder
	log         TranscriptLogger
	rateLimiter *RateLimiter
}

// NewHandler creates the /api/gen handler. rec and transcriptLog may be nil.
func NewHandler(gen Generator, rec Recorder, transcriptLog TranscriptLogger) *Handler {
	if transcriptLog == nil {
		transcriptLog = NopTranscriptLogger{}
	}
	return &Handler{
		gen:         gen,
		rec:         rec,
		log:         transcriptLog,
		rateLimiter: NewRateLimiter(10, time.Minute),
	}
}

// RegisterRoutes mounts the completion endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/gen", h.HandleGenerate)
}

// HandleGenerate handles POST /api/gen requests.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error": "userId is required"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserText) == "" {
		http.Error(w, `{"error": "userText is required"}`, http.StatusBadRequest)
		return
	}
	if !h.rateLimiter.Allow(req.UserID) {
		http.Error(w, `{"error": "rate limit exceeded"}`, http.StatusTooManyRequests)
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Completion request", "user_id", req.UserID, "message_length", len(req.UserText))

	if h.rec != nil {
		h.rec.RecordBot(req.UserID, domain.RoleUser, req.UserText)
	}
	h.log.Log(TranscriptEvent{
		VisitorID: req.UserID,
		Direction: "outbound",
		EventType: "user_message",
		Text:      req.UserText,
	})

	reply, err := h.gen.Generate(r.Context(), req.UserID, req.UserText)
	if err != nil {
		slog.Error("Completion failed", "user_id", req.UserID, "request_id", reqID, "error", err)
		http.Error(w, `{"error": "Failed to generate response."}`, http.StatusInternalServerError)
		return
	}

	if h.rec != nil {
		h.rec.RecordBot(req.UserID, domain.RoleBot, reply)
	}
	h.log.Log(TranscriptEvent{
		VisitorID: req.UserID,
		Direction: "inbound",
		EventType: "assistant_message",
		Text:      reply,
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Response{Text: reply, UserID: req.UserID}); err != nil {
		slog.Warn("Failed to encode completion response", "error", err)
	}
}

// Close releases handler resources.
func (h *Handler) Close() {
	if err := h.log.Close(); err != nil {
		slog.Warn("Failed to close transcript log", "error", err)
	}
}

// RateLimiter throttles completion requests per visitor ID so a burst from one
// widget cannot starve the upstream quota.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter and starts its background eviction
// goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
	rl.startEviction()
	return rl
}

// Allow reports whether a request under the given key fits the window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// startEviction periodically drops expired keys so the map cannot grow without
// bound.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for range ticker.C {
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				var fresh []time.Time
				for _, t := range times {
					if t.After(cutoff) {
						fresh = append(fresh, t)
					}
				}
				if len(fresh) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = fresh
				}
			}
			r.mu.Unlock()
		}
	}()
}
