package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storehive/assist/internal/domain"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Sender    domain.SenderRole `json:"sender"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
}

// Issue is a visitor question escalated to the operator queue.
type Issue struct {
	UserText  string    `json:"userText"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptStore keeps the server-side view of every conversation: the bot
// thread per visitor, the operator thread per visitor and the escalated issue
// queue. In-memory, like the deployment it mirrors; transcripts do not
// survive a restart.
type TranscriptStore struct {
	mu              sync.RWMutex
	botThreads      map[string][]ChatMessage
	operatorThreads map[string][]ChatMessage
	issues          map[string][]Issue
	now             func() time.Time
}

// NewTranscriptStore creates an empty transcript store.
func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{
		botThreads:      make(map[string][]ChatMessage),
		operatorThreads: make(map[string][]ChatMessage),
		issues:          make(map[string][]Issue),
		now:             time.Now,
	}
}

// RecordBot appends a turn to the visitor's bot thread.
func (s *TranscriptStore) RecordBot(userID string, sender domain.SenderRole, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botThreads[userID] = append(s.botThreads[userID], ChatMessage{
		Sender:    sender,
		Text:      text,
		Timestamp: s.now().UTC(),
	})
}

// RecordOperator appends a turn to the visitor's operator thread.
func (s *TranscriptStore) RecordOperator(userID string, sender domain.SenderRole, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operatorThreads[userID] = append(s.operatorThreads[userID], ChatMessage{
		Sender:    sender,
		Text:      text,
		Timestamp: s.now().UTC(),
	})
}

// OperatorThread returns the visitor's operator conversation, oldest first.
// The result is a copy; callers may not mutate stored state.
func (s *TranscriptStore) OperatorThread(userID string) []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread := s.operatorThreads[userID]
	out := make([]ChatMessage, len(thread))
	copy(out, thread)
	return out
}

// BotThreads returns every visitor's bot conversation.
func (s *TranscriptStore) BotThreads() map[string][]ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]ChatMessage, len(s.botThreads))
	for id, thread := range s.botThreads {
		cp := make([]ChatMessage, len(thread))
		copy(cp, thread)
		out[id] = cp
	}
	return out
}

// ReportIssue queues a visitor question for operator follow-up.
func (s *TranscriptStore) ReportIssue(userID, userText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[userID] = append(s.issues[userID], Issue{
		UserText:  userText,
		UserID:    userID,
		Timestamp: s.now().UTC(),
	})
}

// Issues returns the escalated issue queue keyed by visitor ID.
func (s *TranscriptStore) Issues() map[string][]Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Issue, len(s.issues))
	for id, list := range s.issues {
		cp := make([]Issue, len(list))
		copy(cp, list)
		out[id] = cp
	}
	return out
}

// HandleUserChat handles POST /api/user/chat: a visitor message in the
// operator conversation.
func (h *Handler) HandleUserChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Message == "" {
		Error(w, http.StatusBadRequest, "userId and message are required")
		return
	}

	h.transcripts.RecordOperator(req.UserID, domain.RoleUser, req.Message)
	JSON(w, http.StatusOK, map[string]string{
		"message": "Message sent successfully",
		"userId":  req.UserID,
	})
}

// HandleAdminChat handles POST /api/admin/chat: an operator reply. The reply
// is stored and relayed to the visitor's widget.
func (h *Handler) HandleAdminChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		Sender  string `json:"sender"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Sender == "" || req.Message == "" {
		Error(w, http.StatusBadRequest, "userId, sender, and message are required")
		return
	}

	h.transcripts.RecordOperator(req.UserID, domain.RoleAdmin, req.Message)
	if h.router != nil {
		if err := h.router.Publish(r.Context(), req.UserID, domain.RoleAdmin, req.Message); err != nil {
			Error(w, http.StatusBadGateway, "failed to relay message")
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{
		"message": "Chat stored successfully",
		"userId":  req.UserID,
	})
}

// HandleGetOperatorThread handles GET /api/{user,admin}/chat/{userId}.
func (h *Handler) HandleGetOperatorThread(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	JSON(w, http.StatusOK, h.transcripts.OperatorThread(userID))
}

// HandleRepost handles POST /api/admin/repost: escalation of a question the
// bot could not answer.
func (h *Handler) HandleRepost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userId"`
		UserText string `json:"userText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.UserText == "" {
		Error(w, http.StatusBadRequest, "userId and userText are required")
		return
	}

	h.transcripts.ReportIssue(req.UserID, req.UserText)
	JSON(w, http.StatusOK, map[string]string{"message": "Issue sent to admin successfully"})
}

// HandleIssues handles GET /api/admin/issues.
func (h *Handler) HandleIssues(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.transcripts.Issues())
}

// HandleBotThreads handles GET /api/chats.
func (h *Handler) HandleBotThreads(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.transcripts.BotThreads())
}
