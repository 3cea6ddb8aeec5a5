package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storehive/assist/internal/domain"
)

type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubRecorder struct {
	turns []struct {
		userID string
		sender domain.SenderRole
		text   string
	}
}

func (s *stubRecorder) RecordBot(userID string, sender domain.SenderRole, text string) {
	s.turns = append(s.turns, struct {
		userID string
		sender domain.SenderRole
		text   string
	}{userID, sender, text})
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postGen(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/gen", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleGenerateSuccess(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: "The Deluxe room is $200."}
	rec := &stubRecorder{}
	h := NewHandler(gen, rec, nil)
	r := newTestRouter(h)

	w := postGen(t, r, `{"userId":"user-1","userText":"How much is the Deluxe?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Text != gen.reply || resp.UserID != "user-1" {
		t.Errorf("unexpected response: %+v", resp)
	}

	// Both sides of the exchange land in the bot transcript.
	if len(rec.turns) != 2 {
		t.Fatalf("expected 2 recorded turns, got %d", len(rec.turns))
	}
	if rec.turns[0].sender != domain.RoleUser || rec.turns[1].sender != domain.RoleBot {
		t.Errorf("unexpected transcript roles: %+v", rec.turns)
	}
}

func TestHandleGenerateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing userId", `{"userText":"hello"}`},
		{"missing userText", `{"userId":"user-1"}`},
		{"blank userText", `{"userId":"user-1","userText":"   "}`},
		{"invalid body", `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen := &stubGenerator{reply: "x"}
			h := NewHandler(gen, nil, nil)
			w := postGen(t, newTestRouter(h), tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
			if gen.calls != 0 {
				t.Error("generator called for invalid request")
			}
		})
	}
}

func TestHandleGenerateUpstreamError(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: fmt.Errorf("upstream down")}
	h := NewHandler(gen, nil, nil)

	w := postGen(t, newTestRouter(h), `{"userId":"user-1","userText":"hello"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp["error"] != "Failed to generate response." {
		t.Errorf("unexpected error body: %v", resp)
	}
}

func TestHandleGenerateRateLimit(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: "ok"}
	h := NewHandler(gen, nil, nil)
	h.rateLimiter = NewRateLimiter(2, time.Minute)
	r := newTestRouter(h)

	for i := 0; i < 2; i++ {
		if w := postGen(t, r, `{"userId":"user-1","userText":"hi"}`); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := postGen(t, r, `{"userId":"user-1","userText":"hi"}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 past the limit, got %d", w.Code)
	}
	// A different visitor is not throttled.
	if w := postGen(t, r, `{"userId":"user-2","userText":"hi"}`); w.Code != http.StatusOK {
		t.Errorf("expected 200 for other visitor, got %d", w.Code)
	}
}
