//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/relay"
	"github.com/storehive/assist/internal/transport"
)

func newTestHandler(credential string) (*Handler, *relay.Router) {
	hub := transport.NewMemoryHub()
	router := relay.NewRouter(hub.Connect())
	return NewHandler(NewTranscriptStore(), router, credential), relay.NewRouter(hub.Connect())
}

func newTestServer(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJSONEncodeFailureKeepsOriginalStatus(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	// A channel is unmarshalable, forcing the encoder to fail after the
	// status line has been written.
	JSON(w, http.StatusOK, map[string]interface{}{"ch": make(chan int)})

	if w.Code != http.StatusOK {
		t.Errorf("encode failure rewrote the status: got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "failed to encode") {
		t.Errorf("encode failure appended a second response body: %q", w.Body.String())
	}
}

func TestRealtimeAuthIssuesCredential(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler("secret-cred")
	r := newTestServer(h)

	w := doJSON(t, r, http.MethodPost, "/api/realtime/auth", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Token    string `json:"token"`
			ClientID string `json:"clientId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.Data.Token != "secret-cred" {
		t.Errorf("unexpected auth response: %+v", resp)
	}
	if !strings.HasPrefix(resp.Data.ClientID, "widget-") {
		t.Errorf("expected generated client ID, got %q", resp.Data.ClientID)
	}

	// Client IDs are unique per call.
	w2 := doJSON(t, r, http.MethodPost, "/api/realtime/auth", "")
	var resp2 struct {
		Data struct {
			ClientID string `json:"clientId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w2.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("failed to decode second response: %v", err)
	}
	if resp2.Data.ClientID == resp.Data.ClientID {
		t.Error("client ID reused across auth calls")
	}
}

func TestRealtimeAuthUnconfigured(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler("")
	w := doJSON(t, newTestServer(h), http.MethodPost, "/api/realtime/auth", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestOperatorChatFlow(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler("cred")
	r := newTestServer(h)

	w := doJSON(t, r, http.MethodPost, "/api/user/chat", `{"userId":"user-1","message":"help please"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("user chat: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/api/admin/chat", `{"userId":"user-1","sender":"admin","message":"on it"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("admin chat: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/admin/chat/user-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get thread: expected 200, got %d", w.Code)
	}
	var thread []ChatMessage
	if err := json.Unmarshal(w.Body.Bytes(), &thread); err != nil {
		t.Fatalf("failed to decode thread: %v", err)
	}
	if len(thread) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(thread))
	}
	if thread[0].Sender != domain.RoleUser || thread[1].Sender != domain.RoleAdmin {
		t.Errorf("unexpected thread order: %+v", thread)
	}
}

func TestAdminChatRelaysToWidget(t *testing.T) {
	t.Parallel()

	h, widgetSide := newTestHandler("cred")
	r := newTestServer(h)

	var got []domain.Envelope
	unsub, err := widgetSide.OnMessage("user-1", domain.RoleAdmin, func(env domain.Envelope) {
		got = append(got, env)
	})
	if err != nil {
		t.Fatalf("OnMessage failed: %v", err)
	}
	defer unsub()

	w := doJSON(t, r, http.MethodPost, "/api/admin/chat", `{"userId":"user-1","sender":"admin","message":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 relayed envelope, got %d", len(got))
	}
	if got[0].Text != "hello" || got[0].Sender != domain.RoleAdmin {
		t.Errorf("unexpected envelope: %+v", got[0])
	}
}

func TestChatValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		body string
	}{
		{"user chat missing userId", "/api/user/chat", `{"message":"x"}`},
		{"user chat missing message", "/api/user/chat", `{"userId":"u"}`},
		{"admin chat missing sender", "/api/admin/chat", `{"userId":"u","message":"x"}`},
		{"repost missing userText", "/api/admin/repost", `{"userId":"u"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newTestHandler("cred")
			w := doJSON(t, newTestServer(h), http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestIssueQueue(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler("cred")
	r := newTestServer(h)

	w := doJSON(t, r, http.MethodPost, "/api/admin/repost", `{"userId":"user-1","userText":"do you allow pets?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("repost: expected 200, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/admin/issues", "")
	var issues map[string][]Issue
	if err := json.Unmarshal(w.Body.Bytes(), &issues); err != nil {
		t.Fatalf("failed to decode issues: %v", err)
	}
	if len(issues["user-1"]) != 1 || issues["user-1"][0].UserText != "do you allow pets?" {
		t.Errorf("unexpected issue queue: %+v", issues)
	}
}

func TestBotThreadsEndpoint(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler("cred")
	h.transcripts.RecordBot("user-1", domain.RoleUser, "hi")
	h.transcripts.RecordBot("user-1", domain.RoleBot, "hello")

	w := doJSON(t, newTestServer(h), http.MethodGet, "/api/chats", "")
	var threads map[string][]ChatMessage
	if err := json.Unmarshal(w.Body.Bytes(), &threads); err != nil {
		t.Fatalf("failed to decode threads: %v", err)
	}
	if len(threads["user-1"]) != 2 {
		t.Errorf("unexpected bot threads: %+v", threads)
	}
}
