package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Token is a transport credential issued by the auth endpoint.
type Token struct {
	Token    string
	ClientID string
}

// TokenSource issues transport credentials. The adapter never attempts to
// connect without one.
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
}

// AuthError reports that the auth endpoint was unreachable or rejected the
// request. It is fatal to transport init; the widget degrades to
// "connection unavailable" and does not retry on its own.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport auth failed (HTTP %d): %s", e.Status, e.Message)
	}
	return "transport auth failed: " + e.Message
}

// authResponse is the auth endpoint's JSON body.
type authResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token    string `json:"token"`
		ClientID string `json:"clientId"`
	} `json:"data"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// HTTPTokenSource requests credentials from the configured auth endpoint.
// Cookie credentials ride on the supplied client's jar.
type HTTPTokenSource struct {
	url    string
	client *http.Client
}

// NewHTTPTokenSource creates a token source for the given endpoint. A nil
// client falls back to a default with a bounded timeout.
func NewHTTPTokenSource(url string, client *http.Client) *HTTPTokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTokenSource{url: url, client: client}
}

// Token requests a credential. Any transport failure, non-2xx status,
// unparseable body or success:false response is an *AuthError.
func (s *HTTPTokenSource) Token(ctx context.Context) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, nil)
	if err != nil {
		return Token{}, &AuthError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Token{}, &AuthError{Message: "auth endpoint unreachable: " + err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, &AuthError{Status: resp.StatusCode, Message: "read auth response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Token{}, &AuthError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, &AuthError{Status: resp.StatusCode, Message: "malformed auth response: " + err.Error()}
	}
	if !parsed.Success {
		msg := parsed.Message
		if msg == "" {
			msg = parsed.Error
		}
		if msg == "" {
			msg = "auth rejected"
		}
		return Token{}, &AuthError{Status: resp.StatusCode, Message: msg}
	}
	if parsed.Data.Token == "" {
		return Token{}, &AuthError{Status: resp.StatusCode, Message: "auth response missing token"}
	}

	return Token{Token: parsed.Data.Token, ClientID: parsed.Data.ClientID}, nil
}

// StaticTokenSource returns a fixed credential. Used by the backend, which
// holds the transport credential directly instead of asking itself for one.
type StaticTokenSource struct {
	Tok Token
}

// Token returns the fixed credential.
func (s *StaticTokenSource) Token(context.Context) (Token, error) {
	return s.Tok, nil
}
