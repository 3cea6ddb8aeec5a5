package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultUpstreamBase = "https://generativelanguage.googleapis.com"

// Upstream calls the Gemini generateContent endpoint with the grounded prompt
// prepended to the visitor's question.
type Upstream struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewUpstream creates an upstream completion client. baseURL may be empty to
// use the public endpoint; model defaults to gemini-2.5-flash.
func NewUpstream(baseURL, apiKey, model string) *Upstream {
	if baseURL == "" {
		baseURL = defaultUpstreamBase
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Upstream{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate sends the grounded prompt plus the visitor's question and returns
// the model's reply. An empty completion degrades to the fallback line rather
// than an error.
func (u *Upstream) Generate(ctx context.Context, userID, userText string) (string, error) {
	prompt := fmt.Sprintf("%s\nUser: %s\nAI:", hotelContext, userText)
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		u.baseURL, url.PathEscape(u.model), url.QueryEscape(u.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion upstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion upstream returned %d", resp.StatusCode)
	}

	var gen generateResponse
	if err := json.Unmarshal(data, &gen); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}

	var reply strings.Builder
	if len(gen.Candidates) > 0 {
		for _, p := range gen.Candidates[0].Content.Parts {
			reply.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(reply.String())
	if text == "" {
		return fallbackReply, nil
	}
	return text, nil
}
