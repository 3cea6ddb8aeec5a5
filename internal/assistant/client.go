package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the widget-side Generator: it posts the visitor's question to the
// backend's /api/gen endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an /api/gen client against the given backend base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 35 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Generate asks the backend for an assistant reply.
func (c *Client) Generate(ctx context.Context, userID, userText string) (string, error) {
	body, err := json.Marshal(Request{UserText: userText, UserID: userID})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/gen", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call assistant backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read assistant response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("assistant backend returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("assistant backend returned %d", resp.StatusCode)
	}

	var gen Response
	if err := json.Unmarshal(data, &gen); err != nil {
		return "", fmt.Errorf("decode assistant response: %w", err)
	}
	return gen.Text, nil
}
