package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTokenSourceSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"token":"tok-1","clientId":"widget-1"}}`))
	}))
	defer srv.Close()

	ts := NewHTTPTokenSource(srv.URL, nil)
	tok, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok.Token != "tok-1" || tok.ClientID != "widget-1" {
		t.Errorf("unexpected token: %+v", tok)
	}
}

func TestHTTPTokenSourceFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusForbidden)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
		},
		{
			name: "success false",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":false,"message":"denied"}`))
			},
		},
		{
			name: "missing token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":true,"data":{"clientId":"widget-1"}}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			ts := NewHTTPTokenSource(srv.URL, nil)
			_, err := ts.Token(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *AuthError, got %T: %v", err, err)
			}
		})
	}
}

func TestHTTPTokenSourceUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections from here on

	ts := NewHTTPTokenSource(srv.URL, nil)
	_, err := ts.Token(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError for unreachable endpoint, got %T: %v", err, err)
	}
	if authErr.Status != 0 {
		t.Errorf("unreachable endpoint should carry no HTTP status, got %d", authErr.Status)
	}
}

func TestStaticTokenSource(t *testing.T) {
	t.Parallel()

	ts := &StaticTokenSource{Tok: Token{Token: "cred", ClientID: "server"}}
	tok, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok.Token != "cred" || tok.ClientID != "server" {
		t.Errorf("unexpected token: %+v", tok)
	}
}
