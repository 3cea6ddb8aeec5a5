// Package middleware provides HTTP middleware for the chat backend.
package middleware

import "net/http"

// CORS returns middleware allowing the widget to embed on customer sites.
// origins lists the exact origins permitted to send credentialed requests; a
// "*" entry additionally opens the endpoints to any origin, but never with
// credentials. Pairing Allow-Credentials with a wildcard-echoed origin would
// let any page ride the visitor's cookies.
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := false
	exact := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			wildcard = true
			continue
		}
		exact[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || exact[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
				h.Add("Vary", "Origin")
				if exact[origin] {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
