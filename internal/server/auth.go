package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/whiteboard-app/whiteboard-go/internal/logging"
)

// authMiddleware enforces Bearer token authentication on protected routes:
//
//	Authorization: Bearer <apiKey>
//
// An empty apiKey disables authentication entirely; the startup warning in
// New is the only trace of that mode. Requests with a missing or wrong token
// receive 401 with a WWW-Authenticate challenge. The presented token value is
// never logged, only whether one was present.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		switch {
		case token == "":
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="whiteboard"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)

		case token != apiKey:
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="whiteboard" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)

		default:
			next.ServeHTTP(w, r)
		}
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme comparison is case-insensitive per RFC 9110. Returns an
// empty string for an absent or malformed header.
func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
