package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware. A token is only
// accepted while its Redis session is alive, so logout takes effect
// before the JWT expires.
type Middleware struct {
	tokens   *TokenManager
	sessions *SessionManager
	logger   *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(tokens *TokenManager, sessions *SessionManager, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, sessions: sessions, logger: logger}
}

// RequireAuth validates the bearer token and its backing session, then
// sets claims in context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			m.unauthorized(w, "Authentication required")
			return
		}

		claims, err := m.tokens.Parse(token)
		if err != nil {
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		if _, err := m.sessions.Validate(r.Context(), claims.SessionID); err != nil {
			m.unauthorized(w, "Session expired")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
