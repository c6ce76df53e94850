// Package auth provides JWT-based authentication backed by Redis
// sessions. Tokens carry the user ID and a session ID so that logout
// revokes them before expiry.
package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
)

// Claims is the JWT claims structure issued on login. Subject holds the
// user ID; SessionID ties the token to a revocable Redis session.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetUserIDFromContext extracts the user ID from JWT claims in the
// context. Returns 0 if not authenticated.
func GetUserIDFromContext(ctx context.Context) int64 {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return 0
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// RequireUserIDFromContext extracts the user ID from context and
// returns an error if the request is not authenticated.
func RequireUserIDFromContext(ctx context.Context) (int64, error) {
	id := GetUserIDFromContext(ctx)
	if id == 0 {
		return 0, fmt.Errorf("authentication required: no claims in context")
	}
	return id, nil
}
