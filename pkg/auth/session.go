package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/cache"
)

// Session is a server-side login session stored in Redis. Tokens are
// only honored while their session record is alive, so revoking the
// session invalidates outstanding tokens immediately.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// SessionManager maintains auth sessions and the per-user session set
// used to revoke everything a user has open.
type SessionManager struct {
	store  cache.Store
	keys   *cache.KeyManager
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionManager creates a session manager with the given session TTL.
func NewSessionManager(store cache.Store, keys *cache.KeyManager, ttl time.Duration, logger *zap.Logger) *SessionManager {
	return &SessionManager{store: store, keys: keys, ttl: ttl, logger: logger}
}

// Create opens a new session for the user and indexes it in the user's
// session set. Both keys are written in one atomic pipeline so no
// reader ever sees a session without its index entry, or the reverse.
// The set carries the same TTL as the session so it cannot outlive
// every member by more than one refresh.
func (m *SessionManager) Create(ctx context.Context, userID int64, email string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		LastSeen:  now,
	}

	key := m.keys.AuthSessionKey(session.SessionID)
	if err := m.store.SetAndIndex(ctx, key, session, m.ttl, m.userSetKey(userID), session.SessionID, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Validate looks up a session and slides its TTL forward. Missing or
// expired sessions return cache.Store's not-found error.
func (m *SessionManager) Validate(ctx context.Context, sessionID string) (*Session, error) {
	key := m.keys.AuthSessionKey(sessionID)

	var session Session
	if err := m.store.Get(ctx, key, &session); err != nil {
		return nil, err
	}

	session.LastSeen = time.Now().UTC()
	if err := m.store.Set(ctx, key, &session, m.ttl); err != nil {
		// Validation succeeded; a failed refresh just shortens the session.
		m.logger.Warn("failed to refresh session TTL", zap.String("session_id", sessionID), zap.Error(err))
	}

	return &session, nil
}

// Revoke ends one session. Revoking an already-expired session is a
// no-op.
func (m *SessionManager) Revoke(ctx context.Context, userID int64, sessionID string) error {
	if err := m.store.Delete(ctx, m.keys.AuthSessionKey(sessionID)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := m.store.SRem(ctx, m.userSetKey(userID), sessionID); err != nil {
		m.logger.Warn("failed to deindex session", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

// RevokeAll ends every session the user has open.
func (m *SessionManager) RevokeAll(ctx context.Context, userID int64) (int, error) {
	setKey := m.userSetKey(userID)
	sessionIDs, err := m.store.SMembers(ctx, setKey)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, id := range sessionIDs {
		keys = append(keys, m.keys.AuthSessionKey(id))
	}
	keys = append(keys, setKey)

	if err := m.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return len(sessionIDs), nil
}

func (m *SessionManager) userSetKey(userID int64) string {
	return m.keys.UserSessionsKey(strconv.FormatInt(userID, 10))
}
