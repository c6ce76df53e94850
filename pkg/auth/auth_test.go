package auth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/auth"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
	"github.com/reportai-inc/reportai-engine/pkg/models"
	"github.com/reportai-inc/reportai-engine/pkg/testhelpers"
)

type mockUserRepo struct {
	byEmail map[string]*models.User
	nextID  int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byEmail: make(map[string]*models.User), nextID: 1}
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = m.nextID
	m.nextID++
	m.byEmail[user.Email] = user
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %d", apperrors.ErrNotFound, id)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: user %s", apperrors.ErrNotFound, email)
}

type authFixture struct {
	store    *testhelpers.MemStore
	users    *mockUserRepo
	tokens   *auth.TokenManager
	sessions *auth.SessionManager
	service  auth.Service
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := testhelpers.NewMemStore()
	keys := cache.NewKeyManager("reportai")
	users := newMockUserRepo()
	tokens := auth.NewTokenManager("test-secret", 30*time.Minute)
	sessions := auth.NewSessionManager(store, keys, 168*time.Hour, zap.NewNop())
	return &authFixture{
		store:    store,
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		service:  auth.NewService(users, tokens, sessions, zap.NewNop()),
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	user, err := f.service.Register(ctx, "Ada@Example.com", "Ada", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "correct horse battery", user.PasswordHash)

	result, err := f.service.Login(ctx, "ada@example.com", "correct horse battery")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	claims, err := f.tokens.Parse(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, result.SessionID, claims.SessionID)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.service.Register(ctx, "not-an-email", "X", "long enough pw")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.service.Register(ctx, "a@b.com", "X", "short")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.service.Register(ctx, "a@b.com", "X", "long enough pw")
	require.NoError(t, err)
	_, err = f.service.Register(ctx, "a@b.com", "X", "long enough pw")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestLogin_BadCredentialsAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.service.Register(ctx, "a@b.com", "X", "long enough pw")
	require.NoError(t, err)

	_, wrongPassword := f.service.Login(ctx, "a@b.com", "wrong password!")
	_, unknownUser := f.service.Login(ctx, "nobody@b.com", "long enough pw")

	assert.ErrorIs(t, wrongPassword, apperrors.ErrForbidden)
	assert.ErrorIs(t, unknownUser, apperrors.ErrForbidden)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestLogout_RevokesSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.service.Register(ctx, "a@b.com", "X", "long enough pw")
	require.NoError(t, err)
	result, err := f.service.Login(ctx, "a@b.com", "long enough pw")
	require.NoError(t, err)

	_, err = f.sessions.Validate(ctx, result.SessionID)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, result.User.ID, result.SessionID))

	_, err = f.sessions.Validate(ctx, result.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.service.Register(ctx, "a@b.com", "X", "long enough pw")
	require.NoError(t, err)

	first, err := f.service.Login(ctx, "a@b.com", "long enough pw")
	require.NoError(t, err)
	second, err := f.service.Login(ctx, "a@b.com", "long enough pw")
	require.NoError(t, err)

	n, err := f.service.LogoutAll(ctx, first.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.sessions.Validate(ctx, first.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.sessions.Validate(ctx, second.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	session, err := f.sessions.Create(ctx, 1, "a@b.com")
	require.NoError(t, err)

	f.store.Advance(169 * time.Hour)

	_, err = f.sessions.Validate(ctx, session.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionValidate_SlidesTTL(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	session, err := f.sessions.Create(ctx, 1, "a@b.com")
	require.NoError(t, err)

	// Validate near the end of the window; the session should survive
	// well past its original expiry.
	f.store.Advance(167 * time.Hour)
	_, err = f.sessions.Validate(ctx, session.SessionID)
	require.NoError(t, err)

	f.store.Advance(100 * time.Hour)
	_, err = f.sessions.Validate(ctx, session.SessionID)
	assert.NoError(t, err)
}

func TestRequireAuth_Middleware(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	mw := auth.NewMiddleware(f.tokens, f.sessions, zap.NewNop())

	_, err := f.service.Register(ctx, "a@b.com", "X", "long enough pw")
	require.NoError(t, err)
	result, err := f.service.Login(ctx, "a@b.com", "long enough pw")
	require.NoError(t, err)

	var gotUserID int64
	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = auth.GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/datasources", nil)
		req.Header.Set("Authorization", "Bearer "+result.Token)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, result.User.ID, gotUserID)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/datasources", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/datasources", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revoked session", func(t *testing.T) {
		require.NoError(t, f.service.Logout(ctx, result.User.ID, result.SessionID))

		req := httptest.NewRequest(http.MethodGet, "/api/datasources", nil)
		req.Header.Set("Authorization", "Bearer "+result.Token)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

// writeRecorder wraps a store and records which write methods session
// creation goes through.
type writeRecorder struct {
	*testhelpers.MemStore
	calls []string
}

func (r *writeRecorder) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	r.calls = append(r.calls, "Set")
	return r.MemStore.Set(ctx, key, value, ttl)
}

func (r *writeRecorder) SAdd(ctx context.Context, key string, members ...string) error {
	r.calls = append(r.calls, "SAdd")
	return r.MemStore.SAdd(ctx, key, members...)
}

func (r *writeRecorder) SetAndIndex(ctx context.Context, key string, value any, ttl time.Duration, setKey, member string, setTTL time.Duration) error {
	r.calls = append(r.calls, "SetAndIndex")
	return r.MemStore.SetAndIndex(ctx, key, value, ttl, setKey, member, setTTL)
}

func TestSessionCreate_WritesBothKeysInOneCall(t *testing.T) {
	rec := &writeRecorder{MemStore: testhelpers.NewMemStore()}
	keys := cache.NewKeyManager("reportai")
	sessions := auth.NewSessionManager(rec, keys, time.Hour, zap.NewNop())

	session, err := sessions.Create(context.Background(), 42, "a@b.com")
	require.NoError(t, err)

	// The record and its index entry go through the pipelined write, so
	// a crash between them cannot leave one without the other.
	assert.Equal(t, []string{"SetAndIndex"}, rec.calls)

	validated, err := sessions.Validate(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), validated.UserID)

	n, err := sessions.RevokeAll(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
