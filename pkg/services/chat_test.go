package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
	"github.com/reportai-inc/reportai-engine/pkg/llm"
	"github.com/reportai-inc/reportai-engine/pkg/models"
	"github.com/reportai-inc/reportai-engine/pkg/testhelpers"
)

type mockChatRepo struct {
	sessions  map[string]*models.ChatSession
	messages  map[string][]models.Message
	addErr    error
	deleteErr error
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{
		sessions: make(map[string]*models.ChatSession),
		messages: make(map[string][]models.Message),
	}
}

func (m *mockChatRepo) CreateSession(_ context.Context, s *models.ChatSession) error {
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	clone := *s
	m.sessions[s.SessionID] = &clone
	return nil
}

func (m *mockChatRepo) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *mockChatRepo) ListSessionsByUser(_ context.Context, userID int64) ([]models.ChatSession, error) {
	var out []models.ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockChatRepo) DeleteSession(_ context.Context, sessionID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.sessions, sessionID)
	delete(m.messages, sessionID)
	return nil
}

func (m *mockChatRepo) TouchSession(_ context.Context, id string) error {
	s, ok := m.sessions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockChatRepo) AddMessage(_ context.Context, msg *models.Message) error {
	if m.addErr != nil {
		return m.addErr
	}
	msg.CreatedAt = time.Now().UTC()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], *msg)
	return nil
}

func (m *mockChatRepo) ListMessages(_ context.Context, sessionID string) ([]models.Message, error) {
	return append([]models.Message(nil), m.messages[sessionID]...), nil
}

func (m *mockChatRepo) DeactivateFrom(_ context.Context, sessionID string, fromIndex int) error {
	msgs := m.messages[sessionID]
	for i := range msgs {
		if msgs[i].MessageIndex >= fromIndex {
			msgs[i].IsActive = false
		}
	}
	return nil
}

type stubLLM struct {
	reply   string
	err     error
	lastReq llm.CompletionRequest
}

func (s *stubLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.reply, OutputTokens: 25}, nil
}

type chatFixture struct {
	svc       ChatService
	chatRepo  *mockChatRepo
	dsRepo    *mockDataSourceRepo
	chatCache *cache.ChatCacheService
	llm       *stubLLM
	store     *testhelpers.MemStore
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	store := testhelpers.NewMemStore()
	km := cache.NewKeyManager("reportai")
	chatCache := cache.NewChatCacheService(store, km, 50000, zap.NewNop())
	tx := cache.NewChatTxService(store, km, chatCache, zap.NewNop())
	chatRepo := newMockChatRepo()
	dsRepo := newMockDataSourceRepo()
	model := &stubLLM{reply: "There are 12 orders."}
	svc := NewChatService(chatRepo, dsRepo, chatCache, tx, model, zap.NewNop())
	return &chatFixture{svc: svc, chatRepo: chatRepo, dsRepo: dsRepo, chatCache: chatCache, llm: model, store: store}
}

func (f *chatFixture) seedSession(t *testing.T, userID int64) *models.ChatSession {
	t.Helper()
	ctx := context.Background()
	ds := &models.DataSource{
		UserID: userID,
		Name:   "sales",
		Type:   models.SourceTypePostgres,
		Schema: models.SchemaPayload{Document: &models.SchemaDocument{
			SourceName: "sales",
			Tables: []models.TableSchema{
				{Name: "orders", Columns: []models.ColumnSchema{{Name: "id", DataType: models.DataTypeInteger}}},
			},
		}},
	}
	require.NoError(t, f.dsRepo.Create(ctx, ds))
	session, err := f.svc.CreateSession(ctx, userID, ds.ID, "orders questions")
	require.NoError(t, err)
	return session
}

func TestCreateSession_OwnershipEnforced(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	ds := &models.DataSource{UserID: 42, Name: "sales", Type: models.SourceTypePostgres}
	require.NoError(t, f.dsRepo.Create(ctx, ds))

	_, err := f.svc.CreateSession(ctx, 99, ds.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.CreateSession(ctx, 42, 12345, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSendMessage_Turn(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	turn, err := f.svc.SendMessage(ctx, 42, session.SessionID, "how many orders are there?")
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, turn.UserMessage.Role)
	assert.Equal(t, models.RoleAssistant, turn.AssistantMessage.Role)
	assert.Equal(t, "There are 12 orders.", turn.AssistantMessage.Content)
	assert.Equal(t, turn.UserMessage.MessageID, turn.AssistantMessage.ParentMessageID)
	assert.Equal(t, 25, turn.AssistantMessage.TokenCount)

	// Token accounting: the usage total is the sum of cached messages.
	assert.Equal(t, turn.UserMessage.TokenCount+turn.AssistantMessage.TokenCount, turn.Usage.TotalTokens)
	assert.Equal(t, 2, turn.Usage.MessageCount)

	// Both messages hit the system of record.
	persisted, err := f.chatRepo.ListMessages(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	// The model saw the data source in its system prompt.
	assert.Contains(t, f.llm.lastReq.System, "sales")
	assert.Contains(t, f.llm.lastReq.System, "orders")
}

func TestSendMessage_LLMFailureRollsBackCache(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	_, err := f.svc.SendMessage(ctx, 42, session.SessionID, "first question")
	require.NoError(t, err)

	f.llm.err = errors.New("provider timeout")
	_, err = f.svc.SendMessage(ctx, 42, session.SessionID, "second question")
	require.Error(t, err)

	// The failed turn's user message is not stuck in the cached context.
	entry, err := f.chatCache.GetContext(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Len(t, entry.ContextMessages, 2)
	assert.Equal(t, "first question", entry.ContextMessages[0].Content)

	// And nothing extra was persisted.
	persisted, err := f.chatRepo.ListMessages(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestSendMessage_PersistFailureRollsBackCache(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	f.chatRepo.addErr = errors.New("database down")
	_, err := f.svc.SendMessage(ctx, 42, session.SessionID, "question")
	require.Error(t, err)

	// Rollback restored the pre-turn state: no cache entry at all.
	_, err = f.chatCache.GetContext(ctx, session.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSendMessage_AtLimitBlocked(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	_, err := f.chatCache.ReplaceContext(ctx, session.SessionID, []models.Message{
		{Role: models.RoleUser, Content: "huge", TokenCount: 60000, IsActive: true},
	}, nil)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, 42, session.SessionID, "one more")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestSendMessage_RebuildsContextFromHistory(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	// History in the system of record, including an inactive branch.
	seed := []models.Message{
		{MessageID: "m1", SessionID: session.SessionID, Role: models.RoleUser, Content: "q1", MessageIndex: 0, TokenCount: 10, IsActive: true},
		{MessageID: "m2", SessionID: session.SessionID, Role: models.RoleAssistant, Content: "a1", MessageIndex: 1, TokenCount: 12, IsActive: true},
		{MessageID: "m3", SessionID: session.SessionID, Role: models.RoleAssistant, Content: "abandoned branch", MessageIndex: 2, TokenCount: 9, IsActive: false},
	}
	for i := range seed {
		require.NoError(t, f.chatRepo.AddMessage(ctx, &seed[i]))
	}

	turn, err := f.svc.SendMessage(ctx, 42, session.SessionID, "q2")
	require.NoError(t, err)

	entry, err := f.chatCache.GetContext(ctx, session.SessionID)
	require.NoError(t, err)
	// Two historical active messages plus the new turn's two.
	assert.Len(t, entry.ContextMessages, 4)
	for _, m := range entry.ContextMessages {
		assert.NotEqual(t, "abandoned branch", m.Content)
	}
	assert.Equal(t, 10+12+turn.UserMessage.TokenCount+turn.AssistantMessage.TokenCount, entry.TotalTokens)
}

func TestSendMessage_ValidatesInput(t *testing.T) {
	f := newChatFixture(t)
	session := f.seedSession(t, 42)

	_, err := f.svc.SendMessage(context.Background(), 42, session.SessionID, "   ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.SendMessage(context.Background(), 99, session.SessionID, "hi")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.SendMessage(context.Background(), 42, "missing", "hi")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetTokenUsage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	usage, err := f.svc.GetTokenUsage(ctx, 42, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.TotalTokens)
	assert.True(t, usage.CanSendMessages)

	_, err = f.svc.GetTokenUsage(ctx, 99, session.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestListSessions(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	mine := f.seedSession(t, 42)
	f.seedSession(t, 77)

	sessions, err := f.svc.ListSessions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, mine.SessionID, sessions[0].SessionID)
}

func TestDeleteSession_ClearsCacheAndPersistence(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	_, err := f.svc.SendMessage(ctx, 42, session.SessionID, "hello")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSession(ctx, 42, session.SessionID))

	_, err = f.chatRepo.GetSession(ctx, session.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.chatCache.GetContext(ctx, session.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteSession_PersistFailureRestoresCache(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	_, err := f.svc.SendMessage(ctx, 42, session.SessionID, "hello")
	require.NoError(t, err)
	before, err := f.chatCache.GetContext(ctx, session.SessionID)
	require.NoError(t, err)

	f.chatRepo.deleteErr = errors.New("database unavailable")
	err = f.svc.DeleteSession(ctx, 42, session.SessionID)
	require.Error(t, err)

	// The cached context came back with the rollback.
	after, err := f.chatCache.GetContext(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before.TotalTokens, after.TotalTokens)
	assert.Len(t, after.ContextMessages, len(before.ContextMessages))
}

func TestDeleteSession_OwnershipEnforced(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 42)

	err := f.svc.DeleteSession(ctx, 99, session.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.chatRepo.GetSession(ctx, session.SessionID)
	assert.NoError(t, err)
}
