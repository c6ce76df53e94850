package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
	"github.com/reportai-inc/reportai-engine/pkg/llm"
	"github.com/reportai-inc/reportai-engine/pkg/models"
	"github.com/reportai-inc/reportai-engine/pkg/repositories"
)

// ChatTurn is the outcome of one send: the assistant's reply plus the
// session's updated token position.
type ChatTurn struct {
	UserMessage      models.Message    `json:"user_message"`
	AssistantMessage models.Message    `json:"assistant_message"`
	Usage            models.TokenUsage `json:"usage"`
}

// ChatService runs conversations against a registered data source. A
// send is transactional over the session cache: the context snapshot
// taken before the turn is restored if persistence or the model call
// fails partway.
type ChatService interface {
	CreateSession(ctx context.Context, userID, dataSourceID int64, title string) (*models.ChatSession, error)
	GetSession(ctx context.Context, userID int64, sessionID string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID int64) ([]models.ChatSession, error)
	DeleteSession(ctx context.Context, userID int64, sessionID string) error
	SendMessage(ctx context.Context, userID int64, sessionID, content string) (*ChatTurn, error)
	GetHistory(ctx context.Context, userID int64, sessionID string) ([]models.Message, error)
	GetTokenUsage(ctx context.Context, userID int64, sessionID string) (*models.TokenUsage, error)
}

type chatService struct {
	chatRepo  repositories.ChatRepository
	dsRepo    repositories.DataSourceRepository
	chatCache *cache.ChatCacheService
	tx        *cache.ChatTxService
	llmClient llm.Client
	logger    *zap.Logger
}

var _ ChatService = (*chatService)(nil)

// NewChatService creates a new chat service.
func NewChatService(
	chatRepo repositories.ChatRepository,
	dsRepo repositories.DataSourceRepository,
	chatCache *cache.ChatCacheService,
	tx *cache.ChatTxService,
	llmClient llm.Client,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		chatRepo:  chatRepo,
		dsRepo:    dsRepo,
		chatCache: chatCache,
		tx:        tx,
		llmClient: llmClient,
		logger:    logger,
	}
}

func (s *chatService) CreateSession(ctx context.Context, userID, dataSourceID int64, title string) (*models.ChatSession, error) {
	ds, err := s.dsRepo.GetByID(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	if ds.UserID != userID {
		return nil, apperrors.ErrForbidden
	}

	session := &models.ChatSession{
		SessionID:    uuid.New().String(),
		UserID:       userID,
		DataSourceID: dataSourceID,
		Title:        title,
	}
	if err := s.chatRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("chat session created",
		zap.String("session_id", session.SessionID),
		zap.Int64("data_source_id", dataSourceID))
	return session, nil
}

func (s *chatService) GetSession(ctx context.Context, userID int64, sessionID string) (*models.ChatSession, error) {
	return s.authorizeSession(ctx, userID, sessionID)
}

func (s *chatService) ListSessions(ctx context.Context, userID int64) ([]models.ChatSession, error) {
	return s.chatRepo.ListSessionsByUser(ctx, userID)
}

// DeleteSession removes a session with its messages. The cached context
// is cleared under a cache transaction so a failed persistence delete
// leaves the cache as it was.
func (s *chatService) DeleteSession(ctx context.Context, userID int64, sessionID string) error {
	if _, err := s.authorizeSession(ctx, userID, sessionID); err != nil {
		return err
	}

	txID, err := s.tx.Begin(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.chatCache.Invalidate(ctx, sessionID); err != nil {
		return err
	}

	if err := s.chatRepo.DeleteSession(ctx, sessionID); err != nil {
		if rbErr := s.tx.Rollback(ctx, sessionID, txID); rbErr != nil {
			s.logger.Error("rollback chat session delete",
				zap.String("session_id", sessionID),
				zap.Error(rbErr))
		}
		return err
	}

	if err := s.tx.Commit(ctx, sessionID, txID); err != nil {
		s.logger.Warn("commit chat session delete", zap.Error(err))
	}

	s.logger.Info("chat session deleted", zap.String("session_id", sessionID))
	return nil
}

func (s *chatService) SendMessage(ctx context.Context, userID int64, sessionID, content string) (*ChatTurn, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is empty", apperrors.ErrValidation)
	}

	session, err := s.authorizeSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	atLimit, err := s.chatCache.IsAtLimit(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if atLimit {
		return nil, fmt.Errorf("%w: session token limit reached", apperrors.ErrConflict)
	}

	if err := s.ensureContext(ctx, sessionID); err != nil {
		return nil, err
	}

	txID, err := s.tx.Begin(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turn, err := s.runTurn(ctx, session, sessionID, userID, content)
	if err != nil {
		if rbErr := s.tx.Rollback(ctx, sessionID, txID); rbErr != nil {
			s.logger.Error("rollback chat turn",
				zap.String("session_id", sessionID),
				zap.Error(rbErr))
		}
		return nil, err
	}

	if err := s.tx.Commit(ctx, sessionID, txID); err != nil {
		s.logger.Warn("commit chat turn", zap.Error(err))
	}

	if err := s.chatRepo.TouchSession(ctx, sessionID); err != nil {
		s.logger.Warn("touch chat session", zap.Error(err))
	}
	return turn, nil
}

// runTurn performs the cache appends, persistence and model call for
// one send. Any error here is followed by a cache rollback in the
// caller.
func (s *chatService) runTurn(ctx context.Context, session *models.ChatSession, sessionID string, userID int64, content string) (*ChatTurn, error) {
	userMsg := models.Message{
		MessageID:  uuid.New().String(),
		SessionID:  sessionID,
		UserID:     userID,
		Role:       models.RoleUser,
		Content:    content,
		TokenCount: cache.EstimateTokens(content),
		IsActive:   true,
	}

	entry, err := s.chatCache.AppendMessage(ctx, sessionID, userMsg)
	if err != nil {
		return nil, err
	}
	userMsg = entry.ContextMessages[len(entry.ContextMessages)-1]

	system, err := s.systemPrompt(ctx, session)
	if err != nil {
		return nil, err
	}

	resp, err := s.llmClient.Complete(ctx, llm.CompletionRequest{
		System:   system,
		Messages: entry.ContextMessages,
	})
	if err != nil {
		return nil, err
	}

	assistantTokens := resp.OutputTokens
	if assistantTokens == 0 {
		assistantTokens = cache.EstimateTokens(resp.Content)
	}
	assistantMsg := models.Message{
		MessageID:       uuid.New().String(),
		SessionID:       sessionID,
		UserID:          userID,
		Role:            models.RoleAssistant,
		Content:         resp.Content,
		ParentMessageID: userMsg.MessageID,
		TokenCount:      assistantTokens,
		IsActive:        true,
	}

	entry, err = s.chatCache.AppendMessage(ctx, sessionID, assistantMsg)
	if err != nil {
		return nil, err
	}
	assistantMsg = entry.ContextMessages[len(entry.ContextMessages)-1]

	if err := s.chatRepo.AddMessage(ctx, &userMsg); err != nil {
		return nil, err
	}
	if err := s.chatRepo.AddMessage(ctx, &assistantMsg); err != nil {
		return nil, err
	}

	usage, err := s.chatCache.TokenUsage(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &ChatTurn{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Usage:            *usage,
	}, nil
}

func (s *chatService) GetHistory(ctx context.Context, userID int64, sessionID string) ([]models.Message, error) {
	if _, err := s.authorizeSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.chatRepo.ListMessages(ctx, sessionID)
}

func (s *chatService) GetTokenUsage(ctx context.Context, userID int64, sessionID string) (*models.TokenUsage, error) {
	if _, err := s.authorizeSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.chatCache.TokenUsage(ctx, sessionID)
}

func (s *chatService) authorizeSession(ctx context.Context, userID int64, sessionID string) (*models.ChatSession, error) {
	session, err := s.chatRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, apperrors.ErrForbidden
	}
	return session, nil
}

// ensureContext rebuilds the session's cache entry from the system of
// record when it has expired or been invalidated.
func (s *chatService) ensureContext(ctx context.Context, sessionID string) error {
	_, err := s.chatCache.GetContext(ctx, sessionID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	messages, err := s.chatRepo.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	_, err = s.chatCache.ReplaceContext(ctx, sessionID, messages, nil)
	return err
}

// systemPrompt frames the model with what is known about the session's
// data source.
func (s *chatService) systemPrompt(ctx context.Context, session *models.ChatSession) (string, error) {
	ds, err := s.dsRepo.GetByID(ctx, session.DataSourceID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a data analyst assistant for the %s data source %q.\n", ds.Type, ds.Name)
	if ds.LLMDescription != "" {
		fmt.Fprintf(&b, "Source description: %s\n", ds.LLMDescription)
	}
	if ds.Schema.IsStructured() {
		b.WriteString("Tables:\n")
		for _, table := range ds.Schema.Document.Tables {
			fmt.Fprintf(&b, "- %s (", table.Name)
			for i, col := range table.Columns {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s %s", col.Name, col.DataType)
			}
			b.WriteString(")\n")
		}
	} else if ds.Schema.Legacy != "" {
		fmt.Fprintf(&b, "Schema notes: %s\n", ds.Schema.Legacy)
	}
	b.WriteString("Answer questions about this data concisely.")
	return b.String(), nil
}
