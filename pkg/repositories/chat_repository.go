package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/database"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// ChatRepository is the system of record for chat sessions and
// messages. The cache layer is rebuilt from here whenever an entry is
// missing or invalidated.
type ChatRepository interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	ListSessionsByUser(ctx context.Context, userID int64) ([]models.ChatSession, error)
	TouchSession(ctx context.Context, sessionID string) error
	// DeleteSession removes a session and all of its messages.
	DeleteSession(ctx context.Context, sessionID string) error
	AddMessage(ctx context.Context, message *models.Message) error
	// ListMessages returns all of a session's messages, active and
	// inactive, in message index order.
	ListMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	// DeactivateFrom marks every message at or after the index inactive,
	// used when a conversation is rewound and branched.
	DeactivateFrom(ctx context.Context, sessionID string, fromIndex int) error
}

type chatRepository struct {
	db *database.DB
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *database.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	query := `
		INSERT INTO chat_sessions (session_id, user_id, data_source_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Pool.Exec(ctx, query,
		session.SessionID,
		session.UserID,
		session.DataSourceID,
		session.Title,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

func (r *chatRepository) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	query := `
		SELECT session_id, user_id, data_source_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE session_id = $1`

	var session models.ChatSession
	err := r.db.Pool.QueryRow(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.UserID,
		&session.DataSourceID,
		&session.Title,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return &session, nil
}

func (r *chatRepository) ListSessionsByUser(ctx context.Context, userID int64) ([]models.ChatSession, error) {
	query := `
		SELECT session_id, user_id, data_source_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		var s models.ChatSession
		err := rows.Scan(
			&s.SessionID,
			&s.UserID,
			&s.DataSourceID,
			&s.Title,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *chatRepository) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return tx.Commit(ctx)
}

func (r *chatRepository) TouchSession(ctx context.Context, sessionID string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = $2 WHERE session_id = $1`,
		sessionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch chat session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *chatRepository) AddMessage(ctx context.Context, message *models.Message) error {
	message.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO chat_messages (message_id, session_id, user_id, role, content, message_index, parent_message_id, token_count, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Pool.Exec(ctx, query,
		message.MessageID,
		message.SessionID,
		message.UserID,
		message.Role,
		message.Content,
		message.MessageIndex,
		message.ParentMessageID,
		message.TokenCount,
		message.IsActive,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add chat message: %w", err)
	}
	return nil
}

func (r *chatRepository) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	query := `
		SELECT message_id, session_id, user_id, role, content, message_index, parent_message_id, token_count, is_active, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY message_index`

	rows, err := r.db.Pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.MessageID,
			&m.SessionID,
			&m.UserID,
			&m.Role,
			&m.Content,
			&m.MessageIndex,
			&m.ParentMessageID,
			&m.TokenCount,
			&m.IsActive,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *chatRepository) DeactivateFrom(ctx context.Context, sessionID string, fromIndex int) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE chat_messages SET is_active = false WHERE session_id = $1 AND message_index >= $2`,
		sessionID, fromIndex)
	if err != nil {
		return fmt.Errorf("failed to deactivate chat messages: %w", err)
	}
	return nil
}
