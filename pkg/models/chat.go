package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single chat message within a session. MessageIndex is
// the position in the session's append order; ParentMessageID links an
// assistant reply to the user message it answers.
type Message struct {
	MessageID       string    `json:"message_id"`
	SessionID       string    `json:"session_id"`
	UserID          int64     `json:"user_id"`
	Role            string    `json:"role"`
	Content         string    `json:"content"`
	MessageIndex    int       `json:"message_index"`
	ParentMessageID string    `json:"parent_message_id,omitempty"`
	TokenCount      int       `json:"token_count"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// ChatSession ties a conversation to a user and a data source.
type ChatSession struct {
	SessionID    string    `json:"session_id"`
	UserID       int64     `json:"user_id"`
	DataSourceID int64     `json:"data_source_id"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChatSessionCacheEntry is the cached conversation context for one
// session. TotalTokens is always the sum of TokenCount over
// ContextMessages; every mutation recomputes it rather than adjusting
// incrementally.
type ChatSessionCacheEntry struct {
	ContextMessages []Message      `json:"context_messages"`
	TotalTokens     int            `json:"total_tokens"`
	SessionInfo     map[string]any `json:"session_info,omitempty"`
	LastUpdated     time.Time      `json:"last_updated"`
	MessageCount    int            `json:"message_count"`
}

// RecalculateTokens resets TotalTokens and MessageCount from the
// messages currently in the entry.
func (e *ChatSessionCacheEntry) RecalculateTokens() {
	total := 0
	for i := range e.ContextMessages {
		total += e.ContextMessages[i].TokenCount
	}
	e.TotalTokens = total
	e.MessageCount = len(e.ContextMessages)
}

// TokenUsage reports a session's position against its token ceiling.
type TokenUsage struct {
	SessionID       string  `json:"session_id"`
	TotalTokens     int     `json:"total_tokens"`
	MaxTokens       int     `json:"max_tokens"`
	TokensRemaining int     `json:"tokens_remaining"`
	UsagePercentage float64 `json:"usage_percentage"`
	IsAtLimit       bool    `json:"is_at_limit"`
	MessageCount    int     `json:"message_count"`
	CanSendMessages bool    `json:"can_send_messages"`
}

// TransactionBackup is the pre-transaction snapshot of a session's
// cache entry, restored verbatim on rollback.
type TransactionBackup struct {
	SessionID     string                 `json:"session_id"`
	TransactionID string                 `json:"transaction_id"`
	Entry         *ChatSessionCacheEntry `json:"entry"`
	HadEntry      bool                   `json:"had_entry"`
	CreatedAt     time.Time              `json:"created_at"`
}
