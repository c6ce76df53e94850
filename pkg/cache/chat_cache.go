package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// Adaptive TTL tiers. Sessions with recent activity stay cached longer;
// idle sessions age out quickly to bound memory on the store.
const (
	ttlActiveSession = 2 * time.Hour
	ttlRecentSession = 1 * time.Hour
	ttlIdleSession   = 30 * time.Minute

	activeThreshold = 5 * time.Minute
	recentThreshold = 30 * time.Minute
)

// estimateCharsPerToken is the rough character-per-token ratio used
// when a message arrives without a token count.
const estimateCharsPerToken = 4

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / estimateCharsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// ChatCacheService caches per-session conversation context with an
// activity-adaptive TTL and enforces the session token ceiling.
type ChatCacheService struct {
	keys      *KeyManager
	store     Store
	logger    *zap.Logger
	maxTokens int
}

// NewChatCacheService creates the chat cache. maxTokens is the per
// session token ceiling used by TokenUsage and IsAtLimit.
func NewChatCacheService(store Store, keys *KeyManager, maxTokens int, logger *zap.Logger) *ChatCacheService {
	return &ChatCacheService{
		keys:      keys,
		store:     store,
		logger:    logger,
		maxTokens: maxTokens,
	}
}

// MaxTokens returns the configured per-session token ceiling.
func (s *ChatCacheService) MaxTokens() int { return s.maxTokens }

// GetContext fetches a session's cached context. Returns
// apperrors.ErrNotFound if the session has no cache entry.
func (s *ChatCacheService) GetContext(ctx context.Context, sessionID string) (*models.ChatSessionCacheEntry, error) {
	var entry models.ChatSessionCacheEntry
	if err := s.store.Get(ctx, s.keys.ChatSessionKey(sessionID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReplaceContext overwrites a session's cached context from the full
// message history. Inactive messages are dropped and token totals are
// recomputed; nothing in the entry is trusted from the caller.
func (s *ChatCacheService) ReplaceContext(ctx context.Context, sessionID string, messages []models.Message, sessionInfo map[string]any) (*models.ChatSessionCacheEntry, error) {
	active := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if !m.IsActive {
			continue
		}
		if m.TokenCount == 0 {
			m.TokenCount = EstimateTokens(m.Content)
		}
		active = append(active, m)
	}

	entry := &models.ChatSessionCacheEntry{
		ContextMessages: active,
		SessionInfo:     sessionInfo,
		LastUpdated:     time.Now().UTC(),
	}
	entry.RecalculateTokens()

	if err := s.writeEntry(ctx, sessionID, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// AppendMessage adds a message to the session's cached context,
// creating the entry if none exists. The write is read-modify-write
// with last-writer-wins; per-session chat is serialized upstream by the
// session lock, so concurrent appends to one session do not occur in
// normal operation.
func (s *ChatCacheService) AppendMessage(ctx context.Context, sessionID string, msg models.Message) (*models.ChatSessionCacheEntry, error) {
	entry, err := s.GetContext(ctx, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		entry = &models.ChatSessionCacheEntry{}
	} else if err != nil {
		return nil, err
	}

	if msg.TokenCount == 0 {
		msg.TokenCount = EstimateTokens(msg.Content)
	}
	msg.IsActive = true
	msg.MessageIndex = len(entry.ContextMessages)

	entry.ContextMessages = append(entry.ContextMessages, msg)
	entry.LastUpdated = time.Now().UTC()
	entry.RecalculateTokens()

	if err := s.writeEntry(ctx, sessionID, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// TokenUsage reports the session's position against the token ceiling.
// A session with no cache entry reports zero usage.
func (s *ChatCacheService) TokenUsage(ctx context.Context, sessionID string) (*models.TokenUsage, error) {
	entry, err := s.GetContext(ctx, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		entry = &models.ChatSessionCacheEntry{}
	} else if err != nil {
		return nil, err
	}

	remaining := s.maxTokens - entry.TotalTokens
	if remaining < 0 {
		remaining = 0
	}
	atLimit := entry.TotalTokens >= s.maxTokens

	usage := &models.TokenUsage{
		SessionID:       sessionID,
		TotalTokens:     entry.TotalTokens,
		MaxTokens:       s.maxTokens,
		TokensRemaining: remaining,
		IsAtLimit:       atLimit,
		MessageCount:    entry.MessageCount,
		CanSendMessages: !atLimit,
	}
	if s.maxTokens > 0 {
		usage.UsagePercentage = float64(entry.TotalTokens) / float64(s.maxTokens) * 100
	}
	return usage, nil
}

// IsAtLimit reports whether the session has reached the token ceiling.
func (s *ChatCacheService) IsAtLimit(ctx context.Context, sessionID string) (bool, error) {
	usage, err := s.TokenUsage(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return usage.IsAtLimit, nil
}

// Invalidate drops the session's cache entry. The next read rebuilds it
// from the system of record.
func (s *ChatCacheService) Invalidate(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, s.keys.ChatSessionKey(sessionID))
}

// ActiveSessionCount reports how many sessions currently have cache
// entries. Used by health and maintenance reporting.
func (s *ChatCacheService) ActiveSessionCount(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx, s.keys.Pattern(CategoryChatSession))
	if err != nil {
		return 0, fmt.Errorf("count chat sessions: %w", err)
	}
	return len(keys), nil
}

func (s *ChatCacheService) writeEntry(ctx context.Context, sessionID string, entry *models.ChatSessionCacheEntry) error {
	ttl := adaptiveTTL(entry, time.Now().UTC())
	if err := s.store.Set(ctx, s.keys.ChatSessionKey(sessionID), entry, ttl); err != nil {
		return fmt.Errorf("write chat context: %w", err)
	}
	s.logger.Debug("chat context cached",
		zap.String("session_id", sessionID),
		zap.Int("total_tokens", entry.TotalTokens),
		zap.Duration("ttl", ttl))
	return nil
}

// adaptiveTTL picks the cache lifetime from the session's most recent
// activity: the last message timestamp when present, otherwise the
// entry's LastUpdated.
func adaptiveTTL(entry *models.ChatSessionCacheEntry, now time.Time) time.Duration {
	last := entry.LastUpdated
	if n := len(entry.ContextMessages); n > 0 {
		if created := entry.ContextMessages[n-1].CreatedAt; !created.IsZero() {
			last = created
		}
	}
	idle := now.Sub(last)
	switch {
	case idle < activeThreshold:
		return ttlActiveSession
	case idle < recentThreshold:
		return ttlRecentSession
	default:
		return ttlIdleSession
	}
}
