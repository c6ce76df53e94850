package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// txBackupTTL bounds how long a rollback snapshot survives. A chat
// turn that has not committed or rolled back within this window is
// abandoned, and the live entry stands.
const txBackupTTL = 5 * time.Minute

// ChatTxService gives the chat cache transaction-like semantics: a
// turn snapshots the session entry before mutating it, then either
// commits (discarding the snapshot) or rolls back (restoring it).
// Snapshots cover the cache entry only; nothing here touches the
// system of record.
type ChatTxService struct {
	keys   *KeyManager
	store  Store
	chat   *ChatCacheService
	logger *zap.Logger
}

// NewChatTxService creates the transactional wrapper over the chat
// cache.
func NewChatTxService(store Store, keys *KeyManager, chat *ChatCacheService, logger *zap.Logger) *ChatTxService {
	return &ChatTxService{keys: keys, store: store, chat: chat, logger: logger}
}

// Begin snapshots the session's current cache entry and returns a
// transaction ID for the later Commit or Rollback. A session without
// an entry is recorded as such so Rollback restores absence.
func (s *ChatTxService) Begin(ctx context.Context, sessionID string) (string, error) {
	txID := uuid.New().String()

	backup := models.TransactionBackup{
		SessionID:     sessionID,
		TransactionID: txID,
		CreatedAt:     time.Now().UTC(),
	}
	entry, err := s.chat.GetContext(ctx, sessionID)
	switch {
	case err == nil:
		backup.Entry = entry
		backup.HadEntry = true
	case errors.Is(err, apperrors.ErrNotFound):
		// no entry to snapshot
	default:
		return "", fmt.Errorf("snapshot chat context: %w", err)
	}

	if err := s.store.Set(ctx, s.keys.ChatTxBackupKey(sessionID, txID), backup, txBackupTTL); err != nil {
		return "", fmt.Errorf("write transaction backup: %w", err)
	}

	s.logger.Debug("chat transaction begun",
		zap.String("session_id", sessionID),
		zap.String("transaction_id", txID),
		zap.Bool("had_entry", backup.HadEntry))
	return txID, nil
}

// Commit discards the snapshot, making the mutations since Begin
// permanent. Committing an unknown or expired transaction is a no-op.
func (s *ChatTxService) Commit(ctx context.Context, sessionID, txID string) error {
	if err := s.store.Delete(ctx, s.keys.ChatTxBackupKey(sessionID, txID)); err != nil {
		return fmt.Errorf("discard transaction backup: %w", err)
	}
	s.logger.Debug("chat transaction committed",
		zap.String("session_id", sessionID),
		zap.String("transaction_id", txID))
	return nil
}

// Rollback restores the session entry captured at Begin, including
// restoring absence when the session had no entry. Returns ErrNotFound
// if the snapshot is unknown or has expired.
func (s *ChatTxService) Rollback(ctx context.Context, sessionID, txID string) error {
	backupKey := s.keys.ChatTxBackupKey(sessionID, txID)

	var backup models.TransactionBackup
	if err := s.store.Get(ctx, backupKey, &backup); err != nil {
		return err
	}

	sessionKey := s.keys.ChatSessionKey(sessionID)
	if backup.HadEntry {
		ttl := adaptiveTTL(backup.Entry, time.Now().UTC())
		if err := s.store.Set(ctx, sessionKey, backup.Entry, ttl); err != nil {
			return fmt.Errorf("restore chat context: %w", err)
		}
	} else {
		if err := s.store.Delete(ctx, sessionKey); err != nil {
			return fmt.Errorf("clear chat context: %w", err)
		}
	}

	if err := s.store.Delete(ctx, backupKey); err != nil {
		s.logger.Warn("discard transaction backup after rollback", zap.Error(err))
	}
	s.logger.Info("chat transaction rolled back",
		zap.String("session_id", sessionID),
		zap.String("transaction_id", txID),
		zap.Bool("restored_entry", backup.HadEntry))
	return nil
}
