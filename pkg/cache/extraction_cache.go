package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

const (
	extractionLabel      = "extraction"
	extractionIndexLabel = "extraction_index"

	// indexTTLSlack keeps the per-user index alive slightly longer than
	// its newest record so a listing can still prune expired entries.
	indexTTLSlack = 5 * time.Minute
)

// ExtractionCacheService manages the temporary extraction cache: staged
// schema extractions and update proposals, plus a per-user index of
// live identifiers.
//
// The index is maintained with read-modify-write under last-writer-wins
// semantics. Concurrent staging by the same user can drop an index
// entry; the record itself survives and remains directly addressable,
// and listings self-heal via lazy pruning.
type ExtractionCacheService struct {
	keys          *KeyManager
	store         Store
	logger        *zap.Logger
	extractionTTL time.Duration
	updateTTL     time.Duration
}

// NewExtractionCacheService creates the extraction cache with the
// staging TTLs for fresh extractions and staged updates.
func NewExtractionCacheService(store Store, keys *KeyManager, extractionTTL, updateTTL time.Duration, logger *zap.Logger) *ExtractionCacheService {
	return &ExtractionCacheService{
		keys:          keys,
		store:         store,
		logger:        logger,
		extractionTTL: extractionTTL,
		updateTTL:     updateTTL,
	}
}

// ExtractionTTL returns the staging TTL for fresh extractions.
func (s *ExtractionCacheService) ExtractionTTL() time.Duration { return s.extractionTTL }

// UpdateTTL returns the staging TTL for staged update proposals.
func (s *ExtractionCacheService) UpdateTTL() time.Duration { return s.updateTTL }

// StoreExtraction caches a record for the user and returns its temp
// identifier. The record and the user's index are written in one atomic
// batch so a crash cannot leave an indexed identifier with no record
// behind it.
func (s *ExtractionCacheService) StoreExtraction(ctx context.Context, userID int64, record *models.ExtractionRecord) (string, error) {
	ttl := s.extractionTTL
	label := extractionLabel
	if record.Status == models.ExtractionStatusStagedUpdate {
		ttl = s.updateTTL
		label = "update"
	}

	now := time.Now().UTC()
	tempID := NewTempIdentifier(userID, label)
	record.OwnerUserID = userID
	record.TempIdentifier = tempID
	record.CreatedAt = now
	record.ExpiresAt = now.Add(ttl)

	index, err := s.loadIndex(ctx, userID)
	if err != nil {
		return "", err
	}
	index.Add(tempID)
	index.UpdatedAt = now

	entries := []Entry{
		{Key: s.recordKey(tempID), Value: record, TTL: ttl},
		{Key: s.indexKey(userID), Value: index, TTL: ttl + indexTTLSlack},
	}
	if err := s.store.SetMulti(ctx, entries); err != nil {
		return "", fmt.Errorf("store extraction: %w", err)
	}

	s.logger.Debug("stored extraction",
		zap.String("temp_identifier", tempID),
		zap.String("status", record.Status),
		zap.Duration("ttl", ttl))
	return tempID, nil
}

// GetExtraction fetches a record by identifier. A record owned by a
// different user is reported as not found, so callers cannot probe for
// other users' identifiers.
func (s *ExtractionCacheService) GetExtraction(ctx context.Context, userID int64, tempID string) (*models.ExtractionRecord, error) {
	var record models.ExtractionRecord
	if err := s.store.Get(ctx, s.recordKey(tempID), &record); err != nil {
		return nil, err
	}
	if record.OwnerUserID != userID {
		s.logger.Warn("extraction ownership mismatch",
			zap.String("temp_identifier", tempID),
			zap.Int64("requesting_user", userID))
		return nil, apperrors.ErrNotFound
	}
	return &record, nil
}

// DeleteExtraction removes a record and drops it from the user's index.
// Deleting an absent or foreign record returns ErrNotFound.
func (s *ExtractionCacheService) DeleteExtraction(ctx context.Context, userID int64, tempID string) error {
	if _, err := s.GetExtraction(ctx, userID, tempID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, s.recordKey(tempID)); err != nil {
		return fmt.Errorf("delete extraction: %w", err)
	}

	index, err := s.loadIndex(ctx, userID)
	if err != nil {
		s.logger.Warn("load index after delete", zap.Error(err))
		return nil
	}
	if index.Remove(tempID) {
		index.UpdatedAt = time.Now().UTC()
		if err := s.writeIndex(ctx, userID, index); err != nil {
			// The record is gone; a stale index entry is pruned on the
			// next listing.
			s.logger.Warn("write index after delete", zap.Error(err))
		}
	}
	return nil
}

// ListExtractions returns summaries of the user's live records. Index
// entries whose record has expired are pruned as a side effect.
func (s *ExtractionCacheService) ListExtractions(ctx context.Context, userID int64) ([]models.ExtractionSummary, error) {
	index, err := s.loadIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ExtractionSummary, 0, len(index.ExtractionIDs))
	live := make([]string, 0, len(index.ExtractionIDs))
	for _, tempID := range index.ExtractionIDs {
		var record models.ExtractionRecord
		err := s.store.Get(ctx, s.recordKey(tempID), &record)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.OwnerUserID != userID {
			continue
		}
		live = append(live, tempID)
		summaries = append(summaries, models.ExtractionSummary{
			TempIdentifier: record.TempIdentifier,
			SourceName:     record.SourceName,
			SourceType:     record.SourceType,
			HasFile:        record.HasFile,
			TableCount:     record.TableCount(),
			Status:         record.Status,
			CreatedAt:      record.CreatedAt,
			ExpiresAt:      record.ExpiresAt,
		})
	}

	if len(live) != len(index.ExtractionIDs) {
		index.ExtractionIDs = live
		index.UpdatedAt = time.Now().UTC()
		if err := s.writeIndex(ctx, userID, index); err != nil {
			s.logger.Warn("prune extraction index", zap.Error(err))
		}
	}
	return summaries, nil
}

// SweepIndexes walks every user's extraction index and drops
// identifiers whose record has expired. Redis reclaims the records on
// its own; this is operator-triggered maintenance for the indexes that
// lazy pruning has not touched. Returns the number of pruned entries.
func (s *ExtractionCacheService) SweepIndexes(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx, s.keys.TempDataPattern(extractionIndexLabel))
	if err != nil {
		return 0, fmt.Errorf("scan extraction indexes: %w", err)
	}

	pruned := 0
	for _, key := range keys {
		var index models.UserExtractionIndex
		if err := s.store.Get(ctx, key, &index); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return pruned, err
		}

		live := make([]string, 0, len(index.ExtractionIDs))
		for _, tempID := range index.ExtractionIDs {
			if _, err := s.store.TTL(ctx, s.recordKey(tempID)); err == nil {
				live = append(live, tempID)
			}
		}
		if len(live) == len(index.ExtractionIDs) {
			continue
		}

		pruned += len(index.ExtractionIDs) - len(live)
		if len(live) == 0 {
			if err := s.store.Delete(ctx, key); err != nil {
				s.logger.Warn("delete empty extraction index", zap.Error(err))
			}
			continue
		}
		index.ExtractionIDs = live
		index.UpdatedAt = time.Now().UTC()
		if err := s.store.Set(ctx, key, &index, s.updateTTL+indexTTLSlack); err != nil {
			s.logger.Warn("rewrite extraction index", zap.Error(err))
		}
	}
	return pruned, nil
}

// RemainingTTL reports how long a record will stay cached.
func (s *ExtractionCacheService) RemainingTTL(ctx context.Context, tempID string) (time.Duration, error) {
	return s.store.TTL(ctx, s.recordKey(tempID))
}

func (s *ExtractionCacheService) recordKey(tempID string) string {
	return s.keys.TempDataKey(extractionLabel, tempID)
}

func (s *ExtractionCacheService) indexKey(userID int64) string {
	return s.keys.TempDataKey(extractionIndexLabel, strconv.FormatInt(userID, 10))
}

func (s *ExtractionCacheService) loadIndex(ctx context.Context, userID int64) (*models.UserExtractionIndex, error) {
	var index models.UserExtractionIndex
	err := s.store.Get(ctx, s.indexKey(userID), &index)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &models.UserExtractionIndex{OwnerUserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &index, nil
}

func (s *ExtractionCacheService) writeIndex(ctx context.Context, userID int64, index *models.UserExtractionIndex) error {
	return s.store.Set(ctx, s.indexKey(userID), index, s.updateTTL+indexTTLSlack)
}
