package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
	"github.com/reportai-inc/reportai-engine/pkg/models"
	"github.com/reportai-inc/reportai-engine/pkg/testhelpers"
)

const (
	testExtractionTTL = 30 * time.Minute
	testUpdateTTL     = 60 * time.Minute
)

func newExtractionCache(t *testing.T) (*cache.ExtractionCacheService, *testhelpers.MemStore) {
	t.Helper()
	store := testhelpers.NewMemStore()
	km := cache.NewKeyManager("reportai")
	svc := cache.NewExtractionCacheService(store, km, testExtractionTTL, testUpdateTTL, zap.NewNop())
	return svc, store
}

func sampleRecord(status string) *models.ExtractionRecord {
	doc := &models.SchemaDocument{
		SourceName: "sales",
		SourceType: models.SourceTypePostgres,
		Tables: []models.TableSchema{
			{Name: "orders", Columns: []models.ColumnSchema{{Name: "id", DataType: models.DataTypeInteger}}},
		},
	}
	rec := &models.ExtractionRecord{
		SourceName: "sales",
		SourceType: models.SourceTypePostgres,
		Status:     status,
	}
	if status == models.ExtractionStatusStagedUpdate {
		rec.StagedUpdate = &models.StagedUpdate{
			UpdateType:    models.UpdateTypeSchemaRefresh,
			SchemaRefresh: &models.SchemaRefreshProposal{NewSchema: doc, Diff: models.NewSchemaDiff()},
		}
	} else {
		rec.Extraction = doc
	}
	return rec
}

func TestExtractionCache_StoreAndGet(t *testing.T) {
	svc, _ := newExtractionCache(t)
	ctx := context.Background()

	tempID, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)
	assert.Contains(t, tempID, "42_extraction_")

	got, err := svc.GetExtraction(ctx, 42, tempID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.OwnerUserID)
	assert.Equal(t, tempID, got.TempIdentifier)
	assert.Equal(t, "sales", got.SourceName)
	assert.Equal(t, 1, got.TableCount())
}

func TestExtractionCache_OwnershipMismatchIsNotFound(t *testing.T) {
	svc, _ := newExtractionCache(t)
	ctx := context.Background()

	tempID, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)

	_, err = svc.GetExtraction(ctx, 99, tempID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = svc.DeleteExtraction(ctx, 99, tempID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// The record is untouched for its owner.
	_, err = svc.GetExtraction(ctx, 42, tempID)
	assert.NoError(t, err)
}

func TestExtractionCache_StagedUpdateGetsLongerTTL(t *testing.T) {
	svc, store := newExtractionCache(t)
	ctx := context.Background()

	extractionID, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)
	updateID, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusStagedUpdate))
	require.NoError(t, err)
	assert.Contains(t, updateID, "42_update_")

	store.Advance(testExtractionTTL + time.Minute)

	_, err = svc.GetExtraction(ctx, 42, extractionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.GetExtraction(ctx, 42, updateID)
	assert.NoError(t, err, "staged update should outlive the extraction TTL")
}

func TestExtractionCache_ListPrunesExpired(t *testing.T) {
	svc, store := newExtractionCache(t)
	ctx := context.Background()

	first, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)

	store.Advance(10 * time.Minute)
	second, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)

	summaries, err := svc.ListExtractions(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	// First record expires; the listing drops it and keeps the second.
	store.Advance(testExtractionTTL - 5*time.Minute)
	summaries, err = svc.ListExtractions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, second, summaries[0].TempIdentifier)
	assert.NotEqual(t, first, summaries[0].TempIdentifier)
}

func TestExtractionCache_DeleteRemovesFromListing(t *testing.T) {
	svc, _ := newExtractionCache(t)
	ctx := context.Background()

	tempID, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteExtraction(ctx, 42, tempID))

	_, err = svc.GetExtraction(ctx, 42, tempID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	summaries, err := svc.ListExtractions(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	// Idempotent from the caller's perspective: already gone.
	err = svc.DeleteExtraction(ctx, 42, tempID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExtractionCache_ListIsolatedPerUser(t *testing.T) {
	svc, _ := newExtractionCache(t)
	ctx := context.Background()

	_, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)
	_, err = svc.StoreExtraction(ctx, 99, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)

	mine, err := svc.ListExtractions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Contains(t, mine[0].TempIdentifier, "42_")
}

func TestExtractionCache_SweepIndexes(t *testing.T) {
	svc, store := newExtractionCache(t)
	ctx := context.Background()

	_, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)
	keep, err := svc.StoreExtraction(ctx, 42, sampleRecord(models.ExtractionStatusStagedUpdate))
	require.NoError(t, err)
	_, err = svc.StoreExtraction(ctx, 7, sampleRecord(models.ExtractionStatusExtracted))
	require.NoError(t, err)

	// The two plain extractions expire; the staged update survives.
	store.Advance(testExtractionTTL + time.Minute)

	pruned, err := svc.SweepIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	summaries, err := svc.ListExtractions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, keep, summaries[0].TempIdentifier)

	// A second sweep finds nothing left to prune.
	pruned, err = svc.SweepIndexes(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}
