package services

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
	"github.com/reportai-inc/reportai-engine/pkg/extract"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// ExtractionService stages fresh schema extractions in the temporary
// cache so users can review before registering a data source.
type ExtractionService interface {
	StageFileExtraction(ctx context.Context, userID int64, sourceType string, upload FileUpload) (*models.ExtractionRecord, error)
	StageDatabaseExtraction(ctx context.Context, userID int64, sourceType, connectionURL string) (*models.ExtractionRecord, error)
	GetExtraction(ctx context.Context, userID int64, tempIdentifier string) (*models.ExtractionRecord, error)
	ListExtractions(ctx context.Context, userID int64) ([]models.ExtractionSummary, error)
	DeleteExtraction(ctx context.Context, userID int64, tempIdentifier string) error
}

type extractionService struct {
	extractions  *cache.ExtractionCacheService
	extractor    SchemaExtraction
	maxFileBytes int64
	logger       *zap.Logger
}

var _ ExtractionService = (*extractionService)(nil)

// NewExtractionService creates a new extraction staging service.
func NewExtractionService(
	extractions *cache.ExtractionCacheService,
	extractor SchemaExtraction,
	maxFileBytes int64,
	logger *zap.Logger,
) ExtractionService {
	return &extractionService{
		extractions:  extractions,
		extractor:    extractor,
		maxFileBytes: maxFileBytes,
		logger:       logger,
	}
}

func (s *extractionService) StageFileExtraction(ctx context.Context, userID int64, sourceType string, upload FileUpload) (*models.ExtractionRecord, error) {
	if err := extract.ValidateUpload(sourceType, upload.Filename, int64(len(upload.Data)), s.maxFileBytes); err != nil {
		return nil, err
	}

	doc, err := s.extractor.ExtractFromFile(ctx, sourceType, upload.Filename, upload.Data)
	if err != nil {
		return nil, err
	}

	record := &models.ExtractionRecord{
		Extraction:  doc,
		SourceName:  upload.Filename,
		SourceType:  sourceType,
		HasFile:     true,
		FileContent: base64.StdEncoding.EncodeToString(upload.Data),
		Status:      models.ExtractionStatusExtracted,
	}
	if _, err := s.extractions.StoreExtraction(ctx, userID, record); err != nil {
		return nil, err
	}

	s.logger.Info("file extraction staged",
		zap.String("temp_identifier", record.TempIdentifier),
		zap.String("source_type", sourceType),
		zap.Int("tables", record.TableCount()))
	return record, nil
}

func (s *extractionService) StageDatabaseExtraction(ctx context.Context, userID int64, sourceType, connectionURL string) (*models.ExtractionRecord, error) {
	if !models.DatabaseTypes[sourceType] {
		return nil, fmt.Errorf("%w: %q is not a database source type", apperrors.ErrValidation, sourceType)
	}
	if connectionURL == "" {
		return nil, fmt.Errorf("%w: connection url is required", apperrors.ErrValidation)
	}

	doc, err := s.extractor.ExtractFromDatabase(ctx, sourceType, connectionURL)
	if err != nil {
		return nil, err
	}

	record := &models.ExtractionRecord{
		Extraction: doc,
		SourceName: doc.SourceName,
		SourceType: sourceType,
		Status:     models.ExtractionStatusExtracted,
	}
	if _, err := s.extractions.StoreExtraction(ctx, userID, record); err != nil {
		return nil, err
	}

	s.logger.Info("database extraction staged",
		zap.String("temp_identifier", record.TempIdentifier),
		zap.String("source_type", sourceType),
		zap.Int("tables", record.TableCount()))
	return record, nil
}

func (s *extractionService) GetExtraction(ctx context.Context, userID int64, tempIdentifier string) (*models.ExtractionRecord, error) {
	return s.extractions.GetExtraction(ctx, userID, tempIdentifier)
}

func (s *extractionService) ListExtractions(ctx context.Context, userID int64) ([]models.ExtractionSummary, error) {
	return s.extractions.ListExtractions(ctx, userID)
}

func (s *extractionService) DeleteExtraction(ctx context.Context, userID int64, tempIdentifier string) error {
	return s.extractions.DeleteExtraction(ctx, userID, tempIdentifier)
}
