package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
	"github.com/reportai-inc/reportai-engine/pkg/llm"
	"github.com/reportai-inc/reportai-engine/pkg/logging"
	"github.com/reportai-inc/reportai-engine/pkg/models"
	"github.com/reportai-inc/reportai-engine/pkg/repositories"
	"github.com/reportai-inc/reportai-engine/pkg/storage"
)

// RegisterInput finalizes a staged extraction into a data source.
type RegisterInput struct {
	TempIdentifier string
	Name           string
	// ConnectionURL is required for database sources; file sources get
	// their URL from object storage.
	ConnectionURL string
	ContentType   string
}

// DataSourceService manages data source registration and access.
// Every operation distinguishes a missing source (not found) from one
// owned by another user (forbidden).
type DataSourceService interface {
	Register(ctx context.Context, userID int64, input RegisterInput) (*models.DataSource, error)
	Get(ctx context.Context, userID, id int64) (*models.DataSource, error)
	List(ctx context.Context, userID int64) ([]*models.DataSource, error)
	Delete(ctx context.Context, userID, id int64) ([]models.CleanupWarning, error)
}

type dataSourceService struct {
	repo          repositories.DataSourceRepository
	extractions   *cache.ExtractionCacheService
	objects       storage.ObjectStore
	llmClient     llm.Client
	storagePrefix string
	logger        *zap.Logger
}

var _ DataSourceService = (*dataSourceService)(nil)

// NewDataSourceService creates a new data source service.
func NewDataSourceService(
	repo repositories.DataSourceRepository,
	extractions *cache.ExtractionCacheService,
	objects storage.ObjectStore,
	llmClient llm.Client,
	storagePrefix string,
	logger *zap.Logger,
) DataSourceService {
	return &dataSourceService{
		repo:          repo,
		extractions:   extractions,
		objects:       objects,
		llmClient:     llmClient,
		storagePrefix: storagePrefix,
		logger:        logger,
	}
}

func (s *dataSourceService) Register(ctx context.Context, userID int64, input RegisterInput) (*models.DataSource, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: data source name is required", apperrors.ErrValidation)
	}

	if _, err := s.repo.GetByName(ctx, userID, input.Name); err == nil {
		return nil, fmt.Errorf("%w: data source %q already exists", apperrors.ErrConflict, input.Name)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	record, err := s.extractions.GetExtraction(ctx, userID, input.TempIdentifier)
	if err != nil {
		return nil, err
	}
	if record.Status != models.ExtractionStatusExtracted || record.Extraction == nil {
		return nil, fmt.Errorf("%w: %q is not a registrable extraction", apperrors.ErrValidation, input.TempIdentifier)
	}

	ds := &models.DataSource{
		UserID: userID,
		Name:   input.Name,
		Type:   record.SourceType,
		Schema: models.SchemaPayload{Document: record.Extraction},
	}

	if record.HasFile {
		data, err := base64.StdEncoding.DecodeString(record.FileContent)
		if err != nil {
			return nil, fmt.Errorf("%w: staged file content is corrupt", apperrors.ErrValidation)
		}
		key := storage.ObjectKey(s.storagePrefix, userID, input.Name, record.SourceName)
		url, err := s.objects.Upload(ctx, key, data, input.ContentType)
		if err != nil {
			return nil, fmt.Errorf("upload source file: %w", err)
		}
		ds.ConnectionURL = url
	} else {
		if input.ConnectionURL == "" {
			return nil, fmt.Errorf("%w: connection url is required for database sources", apperrors.ErrValidation)
		}
		ds.ConnectionURL = input.ConnectionURL
	}

	ds.LLMDescription = s.describeSchema(ctx, record.Extraction)

	if err := s.repo.Create(ctx, ds); err != nil {
		return nil, err
	}

	// The staged extraction served its purpose. Removal failure only
	// shortens nothing: the record expires on its own.
	if err := s.extractions.DeleteExtraction(ctx, userID, input.TempIdentifier); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("delete staged extraction after registration",
			zap.String("temp_identifier", input.TempIdentifier),
			zap.Error(err))
	}

	s.logger.Info("data source registered",
		zap.Int64("data_source_id", ds.ID),
		zap.String("type", ds.Type),
		zap.String("name", ds.Name))
	return ds, nil
}

func (s *dataSourceService) Get(ctx context.Context, userID, id int64) (*models.DataSource, error) {
	return s.authorize(ctx, userID, id)
}

func (s *dataSourceService) List(ctx context.Context, userID int64) ([]*models.DataSource, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *dataSourceService) Delete(ctx context.Context, userID, id int64) ([]models.CleanupWarning, error) {
	ds, err := s.authorize(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}

	var warnings []models.CleanupWarning
	if ds.IsFileBased() && ds.ConnectionURL != "" {
		if warn := s.deleteStoredFile(ctx, ds.ConnectionURL); warn != nil {
			warnings = append(warnings, *warn)
		}
	}
	return warnings, nil
}

// authorize loads a data source and verifies ownership: a missing row
// is not found, another user's row is forbidden.
func (s *dataSourceService) authorize(ctx context.Context, userID, id int64) (*models.DataSource, error) {
	ds, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ds.UserID != userID {
		return nil, apperrors.ErrForbidden
	}
	return ds, nil
}

// describeSchema asks the model for a short summary of the source.
// Description generation is best effort: a provider outage must not
// block registration.
func (s *dataSourceService) describeSchema(ctx context.Context, doc *models.SchemaDocument) string {
	if s.llmClient == nil {
		return ""
	}
	prompt := buildSchemaPrompt(doc)
	resp, err := s.llmClient.Complete(ctx, llm.CompletionRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
	})
	if err != nil {
		s.logger.Warn("generate schema description", zap.Error(err))
		return ""
	}
	return resp.Content
}

// deleteStoredFile removes an uploaded file, downgrading failure to a
// warning. Orphaned objects cost storage, not correctness.
func (s *dataSourceService) deleteStoredFile(ctx context.Context, url string) *models.CleanupWarning {
	key, err := s.objects.KeyFromURL(url)
	if err != nil {
		s.logger.Warn("parse stored file url", zap.Error(err))
		return &models.CleanupWarning{Operation: "delete_file", Detail: logging.SanitizeError(err)}
	}
	if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("delete stored file", zap.String("key", key), zap.Error(err))
		return &models.CleanupWarning{Operation: "delete_file", Detail: logging.SanitizeError(err)}
	}
	return nil
}

func buildSchemaPrompt(doc *models.SchemaDocument) string {
	prompt := fmt.Sprintf("Summarize this %s data source named %q in two sentences for an analyst. Tables:\n", doc.SourceType, doc.SourceName)
	for _, table := range doc.Tables {
		prompt += fmt.Sprintf("- %s (", table.Name)
		for i, col := range table.Columns {
			if i > 0 {
				prompt += ", "
			}
			prompt += fmt.Sprintf("%s %s", col.Name, col.DataType)
		}
		prompt += ")\n"
	}
	return prompt
}
