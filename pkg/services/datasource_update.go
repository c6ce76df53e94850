package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
	"github.com/reportai-inc/reportai-engine/pkg/extract"
	"github.com/reportai-inc/reportai-engine/pkg/logging"
	"github.com/reportai-inc/reportai-engine/pkg/models"
	"github.com/reportai-inc/reportai-engine/pkg/repositories"
	"github.com/reportai-inc/reportai-engine/pkg/storage"
)

// SchemaExtraction is the part of the extraction service the update
// orchestrator depends on.
type SchemaExtraction interface {
	ExtractFromDatabase(ctx context.Context, sourceType, connectionURL string) (*models.SchemaDocument, error)
	TestConnection(ctx context.Context, sourceType, connectionURL string) error
	ExtractFromFile(ctx context.Context, sourceType, filename string, data []byte) (*models.SchemaDocument, error)
}

var _ SchemaExtraction = (*extract.Service)(nil)

// FileUpload is a replacement file received from the client.
type FileUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DataSourceUpdateService orchestrates staged updates to registered
// data sources. An update is extracted and diffed up front, parked in
// the extraction cache for review, and only touches the system of
// record when the owner applies it. Abandoned updates expire on their
// own.
type DataSourceUpdateService interface {
	InitiateSchemaRefresh(ctx context.Context, userID, dataSourceID int64) (*models.UpdateInitiationResult, error)
	InitiateConnectionChange(ctx context.Context, userID, dataSourceID int64, newConnectionURL string) (*models.UpdateInitiationResult, error)
	InitiateFileReplace(ctx context.Context, userID, dataSourceID int64, upload FileUpload) (*models.UpdateInitiationResult, error)
	GetStagedUpdate(ctx context.Context, userID int64, tempIdentifier string) (*models.StagedUpdateDetails, error)
	// ApplyUpdate commits a staged update. A non-empty finalDescription
	// replaces the data source's stored description.
	ApplyUpdate(ctx context.Context, userID, dataSourceID int64, tempIdentifier, finalDescription string) (*models.ApplyResult, error)
	// CancelUpdate discards a staged update. Cancelling one that has
	// already expired or been cancelled succeeds.
	CancelUpdate(ctx context.Context, userID int64, tempIdentifier string) error
}

type dataSourceUpdateService struct {
	repo          repositories.DataSourceRepository
	extractions   *cache.ExtractionCacheService
	extractor     SchemaExtraction
	differ        SchemaDiffService
	objects       storage.ObjectStore
	storagePrefix string
	maxFileBytes  int64
	logger        *zap.Logger
}

var _ DataSourceUpdateService = (*dataSourceUpdateService)(nil)

// NewDataSourceUpdateService creates a new update orchestrator.
func NewDataSourceUpdateService(
	repo repositories.DataSourceRepository,
	extractions *cache.ExtractionCacheService,
	extractor SchemaExtraction,
	differ SchemaDiffService,
	objects storage.ObjectStore,
	storagePrefix string,
	maxFileBytes int64,
	logger *zap.Logger,
) DataSourceUpdateService {
	return &dataSourceUpdateService{
		repo:          repo,
		extractions:   extractions,
		extractor:     extractor,
		differ:        differ,
		objects:       objects,
		storagePrefix: storagePrefix,
		maxFileBytes:  maxFileBytes,
		logger:        logger,
	}
}

func (s *dataSourceUpdateService) InitiateSchemaRefresh(ctx context.Context, userID, dataSourceID int64) (*models.UpdateInitiationResult, error) {
	ds, err := s.authorize(ctx, userID, dataSourceID)
	if err != nil {
		return nil, err
	}

	var newSchema *models.SchemaDocument
	if ds.IsFileBased() {
		newSchema, err = s.reExtractStoredFile(ctx, ds)
	} else {
		newSchema, err = s.extractor.ExtractFromDatabase(ctx, ds.Type, ds.ConnectionURL)
	}
	if err != nil {
		return nil, err
	}

	diff := s.differ.GenerateDiff(ds.Schema, newSchema)

	staged := &models.StagedUpdate{
		UpdateType:   models.UpdateTypeSchemaRefresh,
		DataSourceID: ds.ID,
		UserID:       userID,
		Current:      currentSnapshot(ds),
		SchemaRefresh: &models.SchemaRefreshProposal{
			NewSchema: newSchema,
			Diff:      diff,
		},
	}
	return s.stage(ctx, userID, ds, staged, nil, "")
}

func (s *dataSourceUpdateService) InitiateConnectionChange(ctx context.Context, userID, dataSourceID int64, newConnectionURL string) (*models.UpdateInitiationResult, error) {
	ds, err := s.authorize(ctx, userID, dataSourceID)
	if err != nil {
		return nil, err
	}
	if ds.IsFileBased() {
		return nil, fmt.Errorf("%w: file-based sources have no connection to change", apperrors.ErrValidation)
	}
	if newConnectionURL == "" {
		return nil, fmt.Errorf("%w: new connection url is required", apperrors.ErrValidation)
	}

	if err := s.extractor.TestConnection(ctx, ds.Type, newConnectionURL); err != nil {
		return nil, err
	}
	newSchema, err := s.extractor.ExtractFromDatabase(ctx, ds.Type, newConnectionURL)
	if err != nil {
		return nil, err
	}

	diff := s.differ.GenerateDiff(ds.Schema, newSchema)

	staged := &models.StagedUpdate{
		UpdateType:   models.UpdateTypeConnectionChange,
		DataSourceID: ds.ID,
		UserID:       userID,
		Current:      currentSnapshot(ds),
		ConnectionChange: &models.ConnectionChangeProposal{
			NewConnectionURL: newConnectionURL,
			NewSchema:        newSchema,
			Diff:             diff,
			ConnectionTestOK: true,
		},
	}
	return s.stage(ctx, userID, ds, staged, nil, "")
}

func (s *dataSourceUpdateService) InitiateFileReplace(ctx context.Context, userID, dataSourceID int64, upload FileUpload) (*models.UpdateInitiationResult, error) {
	ds, err := s.authorize(ctx, userID, dataSourceID)
	if err != nil {
		return nil, err
	}
	if !ds.IsFileBased() {
		return nil, fmt.Errorf("%w: %q sources do not take file uploads", apperrors.ErrValidation, ds.Type)
	}
	if err := extract.ValidateUpload(ds.Type, upload.Filename, int64(len(upload.Data)), s.maxFileBytes); err != nil {
		return nil, err
	}

	newSchema, err := s.extractor.ExtractFromFile(ctx, ds.Type, upload.Filename, upload.Data)
	if err != nil {
		return nil, err
	}

	diff := s.differ.GenerateDiff(ds.Schema, newSchema)

	meta := &models.FileMetadata{
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		Size:        int64(len(upload.Data)),
	}
	staged := &models.StagedUpdate{
		UpdateType:   models.UpdateTypeFileReplace,
		DataSourceID: ds.ID,
		UserID:       userID,
		Current:      currentSnapshot(ds),
		FileReplace: &models.FileReplaceProposal{
			NewSchema: newSchema,
			Diff:      diff,
			FileMeta:  *meta,
		},
	}
	return s.stage(ctx, userID, ds, staged, upload.Data, upload.ContentType)
}

// stage parks the proposal in the extraction cache and shapes the
// initiation result.
func (s *dataSourceUpdateService) stage(ctx context.Context, userID int64, ds *models.DataSource, staged *models.StagedUpdate, fileData []byte, _ string) (*models.UpdateInitiationResult, error) {
	record := &models.ExtractionRecord{
		SourceName:   ds.Name,
		SourceType:   ds.Type,
		Status:       models.ExtractionStatusStagedUpdate,
		StagedUpdate: staged,
	}
	if len(fileData) > 0 {
		record.HasFile = true
		record.FileContent = base64.StdEncoding.EncodeToString(fileData)
	}

	tempID, err := s.extractions.StoreExtraction(ctx, userID, record)
	if err != nil {
		return nil, err
	}

	result := &models.UpdateInitiationResult{
		TempIdentifier: tempID,
		UpdateType:     staged.UpdateType,
		DataSourceName: ds.Name,
		Summary:        summarize(staged),
		ExpiresAt:      record.ExpiresAt,
	}
	if staged.FileReplace != nil {
		result.NewFileInfo = &staged.FileReplace.FileMeta
	}

	s.logger.Info("update staged",
		zap.Int64("data_source_id", ds.ID),
		zap.String("update_type", staged.UpdateType),
		zap.String("temp_identifier", tempID),
		zap.Int("total_changes", result.Summary.TotalChanges))
	return result, nil
}

func (s *dataSourceUpdateService) GetStagedUpdate(ctx context.Context, userID int64, tempIdentifier string) (*models.StagedUpdateDetails, error) {
	record, err := s.extractions.GetExtraction(ctx, userID, tempIdentifier)
	if err != nil {
		return nil, err
	}
	if record.Status != models.ExtractionStatusStagedUpdate || record.StagedUpdate == nil {
		return nil, fmt.Errorf("%w: %q is not a staged update", apperrors.ErrValidation, tempIdentifier)
	}
	return &models.StagedUpdateDetails{
		TempIdentifier: tempIdentifier,
		Update:         record.StagedUpdate,
		HasFile:        record.HasFile,
		CreatedAt:      record.CreatedAt,
		ExpiresAt:      record.ExpiresAt,
	}, nil
}

func (s *dataSourceUpdateService) ApplyUpdate(ctx context.Context, userID, dataSourceID int64, tempIdentifier, finalDescription string) (*models.ApplyResult, error) {
	record, err := s.extractions.GetExtraction(ctx, userID, tempIdentifier)
	if err != nil {
		return nil, err
	}
	staged := record.StagedUpdate
	if record.Status != models.ExtractionStatusStagedUpdate || staged == nil {
		return nil, fmt.Errorf("%w: %q is not a staged update", apperrors.ErrValidation, tempIdentifier)
	}
	// The identifier in the URL and the one the update was staged for
	// must agree; a mismatch is a malformed request, not a permission
	// problem.
	if staged.DataSourceID != dataSourceID {
		return nil, fmt.Errorf("%w: staged update belongs to a different data source", apperrors.ErrValidation)
	}

	ds, err := s.authorize(ctx, userID, dataSourceID)
	if err != nil {
		return nil, err
	}

	var warnings []models.CleanupWarning
	oldFileURL := ""
	appliedAt := time.Now().UTC().Format(time.RFC3339)

	// User-authored descriptions are merged here, against the schema the
	// source has at apply time, not the one it had when the update was
	// staged.
	switch staged.UpdateType {
	case models.UpdateTypeSchemaRefresh:
		doc := staged.SchemaRefresh.NewSchema
		s.differ.PreserveDescriptions(ds.Schema, doc)
		stampMetadata(doc, map[string]any{
			"last_refresh": appliedAt,
			"refresh_type": "user_initiated",
		})
		ds.Schema = models.SchemaPayload{Document: doc}

	case models.UpdateTypeConnectionChange:
		doc := staged.ConnectionChange.NewSchema
		s.differ.PreserveDescriptions(ds.Schema, doc)
		// The outgoing URL is kept in the document for audit.
		stampMetadata(doc, map[string]any{
			"connection_updated":  appliedAt,
			"previous_connection": ds.ConnectionURL,
		})
		ds.ConnectionURL = staged.ConnectionChange.NewConnectionURL
		ds.Schema = models.SchemaPayload{Document: doc}

	case models.UpdateTypeFileReplace:
		data, err := base64.StdEncoding.DecodeString(record.FileContent)
		if err != nil {
			return nil, fmt.Errorf("%w: staged file content is corrupt", apperrors.ErrValidation)
		}
		meta := staged.FileReplace.FileMeta
		key := storage.ObjectKey(s.storagePrefix, userID, ds.Name, meta.Filename)
		url, err := s.objects.Upload(ctx, key, data, meta.ContentType)
		if err != nil {
			return nil, fmt.Errorf("upload replacement file: %w", err)
		}
		oldFileURL = ds.ConnectionURL
		doc := staged.FileReplace.NewSchema
		stampMetadata(doc, map[string]any{
			"file_replaced":     appliedAt,
			"previous_file_url": oldFileURL,
		})
		ds.ConnectionURL = url
		ds.Schema = models.SchemaPayload{Document: doc}

	default:
		return nil, fmt.Errorf("%w: unknown update type %q", apperrors.ErrValidation, staged.UpdateType)
	}

	if finalDescription != "" {
		ds.LLMDescription = finalDescription
	}

	// Persist first. On failure the staged update stays in cache so the
	// owner can retry the apply.
	if err := s.repo.Update(ctx, ds); err != nil {
		return nil, fmt.Errorf("persist updated data source: %w", err)
	}

	if oldFileURL != "" && oldFileURL != ds.ConnectionURL {
		if warn := s.deleteOldFile(ctx, oldFileURL); warn != nil {
			warnings = append(warnings, *warn)
		}
	}

	// The staged record goes last: everything durable already
	// succeeded, so failure here only leaves a record that expires.
	if err := s.extractions.DeleteExtraction(ctx, userID, tempIdentifier); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("delete staged update after apply",
			zap.String("temp_identifier", tempIdentifier),
			zap.Error(err))
		warnings = append(warnings, models.CleanupWarning{
			Operation: "delete_staged_update",
			Detail:    logging.SanitizeError(err),
		})
	}

	s.logger.Info("update applied",
		zap.Int64("data_source_id", ds.ID),
		zap.String("update_type", staged.UpdateType),
		zap.Int("warnings", len(warnings)))
	return &models.ApplyResult{DataSource: ds, Warnings: warnings}, nil
}

func (s *dataSourceUpdateService) CancelUpdate(ctx context.Context, userID int64, tempIdentifier string) error {
	err := s.extractions.DeleteExtraction(ctx, userID, tempIdentifier)
	if errors.Is(err, apperrors.ErrNotFound) {
		// Already expired or cancelled.
		return nil
	}
	return err
}

func (s *dataSourceUpdateService) authorize(ctx context.Context, userID, dataSourceID int64) (*models.DataSource, error) {
	ds, err := s.repo.GetByID(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	if ds.UserID != userID {
		return nil, apperrors.ErrForbidden
	}
	return ds, nil
}

// reExtractStoredFile refreshes a file-based source from its stored
// upload.
func (s *dataSourceUpdateService) reExtractStoredFile(ctx context.Context, ds *models.DataSource) (*models.SchemaDocument, error) {
	key, err := s.objects.KeyFromURL(ds.ConnectionURL)
	if err != nil {
		return nil, err
	}
	data, err := s.objects.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download stored file: %w", err)
	}
	return s.extractor.ExtractFromFile(ctx, ds.Type, key, data)
}

func (s *dataSourceUpdateService) deleteOldFile(ctx context.Context, url string) *models.CleanupWarning {
	key, err := s.objects.KeyFromURL(url)
	if err != nil {
		s.logger.Warn("parse old file url", zap.Error(err))
		return &models.CleanupWarning{Operation: "delete_old_file", Detail: logging.SanitizeError(err)}
	}
	if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("delete old file", zap.String("key", key), zap.Error(err))
		return &models.CleanupWarning{Operation: "delete_old_file", Detail: logging.SanitizeError(err)}
	}
	return nil
}

// stampMetadata records apply-time audit entries on the persisted
// document.
func stampMetadata(doc *models.SchemaDocument, entries map[string]any) {
	if doc == nil {
		return
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any, len(entries))
	}
	for k, v := range entries {
		doc.Metadata[k] = v
	}
}

func currentSnapshot(ds *models.DataSource) models.CurrentSourceData {
	return models.CurrentSourceData{
		DataSourceID:  ds.ID,
		Name:          ds.Name,
		Type:          ds.Type,
		ConnectionURL: ds.ConnectionURL,
		Schema:        ds.Schema,
	}
}

func summarize(staged *models.StagedUpdate) models.ChangesSummary {
	diff := staged.Diff()
	summary := models.ChangesSummary{}
	if diff != nil {
		summary.HasChanges = diff.HasChanges()
		summary.TablesAddedCount = len(diff.TablesAdded)
		summary.TablesRemovedCount = len(diff.TablesRemoved)
		summary.TablesModifiedCount = len(diff.TablesModified)
		summary.TotalChanges = diff.TotalTableChanges()
	}
	switch staged.UpdateType {
	case models.UpdateTypeConnectionChange:
		changed := staged.Current.ConnectionURL != staged.ConnectionChange.NewConnectionURL
		summary.ConnectionChanged = &changed
	case models.UpdateTypeFileReplace:
		changed := true
		summary.FileChanged = &changed
	}
	return summary
}
