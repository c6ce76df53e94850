// Package extract turns data sources into normalized schema documents.
// Database engines are introspected through their information schema;
// uploaded files are parsed and profiled column by column.
package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/logging"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// SchemaExtractor introspects one database engine.
type SchemaExtractor interface {
	// Extract reads table and column metadata from the database at the
	// given connection URL.
	Extract(ctx context.Context, connectionURL string) (*models.SchemaDocument, error)
	// TestConnection verifies the URL is reachable and authorized.
	TestConnection(ctx context.Context, connectionURL string) error
}

// Service routes extraction requests to per-engine extractors and file
// parsers.
type Service struct {
	logger     *zap.Logger
	extractors map[string]SchemaExtractor
}

// NewService creates the extraction service with all supported engines
// registered.
func NewService(logger *zap.Logger) *Service {
	mysql := newMySQLExtractor(logger)
	return &Service{
		logger: logger,
		extractors: map[string]SchemaExtractor{
			models.SourceTypePostgres: newPostgresExtractor(logger),
			models.SourceTypeMySQL:    mysql,
			// MariaDB speaks the MySQL protocol and information schema.
			models.SourceTypeMariaDB: mysql,
			models.SourceTypeMSSQL:   newMSSQLExtractor(logger),
		},
	}
}

// ExtractFromDatabase introspects a database source. Unsupported
// engines (oracle) return a validation error naming the engine.
func (s *Service) ExtractFromDatabase(ctx context.Context, sourceType, connectionURL string) (*models.SchemaDocument, error) {
	ex, err := s.extractorFor(sourceType)
	if err != nil {
		return nil, err
	}

	s.logger.Info("extracting database schema",
		zap.String("source_type", sourceType),
		zap.String("connection", logging.SanitizeConnectionString(connectionURL)))

	doc, err := ex.Extract(ctx, connectionURL)
	if err != nil {
		return nil, fmt.Errorf("%w: extract %s schema: %s", apperrors.ErrUpstream, sourceType, logging.SanitizeError(err))
	}
	doc.SourceType = sourceType
	return doc, nil
}

// TestConnection verifies connectivity to a database source without
// extracting anything.
func (s *Service) TestConnection(ctx context.Context, sourceType, connectionURL string) error {
	ex, err := s.extractorFor(sourceType)
	if err != nil {
		return err
	}
	if err := ex.TestConnection(ctx, connectionURL); err != nil {
		return fmt.Errorf("%w: connection test failed: %s", apperrors.ErrUpstream, logging.SanitizeError(err))
	}
	return nil
}

// ExtractFromFile parses an uploaded file into a schema document.
func (s *Service) ExtractFromFile(_ context.Context, sourceType, filename string, data []byte) (*models.SchemaDocument, error) {
	switch sourceType {
	case models.SourceTypeCSV:
		return extractCSV(filename, data)
	case models.SourceTypeXLSX:
		return extractXLSX(filename, data)
	default:
		return nil, fmt.Errorf("%w: %q is not a file-based source type", apperrors.ErrValidation, sourceType)
	}
}

func (s *Service) extractorFor(sourceType string) (SchemaExtractor, error) {
	ex, ok := s.extractors[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: schema extraction is not supported for engine %q", apperrors.ErrValidation, sourceType)
	}
	return ex, nil
}
