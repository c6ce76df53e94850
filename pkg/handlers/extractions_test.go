package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/models"
	"github.com/reportai-inc/reportai-engine/pkg/services"
)

type mockExtractionService struct {
	record    *models.ExtractionRecord
	summaries []models.ExtractionSummary
	err       error
}

func (m *mockExtractionService) StageFileExtraction(_ context.Context, userID int64, sourceType string, upload services.FileUpload) (*models.ExtractionRecord, error) {
	return m.record, m.err
}

func (m *mockExtractionService) StageDatabaseExtraction(_ context.Context, userID int64, sourceType, connectionURL string) (*models.ExtractionRecord, error) {
	return m.record, m.err
}

func (m *mockExtractionService) GetExtraction(_ context.Context, userID int64, tempIdentifier string) (*models.ExtractionRecord, error) {
	return m.record, m.err
}

func (m *mockExtractionService) ListExtractions(_ context.Context, userID int64) ([]models.ExtractionSummary, error) {
	return m.summaries, m.err
}

func (m *mockExtractionService) DeleteExtraction(_ context.Context, userID int64, tempIdentifier string) error {
	return m.err
}

func newExtractionsMux(svc services.ExtractionService) *http.ServeMux {
	mux := http.NewServeMux()
	h := NewExtractionsHandler(svc, 10<<20, zap.NewNop())
	// Register without middleware; tests inject claims directly.
	mux.HandleFunc("POST /api/extractions/file", h.StageFile)
	mux.HandleFunc("GET /api/extractions/{tempID}", h.Get)
	return mux
}

func stagedFileRecord() *models.ExtractionRecord {
	return &models.ExtractionRecord{
		OwnerUserID:    42,
		TempIdentifier: "42_extraction_abc",
		SourceName:     "orders.csv",
		SourceType:     models.SourceTypeCSV,
		HasFile:        true,
		FileContent:    "aWQKMQo=",
		Status:         models.ExtractionStatusExtracted,
	}
}

func TestGetExtraction_DoesNotEchoFileContent(t *testing.T) {
	svc := &mockExtractionService{record: stagedFileRecord()}
	mux := newExtractionsMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/extractions/42_extraction_abc", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["has_file"])
	assert.NotContains(t, body, "file_content")

	// The cached record keeps the file; only the response is stripped.
	assert.Equal(t, "aWQKMQo=", svc.record.FileContent)
}

func TestStageFile_DoesNotEchoFileContent(t *testing.T) {
	mux := newExtractionsMux(&mockExtractionService{record: stagedFileRecord()})

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("source_type", models.SourceTypeCSV))
	part, err := mw.CreateFormFile("file", "orders.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("id\n1\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := authedRequest(http.MethodPost, "/api/extractions/file", form.String())
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["has_file"])
	assert.NotContains(t, body, "file_content")
}
