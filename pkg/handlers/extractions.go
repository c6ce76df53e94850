package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/auth"
	"github.com/reportai-inc/reportai-engine/pkg/services"
)

// StageDatabaseRequest is the POST /api/extractions/database body.
type StageDatabaseRequest struct {
	SourceType    string `json:"source_type"`
	ConnectionURL string `json:"connection_url"`
}

// ExtractionsHandler stages schema extractions in the temporary cache
// ahead of data source registration.
type ExtractionsHandler struct {
	svc          services.ExtractionService
	maxFileBytes int64
	logger       *zap.Logger
}

// NewExtractionsHandler creates a new ExtractionsHandler.
func NewExtractionsHandler(svc services.ExtractionService, maxFileBytes int64, logger *zap.Logger) *ExtractionsHandler {
	return &ExtractionsHandler{svc: svc, maxFileBytes: maxFileBytes, logger: logger}
}

// RegisterRoutes registers the extractions handler's routes on the given mux.
func (h *ExtractionsHandler) RegisterRoutes(mux *http.ServeMux, mw *auth.Middleware) {
	mux.HandleFunc("POST /api/extractions/file", mw.RequireAuth(h.StageFile))
	mux.HandleFunc("POST /api/extractions/database", mw.RequireAuth(h.StageDatabase))
	mux.HandleFunc("GET /api/extractions", mw.RequireAuth(h.List))
	mux.HandleFunc("GET /api/extractions/{tempID}", mw.RequireAuth(h.Get))
	mux.HandleFunc("DELETE /api/extractions/{tempID}", mw.RequireAuth(h.Delete))
}

// StageFile handles POST /api/extractions/file. The body is multipart
// form data with a "source_type" field and a "file" part.
func (h *ExtractionsHandler) StageFile(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	upload, sourceType, ok := readUpload(w, r, h.maxFileBytes)
	if !ok {
		return
	}

	record, err := h.svc.StageFileExtraction(r.Context(), userID, sourceType, upload)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, record.WithoutFileContent())
}

// StageDatabase handles POST /api/extractions/database.
func (h *ExtractionsHandler) StageDatabase(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	var req StageDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	record, err := h.svc.StageDatabaseExtraction(r.Context(), userID, req.SourceType, req.ConnectionURL)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, record.WithoutFileContent())
}

// List handles GET /api/extractions.
func (h *ExtractionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	summaries, err := h.svc.ListExtractions(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"extractions": summaries})
}

// Get handles GET /api/extractions/{tempID}.
func (h *ExtractionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	record, err := h.svc.GetExtraction(r.Context(), userID, r.PathValue("tempID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, record.WithoutFileContent())
}

// Delete handles DELETE /api/extractions/{tempID}.
func (h *ExtractionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	if err := h.svc.DeleteExtraction(r.Context(), userID, r.PathValue("tempID")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readUpload parses a multipart upload into a FileUpload. On failure it
// writes the error response and returns ok=false.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (services.FileUpload, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid multipart form")
		return services.FileUpload{}, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "missing file part")
		return services.FileUpload{}, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "failed to read file")
		return services.FileUpload{}, "", false
	}

	return services.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, r.FormValue("source_type"), true
}
