package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/auth"
	"github.com/reportai-inc/reportai-engine/pkg/services"
)

// RegisterDataSourceRequest is the POST /api/datasources body. The
// temp identifier references a staged extraction.
type RegisterDataSourceRequest struct {
	TempIdentifier string `json:"temp_identifier"`
	Name           string `json:"name"`
	ConnectionURL  string `json:"connection_url,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
}

// ConnectionChangeRequest is the connection-change initiation body.
type ConnectionChangeRequest struct {
	NewConnectionURL string `json:"new_connection_url"`
}

// ApplyUpdateRequest names the staged update to commit. An optional
// final description replaces the data source's stored description.
type ApplyUpdateRequest struct {
	TempIdentifier   string `json:"temp_identifier"`
	FinalDescription string `json:"final_description,omitempty"`
}

// DataSourcesHandler covers data source CRUD and the staged update
// lifecycle: initiate, review, apply, cancel.
type DataSourcesHandler struct {
	svc          services.DataSourceService
	updates      services.DataSourceUpdateService
	maxFileBytes int64
	logger       *zap.Logger
}

// NewDataSourcesHandler creates a new DataSourcesHandler.
func NewDataSourcesHandler(svc services.DataSourceService, updates services.DataSourceUpdateService, maxFileBytes int64, logger *zap.Logger) *DataSourcesHandler {
	return &DataSourcesHandler{svc: svc, updates: updates, maxFileBytes: maxFileBytes, logger: logger}
}

// RegisterRoutes registers the data source routes on the given mux.
func (h *DataSourcesHandler) RegisterRoutes(mux *http.ServeMux, mw *auth.Middleware) {
	mux.HandleFunc("POST /api/datasources", mw.RequireAuth(h.Register))
	mux.HandleFunc("GET /api/datasources", mw.RequireAuth(h.List))
	mux.HandleFunc("GET /api/datasources/{id}", mw.RequireAuth(h.Get))
	mux.HandleFunc("DELETE /api/datasources/{id}", mw.RequireAuth(h.Delete))

	mux.HandleFunc("POST /api/datasources/{id}/updates/schema-refresh", mw.RequireAuth(h.InitiateSchemaRefresh))
	mux.HandleFunc("POST /api/datasources/{id}/updates/connection-change", mw.RequireAuth(h.InitiateConnectionChange))
	mux.HandleFunc("POST /api/datasources/{id}/updates/file-replace", mw.RequireAuth(h.InitiateFileReplace))
	mux.HandleFunc("POST /api/datasources/{id}/updates/apply", mw.RequireAuth(h.ApplyUpdate))
	mux.HandleFunc("GET /api/updates/{tempID}", mw.RequireAuth(h.GetStagedUpdate))
	mux.HandleFunc("DELETE /api/updates/{tempID}", mw.RequireAuth(h.CancelUpdate))
}

// Register handles POST /api/datasources, turning a staged extraction
// into a permanent data source.
func (h *DataSourcesHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	var req RegisterDataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	ds, err := h.svc.Register(r.Context(), userID, services.RegisterInput{
		TempIdentifier: req.TempIdentifier,
		Name:           req.Name,
		ConnectionURL:  req.ConnectionURL,
		ContentType:    req.ContentType,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, ds)
}

// List handles GET /api/datasources.
func (h *DataSourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	sources, err := h.svc.List(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"datasources": sources})
}

// Get handles GET /api/datasources/{id}.
func (h *DataSourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	ds, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, ds)
}

// Delete handles DELETE /api/datasources/{id}. Cleanup warnings are
// reported in the response without failing the delete.
func (h *DataSourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	warnings, err := h.svc.Delete(r.Context(), userID, id)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"deleted": true, "warnings": warnings})
}

// InitiateSchemaRefresh handles POST /api/datasources/{id}/updates/schema-refresh.
func (h *DataSourcesHandler) InitiateSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	result, err := h.updates.InitiateSchemaRefresh(r.Context(), userID, id)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, result)
}

// InitiateConnectionChange handles POST /api/datasources/{id}/updates/connection-change.
func (h *DataSourcesHandler) InitiateConnectionChange(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req ConnectionChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	result, err := h.updates.InitiateConnectionChange(r.Context(), userID, id, req.NewConnectionURL)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, result)
}

// InitiateFileReplace handles POST /api/datasources/{id}/updates/file-replace.
// The body is multipart form data with a "file" part.
func (h *DataSourcesHandler) InitiateFileReplace(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	upload, _, ok := readUpload(w, r, h.maxFileBytes)
	if !ok {
		return
	}

	result, err := h.updates.InitiateFileReplace(r.Context(), userID, id, upload)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, result)
}

// GetStagedUpdate handles GET /api/updates/{tempID}.
func (h *DataSourcesHandler) GetStagedUpdate(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	details, err := h.updates.GetStagedUpdate(r.Context(), userID, r.PathValue("tempID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, details)
}

// ApplyUpdate handles POST /api/datasources/{id}/updates/apply,
// committing a staged update to the system of record.
func (h *DataSourcesHandler) ApplyUpdate(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req ApplyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	result, err := h.updates.ApplyUpdate(r.Context(), userID, id, req.TempIdentifier, req.FinalDescription)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, result)
}

// CancelUpdate handles DELETE /api/updates/{tempID}. Cancelling an
// expired or already-cancelled update succeeds.
func (h *DataSourcesHandler) CancelUpdate(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	if err := h.updates.CancelUpdate(r.Context(), userID, r.PathValue("tempID")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
