package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
)

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", fmt.Errorf("%w: bad input", apperrors.ErrValidation), http.StatusBadRequest, "validation_error"},
		{"forbidden", fmt.Errorf("%w: not yours", apperrors.ErrForbidden), http.StatusForbidden, "forbidden"},
		{"not found", fmt.Errorf("%w: gone", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", fmt.Errorf("%w: limit", apperrors.ErrConflict), http.StatusConflict, "conflict"},
		{"upstream", fmt.Errorf("%w: llm down", apperrors.ErrUpstream), http.StatusBadGateway, "upstream_error"},
		{"unknown", fmt.Errorf("surprise"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("pq: password authentication failed"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["message"])
}

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
