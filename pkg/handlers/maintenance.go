package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/auth"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
)

// SweepResponse reports the outcome of one maintenance sweep.
type SweepResponse struct {
	PrunedIndexEntries int `json:"pruned_index_entries"`
	ActiveChatSessions int `json:"active_chat_sessions"`
}

// MaintenanceHandler exposes operator-triggered cache maintenance.
// Redis expiry does the heavy lifting; the sweep reclaims index entries
// that lazy pruning has not touched.
type MaintenanceHandler struct {
	extractions *cache.ExtractionCacheService
	chatCache   *cache.ChatCacheService
	logger      *zap.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(extractions *cache.ExtractionCacheService, chatCache *cache.ChatCacheService, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{extractions: extractions, chatCache: chatCache, logger: logger}
}

// RegisterRoutes registers the maintenance routes on the given mux.
func (h *MaintenanceHandler) RegisterRoutes(mux *http.ServeMux, mw *auth.Middleware) {
	mux.HandleFunc("POST /api/maintenance/sweep", mw.RequireAuth(h.Sweep))
}

// Sweep handles POST /api/maintenance/sweep.
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	pruned, err := h.extractions.SweepIndexes(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	active, err := h.chatCache.ActiveSessionCount(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	h.logger.Info("cache maintenance sweep",
		zap.Int("pruned_index_entries", pruned),
		zap.Int("active_chat_sessions", active))
	_ = WriteJSON(w, http.StatusOK, SweepResponse{
		PrunedIndexEntries: pruned,
		ActiveChatSessions: active,
	})
}
