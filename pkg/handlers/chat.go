package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/auth"
	"github.com/reportai-inc/reportai-engine/pkg/services"
)

// CreateSessionRequest is the POST /api/chat/sessions body.
type CreateSessionRequest struct {
	DataSourceID int64  `json:"data_source_id"`
	Title        string `json:"title,omitempty"`
}

// SendMessageRequest is the send-message body.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ChatHandler covers chat sessions: create, list, history, send,
// token usage, delete.
type ChatHandler struct {
	svc    services.ChatService
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, mw *auth.Middleware) {
	mux.HandleFunc("POST /api/chat/sessions", mw.RequireAuth(h.CreateSession))
	mux.HandleFunc("GET /api/chat/sessions", mw.RequireAuth(h.ListSessions))
	mux.HandleFunc("GET /api/chat/sessions/{sessionID}", mw.RequireAuth(h.GetSession))
	mux.HandleFunc("DELETE /api/chat/sessions/{sessionID}", mw.RequireAuth(h.DeleteSession))
	mux.HandleFunc("POST /api/chat/sessions/{sessionID}/messages", mw.RequireAuth(h.SendMessage))
	mux.HandleFunc("GET /api/chat/sessions/{sessionID}/messages", mw.RequireAuth(h.GetHistory))
	mux.HandleFunc("GET /api/chat/sessions/{sessionID}/usage", mw.RequireAuth(h.GetTokenUsage))
}

// CreateSession handles POST /api/chat/sessions.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	session, err := h.svc.CreateSession(r.Context(), userID, req.DataSourceID, req.Title)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, session)
}

// ListSessions handles GET /api/chat/sessions.
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	sessions, err := h.svc.ListSessions(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GetSession handles GET /api/chat/sessions/{sessionID}.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	session, err := h.svc.GetSession(r.Context(), userID, r.PathValue("sessionID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, session)
}

// DeleteSession handles DELETE /api/chat/sessions/{sessionID}.
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	if err := h.svc.DeleteSession(r.Context(), userID, r.PathValue("sessionID")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /api/chat/sessions/{sessionID}/messages.
// A 409 means the session hit its token ceiling.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	turn, err := h.svc.SendMessage(r.Context(), userID, r.PathValue("sessionID"), req.Content)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, turn)
}

// GetHistory handles GET /api/chat/sessions/{sessionID}/messages.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	messages, err := h.svc.GetHistory(r.Context(), userID, r.PathValue("sessionID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// GetTokenUsage handles GET /api/chat/sessions/{sessionID}/usage.
func (h *ChatHandler) GetTokenUsage(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserIDFromContext(r.Context())

	usage, err := h.svc.GetTokenUsage(r.Context(), userID, r.PathValue("sessionID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, usage)
}
