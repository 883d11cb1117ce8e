package chat

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helpdesk-labs/account-agent/internal/api"
)

// maxRequestBodySize caps chat request bodies (64KB).
const maxRequestBodySize = 64 << 10

// Handler exposes the dispatcher over HTTP.
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler creates a chat HTTP handler.
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// RegisterRoutes mounts the chat API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/session", h.HandleNewSession)
	r.Post("/api/chat", h.HandleChat)
}

type newSessionResponse struct {
	SessionID      string `json:"session_id"`
	InitialMessage string `json:"initial_message"`
}

// HandleNewSession opens a conversation and returns its ID with the
// greeting.
func (h *Handler) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()

	greeting, err := h.dispatcher.OpenSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to open session", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	slog.Info("session opened", "session_id", sessionID)
	api.JSON(w, http.StatusCreated, newSessionResponse{
		SessionID:      sessionID,
		InitialMessage: greeting,
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// HandleChat dispatches one user message and returns the assistant response.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if err == io.EOF {
			api.Error(w, http.StatusBadRequest, "empty request body")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.SessionID == "" {
		api.Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	turn, err := h.dispatcher.HandleTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		slog.Error("turn failed", "session_id", req.SessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	api.JSON(w, http.StatusOK, turn)
}
