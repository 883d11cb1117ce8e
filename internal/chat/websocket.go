package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// WebSocketHandler serves bidirectional chat over a single connection. Each
// connection owns one session; the read loop feeds the dispatcher and writes
// every response back as a JSON frame.
type WebSocketHandler struct {
	dispatcher    *Dispatcher
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a WebSocket chat handler.
func NewWebSocketHandler(dispatcher *Dispatcher, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		dispatcher:    dispatcher,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsFrame is the wire format in both directions. Clients send {message},
// the server replies with {session_id, response}.
type wsFrame struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ServeHTTP upgrades the connection and runs the chat loop until the client
// disconnects.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionID := uuid.NewString()
	slog.Info("WebSocket chat connected", "session_id", sessionID, "ip", r.RemoteAddr)

	greeting, err := h.dispatcher.OpenSession(ctx, sessionID)
	if err != nil {
		slog.Error("failed to open WebSocket session", "session_id", sessionID, "error", err)
		return
	}
	if err := h.writeFrame(ctx, ws, wsFrame{SessionID: sessionID, Response: greeting}); err != nil {
		return
	}

	h.readLoop(ctx, ws, sessionID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "session_id", sessionID, "error", err)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			if writeErr := h.writeFrame(ctx, ws, wsFrame{SessionID: sessionID, Error: "invalid JSON frame"}); writeErr != nil {
				return
			}
			continue
		}
		if strings.TrimSpace(frame.Message) == "" {
			if writeErr := h.writeFrame(ctx, ws, wsFrame{SessionID: sessionID, Error: "message is required"}); writeErr != nil {
				return
			}
			continue
		}

		turn, err := h.dispatcher.HandleTurn(ctx, sessionID, frame.Message)
		if err != nil {
			slog.Error("WebSocket turn failed", "session_id", sessionID, "error", err)
			if writeErr := h.writeFrame(ctx, ws, wsFrame{SessionID: sessionID, Error: "failed to process message"}); writeErr != nil {
				return
			}
			continue
		}

		if err := h.writeFrame(ctx, ws, wsFrame{SessionID: sessionID, Response: turn.Response}); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("failed to encode WebSocket frame", "error", err)
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
		return err
	}
	return nil
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
