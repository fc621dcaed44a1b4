package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/codetime/internal/middleware"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Inbound message types.
const (
	TypeFocus = "focus"
	TypePing  = "ping"
)

// Handler upgrades editor connections and feeds them into a Hub.
type Handler struct {
	hub            *Hub
	allowedOrigins []string
	logger         *slog.Logger
}

// NewHandler creates a websocket handler. Origins are matched like the CORS middleware does.
func NewHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, allowedOrigins: allowedOrigins, logger: logger}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "connection ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx := r.Context()
	id := uuid.NewString()
	h.hub.Register(ctx, id, ws)
	defer h.hub.Unregister(id, ws)

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by editor", "conn_id", id)
			} else {
				h.logger.Warn("WebSocket read error", "conn_id", id, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Ignoring malformed editor message", "conn_id", id, "error", err)
			continue
		}

		switch msg.Type {
		case TypeFocus:
			if msg.Focused != nil {
				h.hub.SetFocus(id, *msg.Focused)
			}
		case TypePing:
			h.hub.send(ctx, id, Message{Type: TypePong})
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || middleware.OriginAllowed(h.allowedOrigins, origin) {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin)
	return false
}
