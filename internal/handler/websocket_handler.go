package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"pairchat/internal/middleware"
	"pairchat/internal/observability"
	ws "pairchat/internal/websocket"
)

// WebSocketHandler upgrades authenticated requests to live connections
type WebSocketHandler struct {
	hub      *ws.Hub
	events   ws.EventHandler
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler accepting browser connections only
// from allowedOrigins. Requests without an Origin header are accepted.
func NewWebSocketHandler(hub *ws.Hub, events ws.EventHandler, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin || o == "*" {
				return true
			}
		}
		return false
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		observability.FromContext(r.Context()).Warn("websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	// The connection outlives the request
	client := ws.NewClient(context.WithoutCancel(r.Context()), h.hub, conn, userID, h.events)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
