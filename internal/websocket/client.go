package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"pairchat/internal/domain"
	"pairchat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256

	eventsPerSecond = 20
	eventBurst      = 40
)

// EventHandler applies inbound live events. Calls for one connection are
// made sequentially, each to completion.
type EventHandler interface {
	HandleJoin(ctx context.Context, conn Subscriber, payload JoinRoomPayload) error
	HandleSend(ctx context.Context, conn Subscriber, payload SendMessagePayload) error
}

// Client is one authenticated live connection
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	userID    domain.UserID
	handler   EventHandler
	limiter   *rate.Limiter
	send      chan []byte
	sendMu    sync.Mutex
	sendDone  bool
	writeMu   sync.Mutex
	closed    atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewClient wraps conn for the authenticated user
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, userID domain.UserID, handler EventHandler) *Client {
	id := uuid.NewString()
	clientCtx, cancel := context.WithCancel(
		observability.WithConnID(observability.WithUserID(ctx, int64(userID)), id),
	)

	return &Client{
		id:        id,
		hub:       hub,
		conn:      conn,
		userID:    userID,
		handler:   handler,
		limiter:   rate.NewLimiter(rate.Limit(eventsPerSecond), eventBurst),
		send:      make(chan []byte, sendBufferSize),
		ctx:       clientCtx,
		ctxCancel: cancel,
	}
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// UserID returns the authenticated user of the connection
func (c *Client) UserID() domain.UserID {
	return c.userID
}

// Deliver queues data for the write pump without blocking
func (c *Client) Deliver(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendDone {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which then closes the connection
func (c *Client) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendDone {
		c.sendDone = true
		close(c.send)
	}
}

// ReadPump reads inbound events until the connection fails or closes
func (c *Client) ReadPump() {
	logger := observability.FromContext(c.ctx)

	defer func() {
		c.ctxCancel()
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Warn("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket error", slog.String("error", err.Error()))
			}
			return
		}

		if !c.limiter.Allow() {
			c.reportError(&ErrorPayload{Message: "too many events"})
			continue
		}

		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	logger := observability.FromContext(c.ctx)

	env, err := decode(raw)
	if err != nil {
		logger.Warn("invalid event format", slog.String("error", err.Error()))
		c.reportError(&ErrorPayload{Message: "invalid event format"})
		return
	}

	switch env.Event {
	case EventJoinRoom:
		var payload JoinRoomPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.reportError(&ErrorPayload{Message: "invalid join-room payload"})
			return
		}
		key, err := domain.ParseRoomKey(payload.RoomKey.String())
		if err != nil {
			c.reportError(&ErrorPayload{Message: "invalid room key", Field: "roomKey"})
			return
		}
		if !key.Includes(c.userID) {
			c.reportError(&ErrorPayload{Message: "not a participant of this room", Field: "roomKey"})
			return
		}
		payload.RoomKey = key
		c.report(c.handler.HandleJoin(c.ctx, c, payload))

	case EventSendMessage:
		var payload SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.reportError(&ErrorPayload{Message: "invalid send-message payload"})
			return
		}
		// Missing fields are reported by the handler's validation
		if payload.RoomKey != "" && !payload.RoomKey.Includes(c.userID) {
			c.reportError(&ErrorPayload{Message: "not a participant of this room", Field: "roomKey"})
			return
		}
		if payload.SenderID != 0 && payload.SenderID != c.userID {
			c.reportError(&ErrorPayload{Message: "sender does not match the connection", Field: "senderId"})
			return
		}
		c.report(c.handler.HandleSend(c.ctx, c, payload))

	default:
		logger.Warn("unknown event", slog.String("event", env.Event))
		c.reportError(&ErrorPayload{Message: "unknown event " + env.Event})
	}
}

// report turns a handler error into a diagnostic for this connection only
func (c *Client) report(err error) {
	if err == nil {
		return
	}

	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.reportError(&ErrorPayload{Message: vErr.Error(), Field: vErr.Field})
	case errors.Is(err, domain.ErrPersistence):
		c.reportError(&ErrorPayload{Message: "message could not be stored"})
	default:
		c.reportError(&ErrorPayload{Message: "internal error"})
	}
}

func (c *Client) reportError(payload *ErrorPayload) {
	data, err := Encode(Event{Name: EventError, Data: payload})
	if err != nil {
		observability.FromContext(c.ctx).Error("failed to marshal error event",
			slog.String("error", err.Error()))
		return
	}
	if !c.Deliver(data) {
		observability.FromContext(c.ctx).Warn("error event not delivered",
			slog.String("message", payload.Message))
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				_ = c.writeMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
