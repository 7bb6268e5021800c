package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"pairchat/internal/domain"
	"pairchat/internal/messaging"
	"pairchat/internal/observability"
	"pairchat/internal/websocket"
)

const (
	MaxContentLength  = 400
	MaxUsernameLength = 50

	DefaultPersistTimeout = 5 * time.Second
)

// Broadcaster is the part of the hub the live session needs
type Broadcaster interface {
	Subscribe(sub websocket.Subscriber, roomKey domain.RoomKey)
	Publish(roomKey domain.RoomKey, ev websocket.Event, exclude websocket.Subscriber) error
}

// ChatSessionService applies join-room and send-message events from live
// connections
type ChatSessionService struct {
	hub            Broadcaster
	messages       domain.MessageRepository
	publisher      EventPublisher
	persistTimeout time.Duration
	locks          *roomLocks
}

func NewChatSessionService(hub Broadcaster, messages domain.MessageRepository, publisher EventPublisher, persistTimeout time.Duration) *ChatSessionService {
	if publisher == nil {
		publisher = NoopPublisher()
	}
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}
	return &ChatSessionService{
		hub:            hub,
		messages:       messages,
		publisher:      publisher,
		persistTimeout: persistTimeout,
		locks:          newRoomLocks(),
	}
}

// HandleJoin subscribes conn to the room and announces presence to every
// member, conn included
func (s *ChatSessionService) HandleJoin(ctx context.Context, conn websocket.Subscriber, payload websocket.JoinRoomPayload) error {
	if strings.TrimSpace(payload.RoomKey.String()) == "" {
		return s.invalid(ctx, websocket.EventJoinRoom, "roomKey", "missing")
	}

	s.hub.Subscribe(conn, payload.RoomKey)

	observability.FromContext(ctx).Debug("joined room",
		slog.String("room_key", payload.RoomKey.String()))

	return s.hub.Publish(payload.RoomKey, websocket.Event{
		Name: websocket.EventRoomOnline,
		Data: websocket.RoomOnlinePayload{Message: fmt.Sprintf("%s is now online.", payload.RoomKey)},
	}, nil)
}

// HandleSend stores the message and relays it to the other members of the
// room. Nothing is relayed unless the append succeeded, and relays leave in
// append order.
func (s *ChatSessionService) HandleSend(ctx context.Context, conn websocket.Subscriber, payload websocket.SendMessagePayload) error {
	logger := observability.FromContext(ctx)

	if field, reason := validateSend(payload); field != "" {
		return s.invalid(ctx, websocket.EventSendMessage, field, reason)
	}

	msg := &domain.Message{
		RoomKey:        payload.RoomKey,
		Content:        payload.Content,
		Timestamp:      payload.Timestamp,
		SenderID:       payload.SenderID,
		SenderUsername: payload.SenderUsername,
	}

	// The append completes even if the sender disconnects meanwhile
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	unlock := s.locks.lock(msg.RoomKey)
	if err := s.persist(persistCtx, msg); err != nil {
		unlock()
		observability.ChatMessagesPersisted.WithLabelValues("failed").Inc()
		logger.Error("failed to store message",
			slog.String("error", err.Error()),
			slog.String("room_key", msg.RoomKey.String()),
			slog.Bool("retryable", domain.IsRetryable(err)))
		return err
	}

	err := s.hub.Publish(msg.RoomKey, websocket.Event{
		Name: websocket.EventNewMessage,
		Data: websocket.NewMessagePayload{SendMessagePayload: payload, Seq: msg.Seq},
	}, conn)
	unlock()

	observability.ChatMessagesPersisted.WithLabelValues("stored").Inc()
	if err != nil {
		logger.Error("failed to relay message",
			slog.String("error", err.Error()),
			slog.String("room_key", msg.RoomKey.String()),
			slog.Int64("seq", msg.Seq))
	}

	publishEvent(ctx, s.publisher, messaging.NewMessageAppended(msg))
	return nil
}

func (s *ChatSessionService) persist(ctx context.Context, msg *domain.Message) error {
	err := s.messages.EnsureRoom(ctx, msg.RoomKey)
	if err == nil {
		err = s.messages.Append(ctx, msg)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return domain.NewPersistenceError("store message", err, errors.Is(err, context.DeadlineExceeded))
}

func (s *ChatSessionService) invalid(ctx context.Context, event, field, reason string) error {
	observability.ChatValidationFailures.WithLabelValues(event, field).Inc()
	observability.FromContext(ctx).Warn("discarded invalid event",
		slog.String("event", event),
		slog.String("field", field),
		slog.String("reason", reason))
	return &domain.ValidationError{Field: field, Reason: reason}
}

// validateSend returns the first offending field and why, or "" when valid
func validateSend(p websocket.SendMessagePayload) (string, string) {
	switch {
	case p.RoomKey == "":
		return "roomKey", "missing"
	case p.Timestamp == 0:
		return "timestamp", "missing"
	case strings.TrimSpace(p.Content) == "":
		return "content", "missing"
	case utf8.RuneCountInString(p.Content) > MaxContentLength:
		return "content", fmt.Sprintf("longer than %d characters", MaxContentLength)
	case p.SenderID == 0:
		return "senderId", "missing"
	case strings.TrimSpace(p.SenderUsername) == "":
		return "senderUsername", "missing"
	case utf8.RuneCountInString(p.SenderUsername) > MaxUsernameLength:
		return "senderUsername", fmt.Sprintf("longer than %d characters", MaxUsernameLength)
	}
	if key, err := domain.ParseRoomKey(p.RoomKey.String()); err != nil || key != p.RoomKey {
		return "roomKey", "malformed"
	}
	return "", ""
}
