package service

import (
	"context"
	"log/slog"
	"time"

	"pairchat/internal/messaging"
	"pairchat/internal/observability"
)

const eventPublishTimeout = 2 * time.Second

// EventPublisher forwards domain events to downstream consumers
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *messaging.ChatEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, *messaging.ChatEvent) error { return nil }

// NoopPublisher discards events; used when no broker is configured
func NoopPublisher() EventPublisher {
	return noopPublisher{}
}

// publishEvent never fails the caller. The event outlives the caller's
// context but is bounded by its own timeout.
func publishEvent(ctx context.Context, publisher EventPublisher, event *messaging.ChatEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := publisher.PublishEvent(pubCtx, event); err != nil {
		observability.FromContext(ctx).Warn("failed to publish chat event",
			slog.String("error", err.Error()),
			slog.String("type", event.Type),
			slog.String("room_key", event.RoomKey.String()))
	}
}
