package domain

import (
	"context"
	"time"
)

// Message is one immutable entry of a room's log.
// Seq is assigned by the store and defines the order; Timestamp comes from
// the sending client and is only used for display.
type Message struct {
	ID             string    `json:"id"`
	RoomKey        RoomKey   `json:"room_key"`
	Seq            int64     `json:"seq"`
	Content        string    `json:"content"`
	Timestamp      int64     `json:"timestamp"`
	SenderID       UserID    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageRepository defines the per-room append-only log
type MessageRepository interface {
	EnsureRoom(ctx context.Context, roomKey RoomKey) error
	Append(ctx context.Context, message *Message) error
	ReadAll(ctx context.Context, roomKey RoomKey) ([]*Message, error)
	Last(ctx context.Context, roomKey RoomKey) (*Message, error)
}
