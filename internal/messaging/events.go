package messaging

import (
	"time"

	"github.com/google/uuid"

	"pairchat/internal/domain"
)

// Domain event types, also used as routing keys
const (
	EventPairingEstablished = "pairing.established"
	EventMessageAppended    = "message.appended"
)

// ChatEvent records a fact about the chat for downstream consumers
type ChatEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	RoomKey    domain.RoomKey `json:"room_key"`
	UserID     domain.UserID  `json:"user_id"`
	PeerID     domain.UserID  `json:"peer_id,omitempty"`
	Seq        int64          `json:"seq,omitempty"`
	OccurredAt int64          `json:"occurred_at"`
}

// NewPairingEstablished describes owner pairing with peer in roomKey
func NewPairingEstablished(owner, peer domain.UserID, roomKey domain.RoomKey) *ChatEvent {
	return &ChatEvent{
		ID:         uuid.NewString(),
		Type:       EventPairingEstablished,
		RoomKey:    roomKey,
		UserID:     owner,
		PeerID:     peer,
		OccurredAt: time.Now().UnixMilli(),
	}
}

// NewMessageAppended describes msg being stored
func NewMessageAppended(msg *domain.Message) *ChatEvent {
	return &ChatEvent{
		ID:         uuid.NewString(),
		Type:       EventMessageAppended,
		RoomKey:    msg.RoomKey,
		UserID:     msg.SenderID,
		Seq:        msg.Seq,
		OccurredAt: time.Now().UnixMilli(),
	}
}
