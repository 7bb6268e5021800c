package websocket

import (
	"encoding/json"
	"fmt"

	"pairchat/internal/domain"
)

// Live channel event names
const (
	EventJoinRoom    = "join-room"
	EventRoomOnline  = "room-online"
	EventSendMessage = "send-message"
	EventNewMessage  = "new-message"
	EventError       = "error"
)

// Event is an outbound event before encoding
type Event struct {
	Name string
	Data any
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// JoinRoomPayload is the data of a join-room event
type JoinRoomPayload struct {
	RoomKey domain.RoomKey `json:"roomKey"`
}

// RoomOnlinePayload is the data of a room-online event
type RoomOnlinePayload struct {
	Message string `json:"message"`
}

// SendMessagePayload is the data of a send-message event. Timestamp is the
// sender's clock in epoch seconds and is carried for display only.
type SendMessagePayload struct {
	RoomKey        domain.RoomKey `json:"roomKey"`
	Timestamp      int64          `json:"timestamp"`
	Content        string         `json:"content"`
	SenderID       domain.UserID  `json:"senderId"`
	SenderUsername string         `json:"senderUsername"`
}

// NewMessagePayload echoes a stored send-message with its position in the room
type NewMessagePayload struct {
	SendMessagePayload
	Seq int64 `json:"seq"`
}

// ErrorPayload is reported to the acting connection only
type ErrorPayload struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Encode renders ev as a {"event", "data"} text frame
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(outboundEnvelope{Event: ev.Name, Data: ev.Data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Name, err)
	}
	return data, nil
}

func decode(raw []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("failed to decode event: missing event name")
	}
	return &env, nil
}
