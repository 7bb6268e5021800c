package domain

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// roomKeySeparator never appears in the decimal text of a user id.
const roomKeySeparator = "_"

var ErrInvalidRoomKey = errors.New("invalid room key")

// RoomKey identifies the conversation between exactly two users.
type RoomKey string

// DeriveRoomKey returns the canonical key for the unordered pair {a, b}.
// The ids are ordered numerically, so DeriveRoomKey(a, b) == DeriveRoomKey(b, a).
func DeriveRoomKey(a, b UserID) RoomKey {
	if b < a {
		a, b = b, a
	}
	return RoomKey(a.String() + roomKeySeparator + b.String())
}

// ParseRoomKey validates a key received from a client.
func ParseRoomKey(s string) (RoomKey, error) {
	key := RoomKey(strings.TrimSpace(s))
	if _, _, err := key.Participants(); err != nil {
		return "", err
	}
	return key, nil
}

// Participants returns the two user ids encoded in the key, lowest first.
func (k RoomKey) Participants() (UserID, UserID, error) {
	left, right, ok := strings.Cut(string(k), roomKeySeparator)
	if !ok {
		return 0, 0, ErrInvalidRoomKey
	}
	a, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return 0, 0, ErrInvalidRoomKey
	}
	b, err := strconv.ParseInt(right, 10, 64)
	if err != nil {
		return 0, 0, ErrInvalidRoomKey
	}
	if a >= b || DeriveRoomKey(UserID(a), UserID(b)) != k {
		return 0, 0, ErrInvalidRoomKey
	}
	return UserID(a), UserID(b), nil
}

// Includes reports whether user is one of the two participants of the room.
func (k RoomKey) Includes(user UserID) bool {
	a, b, err := k.Participants()
	if err != nil {
		return false
	}
	return user == a || user == b
}

// Peer returns the participant that is not user.
func (k RoomKey) Peer(user UserID) (UserID, bool) {
	a, b, err := k.Participants()
	if err != nil {
		return 0, false
	}
	switch user {
	case a:
		return b, true
	case b:
		return a, true
	}
	return 0, false
}

func (k RoomKey) String() string {
	return string(k)
}

// Room is the persistence unit holding one conversation's message log
type Room struct {
	Key       RoomKey   `json:"room_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Pairing is one entry of a user's contact list
type Pairing struct {
	OwnerID   UserID    `json:"owner_id"`
	PeerID    UserID    `json:"peer_id"`
	RoomKey   RoomKey   `json:"room_key"`
	CreatedAt time.Time `json:"created_at"`
}

// PairingRepository is the per-user ordered contact list.
// AddPairing is a no-op when owner already has an entry for peer.
type PairingRepository interface {
	AddPairing(ctx context.Context, owner, peer UserID, roomKey RoomKey) error
	ListPairings(ctx context.Context, owner UserID) ([]*Pairing, error)
}
