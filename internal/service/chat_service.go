package service

import (
	"context"
	"errors"
	"fmt"

	"pairchat/internal/domain"
)

// UnknownUsername is shown for contacts missing from the user directory
const UnknownUsername = "Unknown"

// Conversation is one entry of a user's contact list
type Conversation struct {
	PeerID       domain.UserID
	PeerUsername string
	RoomKey      domain.RoomKey
	IsActive     bool
	LastMessage  *domain.Message
}

// ChatService serves the read side: contact lists and room history
type ChatService struct {
	users    domain.UserDirectory
	pairings domain.PairingRepository
	messages domain.MessageRepository
}

func NewChatService(users domain.UserDirectory, pairings domain.PairingRepository, messages domain.MessageRepository) *ChatService {
	return &ChatService{
		users:    users,
		pairings: pairings,
		messages: messages,
	}
}

// ListConversations returns owner's contacts in pairing order. The entry whose
// room is active is flagged. A pairing whose room key does not join owner and
// its peer is reported as an error.
func (s *ChatService) ListConversations(ctx context.Context, owner domain.UserID, active domain.RoomKey) ([]*Conversation, error) {
	pairings, err := s.pairings.ListPairings(ctx, owner)
	if err != nil {
		return nil, err
	}

	conversations := make([]*Conversation, 0, len(pairings))
	for _, p := range pairings {
		peerID, ok := p.RoomKey.Peer(owner)
		if !ok || peerID != p.PeerID {
			return nil, fmt.Errorf("pairing %d->%d has inconsistent room key %q", owner, p.PeerID, p.RoomKey)
		}

		username := UnknownUsername
		peer, err := s.users.GetByID(ctx, peerID)
		switch {
		case err == nil:
			username = peer.Username
		case !errors.Is(err, domain.ErrUserNotFound):
			return nil, fmt.Errorf("failed to look up contact %d: %w", peerID, err)
		}

		last, err := s.messages.Last(ctx, p.RoomKey)
		if err != nil {
			return nil, err
		}

		conversations = append(conversations, &Conversation{
			PeerID:       peerID,
			PeerUsername: username,
			RoomKey:      p.RoomKey,
			IsActive:     active != "" && p.RoomKey == active,
			LastMessage:  last,
		})
	}
	return conversations, nil
}

// History returns the room's messages in append order. A room that was never
// created has no history.
func (s *ChatService) History(ctx context.Context, roomKey domain.RoomKey) ([]*domain.Message, error) {
	messages, err := s.messages.ReadAll(ctx, roomKey)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return []*domain.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}
