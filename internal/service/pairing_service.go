package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pairchat/internal/domain"
	"pairchat/internal/messaging"
	"pairchat/internal/observability"
)

// PairingService links two users so each appears in the other's contact
// list and both share one room
type PairingService struct {
	users     domain.UserDirectory
	pairings  domain.PairingRepository
	messages  domain.MessageRepository
	publisher EventPublisher
	newPolicy func() backoff.BackOff
}

// PairingOption customizes a PairingService
type PairingOption func(*PairingService)

// WithRetryPolicy replaces the backoff used when storing both pairing entries
func WithRetryPolicy(newPolicy func() backoff.BackOff) PairingOption {
	return func(s *PairingService) {
		s.newPolicy = newPolicy
	}
}

func NewPairingService(
	users domain.UserDirectory,
	pairings domain.PairingRepository,
	messages domain.MessageRepository,
	publisher EventPublisher,
	opts ...PairingOption,
) *PairingService {
	if publisher == nil {
		publisher = NoopPublisher()
	}
	s := &PairingService{
		users:     users,
		pairings:  pairings,
		messages:  messages,
		publisher: publisher,
		newPolicy: defaultPairingPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultPairingPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 3 * time.Second
	return policy
}

// EnsurePairing makes userA and userB contacts of each other and returns
// their room key. It is idempotent and safe to call concurrently from both
// sides.
func (s *PairingService) EnsurePairing(ctx context.Context, userA, userB domain.UserID) (domain.RoomKey, error) {
	logger := observability.FromContext(ctx)

	if userA == userB {
		observability.ChatPairings.WithLabelValues("self").Inc()
		return "", domain.ErrSelfPairing
	}

	if _, err := s.users.GetByID(ctx, userB); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			observability.ChatPairings.WithLabelValues("peer_not_found").Inc()
			return "", domain.ErrPeerNotFound
		}
		return "", fmt.Errorf("failed to look up peer: %w", err)
	}

	roomKey := domain.DeriveRoomKey(userA, userB)

	// Both directions are retried as one unit; a pairing is never left one-sided
	link := func() error {
		if err := s.pairings.AddPairing(ctx, userA, userB, roomKey); err != nil {
			return retryable(err)
		}
		if err := s.pairings.AddPairing(ctx, userB, userA, roomKey); err != nil {
			return retryable(err)
		}
		return nil
	}

	err := backoff.RetryNotify(link, backoff.WithContext(s.newPolicy(), ctx), func(err error, wait time.Duration) {
		logger.Warn("retrying pairing",
			slog.String("error", err.Error()),
			slog.String("room_key", roomKey.String()),
			slog.Duration("retry_in", wait))
	})
	if err != nil {
		observability.ChatPairings.WithLabelValues("failed").Inc()
		logger.Error("failed to store pairing",
			slog.String("error", err.Error()),
			slog.String("room_key", roomKey.String()))
		return "", err
	}

	if err := s.messages.EnsureRoom(ctx, roomKey); err != nil {
		observability.ChatPairings.WithLabelValues("failed").Inc()
		return "", err
	}

	observability.ChatPairings.WithLabelValues("established").Inc()
	logger.Info("pairing established",
		slog.Int64("peer_id", int64(userB)),
		slog.String("room_key", roomKey.String()))

	publishEvent(ctx, s.publisher, messaging.NewPairingEstablished(userA, userB, roomKey))
	return roomKey, nil
}

// EnsurePairingByEmail resolves the peer by email and pairs userA with them
func (s *PairingService) EnsurePairingByEmail(ctx context.Context, userA domain.UserID, email string) (domain.RoomKey, *domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil, &domain.ValidationError{Field: "email", Reason: "missing"}
	}

	peer, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			observability.ChatPairings.WithLabelValues("peer_not_found").Inc()
			return "", nil, domain.ErrPeerNotFound
		}
		return "", nil, fmt.Errorf("failed to look up peer: %w", err)
	}

	roomKey, err := s.EnsurePairing(ctx, userA, peer.ID)
	if err != nil {
		return "", nil, err
	}
	return roomKey, peer, nil
}

// retryable marks errors that another attempt cannot fix as permanent
func retryable(err error) error {
	if domain.IsRetryable(err) {
		return err
	}
	return backoff.Permanent(err)
}
