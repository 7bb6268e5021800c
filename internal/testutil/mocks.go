// Package testutil provides shared test utilities, in-memory repositories
// and fixtures for testing the pairchat server.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pairchat/internal/domain"
	"pairchat/internal/messaging"
)

// MockUserDirectory implements domain.UserDirectory for testing
type MockUserDirectory struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	GetByIDFunc    func(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*domain.User, error)

	// In-memory storage for simple tests
	Users map[domain.UserID]*domain.User
}

// NewMockUserDirectory creates a directory holding users
func NewMockUserDirectory(users ...*domain.User) *MockUserDirectory {
	m := &MockUserDirectory{Users: make(map[domain.UserID]*domain.User)}
	for _, u := range users {
		m.Users[u.ID] = u
	}
	return m
}

// Add stores user, replacing any user with the same ID
func (m *MockUserDirectory) Add(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.ID] = user
}

func (m *MockUserDirectory) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserDirectory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	GetByTokenFunc func(ctx context.Context, token string) (*domain.Session, error)

	// In-memory storage keyed by token
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a repository holding sessions
func NewMockSessionRepository(sessions ...*domain.Session) *MockSessionRepository {
	m := &MockSessionRepository{Sessions: make(map[string]*domain.Session)}
	for _, s := range sessions {
		m.Sessions[s.Token] = s
	}
	return m
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.Sessions[token]; ok {
		if session.Expired(time.Now()) {
			return nil, domain.ErrSessionExpired
		}
		return session, nil
	}
	return nil, domain.ErrSessionNotFound
}

// MockPairingRepository implements domain.PairingRepository in memory with
// the same (owner, peer) uniqueness as the database
type MockPairingRepository struct {
	mu sync.Mutex

	// Function overrides, consulted before the in-memory store
	AddPairingFunc   func(ctx context.Context, owner, peer domain.UserID, roomKey domain.RoomKey) error
	ListPairingsFunc func(ctx context.Context, owner domain.UserID) ([]*domain.Pairing, error)

	lists    map[domain.UserID][]*domain.Pairing
	addCalls int
}

func NewMockPairingRepository() *MockPairingRepository {
	return &MockPairingRepository{lists: make(map[domain.UserID][]*domain.Pairing)}
}

func (m *MockPairingRepository) AddPairing(ctx context.Context, owner, peer domain.UserID, roomKey domain.RoomKey) error {
	m.mu.Lock()
	m.addCalls++
	m.mu.Unlock()

	if m.AddPairingFunc != nil {
		if err := m.AddPairingFunc(ctx, owner, peer, roomKey); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.lists[owner] {
		if p.PeerID == peer {
			return nil
		}
	}
	m.lists[owner] = append(m.lists[owner], &domain.Pairing{
		OwnerID:   owner,
		PeerID:    peer,
		RoomKey:   roomKey,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MockPairingRepository) ListPairings(ctx context.Context, owner domain.UserID) ([]*domain.Pairing, error) {
	if m.ListPairingsFunc != nil {
		return m.ListPairingsFunc(ctx, owner)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return append(make([]*domain.Pairing, 0, len(m.lists[owner])), m.lists[owner]...), nil
}

// AddCalls returns how many times AddPairing was invoked
func (m *MockPairingRepository) AddCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCalls
}

// MockMessageRepository implements domain.MessageRepository in memory. Rooms
// are created once and appends get contiguous sequence numbers.
type MockMessageRepository struct {
	mu sync.Mutex

	// Function overrides, consulted before the in-memory store
	EnsureRoomFunc func(ctx context.Context, roomKey domain.RoomKey) error
	AppendFunc     func(ctx context.Context, message *domain.Message) error

	rooms       map[domain.RoomKey][]*domain.Message
	ensureCalls int
}

func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{rooms: make(map[domain.RoomKey][]*domain.Message)}
}

func (m *MockMessageRepository) EnsureRoom(ctx context.Context, roomKey domain.RoomKey) error {
	m.mu.Lock()
	m.ensureCalls++
	m.mu.Unlock()

	if m.EnsureRoomFunc != nil {
		if err := m.EnsureRoomFunc(ctx, roomKey); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomKey]; !ok {
		m.rooms[roomKey] = make([]*domain.Message, 0)
	}
	return nil
}

func (m *MockMessageRepository) Append(ctx context.Context, message *domain.Message) error {
	if m.AppendFunc != nil {
		if err := m.AppendFunc(ctx, message); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	log, ok := m.rooms[message.RoomKey]
	if !ok {
		return domain.ErrRoomNotFound
	}

	stored := *message
	stored.ID = uuid.NewString()
	stored.Seq = int64(len(log) + 1)
	stored.CreatedAt = time.Now()
	m.rooms[message.RoomKey] = append(log, &stored)

	message.ID = stored.ID
	message.Seq = stored.Seq
	message.CreatedAt = stored.CreatedAt
	return nil
}

func (m *MockMessageRepository) ReadAll(_ context.Context, roomKey domain.RoomKey) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log, ok := m.rooms[roomKey]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return append(make([]*domain.Message, 0, len(log)), log...), nil
}

func (m *MockMessageRepository) Last(_ context.Context, roomKey domain.RoomKey) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.rooms[roomKey]
	if len(log) == 0 {
		return nil, nil
	}
	return log[len(log)-1], nil
}

// HasRoom reports whether the room exists
func (m *MockMessageRepository) HasRoom(roomKey domain.RoomKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[roomKey]
	return ok
}

// RoomCount returns the number of rooms created
func (m *MockMessageRepository) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// EnsureCalls returns how many times EnsureRoom was invoked
func (m *MockMessageRepository) EnsureCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureCalls
}

// MockEventPublisher records published domain events
type MockEventPublisher struct {
	mu sync.Mutex

	PublishEventFunc func(ctx context.Context, event *messaging.ChatEvent) error

	events []*messaging.ChatEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishEvent(ctx context.Context, event *messaging.ChatEvent) error {
	if m.PublishEventFunc != nil {
		if err := m.PublishEventFunc(ctx, event); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns the recorded events of the given type, or all when typ is empty
func (m *MockEventPublisher) Events(typ string) []*messaging.ChatEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*messaging.ChatEvent, 0, len(m.events))
	for _, e := range m.events {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
