package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"pairchat/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextUserID generates a unique user ID for test fixtures
func nextUserID() domain.UserID {
	return domain.UserID(idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID       domain.UserID
	Username string
	Email    string
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{ID: nextUserID()}

	for _, opt := range opts {
		opt(o)
	}

	if o.Username == "" {
		o.Username = fmt.Sprintf("testuser%d", o.ID)
	}
	// Set email based on username if not provided
	if o.Email == "" {
		o.Email = o.Username + "@example.com"
	}

	return &domain.User{
		ID:       o.ID,
		Username: o.Username,
		Email:    o.Email,
	}
}

// WithUserID sets the user ID
func WithUserID(id domain.UserID) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

// WithUsername sets the username
func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Username = username
	}
}

// WithEmail sets the email
func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// NewTestSession creates a live session for user with the given token
func NewTestSession(userID domain.UserID, token string) *domain.Session {
	return &domain.Session{
		ID:        "session-" + token,
		UserID:    userID,
		Username:  fmt.Sprintf("testuser%d", userID),
		Token:     token,
		CSRFToken: "csrf-" + token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}
}

// NewExpiredSession creates a session that expired an hour ago
func NewExpiredSession(userID domain.UserID, token string) *domain.Session {
	s := NewTestSession(userID, token)
	s.ExpiresAt = time.Now().Add(-1 * time.Hour)
	return s
}

// NewTestMessage creates an unsent message from sender in the room
func NewTestMessage(sender *domain.User, roomKey domain.RoomKey, content string) *domain.Message {
	return &domain.Message{
		RoomKey:        roomKey,
		Content:        content,
		Timestamp:      time.Now().Unix(),
		SenderID:       sender.ID,
		SenderUsername: sender.Username,
	}
}
