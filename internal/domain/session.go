package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is a login issued by the account service. The chat server only
// reads sessions; Username is the verified display name of UserID.
type Session struct {
	ID        string    `json:"id"`
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is no longer valid at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionRepository resolves session tokens to verified users. Unknown tokens
// yield ErrSessionNotFound and lapsed ones ErrSessionExpired.
type SessionRepository interface {
	GetByToken(ctx context.Context, token string) (*Session, error)
}
