package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pairchat/internal/domain"
	"pairchat/internal/observability"
)

const sessionByTokenQuery = `
	SELECT s.id, s.user_id, u.username, s.token, COALESCE(s.csrf_token, ''), s.expires_at, s.created_at
	FROM sessions s
	JOIN users u ON u.id = s.user_id
	WHERE s.token = $1
`

// SessionRepository reads the sessions written by the account service
type SessionRepository struct {
	byToken *sql.Stmt
	now     func() time.Time
}

func NewSessionRepository(db *sql.DB) (*SessionRepository, error) {
	stmt, err := db.Prepare(sessionByTokenQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare session lookup: %w", err)
	}
	return &SessionRepository{byToken: stmt, now: time.Now}, nil
}

// GetByToken returns the session and its user's verified username
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	defer observability.ObserveQuery("get_by_token", "sessions", time.Now())

	s := &domain.Session{}
	err := r.byToken.QueryRowContext(ctx, token).Scan(
		&s.ID,
		&s.UserID,
		&s.Username,
		&s.Token,
		&s.CSRFToken,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, persistenceError("get session", err)
	}
	if s.Expired(r.now()) {
		return nil, domain.ErrSessionExpired
	}
	return s, nil
}

func (r *SessionRepository) Close() error {
	return r.byToken.Close()
}
