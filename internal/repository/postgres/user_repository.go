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

// UserRepository is a read-only domain.UserDirectory over the accounts table
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return r.getOne(ctx, "get_by_id", `
		SELECT id, username, email
		FROM users
		WHERE id = $1
	`, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "get_by_email", `
		SELECT id, username, email
		FROM users
		WHERE email = $1
	`, email)
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg any) (*domain.User, error) {
	defer observability.ObserveQuery(op, "users", time.Now())

	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, persistenceError("lookup user", fmt.Errorf("failed to query user: %w", err))
	}
	return user, nil
}
