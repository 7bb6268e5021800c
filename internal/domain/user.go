package domain

import (
	"context"
	"errors"
	"strconv"
)

var ErrUserNotFound = errors.New("user not found")

// UserID identifies a user in the external directory
type UserID int64

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// User is a read-only view of a directory entry
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserDirectory looks users up in the external user store
type UserDirectory interface {
	GetByID(ctx context.Context, id UserID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
