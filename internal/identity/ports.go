// Package identity signs owners up and in, issues session tokens and lets
// callers watch the owner bound to a session.
package identity

import (
	"context"
	"errors"
	"time"

	"estoque/internal/core"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already taken")
)

// User is an owner with its stored credential.
type User struct {
	core.Owner
	PasswordHash string
}

// Ports for identity adapters.
type (
	UserRepository interface {
		// CreateUser returns ErrEmailTaken when the email is already registered.
		CreateUser(ctx context.Context, u User) error
		UserByEmail(ctx context.Context, email string) (User, error)
		UserByID(ctx context.Context, id string) (User, error)
	}

	// RevocationList remembers signed-out session ids until they expire.
	RevocationList interface {
		Revoke(ctx context.Context, tokenID string, until time.Time) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}
)

// Session is an issued sign-in.
type Session struct {
	Token     string     `json:"token"`
	Owner     core.Owner `json:"owner"`
	ExpiresAt time.Time  `json:"expiresAt"`
}
