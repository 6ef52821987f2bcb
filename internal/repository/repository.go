package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/riverajo/fitness-app/internal/models"
)

// Storage groups the repositories one backing store provides
type Storage interface {
	User() UserRepo
	RefreshToken() RefreshTokenRepo
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string) (models.User, error)

	// Get user by its id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token if it exists, consumed or revoked included
	// If the token is unknown must return apperrors.ErrRefreshTokenNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error)

	// Mark the token consumed at 'now'
	// Must be atomic: of N concurrent callers exactly one wins; the others
	// get apperrors.ErrRefreshTokenConsumed. An already consumed timestamp
	// is never overwritten.
	MarkConsumed(ctx context.Context, id uuid.UUID, now time.Time) error

	// Mark every token of the chain revoked at 'now'
	// Idempotent: already revoked timestamps are kept untouched
	RevokeChain(ctx context.Context, chainID uuid.UUID, now time.Time) error

	// True if no token of the chain is revoked
	ChainLive(ctx context.Context, chainID uuid.UUID) (bool, error)

	// Drop tokens whose expiry is before 'olderThan'. Returns removed count.
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
}
