package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Access token failures
	ErrTokenMalformed = errors.New("access token is malformed")
	ErrTokenExpired   = errors.New("access token is expired")

	// Refresh token failures
	// A consumed token presented again means the value leaked: the whole
	// chain is revoked before ErrRefreshTokenConsumed is returned
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenConsumed = errors.New("refresh token is consumed")
	ErrRefreshTokenRevoked  = errors.New("refresh token chain is revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	// Client side outcomes
	// ErrUnauthenticated is the collapsed "session invalid" answer the
	// server gives; ErrOffline means the server was not reachable at all
	// and must never be treated as a credential problem
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrOffline         = errors.New("server unreachable")
)
