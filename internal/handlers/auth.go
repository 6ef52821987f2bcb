package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/handlers/render"
	"github.com/riverajo/fitness-app/internal/logger"
	"github.com/riverajo/fitness-app/internal/models"
)

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

func handleRegister(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type response struct {
		Message string       `json:"message"`
		User    userResponse `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := auth.Register(r.Context(), data.Login, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				l.Error("register failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		auth.SetTokenPairToResponse(w, pair)
		render.JSON(w, response{
			Message: "User registered successfully",
			User:    userResponse{ID: user.ID, Username: user.Username},
		})
	})
}

func handleLogin(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		Message string       `json:"message"`
		User    userResponse `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := auth.Login(r.Context(), data.Login, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "Invalid username or password", http.StatusUnauthorized)
			default:
				l.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		auth.SetTokenPairToResponse(w, pair)
		render.JSON(w, response{
			Message: "User logged in successfully",
			User:    userResponse{ID: user.ID, Username: user.Username},
		})
	})
}

// handleTokenRefresh rotates the refresh token from the request cookie.
// Whatever went wrong (unknown, consumed, revoked, expired) the answer is
// the same 401: sub-cases stay server side, the cookie gets dropped.
func handleTokenRefresh(auth authService, l logger.Logger) http.Handler {
	type response struct {
		Message string       `json:"message"`
		User    userResponse `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := auth.GetRefreshString(r)
		if err != nil {
			auth.ClearTokensFromResponse(w)
			render.ServiceError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		user, pair, err := auth.Refresh(r.Context(), refresh)
		if err != nil {
			if errors.Is(err, apperrors.ErrRefreshTokenConsumed) {
				l.Warn("refresh token replay detected, chain revoked", "user_agent", r.UserAgent())
			}

			auth.ClearTokensFromResponse(w)
			switch {
			case isAuthFailure(err):
				render.ServiceError(w, "Authentication required", http.StatusUnauthorized)
			default:
				l.Error("refresh failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		auth.SetTokenPairToResponse(w, pair)
		render.JSON(w, response{
			Message: "Tokens refreshed successfully",
			User:    userResponse{ID: user.ID, Username: user.Username},
		})
	})
}

// handleLogout revokes the session chain and clears the cookie.
// Always succeeds: logging out twice is not an error.
func handleLogout(auth authService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := auth.GetRefreshString(r)
		if err == nil {
			if err := auth.Logout(r.Context(), refresh); err != nil {
				l.Error("logout failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
		}

		auth.ClearTokensFromResponse(w)
		render.JSON(w, response{Message: "Logged out"})
	})
}

// isAuthFailure collapses the refresh failure taxonomy into the single
// "unauthenticated" outcome the client is allowed to observe
func isAuthFailure(err error) bool {
	return errors.Is(err, apperrors.ErrRefreshTokenNotFound) ||
		errors.Is(err, apperrors.ErrRefreshTokenConsumed) ||
		errors.Is(err, apperrors.ErrRefreshTokenRevoked) ||
		errors.Is(err, apperrors.ErrRefreshTokenExpired) ||
		errors.Is(err, apperrors.ErrUserNotFound)
}

type authService interface {
	// Register user with username and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string) (models.User, models.TokenPair, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if credentials do not match
	Login(ctx context.Context, username string, password string) (models.User, models.TokenPair, error)

	// Rotate tokens using the raw refresh token
	// Replayed tokens revoke their whole chain before failing
	Refresh(ctx context.Context, refresh string) (models.User, models.TokenPair, error)

	// Revoke the chain of the presented refresh token. Idempotent.
	Logout(ctx context.Context, refresh string) error

	// Cookie and header plumbing
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)
	ClearTokensFromResponse(w http.ResponseWriter)
	GetRefreshString(r *http.Request) (string, error)

	// Resolve the request's bearer token to a user
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}
