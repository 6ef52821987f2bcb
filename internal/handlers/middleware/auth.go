package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/handlers/render"
	"github.com/riverajo/fitness-app/internal/handlers/userctx"
	"github.com/riverajo/fitness-app/internal/models"
)

type authService interface {
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

// AuthMiddleware guards protected routes.
// Every authentication failure is one 401 with one message: the client must
// not learn whether the token was missing, expired, malformed or belongs to
// a revoked session. Infrastructure failures are not authentication
// failures; those answer 500 so a database outage does not log users out.
func AuthMiddleware(as authService, l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.GetUserFromRequest(r.Context(), r)
			switch {
			case err == nil:
			case isAuthFailure(err):
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			default:
				l.Error("authentication check failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isAuthFailure(err error) bool {
	return errors.Is(err, apperrors.ErrTokenMalformed) ||
		errors.Is(err, apperrors.ErrTokenExpired) ||
		errors.Is(err, apperrors.ErrRefreshTokenRevoked) ||
		errors.Is(err, apperrors.ErrUserNotFound)
}
