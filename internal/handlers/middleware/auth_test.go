package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/handlers/userctx"
	"github.com/riverajo/fitness-app/internal/models"
)

// stubAuthService answers every request with the configured user or error
type stubAuthService struct {
	user models.User
	err  error
}

func (s *stubAuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	return s.user, s.err
}

func Test_AuthMiddleware(t *testing.T) {
	t.Parallel()

	serve := func(as authService, l logger) *httptest.ResponseRecorder {
		handler := AuthMiddleware(as, l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		return rec
	}

	t.Run("passes the user down the chain", func(t *testing.T) {
		as := &stubAuthService{user: models.User{Username: "alice"}}

		var seen models.User
		var ok bool
		handler := AuthMiddleware(as, &recordingLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, ok = userctx.FromContext(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

		require.True(t, ok, "the user must be placed into the request context")
		assert.Equal(t, "alice", seen.Username)
	})

	t.Run("authentication failures answer 401", func(t *testing.T) {
		for _, err := range []error{
			apperrors.ErrTokenMalformed,
			apperrors.ErrTokenExpired,
			apperrors.ErrRefreshTokenRevoked,
			apperrors.ErrUserNotFound,
		} {
			rec := serve(&stubAuthService{err: err}, &recordingLogger{})
			require.Equal(t, http.StatusUnauthorized, rec.Code, "error: %v", err)
			assert.Contains(t, rec.Body.String(), "Unauthorized")
		}
	})

	t.Run("storage failure answers 500, not 401", func(t *testing.T) {
		l := &recordingLogger{}
		rec := serve(&stubAuthService{err: errors.New("db: connection refused")}, l)

		require.Equal(t, http.StatusInternalServerError, rec.Code, "an outage must not look like a logout")
		assert.Contains(t, rec.Body.String(), "Internal server error")
		assert.Equal(t, "authentication check failed", l.msg)
	})
}
