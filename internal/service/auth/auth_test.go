package auth

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/repository/memory"
	"github.com/riverajo/fitness-app/internal/service/auth/tokenmanager"
)

// plainHasher keeps service tests fast; bcrypt has its own tests
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Compare(hashedPassword string, password string) error {
	if hashedPassword != "plain:"+password {
		return errors.New("password mismatch")
	}
	return nil
}

type fixture struct {
	service *AuthService
}

func newFixture(t *testing.T, cfg Config, tokenCfg tokenmanager.Config) fixture {
	t.Helper()

	storage := memory.NewStorage()

	if tokenCfg.SecretKey == "" {
		tokenCfg.SecretKey = "test-secret-key"
	}
	tokens, err := tokenmanager.New(tokenCfg, storage.RefreshToken())
	require.NoError(t, err)

	if cfg.Hasher == nil {
		cfg.Hasher = plainHasher{}
	}
	service, err := NewService(cfg, tokens, storage)
	require.NoError(t, err)

	return fixture{service: service}
}

func Test_AuthService_Register(t *testing.T) {
	t.Parallel()

	t.Run("creates user and issues pair", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})

		user, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		assert.Equal(t, "alice", user.Username)
		assert.NotEmpty(t, pair.Access.Value)
		assert.NotEmpty(t, pair.Refresh.Value)

		got, err := f.service.Authenticate(t.Context(), pair.Access.Value)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("duplicate username", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})

		_, _, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		_, _, err = f.service.Register(t.Context(), "alice", "other")
		require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
	})
}

func Test_AuthService_Login(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, tokenmanager.Config{})
	registered, _, err := f.service.Register(t.Context(), "alice", "password")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		user, pair, err := f.service.Login(t.Context(), "alice", "password")
		require.NoError(t, err)

		assert.Equal(t, registered.ID, user.ID)
		assert.NotEmpty(t, pair.Access.Value)
		assert.NotEmpty(t, pair.Refresh.Value)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, _, err := f.service.Login(t.Context(), "nobody", "password")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := f.service.Login(t.Context(), "alice", "wrong")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound, "wrong password must be indistinguishable from unknown user")
	})

	t.Run("every login starts its own chain", func(t *testing.T) {
		_, pair1, err := f.service.Login(t.Context(), "alice", "password")
		require.NoError(t, err)
		_, pair2, err := f.service.Login(t.Context(), "alice", "password")
		require.NoError(t, err)

		// Killing one chain must not touch the other
		require.NoError(t, f.service.Logout(t.Context(), pair1.Refresh.Value))

		_, _, err = f.service.Refresh(t.Context(), pair1.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)

		_, _, err = f.service.Refresh(t.Context(), pair2.Refresh.Value)
		require.NoError(t, err)
	})
}

func Test_AuthService_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("rotation issues new pair and retires the old value", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})
		user, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		rotatedUser, rotated, err := f.service.Refresh(t.Context(), pair.Refresh.Value)
		require.NoError(t, err)

		assert.Equal(t, user.ID, rotatedUser.ID)
		assert.NotEqual(t, pair.Refresh.Value, rotated.Refresh.Value)
		assert.NotEmpty(t, rotated.Access.Value)

		// The new value keeps working, chained rotations are the normal path
		_, _, err = f.service.Refresh(t.Context(), rotated.Refresh.Value)
		require.NoError(t, err)
	})

	t.Run("replay revokes the whole chain", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		_, rotated, err := f.service.Refresh(t.Context(), pair.Refresh.Value)
		require.NoError(t, err)

		// Presenting the consumed value again is replay evidence
		_, _, err = f.service.Refresh(t.Context(), pair.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenConsumed)

		// The legitimate successor dies with the chain
		_, _, err = f.service.Refresh(t.Context(), rotated.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{RefreshTTL: -time.Minute})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		_, _, err = f.service.Refresh(t.Context(), pair.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)
	})

	t.Run("expired token is not consumed", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{RefreshTTL: -time.Minute})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		// Retrying an expired token keeps reporting expiry, never replay
		for range 3 {
			_, _, err = f.service.Refresh(t.Context(), pair.Refresh.Value)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)
		}
	})

	t.Run("unknown and malformed values", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})

		for _, raw := range []string{"", "garbage", "00000000-0000-0000-0000-000000000001.secret"} {
			_, _, err := f.service.Refresh(t.Context(), raw)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "raw value %q", raw)
		}
	})

	t.Run("concurrent rotation has exactly one winner", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		const workers = 16
		errs := make([]error, workers)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, _, errs[i] = f.service.Refresh(t.Context(), pair.Refresh.Value)
			}()
		}
		close(start)
		wg.Wait()

		var winners int
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			// A loser either hits the consumed value or arrives after another
			// loser already revoked the chain
			replayDetected := errors.Is(err, apperrors.ErrRefreshTokenConsumed) ||
				errors.Is(err, apperrors.ErrRefreshTokenRevoked)
			require.True(t, replayDetected, "unexpected loser error: %v", err)
		}
		require.Equal(t, 1, winners, "exactly one concurrent rotation may succeed")
	})
}

func Test_AuthService_Logout(t *testing.T) {
	t.Parallel()

	t.Run("revokes the chain", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		require.NoError(t, f.service.Logout(t.Context(), pair.Refresh.Value))

		_, _, err = f.service.Refresh(t.Context(), pair.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
	})

	t.Run("revokes rotated successors too", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		_, rotated, err := f.service.Refresh(t.Context(), pair.Refresh.Value)
		require.NoError(t, err)

		// Logging out with the old, already consumed value still kills the chain
		require.NoError(t, f.service.Logout(t.Context(), pair.Refresh.Value))

		_, _, err = f.service.Refresh(t.Context(), rotated.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		require.NoError(t, f.service.Logout(t.Context(), pair.Refresh.Value))
		require.NoError(t, f.service.Logout(t.Context(), pair.Refresh.Value))
	})

	t.Run("forgiving on garbage", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})

		require.NoError(t, f.service.Logout(t.Context(), ""))
		require.NoError(t, f.service.Logout(t.Context(), "garbage"))
		require.NoError(t, f.service.Logout(t.Context(), "00000000-0000-0000-0000-000000000001.secret"))
	})
}

func Test_AuthService_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("valid access token", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})
		user, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		got, err := f.service.Authenticate(t.Context(), pair.Access.Value)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("expired access token", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{AccessTTL: -time.Minute})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		_, err = f.service.Authenticate(t.Context(), pair.Access.Value)
		require.ErrorIs(t, err, apperrors.ErrTokenExpired)
	})

	t.Run("garbage access token", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})

		_, err := f.service.Authenticate(t.Context(), "not.a.jwt")
		require.ErrorIs(t, err, apperrors.ErrTokenMalformed)
	})

	t.Run("access token survives logout by default", func(t *testing.T) {
		f := newFixture(t, Config{}, tokenmanager.Config{})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		require.NoError(t, f.service.Logout(t.Context(), pair.Refresh.Value))

		_, err = f.service.Authenticate(t.Context(), pair.Access.Value)
		require.NoError(t, err, "without strict sessions the access token rides out its TTL")
	})

	t.Run("strict sessions lock out revoked chains", func(t *testing.T) {
		f := newFixture(t, Config{StrictSessions: true}, tokenmanager.Config{})
		_, pair, err := f.service.Register(t.Context(), "alice", "password")
		require.NoError(t, err)

		_, err = f.service.Authenticate(t.Context(), pair.Access.Value)
		require.NoError(t, err)

		require.NoError(t, f.service.Logout(t.Context(), pair.Refresh.Value))

		_, err = f.service.Authenticate(t.Context(), pair.Access.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
	})
}
