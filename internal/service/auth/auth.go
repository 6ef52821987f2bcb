package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/models"
	"github.com/riverajo/fitness-app/internal/repository"
	"github.com/riverajo/fitness-app/internal/service/auth/tokenmanager"
)

const (
	defaultRefreshCookieName = "refreshtoken"
	defaultRefreshCookiePath = "/auth"
)

type Config struct {
	// Hasher to use during user registration or login
	// BcryptHasher is used if not set
	Hasher PasswordHasher

	// StrictSessions makes every protected request check that the access
	// token's chain is still unrevoked. Off by default: the short access
	// TTL bounds the exposure and protected calls stay lookup free.
	StrictSessions bool

	// Cookie the refresh token travels in. HttpOnly and SameSite Strict
	// always; Secure is up to the deployment.
	CookieName   string
	CookiePath   string
	CookieSecure bool
}

// Auth service
// Owns the issue / rotate / revoke protocol over the token manager and the
// storage. Stateless per request: all session state lives in the store.
type AuthService struct {
	tokens  *tokenmanager.TokenManager
	hasher  PasswordHasher
	storage repository.Storage

	strict       bool
	cookieName   string
	cookiePath   string
	cookieSecure bool
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	if tokens == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultRefreshCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = defaultRefreshCookiePath
	}

	return &AuthService{
		tokens:       tokens,
		hasher:       hasher,
		storage:      storage,
		strict:       cfg.StrictSessions,
		cookieName:   cfg.CookieName,
		cookiePath:   cfg.CookiePath,
		cookieSecure: cfg.CookieSecure,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, username string, password string) (models.User, models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err := s.storage.User().CreateUser(ctx, username, hash)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(ctx, user, nil)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("error while issuing token pair. Err: %w", err)
	}

	return user, pair, nil
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (models.User, models.TokenPair, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)
	if err != nil {
		// Equalize timing between unknown user and wrong password
		_ = s.hasher.Compare(dummyHash, password)
		return models.User{}, models.TokenPair{}, apperrors.ErrUserNotFound
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrUserNotFound
	}

	pair, err := s.tokens.IssuePair(ctx, user, nil)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("error while issuing token pair. Err: %w", err)
	}

	return user, pair, nil
}

// Refresh rotates the presented refresh token.
//
// Order matters: a consumed token seen again is replay evidence and kills
// the whole chain, including the legitimate live token. That forces the
// real owner through a full login, which is the point. MarkConsumed is a
// compare-and-swap, so of N racing calls exactly one reaches IssuePair.
func (s *AuthService) Refresh(ctx context.Context, raw string) (models.User, models.TokenPair, error) {
	now := time.Now().Truncate(time.Second)

	token, err := s.tokens.CheckRefresh(ctx, raw)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	switch {
	case token.RevokedAt != nil:
		return models.User{}, models.TokenPair{}, apperrors.ErrRefreshTokenRevoked

	case token.ConsumedAt != nil:
		// Replay detected: the value was already rotated away, so someone
		// else holds a copy. Revoke everything descended from this chain.
		if err := s.storage.RefreshToken().RevokeChain(ctx, token.ChainID, now); err != nil {
			return models.User{}, models.TokenPair{}, fmt.Errorf("error while revoking chain on replay. Err: %w", err)
		}
		return models.User{}, models.TokenPair{}, apperrors.ErrRefreshTokenConsumed

	case token.ExpiresAt.Before(now):
		return models.User{}, models.TokenPair{}, apperrors.ErrRefreshTokenExpired
	}

	if err := s.storage.RefreshToken().MarkConsumed(ctx, token.ID, now); err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	user, err := s.storage.User().GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(ctx, user, &token)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("error while issuing token pair. Err: %w", err)
	}

	return user, pair, nil
}

// Logout revokes the chain the presented refresh token belongs to.
// Idempotent and forgiving: unknown or malformed values are not an error,
// the chain is just as dead afterwards.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	id, ok := tokenmanager.RefreshID(raw)
	if !ok {
		return nil
	}

	token, err := s.storage.RefreshToken().GetByID(ctx, id)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return nil
	case err != nil:
		return err
	}

	return s.storage.RefreshToken().RevokeChain(ctx, token.ChainID, time.Now().Truncate(time.Second))
}

// Authenticate resolves an access token to its user.
// With StrictSessions enabled the token's chain is also checked against
// revocation, so logout locks out even unexpired access tokens.
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.User, error) {
	claims, err := s.tokens.ParseAccess(access)
	if err != nil {
		return models.User{}, err
	}

	if s.strict {
		live, err := s.storage.RefreshToken().ChainLive(ctx, claims.ChainID)
		if err != nil {
			return models.User{}, fmt.Errorf("error while checking session chain. Err: %w", err)
		}
		if !live {
			return models.User{}, apperrors.ErrRefreshTokenRevoked
		}
	}

	return s.storage.User().GetUserByID(ctx, claims.UserID)
}

// GetUserFromRequest authenticates the bearer Authorization header
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get("Authorization")
	access, found := strings.CutPrefix(header, "Bearer ")
	if !found || access == "" {
		return models.User{}, apperrors.ErrTokenMalformed
	}

	return s.Authenticate(ctx, access)
}

// SetTokenPairToResponse writes the access token to the Authorization header
// and the refresh token to an HttpOnly cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set("Authorization", "Bearer "+pair.Access.Value)
	http.SetCookie(w, s.refreshCookie(pair.Refresh.Value, int(time.Until(pair.Refresh.ExpiresAt).Seconds())))
}

// ClearTokensFromResponse drops the refresh cookie (logout, failed rotate)
func (s *AuthService) ClearTokensFromResponse(w http.ResponseWriter) {
	http.SetCookie(w, s.refreshCookie("", -1))
}

// GetRefreshString reads the raw refresh token from the request cookie
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return "", apperrors.ErrRefreshTokenNotFound
	}
	return cookie.Value, nil
}

func (s *AuthService) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Path:     s.cookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Valid bcrypt hash of an unknowable password, compared against when the
// user does not exist
var dummyHash = func() string {
	h, err := BcryptHasher{}.Hash("timing-equalizer")
	if err != nil {
		panic(err)
	}
	return h
}()
