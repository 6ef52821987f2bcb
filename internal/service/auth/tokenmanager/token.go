// Package tokenmanager mints and checks the two credentials of a session:
// the short-lived JWT access token and the long-lived single-use refresh
// token. It owns the wire formats; the rotation protocol itself lives in the
// auth service.
package tokenmanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/models"
	"github.com/riverajo/fitness-app/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultSigningMethod   = "HS256"

	// 256 bit of entropy per refresh secret
	refreshSecretLen = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID  uuid.UUID `json:"uid"`
	ChainID uuid.UUID `json:"sid"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set then default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set then default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Refresh token repo
	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		key:         cfg.SecretKey,
		alg:         jwt.GetSigningMethod(cfg.Alg),
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		refreshRepo: refreshRepo,
	}, nil
}

// IssuePair mints an access token and a fresh refresh token for the user.
// With parent == nil the refresh token roots a new chain (login, register);
// otherwise it continues the parent's chain (rotation). The caller is
// responsible for consuming the parent first.
func (m *TokenManager) IssuePair(ctx context.Context, user models.User, parent *models.RefreshToken) (models.TokenPair, error) {
	var pair models.TokenPair
	now := time.Now().Truncate(time.Second)
	refreshExpiresAt := now.Add(m.refreshTTL)

	// Generate random refresh secret, keep only its fingerprint
	b := make([]byte, refreshSecretLen)
	_, err := rand.Read(b)
	if err != nil {
		return pair, fmt.Errorf("error while generating refresh secret. Err: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(b)

	token := models.RefreshToken{
		ID:          uuid.New(),
		UserID:      user.ID,
		Fingerprint: fingerprint(secret),
		CreatedAt:   now,
		ExpiresAt:   refreshExpiresAt,
	}
	if parent != nil {
		token.ChainID = parent.ChainID
		parentID := parent.ID
		token.ParentID = &parentID
	} else {
		token.ChainID = token.ID
	}

	if _, err := m.refreshRepo.Save(ctx, token); err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	access, accessExpiresAt, err := m.mintAccess(user.ID, token.ChainID, now)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{
		Access: models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		// The raw "<id>.<secret>" value exists only in this response
		Refresh: models.IssuedToken{Value: token.ID.String() + "." + secret, ExpiresAt: refreshExpiresAt},
	}, nil
}

// CheckRefresh resolves a raw "<id>.<secret>" value to its stored record.
// Malformed values, unknown ids and secret mismatches all collapse into
// apperrors.ErrRefreshTokenNotFound so a probing client learns nothing.
// State checks (consumed, revoked, expired) are left to the caller: the
// stored record is returned whatever state it is in.
func (m *TokenManager) CheckRefresh(ctx context.Context, raw string) (models.RefreshToken, error) {
	id, secret, ok := splitRefresh(raw)
	if !ok {
		return models.RefreshToken{}, apperrors.ErrRefreshTokenNotFound
	}

	token, err := m.refreshRepo.GetByID(ctx, id)
	if err != nil {
		return models.RefreshToken{}, err
	}

	if subtle.ConstantTimeCompare([]byte(token.Fingerprint), []byte(fingerprint(secret))) != 1 {
		return models.RefreshToken{}, apperrors.ErrRefreshTokenNotFound
	}

	return token, nil
}

// RefreshID extracts the token id without verifying the secret. Logout
// revokes by id alone: presenting a well-formed id is enough to end the
// chain that id belongs to, secret or no secret.
func RefreshID(raw string) (uuid.UUID, bool) {
	id, _, ok := splitRefresh(raw)
	return id, ok
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(access string) (AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(m.key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)

	switch {
	case err == nil:
		return *claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return *claims, apperrors.ErrTokenExpired
	default:
		return *claims, fmt.Errorf("%w: %w", apperrors.ErrTokenMalformed, err)
	}
}

func (m *TokenManager) mintAccess(userID uuid.UUID, chainID uuid.UUID, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(m.accessTTL)

	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID:  userID,
			ChainID: chainID,
		},
	)
	access, err := accessToken.SignedString([]byte(m.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return access, expiresAt, nil
}

func splitRefresh(raw string) (uuid.UUID, string, bool) {
	idPart, secret, found := strings.Cut(raw, ".")
	if !found || secret == "" {
		return uuid.Nil, "", false
	}

	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", false
	}

	return id, secret, true
}

func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
