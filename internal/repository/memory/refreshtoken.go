package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/models"
)

type RefreshTokenRepo struct {
	s *Storage
}

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.tokens[token.ID] = token
	return token, nil
}

func (r *RefreshTokenRepo) GetByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.tokens[id]
	if !ok {
		return models.RefreshToken{}, apperrors.ErrRefreshTokenNotFound
	}
	return token, nil
}

// Mark token as consumed
// The storage mutex gives the same single-winner guarantee the postgres
// COALESCE compare-and-swap does: an existing consumed_at is never replaced.
func (r *RefreshTokenRepo) MarkConsumed(ctx context.Context, id uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.tokens[id]
	if !ok {
		return apperrors.ErrRefreshTokenNotFound
	}
	if token.ConsumedAt != nil {
		return apperrors.ErrRefreshTokenConsumed
	}

	token.ConsumedAt = &now
	r.s.tokens[id] = token
	return nil
}

func (r *RefreshTokenRepo) RevokeChain(ctx context.Context, chainID uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, token := range r.s.tokens {
		if token.ChainID != chainID || token.RevokedAt != nil {
			continue
		}
		token.RevokedAt = &now
		r.s.tokens[id] = token
	}
	return nil
}

func (r *RefreshTokenRepo) ChainLive(ctx context.Context, chainID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, token := range r.s.tokens {
		if token.ChainID == chainID && token.RevokedAt != nil {
			return false, nil
		}
	}
	return true, nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, token := range r.s.tokens {
		if token.ExpiresAt.Before(olderThan) {
			delete(r.s.tokens, id)
			removed++
		}
	}
	return removed, nil
}
