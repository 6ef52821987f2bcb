package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/models"
)

type RefreshTokenRepo struct {
	db DBTX
}

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, fingerprint, chain_id, parent_id, created_at, expires_at, consumed_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, user_id, fingerprint, chain_id, parent_id, created_at, expires_at, consumed_at, revoked_at
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.db.Query(ctx, saveToken,
		token.ID, token.UserID, token.Fingerprint, token.ChainID, token.ParentID,
		token.CreatedAt, token.ExpiresAt, token.ConsumedAt, token.RevokedAt,
	)
	saved, err := pgx.CollectOneRow(rows, rowToToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

const getToken = `-- name: GetRefreshToken
SELECT id, user_id, fingerprint, chain_id, parent_id, created_at, expires_at, consumed_at, revoked_at
FROM refresh_tokens
WHERE id = $1
`

// Get token by id
// Returns the record even if it is consumed, revoked or expired: the caller
// decides how each state is treated
func (r *RefreshTokenRepo) GetByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error) {
	rows, _ := r.db.Query(ctx, getToken, id)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrRefreshTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const markTokenConsumed = `-- name: MarkConsumed if not consumed yet
UPDATE refresh_tokens
SET consumed_at = $2
WHERE id = $1 AND consumed_at IS NULL
`

// Mark token as consumed
// Compare-and-swap guarded by consumed_at IS NULL: of N concurrent callers
// exactly one row is updated and that caller wins, whatever timestamps the
// callers carry. Losers get apperrors.ErrRefreshTokenConsumed.
func (r *RefreshTokenRepo) MarkConsumed(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := r.db.Exec(ctx, markTokenConsumed, id, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// No row matched: the token is unknown or someone consumed it first
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return apperrors.ErrRefreshTokenConsumed
}

const revokeChain = `-- name: RevokeChain
UPDATE refresh_tokens
SET revoked_at = COALESCE(revoked_at, $2)
WHERE chain_id = $1
`

// Revoke every token of the chain
// Idempotent: repeating the call leaves earlier revocation timestamps intact
func (r *RefreshTokenRepo) RevokeChain(ctx context.Context, chainID uuid.UUID, now time.Time) error {
	_, err := r.db.Exec(ctx, revokeChain, chainID, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const chainLive = `-- name: ChainLive
SELECT NOT EXISTS (
    SELECT 1 FROM refresh_tokens
    WHERE chain_id = $1 AND revoked_at IS NOT NULL
)
`

func (r *RefreshTokenRepo) ChainLive(ctx context.Context, chainID uuid.UUID) (bool, error) {
	rows, _ := r.db.Query(ctx, chainLive, chainID)
	live, err := pgx.CollectOneRow(rows, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return live, nil
}

const deleteExpired = `-- name: DeleteExpired
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, deleteExpired, olderThan)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.Fingerprint, &t.ChainID, &t.ParentID,
		&t.CreatedAt, &t.ExpiresAt, &t.ConsumedAt, &t.RevokedAt,
	)
	return t, err
}
