package auth

import (
	"context"
	"time"

	"github.com/riverajo/fitness-app/internal/logger"
	"github.com/riverajo/fitness-app/internal/repository"
)

const defaultCleanupInterval = time.Hour

// TokenCleaner periodically drops refresh tokens that expired past any
// possible use. Consumed and revoked rows are kept until expiry: they are
// the replay evidence.
type TokenCleaner struct {
	repo     repository.RefreshTokenRepo
	l        logger.Logger
	interval time.Duration
}

func NewTokenCleaner(repo repository.RefreshTokenRepo, l logger.Logger, interval time.Duration) *TokenCleaner {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &TokenCleaner{repo: repo, l: l, interval: interval}
}

// Run deletes expired tokens on every tick until the context is cancelled
func (c *TokenCleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := c.repo.DeleteExpired(ctx, time.Now())
			switch {
			case err != nil:
				c.l.Error("expired token cleanup failed", "error", err.Error())
			case removed > 0:
				c.l.Info("expired refresh tokens removed", "count", removed)
			}
		}
	}
}
