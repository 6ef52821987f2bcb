// Package memory holds an in-memory repository.Storage implementation.
// It mirrors the postgres behavior closely enough that services and the
// session coordinator can be tested without a database.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riverajo/fitness-app/internal/models"
	"github.com/riverajo/fitness-app/internal/repository"
)

type Storage struct {
	mu sync.Mutex

	users       map[uuid.UUID]models.User
	usersByName map[string]uuid.UUID
	tokens      map[uuid.UUID]models.RefreshToken
}

func NewStorage() repository.Storage {
	return &Storage{
		users:       map[uuid.UUID]models.User{},
		usersByName: map[string]uuid.UUID{},
		tokens:      map[uuid.UUID]models.RefreshToken{},
	}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{s: s}
}

func (s *Storage) RefreshToken() repository.RefreshTokenRepo {
	return &RefreshTokenRepo{s: s}
}

// now truncated the way postgres timestamptz round-trips in tests
func now() time.Time {
	return time.Now().Truncate(time.Microsecond)
}
