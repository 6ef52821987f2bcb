package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/riverajo/fitness-app/internal/apperrors"
	"github.com/riverajo/fitness-app/internal/models"
)

type UserRepo struct {
	s *Storage
}

func (r *UserRepo) CreateUser(ctx context.Context, username string, hashedPassword string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.usersByName[username]; exists {
		return models.User{}, apperrors.ErrUserAlreadyExists
	}

	user := models.User{
		ID:             uuid.New(),
		CreatedAt:      now(),
		Username:       username,
		HashedPassword: hashedPassword,
	}
	r.s.users[user.ID] = user
	r.s.usersByName[username] = user.ID

	return user, nil
}

func (r *UserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.usersByName[username]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return r.s.users[id], nil
}
