// Package userctx carries the authenticated user through the request
// context, from the auth middleware down to the handlers.
package userctx

import (
	"context"

	"github.com/riverajo/fitness-app/internal/models"
)

// An unexported struct key cannot collide with values set by other packages
type key struct{}

func New(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, key{}, user)
}

// FromContext reports the user placed by New. ok is false on contexts that
// never went through the auth middleware.
func FromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(key{}).(models.User)
	return user, ok
}
