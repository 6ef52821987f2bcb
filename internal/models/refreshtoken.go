package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the stored half of a refresh credential. The raw value a
// client holds is "<ID>.<secret>"; only the sha256 fingerprint of the secret
// is persisted here.
type RefreshToken struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Fingerprint string

	// ChainID is the root token id of the rotation chain this token belongs
	// to. Root tokens reference themselves. One chain is one logical session.
	ChainID  uuid.UUID
	ParentID *uuid.UUID // nil for chain roots

	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time // nil until the token is presented to rotate
	RevokedAt  *time.Time // nil until the chain is revoked
}

// Live reports whether the token may still be presented to rotate.
func (t RefreshToken) Live(now time.Time) bool {
	return t.ConsumedAt == nil && t.RevokedAt == nil && t.ExpiresAt.After(now)
}
