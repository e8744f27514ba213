package models

import (
	"time"

	"github.com/google/uuid"
)

// One-time password reset token
// Only the hash of the opaque token is stored
type PasswordResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil if token not used
}

// Consumed tokens never become usable again
func (t PasswordResetToken) Consumed() bool {
	return t.UsedAt != nil
}
