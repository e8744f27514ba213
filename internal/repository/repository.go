package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/models"
)

// User repository interface
// Users are owned by the profile service; the auth core reads them and rewrites the password hash only
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, name string, passwordHash string) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	FindByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)

	// Replace user password hash
	// If user not found must return apperrors.ErrUserNotFound
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// Revoked tokens repository interface
// Every implementation has to be linearizable per token id: once Revoke returns,
// any following IsRevoked for the id must return true
type RevocationRepo interface {
	// Insert revocation if it not exists
	// inserted is true only for the call that created the record; revoking twice is not an error
	Revoke(ctx context.Context, r models.Revocation) (inserted bool, err error)

	// Check if token id is revoked
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// Delete records with ExpiresAt before now
	// Must never remove not expired record and must not block readers
	PurgeExpired(ctx context.Context, now time.Time) (purged int64, err error)
}

// Password reset tokens repository interface
type ResetTokenRepo interface {
	// Save new token
	Create(ctx context.Context, token models.PasswordResetToken) (models.PasswordResetToken, error)

	// Return the token by its hash even if it expired or used
	// If token not found must return apperrors.ErrResetTokenInvalid
	Get(ctx context.Context, tokenHash string) (models.PasswordResetToken, error)

	// Compare-and-swap consume: mark token used at 'now' only if it not used and not expired
	// Errors: apperrors.ErrResetTokenInvalid, apperrors.ErrResetTokenExpired, apperrors.ErrResetTokenUsed
	Consume(ctx context.Context, tokenHash string, now time.Time) (models.PasswordResetToken, error)

	// Mark all not used user tokens used
	ConsumeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (consumed int64, err error)

	// Delete tokens with ExpiresAt before now
	PurgeExpired(ctx context.Context, now time.Time) (purged int64, err error)
}

// Storage gives access to all repositories sharing the same connection (or transaction)
type Storage interface {
	User() UserRepo
	Revocation() RevocationRepo
	ResetToken() ResetTokenRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
