package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
)

type ResetTokenRepo struct {
	DB DBTX
}

const createResetToken = `-- name: CreateResetToken
INSERT INTO password_reset_tokens (id, user_id, token_hash, created_at, expires_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, token_hash, created_at, expires_at, used_at
`

func (r *ResetTokenRepo) Create(ctx context.Context, t models.PasswordResetToken) (models.PasswordResetToken, error) {
	rows, _ := r.DB.Query(ctx, createResetToken, t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.UsedAt)
	token, err := pgx.CollectOneRow(rows, rowToResetToken)
	if err != nil {
		return token, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

const getResetToken = `-- name: GetResetToken
SELECT id, user_id, token_hash, created_at, expires_at, used_at
FROM password_reset_tokens
WHERE token_hash = $1
`

// Get token
// It should return result even it expired or used already
func (r *ResetTokenRepo) Get(ctx context.Context, tokenHash string) (models.PasswordResetToken, error) {
	rows, _ := r.DB.Query(ctx, getResetToken, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToResetToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenInvalid)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const consumeResetToken = `-- name: ConsumeResetToken
UPDATE password_reset_tokens
SET used_at = $2
WHERE token_hash = $1 AND used_at IS NULL AND expires_at >= $2
RETURNING id, user_id, token_hash, created_at, expires_at, used_at
`

// Mark token used if it still usable
// The state check and the write are one statement, so two concurrent consumers can't both win
func (r *ResetTokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (models.PasswordResetToken, error) {
	rows, _ := r.DB.Query(ctx, consumeResetToken, tokenHash, now)
	token, err := pgx.CollectOneRow(rows, rowToResetToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Nothing updated: find out why
		token, err = r.Get(ctx, tokenHash)
		switch {
		case err != nil:
			return token, err
		case token.Consumed():
			return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenUsed)
		default:
			return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenExpired)
		}
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const consumeUserResetTokens = `-- name: ConsumeUserResetTokens
UPDATE password_reset_tokens
SET used_at = $2
WHERE user_id = $1 AND used_at IS NULL
`

func (r *ResetTokenRepo) ConsumeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, consumeUserResetTokens, userID, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const purgeResetTokens = `-- name: PurgeResetTokens
DELETE FROM password_reset_tokens
WHERE expires_at < $1
`

func (r *ResetTokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, purgeResetTokens, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToResetToken(row pgx.CollectableRow) (models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	return t, err
}
