package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/authkeeper/internal/models"
)

type RevocationRepo struct {
	DB DBTX
}

// Primary key on jti makes the insert a single atomic check-and-set
const revokeToken = `-- name: RevokeToken
INSERT INTO revoked_tokens (jti, user_id, token_type, revoked_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (jti) DO NOTHING
RETURNING jti
`

func (r *RevocationRepo) Revoke(ctx context.Context, rev models.Revocation) (bool, error) {
	rows, _ := r.DB.Query(ctx, revokeToken, rev.TokenID, rev.UserID, string(rev.Type), rev.RevokedAt, rev.ExpiresAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows): // revoked already
		return false, nil
	default:
		return false, fmt.Errorf("db error: %w", err)
	}
}

const isTokenRevoked = `-- name: IsTokenRevoked
SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)
`

func (r *RevocationRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.DB.QueryRow(ctx, isTokenRevoked, tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return revoked, nil
}

const purgeRevokedTokens = `-- name: PurgeRevokedTokens
DELETE FROM revoked_tokens
WHERE expires_at < $1
`

func (r *RevocationRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, purgeRevokedTokens, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}
