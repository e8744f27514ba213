// Package redis keeps revoked tokens in Redis.
// Records expire together with the token, so purge has nothing to do.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authkeeper/internal/models"
)

const revokedKeyPrefix = "revoked:"

// Shortest TTL for a record, redis rejects zero and negative ones
const minTTL = time.Second

type RevocationRepo struct {
	rdb goredis.Cmdable
}

func NewRevocationRepo(rdb goredis.Cmdable) *RevocationRepo {
	return &RevocationRepo{rdb: rdb}
}

type revocationRecord struct {
	UserID    string    `json:"user_id"`
	Type      string    `json:"token_type"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SET NX is atomic, so only one of concurrent callers inserts
func (r *RevocationRepo) Revoke(ctx context.Context, rev models.Revocation) (bool, error) {
	payload, err := json.Marshal(revocationRecord{
		UserID:    rev.UserID,
		Type:      string(rev.Type),
		RevokedAt: rev.RevokedAt.UTC(),
		ExpiresAt: rev.ExpiresAt.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("encode revocation: %w", err)
	}

	ttl := max(rev.ExpiresAt.Sub(rev.RevokedAt), minTTL)
	inserted, err := r.rdb.SetNX(ctx, revokedKey(rev.TokenID), payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return inserted, nil
}

func (r *RevocationRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}

// Redis evicts records itself when TTL passes
func (r *RevocationRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Stored revocation record, ok is false if token not revoked
// Returns false if the token is not revoked (or record expired already)
func (r *RevocationRepo) record(ctx context.Context, tokenID string) (models.Revocation, bool, error) {
	data, err := r.rdb.Get(ctx, revokedKey(tokenID)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return models.Revocation{}, false, nil
	case err != nil:
		return models.Revocation{}, false, fmt.Errorf("redis error: %w", err)
	}

	var rec revocationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Revocation{}, false, fmt.Errorf("decode revocation: %w", err)
	}

	return models.Revocation{
		TokenID:   tokenID,
		UserID:    rec.UserID,
		Type:      models.TokenType(rec.Type),
		RevokedAt: rec.RevokedAt,
		ExpiresAt: rec.ExpiresAt,
	}, true, nil
}

func revokedKey(tokenID string) string {
	return revokedKeyPrefix + tokenID
}
