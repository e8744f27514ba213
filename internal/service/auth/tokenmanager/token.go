package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
	"github.com/nkiryanov/authkeeper/internal/service/auth/tokencodec"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used. Access one has to be shorter
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	codec *tokencodec.Codec
	now   func() time.Time

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	revocations repository.RevocationRepo
}

func New(cfg Config, revocations repository.RevocationRepo) (*TokenManager, error) {
	codec, err := tokencodec.New(cfg.SecretKey, cfg.Alg)
	if err != nil {
		return nil, err
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	switch {
	case cfg.AccessTTL < 0 || cfg.RefreshTTL < 0:
		return nil, errors.New("token lifetimes must be positive")
	case cfg.AccessTTL >= cfg.RefreshTTL:
		return nil, fmt.Errorf("access token ttl (%s) must be shorter than refresh one (%s)", cfg.AccessTTL, cfg.RefreshTTL)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		codec:       codec,
		now:         cfg.Now,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		revocations: revocations,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// Issue access and refresh tokens for the user
// Both share the same issue time but have own jti
func (m *TokenManager) IssuePair(userID string) (models.TokenPair, error) {
	var pair models.TokenPair
	now := tokencodec.Precision(m.now())

	access, err := m.issue(userID, models.TokenTypeAccess, now)
	if err != nil {
		return pair, err
	}

	refresh, err := m.issue(userID, models.TokenTypeRefresh, now)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) issue(userID string, typ models.TokenType, now time.Time) (models.IssuedToken, error) {
	ttl := m.accessTTL
	if typ == models.TokenTypeRefresh {
		ttl = m.refreshTTL
	}

	claims := models.TokenClaims{
		Subject:   userID,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Type:      typ,
	}

	value, err := m.codec.Encode(claims)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing %s token. Err: %w", typ, err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: claims.ExpiresAt}, nil
}

// Verify token: signature, type, expiry and revocation, in this order
// Token is valid up to and including its exp second
func (m *TokenManager) Verify(ctx context.Context, token string, expected models.TokenType) (models.TokenClaims, error) {
	claims, err := m.codec.Decode(token)
	if err != nil {
		return claims, err
	}

	if claims.Type != expected {
		return claims, fmt.Errorf("%w: want %s, got %s", apperrors.ErrTokenWrongType, expected, claims.Type)
	}

	if m.now().After(claims.ExpiresAt) {
		return claims, apperrors.ErrTokenExpired
	}

	revoked, err := m.revocations.IsRevoked(ctx, claims.TokenID)
	switch {
	case err != nil:
		return claims, fmt.Errorf("error while checking revocation. Err: %w", err)
	case revoked:
		return claims, apperrors.ErrTokenRevoked
	}

	return claims, nil
}

// Revoke verified token until it expires
// Returns apperrors.ErrTokenRevoked if it was revoked already by someone else
func (m *TokenManager) Revoke(ctx context.Context, claims models.TokenClaims) error {
	inserted, err := m.revocations.Revoke(ctx, models.Revocation{
		TokenID:   claims.TokenID,
		UserID:    claims.Subject,
		Type:      claims.Type,
		RevokedAt: m.now(),
		ExpiresAt: claims.ExpiresAt,
	})

	switch {
	case err != nil:
		return fmt.Errorf("error while revoking token. Err: %w", err)
	case !inserted:
		return apperrors.ErrTokenRevoked
	default:
		return nil
	}
}

// Exchange refresh token for new pair
// Presented token is revoked first; of concurrent calls with the same token only one succeeds
func (m *TokenManager) Rotate(ctx context.Context, refresh string) (models.TokenPair, error) {
	claims, err := m.Verify(ctx, refresh, models.TokenTypeRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	if err := m.Revoke(ctx, claims); err != nil {
		return models.TokenPair{}, err
	}

	return m.IssuePair(claims.Subject)
}
