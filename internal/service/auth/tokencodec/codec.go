package tokencodec

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
)

const DefaultAlg = "HS256"

// Only MAC algorithms: the same secret signs and verifies
var supportedAlgs = []string{"HS256", "HS384", "HS512"}

// Wire form of models.TokenClaims
// JSON: {"sub","exp","iat","jti","type"}
type jwtClaims struct {
	jwt.RegisteredClaims
	Type models.TokenType `json:"type"`
}

// Codec signs claims into compact JWT and back
// Safe for concurrent use
type Codec struct {
	key    []byte
	method jwt.SigningMethod
}

// Create codec with secret and MAC algorithm name (HS256 if empty)
func New(secret string, alg string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if alg == "" {
		alg = DefaultAlg
	}
	if !slices.Contains(supportedAlgs, alg) {
		return nil, fmt.Errorf("signing algorithm %q not supported, use one of %v", alg, supportedAlgs)
	}

	return &Codec{
		key:    []byte(secret),
		method: jwt.GetSigningMethod(alg),
	}, nil
}

func (c *Codec) Alg() string {
	return c.method.Alg()
}

// Encode claims into signed token
// Same claims and key always give the same token
func (c *Codec) Encode(claims models.TokenClaims) (string, error) {
	if err := validate(claims); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(c.method, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			ID:        claims.TokenID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		Type: claims.Type,
	})

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("error while signing token. Err: %w", err)
	}
	return signed, nil
}

// Decode token checking signature and claims structure
// Expiry is not checked here
func (c *Codec) Decode(token string) (models.TokenClaims, error) {
	var wire jwtClaims

	_, err := jwt.ParseWithClaims(
		token,
		&wire,
		func(t *jwt.Token) (any, error) {
			return c.key, nil
		},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return models.TokenClaims{}, fmt.Errorf("%w: %w", apperrors.ErrTokenSignatureInvalid, err)
	default:
		return models.TokenClaims{}, fmt.Errorf("%w: %w", apperrors.ErrTokenMalformed, err)
	}

	if wire.IssuedAt == nil || wire.ExpiresAt == nil {
		return models.TokenClaims{}, fmt.Errorf("%w: iat and exp are required", apperrors.ErrTokenMalformed)
	}

	claims := models.TokenClaims{
		Subject:   wire.Subject,
		TokenID:   wire.ID,
		IssuedAt:  wire.IssuedAt.UTC(),
		ExpiresAt: wire.ExpiresAt.UTC(),
		Type:      wire.Type,
	}
	if err := validate(claims); err != nil {
		return models.TokenClaims{}, err
	}

	return claims, nil
}

func validate(c models.TokenClaims) error {
	switch {
	case c.Subject == "":
		return fmt.Errorf("%w: sub is required", apperrors.ErrTokenMalformed)
	case c.TokenID == "":
		return fmt.Errorf("%w: jti is required", apperrors.ErrTokenMalformed)
	case c.IssuedAt.IsZero() || c.ExpiresAt.IsZero():
		return fmt.Errorf("%w: iat and exp are required", apperrors.ErrTokenMalformed)
	case c.ExpiresAt.Before(c.IssuedAt):
		return fmt.Errorf("%w: exp before iat", apperrors.ErrTokenMalformed)
	case !c.Type.Valid():
		return fmt.Errorf("%w: unknown token type %q", apperrors.ErrTokenMalformed, c.Type)
	}
	return nil
}

// Truncate to what survives encoding
func Precision(t time.Time) time.Time {
	return t.Truncate(jwt.TimePrecision)
}
