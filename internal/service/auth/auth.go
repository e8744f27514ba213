package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
	"github.com/nkiryanov/authkeeper/internal/service/hasher"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"
)

type TokenManager interface {
	IssuePair(userID string) (models.TokenPair, error)
	Verify(ctx context.Context, token string, expected models.TokenType) (models.TokenClaims, error)
	Revoke(ctx context.Context, claims models.TokenClaims) error
	Rotate(ctx context.Context, refresh string) (models.TokenPair, error)
}

type Config struct {
	// Header to read access token from and its scheme
	// If not set than default is used
	AccessHeaderName string
	AccessAuthScheme string

	// Hasher to compare user passwords
	// If not set than bcrypt is used
	Hasher hasher.PasswordHasher
}

// Auth service
type AuthService struct {
	accessHeaderName string
	accessAuthScheme string

	// Manager to issue, verify and revoke tokens
	tokens TokenManager

	// Hasher to compare user passwords
	hasher hasher.PasswordHasher

	// Hash compared when user not found, so login takes the same time
	dummyHash string

	userRepo repository.UserRepo
	logger   logger.Logger
}

func NewService(ctx context.Context, cfg Config, tokens TokenManager, userRepo repository.UserRepo, l logger.Logger) (*AuthService, error) {
	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}
	if cfg.Hasher == nil {
		cfg.Hasher = hasher.Bcrypt{}
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	b := make([]byte, 16)
	_, _ = rand.Read(b)
	dummyHash, err := cfg.Hasher.Hash(ctx, hex.EncodeToString(b))
	if err != nil {
		return nil, fmt.Errorf("error while preparing dummy hash. Err: %w", err)
	}

	return &AuthService{
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
		tokens:           tokens,
		hasher:           cfg.Hasher,
		dummyHash:        dummyHash,
		userRepo:         userRepo,
		logger:           l,
	}, nil
}

// Login user with email and password
// Unknown user, inactive user and wrong password are all apperrors.ErrAuthenticationFailed
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_, _ = s.hasher.Compare(ctx, s.dummyHash, password)
		s.logger.Info("Login failed", "reason", "user not found")
		return models.TokenPair{}, apperrors.ErrAuthenticationFailed
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("error while getting user. Err: %w", err)
	}

	ok, err := s.hasher.Compare(ctx, user.PasswordHash, password)
	switch {
	case errors.Is(err, apperrors.ErrCorruptHash):
		s.logger.Error("Stored password hash is corrupt", "user_id", user.ID, "error", err)
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrAuthenticationFailed, err)
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("error while comparing password. Err: %w", err)
	case !ok:
		s.logger.Info("Login failed", "reason", "wrong password", "user_id", user.ID)
		return models.TokenPair{}, apperrors.ErrAuthenticationFailed
	case !user.IsActive:
		s.logger.Info("Login failed", "reason", "user inactive", "user_id", user.ID)
		return models.TokenPair{}, apperrors.ErrAuthenticationFailed
	}

	pair, err := s.tokens.IssuePair(user.ID.String())
	if err != nil {
		return pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Exchange refresh token for new pair
// Refused for users that gone or were deactivated after the token issued
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	claims, err := s.tokens.Verify(ctx, refresh, models.TokenTypeRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	if _, err := s.activeUser(ctx, claims.Subject); err != nil {
		return models.TokenPair{}, err
	}

	return s.tokens.Rotate(ctx, refresh)
}

// Revoke access token and, if given, refresh token of the same user
// Refresh token revocation is best effort: access one is what makes logout happen
func (s *AuthService) Logout(ctx context.Context, access models.TokenClaims, refresh string) error {
	err := s.tokens.Revoke(ctx, access)
	if err != nil && !errors.Is(err, apperrors.ErrTokenRevoked) {
		return err
	}

	if refresh == "" {
		return nil
	}

	claims, err := s.tokens.Verify(ctx, refresh, models.TokenTypeRefresh)
	switch {
	case err != nil:
		s.logger.Info("Refresh token not revoked on logout", "user_id", access.Subject, "error", err)
		return nil
	case claims.Subject != access.Subject:
		s.logger.Warn("Refresh token of other user presented on logout", "user_id", access.Subject)
		return nil
	}

	err = s.tokens.Revoke(ctx, claims)
	if err != nil && !errors.Is(err, apperrors.ErrTokenRevoked) {
		return err
	}

	return nil
}

// Get request and return user if it authenticated with valid access token
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (models.User, models.TokenClaims, error) {
	access, err := s.AccessToken(r)
	if err != nil {
		return models.User{}, models.TokenClaims{}, err
	}

	claims, err := s.tokens.Verify(ctx, access, models.TokenTypeAccess)
	if err != nil {
		return models.User{}, claims, err
	}

	user, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return user, claims, err
	}

	return user, claims, nil
}

// Read access token from request header: "Authorization: Bearer <token>"
func (s *AuthService) AccessToken(r *http.Request) (string, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, token, found := strings.Cut(header, " ")

	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: no %s token in %s header", apperrors.ErrTokenMalformed, s.accessAuthScheme, s.accessHeaderName)
	}

	return strings.TrimSpace(token), nil
}

func (s *AuthService) activeUser(ctx context.Context, subject string) (models.User, error) {
	userID, err := uuid.Parse(subject)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: subject is not user id", apperrors.ErrTokenMalformed)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return user, fmt.Errorf("%w: %w", apperrors.ErrAuthenticationFailed, err)
	case err != nil:
		return user, fmt.Errorf("error while getting user. Err: %w", err)
	case !user.IsActive:
		return user, fmt.Errorf("%w: user inactive", apperrors.ErrAuthenticationFailed)
	}

	return user, nil
}
