// Package passwordreset issues one-time password reset tokens and consumes them.
package passwordreset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
	"github.com/nkiryanov/authkeeper/internal/service/hasher"
)

const (
	defaultTTL         = 10 * time.Minute
	defaultSendTimeout = time.Minute

	tokenBytes = 32
)

// Delivers reset token to the user
type Sender interface {
	SendResetLink(ctx context.Context, to string, token string) error
}

type Config struct {
	// How long token can be used. Default is used if not set
	TTL time.Duration

	// Hasher for the new password. Bcrypt if not set
	Hasher hasher.PasswordHasher

	// Clock, time.Now if not set
	Now func() time.Time

	// Limit for one delivery attempt. Default is used if not set
	SendTimeout time.Duration
}

type Flow struct {
	ttl     time.Duration
	hasher  hasher.PasswordHasher
	now     func() time.Time
	storage repository.Storage
	sender  Sender
	logger  logger.Logger

	sendTimeout time.Duration
	deliveries  sync.WaitGroup
}

func New(cfg Config, storage repository.Storage, sender Sender, l logger.Logger) (*Flow, error) {
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("reset token ttl must be positive")
	}
	if cfg.Hasher == nil {
		cfg.Hasher = hasher.Bcrypt{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if storage == nil || sender == nil {
		return nil, errors.New("storage and sender must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Flow{
		ttl:     cfg.TTL,
		hasher:  cfg.Hasher,
		now:     cfg.Now,
		storage: storage,
		sender:  sender,
		logger:  l,

		sendTimeout: cfg.SendTimeout,
	}, nil
}

// Issue reset token for active user and send it
// Nothing is stored or sent for unknown or inactive email, token is empty then
// Delivery runs in background and outlives ctx: Request takes the same time whether email known or not
// Send failure is logged only
func (f *Flow) Request(ctx context.Context, email string) (string, error) {
	// Generated before the lookup so both branches cost the same
	token, tokenHash, err := newToken()
	if err != nil {
		return "", err
	}

	user, err := f.storage.User().FindByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		f.logger.Info("Password reset requested for unknown email")
		return "", nil
	case err != nil:
		return "", fmt.Errorf("error while getting user. Err: %w", err)
	case !user.IsActive:
		f.logger.Info("Password reset requested for inactive user", "user_id", user.ID)
		return "", nil
	}

	now := f.now()
	_, err = f.storage.ResetToken().Create(ctx, models.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		CreatedAt: now,
		ExpiresAt: now.Add(f.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("error while saving reset token. Err: %w", err)
	}

	f.deliveries.Add(1)
	go f.deliver(context.WithoutCancel(ctx), user.ID, user.Email, token)

	return token, nil
}

func (f *Flow) deliver(ctx context.Context, userID uuid.UUID, to string, token string) {
	defer f.deliveries.Done()

	ctx, cancel := context.WithTimeout(ctx, f.sendTimeout)
	defer cancel()

	if err := f.sender.SendResetLink(ctx, to, token); err != nil {
		f.logger.Error("Failed to send password reset email", "user_id", userID, "error", err)
	}
}

// Wait blocks until every started delivery finished
func (f *Flow) Wait() {
	f.deliveries.Wait()
}

// Set new password if token usable and consume it
// Token consumption and password update commit together or not at all
func (f *Flow) Confirm(ctx context.Context, token string, newPassword string) error {
	if token == "" {
		return apperrors.ErrResetTokenInvalid
	}
	tokenHash := hashToken(token)
	now := f.now()

	// Cheap check first: don't spend hashing time on dead tokens
	t, err := f.storage.ResetToken().Get(ctx, tokenHash)
	switch {
	case err != nil:
		return err
	case t.Consumed():
		return apperrors.ErrResetTokenUsed
	case now.After(t.ExpiresAt):
		return apperrors.ErrResetTokenExpired
	}

	passwordHash, err := f.hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	// Hashing may wait for a free hasher slot: token could expire meanwhile
	now = f.now()

	err = f.storage.InTx(ctx, func(tx repository.Storage) error {
		t, err := tx.ResetToken().Consume(ctx, tokenHash, now)
		if err != nil {
			return err
		}

		if err := tx.User().UpdatePasswordHash(ctx, t.UserID, passwordHash); err != nil {
			return fmt.Errorf("error while updating password. Err: %w", err)
		}

		// Links sent before are useless after password changed
		if _, err := tx.ResetToken().ConsumeAllForUser(ctx, t.UserID, now); err != nil {
			return fmt.Errorf("error while consuming user reset tokens. Err: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	f.logger.Info("Password reset", "user_id", t.UserID)
	return nil
}

// Random token as hex and its sha256 hex
func newToken() (string, string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("error while generate reset token. Err: %w", err)
	}

	token := hex.EncodeToString(b)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
