package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
)

type ResetTokenRepo struct {
	st   *state
	undo *undoLog
}

func (r *ResetTokenRepo) Create(ctx context.Context, t models.PasswordResetToken) (models.PasswordResetToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.users[t.UserID]; !ok {
		return t, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	}
	if _, ok := r.st.tokens[t.TokenHash]; ok {
		return t, fmt.Errorf("repo error: token hash exists already")
	}

	r.st.tokens[t.TokenHash] = t
	r.undo.add(func() {
		r.st.mu.Lock()
		defer r.st.mu.Unlock()
		delete(r.st.tokens, t.TokenHash)
	})

	return t, nil
}

func (r *ResetTokenRepo) Get(ctx context.Context, tokenHash string) (models.PasswordResetToken, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	t, ok := r.st.tokens[tokenHash]
	if !ok {
		return t, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenInvalid)
	}
	return t, nil
}

func (r *ResetTokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (models.PasswordResetToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	t, ok := r.st.tokens[tokenHash]
	switch {
	case !ok:
		return t, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenInvalid)
	case t.Consumed():
		return t, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenUsed)
	case now.After(t.ExpiresAt):
		return t, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenExpired)
	}

	prev := t
	t.UsedAt = &now
	r.st.tokens[tokenHash] = t
	r.undo.add(func() {
		r.st.mu.Lock()
		defer r.st.mu.Unlock()
		r.st.tokens[tokenHash] = prev
	})

	return t, nil
}

func (r *ResetTokenRepo) ConsumeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var consumed int64
	for hash, t := range r.st.tokens {
		if t.UserID != userID || t.Consumed() {
			continue
		}

		prev := t
		t.UsedAt = &now
		r.st.tokens[hash] = t
		consumed++

		r.undo.add(func() {
			r.st.mu.Lock()
			defer r.st.mu.Unlock()
			r.st.tokens[hash] = prev
		})
	}

	return consumed, nil
}

func (r *ResetTokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var purged int64
	for hash, t := range r.st.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.st.tokens, hash)
			purged++
		}
	}

	return purged, nil
}
