package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
)

type UserRepo struct {
	st   *state
	undo *undoLog
}

func (r *UserRepo) CreateUser(ctx context.Context, email string, name string, passwordHash string) (models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.byEmail[email]; ok {
		return models.User{}, apperrors.ErrUserAlreadyExists
	}

	now := time.Now()
	user := models.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		IsActive:     true,
		Language:     "english",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.st.users[user.ID] = user
	r.st.byEmail[email] = user.ID

	r.undo.add(func() {
		r.st.mu.Lock()
		defer r.st.mu.Unlock()
		delete(r.st.users, user.ID)
		delete(r.st.byEmail, email)
	})

	return user, nil
}

func (r *UserRepo) FindByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	user, ok := r.st.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (models.User, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	id, ok := r.st.byEmail[email]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return r.st.users[id], nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	user, ok := r.st.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}

	prev := user
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	r.st.users[userID] = user

	r.undo.add(func() {
		r.st.mu.Lock()
		defer r.st.mu.Unlock()
		r.st.users[userID] = prev
	})

	return nil
}

// Switch user active flag
// Not part of repository.UserRepo: users are managed elsewhere, tests need inactive ones
func (r *UserRepo) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	user, ok := r.st.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.IsActive = active
	r.st.users[userID] = user
	return nil
}
