package hasher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
)

type PasswordHasher interface {
	// Generate hash from password. Salt and cost are part of the result
	Hash(ctx context.Context, password string) (string, error)

	// Compare known hash and user provided password
	// Mismatch is not an error: (false, nil)
	// Hash that can't be parsed returns apperrors.ErrCorruptHash
	Compare(ctx context.Context, hash string, password string) (bool, error)
}

// Bcrypt password hasher
// Password is prehashed with sha256 so bcrypt 72 bytes limit doesn't cut long passwords
type Bcrypt struct {
	Cost int // bcrypt.DefaultCost if zero
}

func (h Bcrypt) Hash(ctx context.Context, password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h Bcrypt) Compare(ctx context.Context, hash string, password string) (bool, error) {
	sum := sha256.Sum256([]byte(password))
	err := bcrypt.CompareHashAndPassword([]byte(hash), sum[:])

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", apperrors.ErrCorruptHash, err)
	}
}

// Pool bounds how many hashes are computed at once
// Callers over the limit wait for a free slot or ctx cancellation
type Pool struct {
	hasher PasswordHasher
	sem    *semaphore.Weighted
}

func NewPool(h PasswordHasher, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		hasher: h,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
}

func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("hasher busy: %w", err)
	}
	defer p.sem.Release(1)

	return p.hasher.Hash(ctx, password)
}

func (p *Pool) Compare(ctx context.Context, hash string, password string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("hasher busy: %w", err)
	}
	defer p.sem.Release(1)

	return p.hasher.Compare(ctx, hash, password)
}
