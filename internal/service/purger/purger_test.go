package purger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository/memory"
)

type countingRepo struct {
	calls atomic.Int32
	err   error
}

func (r *countingRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.calls.Add(1)
	return 1, r.err
}

func Test_Purger(t *testing.T) {
	t.Parallel()

	t.Run("purge once", func(t *testing.T) {
		storage := memory.NewStorage()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		user, err := storage.User().CreateUser(t.Context(), "user@example.com", "", "hash")
		require.NoError(t, err)

		_, err = storage.Revocation().Revoke(t.Context(), models.Revocation{TokenID: "expired", ExpiresAt: now.Add(-time.Minute)})
		require.NoError(t, err)
		_, err = storage.Revocation().Revoke(t.Context(), models.Revocation{TokenID: "alive", ExpiresAt: now.Add(time.Minute)})
		require.NoError(t, err)
		_, err = storage.ResetToken().Create(t.Context(), models.PasswordResetToken{
			ID: uuid.New(), UserID: user.ID, TokenHash: "h", ExpiresAt: now.Add(-time.Minute),
		})
		require.NoError(t, err)

		p := New(time.Minute, logger.NewNoOpLogger(),
			Target{Name: "revocations", Repo: storage.Revocation()},
			Target{Name: "reset_tokens", Repo: storage.ResetToken()},
		)
		p.now = func() time.Time { return now }

		require.Equal(t, int64(2), p.PurgeOnce(t.Context()))

		revoked, err := storage.Revocation().IsRevoked(t.Context(), "alive")
		require.NoError(t, err)
		require.True(t, revoked)
	})

	t.Run("failed target does not stop others", func(t *testing.T) {
		failing := &countingRepo{err: errors.New("db down")}
		ok := &countingRepo{}
		p := New(time.Minute, logger.NewNoOpLogger(), Target{Name: "failing", Repo: failing}, Target{Name: "ok", Repo: ok})

		total := p.PurgeOnce(t.Context())

		require.Equal(t, int64(1), total)
		require.Equal(t, int32(1), ok.calls.Load())
	})

	t.Run("run ticks until stopped", func(t *testing.T) {
		repo := &countingRepo{}
		p := New(5*time.Millisecond, logger.NewNoOpLogger(), Target{Name: "counting", Repo: repo})
		ctx, cancel := context.WithCancel(t.Context())

		stopped := p.Run(ctx)
		require.Eventually(t, func() bool { return repo.calls.Load() >= 2 }, time.Second, time.Millisecond)
		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("purger not stopped")
		}
	})

	t.Run("default interval", func(t *testing.T) {
		p := New(0, logger.NewNoOpLogger())
		require.Equal(t, defaultInterval, p.interval)
	})
}
