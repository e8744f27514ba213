package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateUser(t.Context(), "user@example.com", "Test User", "hashedpassword123")

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, user.ID, "ID should be generated")
			assert.Equal(t, "user@example.com", user.Email)
			assert.Equal(t, "Test User", user.Name)
			assert.Equal(t, "hashedpassword123", user.PasswordHash)
			assert.True(t, user.IsActive, "new user should be active")
			assert.Equal(t, "english", user.Language, "default language should be set")
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create user duplicate email fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.CreateUser(t.Context(), "user@example.com", "", "hash")
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), "user@example.com", "", "other-hash")

			require.Error(t, err, "should fail on duplicate email")
			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("find user by id ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), "findbyid@example.com", "", "hashedpassword123")
			require.NoError(t, err)

			got, err := r.FindByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created, got)
		})
	})

	t.Run("find user by id not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.FindByID(t.Context(), uuid.New())

			require.Error(t, err, "should return error for non-existent user")
			require.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("find user by email ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), "findbyemail@example.com", "", "hashedpassword123")
			require.NoError(t, err)

			got, err := r.FindByEmail(t.Context(), "findbyemail@example.com")

			require.NoError(t, err)
			assert.Equal(t, created, got)
		})
	})

	t.Run("find user by email not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.FindByEmail(t.Context(), "nobody@example.com")

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("update password hash ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), "user@example.com", "", "old-hash")
			require.NoError(t, err)

			err = r.UpdatePasswordHash(t.Context(), created.ID, "new-hash")
			require.NoError(t, err)

			got, err := r.FindByID(t.Context(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, "new-hash", got.PasswordHash)
			assert.True(t, got.UpdatedAt.After(created.UpdatedAt) || got.UpdatedAt.Equal(created.UpdatedAt))
		})
	})

	t.Run("update password hash not existed user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			err := r.UpdatePasswordHash(t.Context(), uuid.New(), "new-hash")

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
