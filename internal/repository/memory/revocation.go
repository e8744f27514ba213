package memory

import (
	"context"
	"time"

	"github.com/nkiryanov/authkeeper/internal/models"
)

type RevocationRepo struct {
	st   *state
	undo *undoLog
}

func (r *RevocationRepo) Revoke(ctx context.Context, rev models.Revocation) (bool, error) {
	_, loaded := r.st.revocations.LoadOrStore(rev.TokenID, rev)
	if loaded {
		return false, nil
	}

	r.undo.add(func() {
		r.st.revocations.CompareAndDelete(rev.TokenID, rev)
	})

	return true, nil
}

func (r *RevocationRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, ok := r.st.revocations.Load(tokenID)
	return ok, nil
}

// Delete entry only if it is still the same expired record we looked at
func (r *RevocationRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64

	r.st.revocations.Range(func(key, value any) bool {
		if err := ctx.Err(); err != nil {
			return false
		}

		rev := value.(models.Revocation)
		if rev.ExpiresAt.Before(now) && r.st.revocations.CompareAndDelete(key, value) {
			purged++
		}
		return true
	})

	return purged, ctx.Err()
}
