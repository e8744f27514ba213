package userctx

import (
	"context"

	"github.com/nkiryanov/authkeeper/internal/models"
)

type ctxKey string

const (
	userKey   ctxKey = "user"
	claimsKey ctxKey = "claims"
)

// Create a new context with the user and claims of access token he came with
func New(ctx context.Context, u models.User, claims models.TokenClaims) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, claimsKey, claims)
}

// Extract the user from the context
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// Extract access token claims from the context
func ClaimsFromContext(ctx context.Context) (models.TokenClaims, bool) {
	c, ok := ctx.Value(claimsKey).(models.TokenClaims)
	return c, ok
}
