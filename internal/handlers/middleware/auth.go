package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/handlers/render"
	"github.com/nkiryanov/authkeeper/internal/handlers/userctx"
	"github.com/nkiryanov/authkeeper/internal/models"
)

type authService interface {
	Authenticate(ctx context.Context, r *http.Request) (models.User, models.TokenClaims, error)
}

type authLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Reject request without valid access token
// Every credentials failure gets the same answer, the reason is logged only
// Failures to check credentials at all are server errors
func AuthMiddleware(as authService, l authLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, claims, err := as.Authenticate(r.Context(), r)
			if err != nil && !apperrors.IsAuthError(err) {
				l.Error("Authentication failed", "uri", r.RequestURI, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if err != nil {
				l.Info("Request not authenticated", "uri", r.RequestURI, "error", err)
				w.Header().Set("WWW-Authenticate", "Bearer")
				render.ServiceError(w, "Could not validate credentials", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), user, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
