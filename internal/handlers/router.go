package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/authkeeper/internal/handlers/middleware"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	resetService resetService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService, logger)

	api := http.NewServeMux()

	api.Handle("POST /auth/login", handleLogin(authService, logger))
	api.Handle("POST /auth/refresh", handleTokenRefresh(authService, logger))
	api.Handle("POST /auth/logout", withAuth(handleLogout(authService, logger)))
	api.Handle("POST /auth/request-password-reset", handleRequestPasswordReset(resetService, logger))
	api.Handle("POST /auth/reset-password", handleResetPassword(resetService, logger))

	api.Handle("GET /users/me", withAuth(handleUserMe()))

	root := http.NewServeMux()
	root.Handle("/api/v1/", http.StripPrefix("/api/v1", api))
	root.Handle("GET /health", handleHealth())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login user with email and password
	// Has to return apperrors.ErrAuthenticationFailed for any credentials problem
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Exchange refresh token for new pair, presented token is revoked
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Revoke access token and, if not empty, refresh token
	Logout(ctx context.Context, access models.TokenClaims, refresh string) error

	// Get request and return user if it authenticated or error
	Authenticate(ctx context.Context, r *http.Request) (models.User, models.TokenClaims, error)
}

type resetService interface {
	// Issue reset token and send it. Unknown email is not an error
	Request(ctx context.Context, email string) (string, error)

	// Set new password consuming the token
	Confirm(ctx context.Context, token string, newPassword string) error
}

func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
