package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
	"github.com/nkiryanov/authkeeper/internal/repository/postgres"
	"github.com/nkiryanov/authkeeper/internal/service/auth"
	"github.com/nkiryanov/authkeeper/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/authkeeper/internal/service/hasher"
	"github.com/nkiryanov/authkeeper/internal/service/passwordreset"
	"github.com/nkiryanov/authkeeper/internal/testutil"
)

// Sender remembering the last reset token
type lastTokenSender struct {
	mu    sync.Mutex
	token string
}

func (s *lastTokenSender) SendResetLink(ctx context.Context, to string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *lastTokenSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

type testServer struct {
	url     string
	storage repository.Storage
	hasher  hasher.PasswordHasher
	sender  *lastTokenSender
	flow    *passwordreset.Flow
}

func (s testServer) createUser(t *testing.T, email string, password string) models.User {
	t.Helper()

	hash, err := s.hasher.Hash(t.Context(), password)
	require.NoError(t, err)
	user, err := s.storage.User().CreateUser(t.Context(), email, "Nik", hash)
	require.NoError(t, err)
	return user
}

func (s testServer) post(t *testing.T, path string, body string, access string) (int, string, http.Header) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, s.url+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	return do(t, req)
}

func (s testServer) get(t *testing.T, path string, access string) (int, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, s.url+path, nil)
	require.NoError(t, err)
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	code, body, _ := do(t, req)
	return code, body
}

func do(t *testing.T, req *http.Request) (int, string, http.Header) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body), resp.Header
}

func (s testServer) login(t *testing.T, email string, password string) tokenResponse {
	t.Helper()

	code, body, _ := s.post(t, "/api/v1/auth/login", `{"email": "`+email+`", "password": "`+password+`"}`, "")
	require.Equalf(t, http.StatusOK, code, "login failed. Body: %s", body)

	var tokens tokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &tokens))
	return tokens
}

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with production services on top of test transaction
	withServer := func(t *testing.T, fn func(s testServer)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			h := hasher.Bcrypt{Cost: bcrypt.MinCost}
			sender := &lastTokenSender{}

			tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage.Revocation())
			require.NoError(t, err, "token manager should be created without errors")

			authService, err := auth.NewService(t.Context(), auth.Config{Hasher: h}, tokens, storage.User(), nil)
			require.NoError(t, err, "auth service starting error")

			resetFlow, err := passwordreset.New(passwordreset.Config{Hasher: h}, storage, sender, nil)
			require.NoError(t, err, "reset flow starting error")

			srv := httptest.NewServer(NewRouter(authService, resetFlow, logger.NewNoOpLogger()))
			defer srv.Close()

			fn(testServer{url: srv.URL, storage: storage, hasher: h, sender: sender, flow: resetFlow})
		})
	}

	t.Run("login ok", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")

			tokens := s.login(t, "nk@example.com", "StrongEnoughPassword")

			require.Equal(t, "bearer", tokens.TokenType)
			require.NotEmpty(t, tokens.AccessToken)
			require.NotEmpty(t, tokens.RefreshToken)
			require.NotEqual(t, tokens.AccessToken, tokens.RefreshToken)
		})
	})

	t.Run("login fail same answer for wrong password and unknown email", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")

			codeWrong, bodyWrong, header := s.post(t, "/api/v1/auth/login", `{"email": "nk@example.com", "password": "wrong"}`, "")
			codeUnknown, bodyUnknown, _ := s.post(t, "/api/v1/auth/login", `{"email": "who@example.com", "password": "wrong"}`, "")

			require.Equal(t, http.StatusUnauthorized, codeWrong)
			require.Equal(t, http.StatusUnauthorized, codeUnknown)
			require.Equal(t, bodyWrong, bodyUnknown)
			require.JSONEq(t, `{"error": "service_error", "message": "Incorrect email or password"}`, bodyWrong)
			require.Equal(t, "Bearer", header.Get("WWW-Authenticate"))
		})
	})

	t.Run("login invalid request", func(t *testing.T) {
		withServer(t, func(s testServer) {
			code, body, _ := s.post(t, "/api/v1/auth/login", `{"email": "not-an-email"}`, "")

			require.Equal(t, http.StatusBadRequest, code)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {
						"email": "Invalid email address",
						"password": "This field is required"
					}
				}`, body)
		})
	})

	t.Run("users me", func(t *testing.T) {
		withServer(t, func(s testServer) {
			user := s.createUser(t, "nk@example.com", "StrongEnoughPassword")
			tokens := s.login(t, "nk@example.com", "StrongEnoughPassword")

			code, body := s.get(t, "/api/v1/users/me", tokens.AccessToken)

			require.Equalf(t, http.StatusOK, code, "body: %s", body)
			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(body), &got))
			require.Equal(t, user.ID.String(), got["id"])
			require.Equal(t, "nk@example.com", got["email"])
			require.Equal(t, "Nik", got["name"])
			require.Equal(t, true, got["is_active"])
		})
	})

	t.Run("users me with refresh token rejected", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")
			tokens := s.login(t, "nk@example.com", "StrongEnoughPassword")

			code, body := s.get(t, "/api/v1/users/me", tokens.RefreshToken)

			require.Equal(t, http.StatusUnauthorized, code)
			require.JSONEq(t, `{"error": "service_error", "message": "Could not validate credentials"}`, body)
		})
	})

	t.Run("refresh rotates pair", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")
			tokens := s.login(t, "nk@example.com", "StrongEnoughPassword")

			code, body, _ := s.post(t, "/api/v1/auth/refresh", `{"refresh_token": "`+tokens.RefreshToken+`"}`, "")
			require.Equalf(t, http.StatusOK, code, "body: %s", body)
			var rotated tokenResponse
			require.NoError(t, json.Unmarshal([]byte(body), &rotated))
			require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

			// Presented refresh token is single use
			code, body, _ = s.post(t, "/api/v1/auth/refresh", `{"refresh_token": "`+tokens.RefreshToken+`"}`, "")
			require.Equal(t, http.StatusUnauthorized, code)
			require.JSONEq(t, `{"error": "service_error", "message": "Could not validate credentials"}`, body)
		})
	})

	t.Run("refresh with access token rejected", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")
			tokens := s.login(t, "nk@example.com", "StrongEnoughPassword")

			code, _, _ := s.post(t, "/api/v1/auth/refresh", `{"refresh_token": "`+tokens.AccessToken+`"}`, "")

			require.Equal(t, http.StatusUnauthorized, code)
		})
	})

	t.Run("logout revokes both tokens", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")
			tokens := s.login(t, "nk@example.com", "StrongEnoughPassword")

			code, body, _ := s.post(t, "/api/v1/auth/logout", `{"refresh_token": "`+tokens.RefreshToken+`"}`, tokens.AccessToken)
			require.Equalf(t, http.StatusOK, code, "body: %s", body)
			require.JSONEq(t, `{"message": "Successfully logged out"}`, body)

			code, _ = s.get(t, "/api/v1/users/me", tokens.AccessToken)
			require.Equal(t, http.StatusUnauthorized, code, "access token must be revoked")

			code, _, _ = s.post(t, "/api/v1/auth/refresh", `{"refresh_token": "`+tokens.RefreshToken+`"}`, "")
			require.Equal(t, http.StatusUnauthorized, code, "refresh token must be revoked")
		})
	})

	t.Run("logout without body", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")
			tokens := s.login(t, "nk@example.com", "StrongEnoughPassword")

			code, body, _ := s.post(t, "/api/v1/auth/logout", "", tokens.AccessToken)
			require.Equalf(t, http.StatusOK, code, "body: %s", body)

			// Refresh token not presented on logout still works
			code, _, _ = s.post(t, "/api/v1/auth/refresh", `{"refresh_token": "`+tokens.RefreshToken+`"}`, "")
			require.Equal(t, http.StatusOK, code)
		})
	})

	t.Run("logout unauthenticated", func(t *testing.T) {
		withServer(t, func(s testServer) {
			code, _, header := s.post(t, "/api/v1/auth/logout", "", "")

			require.Equal(t, http.StatusUnauthorized, code)
			require.Equal(t, "Bearer", header.Get("WWW-Authenticate"))
		})
	})

	t.Run("password reset", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")

			code, body, _ := s.post(t, "/api/v1/auth/request-password-reset", `{"email": "nk@example.com"}`, "")
			require.Equalf(t, http.StatusOK, code, "body: %s", body)
			require.JSONEq(t, `{"message": "If the email exists, a password reset link has been sent"}`, body)
			s.flow.Wait()
			token := s.sender.last()
			require.NotEmpty(t, token, "reset token should be sent")

			code, body, _ = s.post(t, "/api/v1/auth/reset-password", `{"token": "`+token+`", "new_password": "BrandNewPassword"}`, "")
			require.Equalf(t, http.StatusOK, code, "body: %s", body)
			require.JSONEq(t, `{"message": "Password has been reset successfully"}`, body)

			s.login(t, "nk@example.com", "BrandNewPassword")
			code, _, _ = s.post(t, "/api/v1/auth/login", `{"email": "nk@example.com", "password": "StrongEnoughPassword"}`, "")
			require.Equal(t, http.StatusUnauthorized, code, "old password must not work")

			// Token is single use
			code, body, _ = s.post(t, "/api/v1/auth/reset-password", `{"token": "`+token+`", "new_password": "OneMorePassword"}`, "")
			require.Equal(t, http.StatusBadRequest, code)
			require.JSONEq(t, `{"error": "service_error", "message": "Invalid or expired reset token"}`, body)
		})
	})

	t.Run("password reset request for unknown email", func(t *testing.T) {
		withServer(t, func(s testServer) {
			code, body, _ := s.post(t, "/api/v1/auth/request-password-reset", `{"email": "who@example.com"}`, "")

			require.Equal(t, http.StatusOK, code)
			require.JSONEq(t, `{"message": "If the email exists, a password reset link has been sent"}`, body)
			s.flow.Wait()
			require.Empty(t, s.sender.last(), "nothing should be sent")
		})
	})

	t.Run("password reset with unknown token", func(t *testing.T) {
		withServer(t, func(s testServer) {
			code, body, _ := s.post(t, "/api/v1/auth/reset-password", `{"token": "deadbeef", "new_password": "BrandNewPassword"}`, "")

			require.Equal(t, http.StatusBadRequest, code)
			require.JSONEq(t, `{"error": "service_error", "message": "Invalid or expired reset token"}`, body)
		})
	})

	t.Run("password reset short password", func(t *testing.T) {
		withServer(t, func(s testServer) {
			code, body, _ := s.post(t, "/api/v1/auth/reset-password", `{"token": "deadbeef", "new_password": "abc"}`, "")

			require.Equal(t, http.StatusBadRequest, code)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {"new_password": "Value is too short (minimum 4)"}
				}`, body)
		})
	})

	t.Run("password reset four characters enough", func(t *testing.T) {
		withServer(t, func(s testServer) {
			s.createUser(t, "nk@example.com", "StrongEnoughPassword")
			code, _, _ := s.post(t, "/api/v1/auth/request-password-reset", `{"email": "nk@example.com"}`, "")
			require.Equal(t, http.StatusOK, code)
			s.flow.Wait()

			code, body, _ := s.post(t, "/api/v1/auth/reset-password", `{"token": "`+s.sender.last()+`", "new_password": "abcd"}`, "")

			require.Equalf(t, http.StatusOK, code, "body: %s", body)
			s.login(t, "nk@example.com", "abcd")
		})
	})

	t.Run("health", func(t *testing.T) {
		withServer(t, func(s testServer) {
			code, _ := s.get(t, "/health", "")
			require.Equal(t, http.StatusOK, code)
		})
	})
}
