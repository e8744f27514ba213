package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/handlers/render"
	"github.com/nkiryanov/authkeeper/internal/handlers/userctx"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
)

const (
	msgInvalidCredentials = "Incorrect email or password"
	msgInvalidToken       = "Could not validate credentials"
	msgInternalError      = "Internal server error"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func newTokenResponse(pair models.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		TokenType:    "bearer",
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	render.ServiceError(w, message, http.StatusUnauthorized)
}

func handleLogin(s authService, logger logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			logger.Debug("Login request invalid", "error", err)
			return
		}

		pair, err := s.Login(r.Context(), data.Email, data.Password)
		switch {
		case err == nil:
			render.JSON(w, newTokenResponse(pair))
		case errors.Is(err, apperrors.ErrAuthenticationFailed):
			unauthorized(w, msgInvalidCredentials)
		default:
			logger.Error("Login failed", "error", err)
			render.ServiceError(w, msgInternalError, http.StatusInternalServerError)
		}
	})
}

func handleTokenRefresh(s authService, logger logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			logger.Debug("Refresh request invalid", "error", err)
			return
		}

		pair, err := s.Refresh(r.Context(), data.RefreshToken)
		switch {
		case err == nil:
			render.JSON(w, newTokenResponse(pair))
		case apperrors.IsAuthError(err):
			logger.Info("Refresh rejected", "error", err)
			unauthorized(w, msgInvalidToken)
		default:
			logger.Error("Refresh failed", "error", err)
			render.ServiceError(w, msgInternalError, http.StatusInternalServerError)
		}
	})
}

func handleLogout(s authService, logger logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refresh_token"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := userctx.ClaimsFromContext(r.Context())
		if !ok {
			render.ServiceError(w, msgInternalError, http.StatusInternalServerError)
			return
		}

		// Body is optional: access token alone is enough to log out
		var data request
		err := json.NewDecoder(r.Body).Decode(&data)
		if err != nil && !errors.Is(err, io.EOF) {
			render.DecodeError(w, err)
			return
		}

		err = s.Logout(r.Context(), claims, data.RefreshToken)
		if err != nil {
			logger.Error("Logout failed", "error", err, "user_id", claims.Subject)
			render.ServiceError(w, msgInternalError, http.StatusInternalServerError)
			return
		}

		render.JSON(w, messageResponse{Message: "Successfully logged out"})
	})
}
