package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/handlers/render"
	"github.com/nkiryanov/authkeeper/internal/logger"
)

const (
	msgResetRequested    = "If the email exists, a password reset link has been sent"
	msgResetDone         = "Password has been reset successfully"
	msgInvalidResetToken = "Invalid or expired reset token"
)

func handleRequestPasswordReset(s resetService, logger logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			logger.Debug("Password reset request invalid", "error", err)
			return
		}

		// The answer never tells whether the email is known
		_, err = s.Request(r.Context(), data.Email)
		if err != nil {
			logger.Error("Password reset request failed", "error", err)
			render.ServiceError(w, msgInternalError, http.StatusInternalServerError)
			return
		}

		render.JSON(w, messageResponse{Message: msgResetRequested})
	})
}

func handleResetPassword(s resetService, logger logger.Logger) http.Handler {
	type request struct {
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"new_password" validate:"required,notblank,min=4"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			logger.Debug("Password reset confirm invalid", "error", err)
			return
		}

		err = s.Confirm(r.Context(), data.Token, data.NewPassword)
		switch {
		case err == nil:
			render.JSON(w, messageResponse{Message: msgResetDone})
		case errors.Is(err, apperrors.ErrResetTokenInvalid),
			errors.Is(err, apperrors.ErrResetTokenExpired),
			errors.Is(err, apperrors.ErrResetTokenUsed):
			logger.Info("Password reset rejected", "error", err)
			render.ServiceError(w, msgInvalidResetToken, http.StatusBadRequest)
		default:
			logger.Error("Password reset failed", "error", err)
			render.ServiceError(w, msgInternalError, http.StatusInternalServerError)
		}
	})
}
