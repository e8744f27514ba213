package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Login failed: unknown user, inactive user or wrong password
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Stored password hash can't be parsed. Fatal for the user record, must reach an operator
	ErrCorruptHash = errors.New("password hash is corrupt")

	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token is expired")
	ErrTokenWrongType        = errors.New("token has wrong type")
	ErrTokenRevoked          = errors.New("token is revoked")

	ErrResetTokenInvalid = errors.New("reset token is invalid")
	ErrResetTokenExpired = errors.New("reset token is expired")
	ErrResetTokenUsed    = errors.New("reset token is used")
)

// Reports whether err means presented credentials are not acceptable
// Anything else (storage down, context cancelled) is a server side failure
func IsAuthError(err error) bool {
	for _, target := range []error{
		ErrTokenMalformed,
		ErrTokenSignatureInvalid,
		ErrTokenExpired,
		ErrTokenWrongType,
		ErrTokenRevoked,
		ErrAuthenticationFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
