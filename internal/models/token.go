package models

import (
	"time"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether t is one of the known token types
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// Claims carried inside a signed token
// Immutable once signed: the codec never hands out shared state
type TokenClaims struct {
	Subject   string
	TokenID   string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
	Type      TokenType
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued on login or refresh rotation
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Revoked token record
// Kept until ExpiresAt: after that the token is rejected as expired anyway
type Revocation struct {
	TokenID   string
	UserID    string
	Type      TokenType
	RevokedAt time.Time
	ExpiresAt time.Time
}
