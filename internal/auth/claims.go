package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	ErrWrongTokenType  = errors.New("auth: unexpected token type")
	ErrIncompleteToken = errors.New("auth: token identity incomplete")
)

// Identity is who is calling the API. OwnerID scopes every flow, number and
// editor session the caller can see.
type Identity struct {
	UserID  string `json:"user_id"`
	OwnerID string `json:"owner_id"`
	Role    string `json:"role,omitempty"`
}

// Claims is the one JWT shape this service issues and accepts.
type Claims struct {
	jwt.RegisteredClaims
	Identity

	TokenType TokenType `json:"token_type"`
}

// check enforces the identity fields required for the token type. Refresh
// tokens carry no role.
func (c Claims) check(expected TokenType) error {
	if c.TokenType != expected {
		return ErrWrongTokenType
	}
	if c.UserID == "" || c.OwnerID == "" {
		return ErrIncompleteToken
	}
	if expected == TokenTypeAccess && c.Role == "" {
		return ErrIncompleteToken
	}
	return nil
}
