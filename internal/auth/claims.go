package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the only supported JWT claims shape for connection tokens.
// The identity is taken from user_id, falling back to the registered
// subject for tokens minted by older issuers.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id,omitempty"`
}
