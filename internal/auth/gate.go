package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"support-gateway/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// Role is decided once at the connection gate and carried as typed context
// through every handler. Nothing downstream re-inspects token prefixes.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Opposite returns the counterpart role for presence fan-out and for the
// caller-attribution fallback in call close-out.
func (r Role) Opposite() Role {
	if r == RoleAgent {
		return RoleUser
	}
	return RoleAgent
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent
}

// Identity is the authenticated principal attached to a connection.
type Identity struct {
	ID   string
	Role Role
}

const (
	agentTokenPrefix = "agent:"
	userTokenPrefix  = "user:"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Manager verifies connection tokens against the shared signing secret.
type Manager struct {
	secret   []byte
	issuer   string
	audience string
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &Manager{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
	}, nil
}

// Authenticate decides accept/reject for a proposed connection.
//
// Three token forms are accepted: "agent:<jwt>", "user:<jwt>", and a bare
// "<jwt>" kept for older user clients. The prefix fixes the role; the body
// must verify against the shared secret.
func (m *Manager) Authenticate(raw string, now time.Time) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	role := RoleUser
	body := raw
	switch {
	case strings.HasPrefix(raw, agentTokenPrefix):
		role = RoleAgent
		body = strings.TrimPrefix(raw, agentTokenPrefix)
	case strings.HasPrefix(raw, userTokenPrefix):
		body = strings.TrimPrefix(raw, userTokenPrefix)
	}
	if body == "" {
		return Identity{}, ErrMissingToken
	}

	claims, err := m.verify(body, now)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return Identity{}, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}

	return Identity{ID: id, Role: role}, nil
}

func (m *Manager) verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	validator := jwt.NewValidator(opts...)
	if err := validator.Validate(claims.RegisteredClaims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
