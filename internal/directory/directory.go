package directory

import (
	"context"
	"errors"
	"strings"

	"support-gateway/internal/auth"
)

// Profile is the display metadata denormalized onto outgoing messages and
// incoming-call events.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Phone  string `json:"phone,omitempty"`
}

var ErrNotFound = errors.New("directory: not found")

// Directory is read access to user/agent display metadata in the external
// document store. Lookup failures are non-fatal to message delivery;
// callers degrade to empty fields.
type Directory interface {
	Lookup(ctx context.Context, identity string, role auth.Role) (Profile, error)
}

// QualifyAvatar resolves a stored avatar path against the media base URL.
// Absolute URLs pass through untouched.
func QualifyAvatar(baseURL, avatar string) string {
	if avatar == "" || baseURL == "" {
		return avatar
	}
	if strings.HasPrefix(avatar, "http://") || strings.HasPrefix(avatar, "https://") {
		return avatar
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(avatar, "/")
}
