package directory

import (
	"context"
	"sync"

	"support-gateway/internal/auth"
)

// MemoryDirectory is an in-memory directory useful for tests.
type MemoryDirectory struct {
	mu       sync.Mutex
	profiles map[auth.Role]map[string]Profile
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{profiles: map[auth.Role]map[string]Profile{
		auth.RoleUser:  {},
		auth.RoleAgent: {},
	}}
}

func (d *MemoryDirectory) Put(role auth.Role, p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[role][p.ID] = p
}

func (d *MemoryDirectory) Lookup(ctx context.Context, identity string, role auth.Role) (Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[role][identity]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}
