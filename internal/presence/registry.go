package presence

import (
	"log/slog"
	"sync"
	"time"

	"support-gateway/internal/auth"
)

// Outbound presence events, fanned out to the opposite role.
const (
	EventOnline  = "presence-online"
	EventOffline = "presence-offline"
)

// Conn is a live duplex connection owned by the registry for its lifetime.
// Send must never block the caller; slow consumers drop frames.
type Conn interface {
	Identity() string
	Role() auth.Role
	Send(event string, data any) error
}

type Announcement struct {
	Identity  string    `json:"identity"`
	Role      auth.Role `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry is the authoritative set of currently-reachable identities,
// one mapping per role. Presence is best-effort and self-healing: a missed
// broadcast is corrected by the next connect/disconnect cycle.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]Conn
	agents map[string]Conn

	lastSeen *LastSeen // optional, best-effort
	clock    func() time.Time
	log      *slog.Logger
}

func NewRegistry(lastSeen *LastSeen, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		users:    make(map[string]Conn),
		agents:   make(map[string]Conn),
		lastSeen: lastSeen,
		clock:    time.Now,
		log:      log,
	}
}

// Register inserts the connection, overwriting any prior connection for the
// same identity. A duplicate login invalidates the earlier session, so
// last writer wins. Broadcasts presence-online to the opposite role.
func (r *Registry) Register(c Conn) {
	now := r.clock().UTC()

	r.mu.Lock()
	r.roleMap(c.Role())[c.Identity()] = c
	peers := r.oppositeSnapshotLocked(c.Role())
	r.mu.Unlock()

	r.log.Debug("presence register", "identity", c.Identity(), "role", c.Role())
	r.touch(c)
	announce(peers, EventOnline, Announcement{Identity: c.Identity(), Role: c.Role(), Timestamp: now})
}

// Unregister removes the mapping only if the stored connection is still the
// same instance. This guards against a stale unregister racing a fresh
// reconnect for the same identity.
func (r *Registry) Unregister(c Conn) {
	now := r.clock().UTC()

	r.mu.Lock()
	m := r.roleMap(c.Role())
	if cur, ok := m[c.Identity()]; !ok || cur != c {
		r.mu.Unlock()
		return
	}
	delete(m, c.Identity())
	peers := r.oppositeSnapshotLocked(c.Role())
	r.mu.Unlock()

	r.log.Debug("presence unregister", "identity", c.Identity(), "role", c.Role())
	r.touch(c)
	announce(peers, EventOffline, Announcement{Identity: c.Identity(), Role: c.Role(), Timestamp: now})
}

// Lookup reports the live connection for an identity, if any.
func (r *Registry) Lookup(identity string, role auth.Role) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.roleMap(role)[identity]
	return c, ok
}

// Touch refreshes the identity's advisory last-seen marker. Used by the
// heartbeat path; never fatal.
func (r *Registry) Touch(c Conn) {
	r.touch(c)
}

func (r *Registry) roleMap(role auth.Role) map[string]Conn {
	if role == auth.RoleAgent {
		return r.agents
	}
	return r.users
}

func (r *Registry) oppositeSnapshotLocked(role auth.Role) []Conn {
	m := r.roleMap(role.Opposite())
	out := make([]Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (r *Registry) touch(c Conn) {
	if r.lastSeen == nil {
		return
	}
	// Off the register/unregister path; redis must not block presence.
	go func() {
		if err := r.lastSeen.Touch(c.Identity(), c.Role()); err != nil {
			r.log.Warn("last-seen touch failed", "identity", c.Identity(), "err", err)
		}
	}()
}

func announce(peers []Conn, event string, a Announcement) {
	for _, p := range peers {
		_ = p.Send(event, a)
	}
}
