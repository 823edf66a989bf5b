package directory

import (
	"context"
	"database/sql"
	"errors"

	"support-gateway/internal/auth"
)

// NOTE: This repository assumes the following tables exist:
// - users  (id, name, avatar, phone)
// - agents (id, name, avatar, phone)

type PostgresDirectory struct {
	db            *sql.DB
	avatarBaseURL string
}

func NewPostgresDirectory(db *sql.DB, avatarBaseURL string) *PostgresDirectory {
	return &PostgresDirectory{db: db, avatarBaseURL: avatarBaseURL}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, identity string, role auth.Role) (Profile, error) {
	q := `SELECT id, COALESCE(name, ''), COALESCE(avatar, ''), COALESCE(phone, '') FROM users WHERE id = $1`
	if role == auth.RoleAgent {
		q = `SELECT id, COALESCE(name, ''), COALESCE(avatar, ''), COALESCE(phone, '') FROM agents WHERE id = $1`
	}

	var p Profile
	if err := d.db.QueryRowContext(ctx, q, identity).Scan(&p.ID, &p.Name, &p.Avatar, &p.Phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	p.Avatar = QualifyAvatar(d.avatarBaseURL, p.Avatar)
	return p, nil
}
