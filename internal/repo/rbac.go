package repo

import (
	"context"
)

func (r Repo) AssignRole(ctx context.Context, actorID, roleID, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role_id, created_at) VALUES (?,?,?)`, actorID, roleID, now)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, actorID, roleID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role_id=?`, actorID, roleID)
	return err
}

// ActorRoles returns the role ids held by an actor, sorted.
func (r Repo) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id`, actorID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// ActorsWithRole lists actors holding roleID.
func (r Repo) ActorsWithRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id FROM actor_roles WHERE role_id=? ORDER BY actor_id`, roleID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}
