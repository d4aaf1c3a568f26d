package repo

import (
	"context"
	"database/sql"
	"strings"

	"sitework/internal/domain"
)

// UpsertActor creates the actor or refreshes its name and role.
func (r Repo) UpsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor, now string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO actors(id,name,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=COALESCE(excluded.name, actors.name), role=CASE WHEN excluded.role='' THEN actors.role ELSE excluded.role END`,
		a.ID, nullable(a.Name), string(a.Role), now)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(name,''),role FROM actors WHERE id=?`, id).Scan(&a.ID, &a.Name, &role)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.Role = domain.Role(role)
	return a, err
}

// ActorNames maps the given ids to display names. Unknown or unnamed ids are absent.
func (r Repo) ActorNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := map[string]string{}
	if len(ids) == 0 {
		return names, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name FROM actors WHERE name IS NOT NULL AND id IN (`+
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
