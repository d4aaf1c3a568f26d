package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"sitework/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return errors.New("id required")
	case key.ActorID == "":
		return errors.New("actor_id required")
	case key.KeyHash == "":
		return errors.New("key_hash required")
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO api_keys(id, actor_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// PrincipalForAPIKey resolves a raw key to the owning actor, role included.
func (r Repo) PrincipalForAPIKey(ctx context.Context, rawKey string) (domain.Actor, error) {
	var a domain.Actor
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT a.id, COALESCE(a.name,''), a.role FROM api_keys k JOIN actors a ON a.id=k.actor_id WHERE k.key_hash=? LIMIT 1`,
		HashAPIKey(rawKey)).Scan(&a.ID, &a.Name, &role)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.Role = domain.Role(role)
	return a, err
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
