package repo

import (
	"context"
	"database/sql"

	"sitework/internal/domain"
)

func (r Repo) InsertMembership(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memberships(id,kind,member_id,manager_id,is_deleted,created_at) VALUES (?,?,?,?,0,?)`,
		m.ID, string(m.Kind), m.MemberID, m.ManagerID, m.CreatedAt)
	return err
}

// DeleteMembership marks an edge deleted. Deleted edges stay for audit.
func (r Repo) DeleteMembership(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE memberships SET is_deleted=1 WHERE id=? AND is_deleted=0`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LiveMembershipTx returns the non-deleted edge of kind for member, if any.
func (r Repo) LiveMembershipTx(ctx context.Context, tx *sql.Tx, kind domain.Role, memberID string) (domain.Membership, error) {
	var m domain.Membership
	var kindStr string
	err := tx.QueryRowContext(ctx, `SELECT id,kind,member_id,manager_id,is_deleted,created_at FROM memberships WHERE kind=? AND member_id=? AND is_deleted=0 LIMIT 1`, string(kind), memberID).
		Scan(&m.ID, &kindStr, &m.MemberID, &m.ManagerID, &m.IsDeleted, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	m.Kind = domain.Role(kindStr)
	return m, err
}

// ListMemberships returns edges under managerID (all managers when empty).
func (r Repo) ListMemberships(ctx context.Context, managerID string, includeDeleted bool) ([]domain.Membership, error) {
	query := `SELECT id,kind,member_id,manager_id,is_deleted,created_at FROM memberships WHERE 1=1`
	var args []any
	if managerID != "" {
		query += ` AND manager_id=?`
		args = append(args, managerID)
	}
	if !includeDeleted {
		query += ` AND is_deleted=0`
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		var kind string
		if err := rows.Scan(&m.ID, &kind, &m.MemberID, &m.ManagerID, &m.IsDeleted, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = domain.Role(kind)
		res = append(res, m)
	}
	return res, rows.Err()
}

// AgentsOf lists agents on live edges under the team lead.
func (r Repo) AgentsOf(ctx context.Context, teamLeadID string) ([]string, error) {
	return r.members(ctx, domain.RoleAgent, teamLeadID)
}

// TeamLeadsOf lists team leads on live edges under the sales manager.
func (r Repo) TeamLeadsOf(ctx context.Context, salesManagerID string) ([]string, error) {
	return r.members(ctx, domain.RoleTeamLead, salesManagerID)
}

func (r Repo) members(ctx context.Context, kind domain.Role, managerID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT member_id FROM memberships WHERE kind=? AND manager_id=? AND is_deleted=0 ORDER BY member_id`, string(kind), managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
