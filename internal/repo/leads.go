package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sitework/internal/domain"
	"sitework/internal/visibility"
)

const leadColumns = `id,name,COALESCE(phone,''),COALESCE(email,''),status,added_by,is_deleted,created_at,updated_at`

func scanLead(row scanner) (domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Status, &l.AddedBy, &l.IsDeleted, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) InsertLead(ctx context.Context, tx *sql.Tx, l domain.Lead) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO leads(id,name,phone,email,status,added_by,is_deleted,created_at,updated_at) VALUES (?,?,?,?,?,?,0,?,?)`,
		l.ID, l.Name, nullable(l.Phone), nullable(l.Email), l.Status, l.AddedBy, l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	return scanLead(r.DB.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id=? AND is_deleted=0`, id))
}

func (r Repo) GetLeadTx(ctx context.Context, tx *sql.Tx, id string) (domain.Lead, error) {
	return scanLead(tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id=? AND is_deleted=0`, id))
}

func (r Repo) UpdateLeadTx(ctx context.Context, tx *sql.Tx, l domain.Lead) error {
	res, err := tx.ExecContext(ctx, `UPDATE leads SET name=?, phone=?, email=?, status=?, is_deleted=?, updated_at=? WHERE id=?`,
		l.Name, nullable(l.Phone), nullable(l.Email), l.Status, l.IsDeleted, l.UpdatedAt, l.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type LeadFilters struct {
	Owners visibility.Filter
	Status string
}

// ListLeads returns live leads whose added_by passes the owner filter, newest first.
func (r Repo) ListLeads(ctx context.Context, f LeadFilters) ([]domain.Lead, error) {
	ownerClause, args := f.Owners.SQL("added_by")
	clauses := []string{"is_deleted=0", ownerClause}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY created_at DESC, id`, leadColumns, strings.Join(clauses, " AND "))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
