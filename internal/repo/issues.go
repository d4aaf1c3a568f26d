package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sitework/internal/domain"
)

const issueColumns = `id,project_id,COALESCE(contractor,''),title,COALESCE(description,''),status,created_by,created_at,updated_at`

func scanIssue(row scanner) (domain.QualityIssue, error) {
	var i domain.QualityIssue
	var status string
	err := row.Scan(&i.ID, &i.ProjectID, &i.Contractor, &i.Title, &i.Description, &status, &i.CreatedBy, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	i.Status = domain.IssueStatus(status)
	return i, err
}

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, i domain.QualityIssue) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO quality_issues(id,project_id,contractor,title,description,status,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		i.ID, i.ProjectID, nullable(i.Contractor), i.Title, nullable(i.Description), string(i.Status), i.CreatedBy, i.CreatedAt, i.UpdatedAt)
	return err
}

func (r Repo) GetIssueTx(ctx context.Context, tx *sql.Tx, id string) (domain.QualityIssue, error) {
	return scanIssue(tx.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM quality_issues WHERE id=?`, id))
}

func (r Repo) UpdateIssueTx(ctx context.Context, tx *sql.Tx, i domain.QualityIssue) error {
	res, err := tx.ExecContext(ctx, `UPDATE quality_issues SET contractor=?, title=?, description=?, status=?, updated_at=? WHERE id=?`,
		nullable(i.Contractor), i.Title, nullable(i.Description), string(i.Status), i.UpdatedAt, i.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IssueFilters narrows ListIssues. Empty fields do not filter.
type IssueFilters struct {
	ProjectID  string
	CreatedBy  string
	Contractor string
	Status     domain.IssueStatus
}

func (r Repo) ListIssues(ctx context.Context, f IssueFilters) ([]domain.QualityIssue, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.Contractor != "" {
		clauses = append(clauses, "contractor=?")
		args = append(args, f.Contractor)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	query := fmt.Sprintf(`SELECT %s FROM quality_issues WHERE %s ORDER BY created_at DESC, id`, issueColumns, strings.Join(clauses, " AND "))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.QualityIssue{}
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}
