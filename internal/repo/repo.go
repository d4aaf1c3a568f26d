package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"sitework/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = domain.ErrNotFound

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (r Repo) on(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

const projectColumns = `id,name,building_id,floor_unit_id,unit_id,COALESCE(site_incharge,''),created_by,COALESCE(updated_by,''),is_deleted,created_at,updated_at`

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.BuildingID, &p.FloorUnitID, &p.UnitID, &p.SiteIncharge,
		&p.CreatedBy, &p.UpdatedBy, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// InsertProject stores the project row and its initial contractor set.
func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,building_id,floor_unit_id,unit_id,site_incharge,created_by,updated_by,is_deleted,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,0,?,?)`,
		p.ID, p.Name, p.BuildingID, p.FloorUnitID, p.UnitID, nullable(p.SiteIncharge), p.CreatedBy, nullable(p.UpdatedBy), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	for _, c := range p.Contractors {
		if err := r.AddContractor(ctx, tx, p.ID, c, p.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// GetProject loads the full aggregate: contractors and every unit with its tasks.
func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.getProject(ctx, r.DB, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return r.getProject(ctx, tx, id)
}

// GetProjectRowTx loads the project without contractors or units.
func (r Repo) GetProjectRowTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) getProject(ctx context.Context, q queryer, id string) (domain.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	return r.hydrate(ctx, q, p)
}

// FindProjectByLocation returns the live project for a building/floor/unit combination.
func (r Repo) FindProjectByLocation(ctx context.Context, buildingID, floorUnitID, unitID string) (domain.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE building_id=? AND floor_unit_id=? AND unit_id=? AND is_deleted=0 ORDER BY created_at LIMIT 1`,
		buildingID, floorUnitID, unitID))
	if err != nil {
		return p, err
	}
	return r.hydrate(ctx, r.DB, p)
}

// ProjectFilters narrows ListProjects. Empty fields do not filter.
type ProjectFilters struct {
	SiteIncharge   string
	Contractor     string
	IncludeDeleted bool
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if !f.IncludeDeleted {
		clauses = append(clauses, "is_deleted=0")
	}
	if f.SiteIncharge != "" {
		clauses = append(clauses, "site_incharge=?")
		args = append(args, f.SiteIncharge)
	}
	if f.Contractor != "" {
		clauses = append(clauses, "id IN (SELECT project_id FROM project_contractors WHERE contractor_id=?)")
		args = append(args, f.Contractor)
	}
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE %s ORDER BY created_at, id`, projectColumns, strings.Join(clauses, " AND "))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		if res[i], err = r.hydrate(ctx, r.DB, res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) hydrate(ctx context.Context, q queryer, p domain.Project) (domain.Project, error) {
	contractors, err := listContractors(ctx, q, p.ID)
	if err != nil {
		return p, err
	}
	p.Contractors = contractors
	units, err := listUnits(ctx, q, p.ID)
	if err != nil {
		return p, err
	}
	p.Units = units
	return p, nil
}

func listContractors(ctx context.Context, q queryer, projectID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT contractor_id FROM project_contractors WHERE project_id=? ORDER BY added_at, rowid`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddContractor records contractorID on the project; repeats are ignored.
func (r Repo) AddContractor(ctx context.Context, tx *sql.Tx, projectID, contractorID, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_contractors(project_id, contractor_id, added_at) VALUES (?,?,?)`, projectID, contractorID, now)
	return err
}

// TouchProject stamps the acting identity on the project.
func (r Repo) TouchProject(ctx context.Context, tx *sql.Tx, projectID, actorID, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET updated_by=?, updated_at=? WHERE id=?`, actorID, now, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SoftDeleteProject(ctx context.Context, tx *sql.Tx, projectID, actorID, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET is_deleted=1, updated_by=?, updated_at=? WHERE id=? AND is_deleted=0`, actorID, now, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func optionalString(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func marshalRefs(refs []string) (string, error) {
	if refs == nil {
		refs = []string{}
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal photo refs: %w", err)
	}
	return string(b), nil
}

func unmarshalRefs(raw string) ([]string, error) {
	refs := []string{}
	if strings.TrimSpace(raw) == "" {
		return refs, nil
	}
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, fmt.Errorf("decode photo refs: %w", err)
	}
	return refs, nil
}

// UpdateProjectTx writes the mutable project fields.
func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project, actorID, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, site_incharge=?, updated_by=?, updated_at=? WHERE id=? AND is_deleted=0`,
		p.Name, nullable(p.SiteIncharge), actorID, now, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
