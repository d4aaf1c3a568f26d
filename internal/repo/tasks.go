package repo

import (
	"context"
	"database/sql"

	"sitework/internal/domain"
)

const taskColumns = `project_id,id,unit_id,position,title,COALESCE(description,''),COALESCE(construction_phase,''),priority,COALESCE(deadline,''),contractor,added_by,COALESCE(quality_issue_id,''),
status_for_contractor,progress_percentage,is_approved_by_contractor,contractor_photos_json,submitted_by_contractor_on,COALESCE(evidence_title_by_contractor,''),
status_for_site_incharge,is_approved_by_site_manager,site_incharge_photos_json,submitted_by_site_incharge_on,COALESCE(note_by_site_incharge,''),COALESCE(quality_assessment,''),COALESCE(verification_decision,''),
version,created_at,updated_at`

func scanTask(row scanner) (domain.Task, error) {
	var (
		t                          domain.Task
		priority                   string
		workPhotos, reviewPhotos   string
		workSubmitted, reviewStamp sql.NullString
	)
	err := row.Scan(&t.ProjectID, &t.ID, &t.UnitID, &t.Position, &t.Title, &t.Description, &t.ConstructionPhase, &priority, &t.Deadline,
		&t.Contractor, &t.AddedBy, &t.QualityIssueID,
		&t.Work.Status, &t.Work.Progress, &t.Work.Approved, &workPhotos, &workSubmitted, &t.Work.EvidenceTitle,
		&t.Review.Status, &t.Review.Approved, &reviewPhotos, &reviewStamp, &t.Review.Note, &t.Review.QualityAssessment, &t.Review.VerificationDecision,
		&t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Priority = domain.Priority(priority)
	t.Work.SubmittedOn = optionalString(workSubmitted)
	t.Review.SubmittedOn = optionalString(reviewStamp)
	if t.Work.Photos, err = unmarshalRefs(workPhotos); err != nil {
		return t, err
	}
	if t.Review.Photos, err = unmarshalRefs(reviewPhotos); err != nil {
		return t, err
	}
	return t, nil
}

// InsertUnit creates an empty unit. It reports false when the unit already existed.
func (r Repo) InsertUnit(ctx context.Context, tx *sql.Tx, projectID, unitID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO units(project_id, unit_id, created_at) VALUES (?,?,?)`, projectID, unitID, now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) NextTaskPosition(ctx context.Context, tx *sql.Tx, projectID, unitID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1, 0) FROM tasks WHERE project_id=? AND unit_id=?`, projectID, unitID).Scan(&pos)
	return pos, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	workPhotos, err := marshalRefs(t.Work.Photos)
	if err != nil {
		return err
	}
	reviewPhotos, err := marshalRefs(t.Review.Photos)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(project_id,id,unit_id,position,title,description,construction_phase,priority,deadline,contractor,added_by,quality_issue_id,
status_for_contractor,progress_percentage,is_approved_by_contractor,contractor_photos_json,submitted_by_contractor_on,evidence_title_by_contractor,
status_for_site_incharge,is_approved_by_site_manager,site_incharge_photos_json,submitted_by_site_incharge_on,note_by_site_incharge,quality_assessment,verification_decision,
version,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ProjectID, t.ID, t.UnitID, t.Position, t.Title, nullable(t.Description), nullable(t.ConstructionPhase), string(t.Priority), nullable(t.Deadline),
		t.Contractor, t.AddedBy, nullable(t.QualityIssueID),
		t.Work.Status, t.Work.Progress, t.Work.Approved, workPhotos, nullableStringPtr(t.Work.SubmittedOn), nullable(t.Work.EvidenceTitle),
		t.Review.Status, t.Review.Approved, reviewPhotos, nullableStringPtr(t.Review.SubmittedOn), nullable(t.Review.Note), nullable(t.Review.QualityAssessment), nullable(t.Review.VerificationDecision),
		t.Version, t.CreatedAt, t.UpdatedAt)
	return err
}

// GetTaskTx finds a task by id anywhere in the project; the returned task carries its unit.
func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, projectID, taskID string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? AND id=?`, projectID, taskID))
}

// UpdateTaskVersioned writes t if the stored version still equals expected, and
// bumps the version. It returns ErrNotFound or ErrVersionConflict otherwise.
func (r Repo) UpdateTaskVersioned(ctx context.Context, tx *sql.Tx, t domain.Task, expected int64) error {
	workPhotos, err := marshalRefs(t.Work.Photos)
	if err != nil {
		return err
	}
	reviewPhotos, err := marshalRefs(t.Review.Photos)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, construction_phase=?, priority=?, deadline=?, quality_issue_id=?,
status_for_contractor=?, progress_percentage=?, is_approved_by_contractor=?, contractor_photos_json=?, submitted_by_contractor_on=?, evidence_title_by_contractor=?,
status_for_site_incharge=?, is_approved_by_site_manager=?, site_incharge_photos_json=?, submitted_by_site_incharge_on=?, note_by_site_incharge=?, quality_assessment=?, verification_decision=?,
version=version+1, updated_at=?
WHERE project_id=? AND id=? AND version=?`,
		t.Title, nullable(t.Description), nullable(t.ConstructionPhase), string(t.Priority), nullable(t.Deadline), nullable(t.QualityIssueID),
		t.Work.Status, t.Work.Progress, t.Work.Approved, workPhotos, nullableStringPtr(t.Work.SubmittedOn), nullable(t.Work.EvidenceTitle),
		t.Review.Status, t.Review.Approved, reviewPhotos, nullableStringPtr(t.Review.SubmittedOn), nullable(t.Review.Note), nullable(t.Review.QualityAssessment), nullable(t.Review.VerificationDecision),
		t.UpdatedAt, t.ProjectID, t.ID, expected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE project_id=? AND id=?`, t.ProjectID, t.ID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrVersionConflict
}

// listUnits returns every unit of the project, empty ones included, with tasks in position order.
func listUnits(ctx context.Context, q queryer, projectID string) (map[string][]domain.Task, error) {
	units := map[string][]domain.Task{}
	rows, err := q.QueryContext(ctx, `SELECT unit_id FROM units WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		units[id] = []domain.Task{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY unit_id, position`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		units[t.UnitID] = append(units[t.UnitID], t)
	}
	return units, rows.Err()
}

// UnitTasks returns the tasks of one unit in order; an absent unit yields an empty slice.
func (r Repo) UnitTasks(ctx context.Context, projectID, unitID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? AND unit_id=? ORDER BY position`, projectID, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
