// Package store keeps the per-unit task sequences of a project. Tasks are stored one
// row each with their own version, so writers of different tasks never collide and
// writers of the same task are told when they lost.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sitework/internal/domain"
	"sitework/internal/repo"
)

// Mutator transforms a loaded task. Returning an error aborts the write.
type Mutator func(domain.Task) (domain.Task, error)

type Store struct {
	Repo repo.Repo
	Now  func() time.Time
}

func New(r repo.Repo) Store {
	return Store{Repo: r, Now: time.Now}
}

func (s Store) now() string {
	if s.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return s.Now().UTC().Format(time.RFC3339)
}

func (s Store) liveProject(ctx context.Context, tx *sql.Tx, projectID string) (domain.Project, error) {
	p, err := s.Repo.GetProjectRowTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if p.IsDeleted {
		return p, domain.ErrNotFound
	}
	return p, nil
}

// EnsureUnit creates an empty unit if missing and reports whether it did.
func (s Store) EnsureUnit(ctx context.Context, tx *sql.Tx, projectID, unitID string) (bool, error) {
	if unitID == "" {
		return false, domain.Invalid("unit_id", "required")
	}
	if _, err := s.liveProject(ctx, tx, projectID); err != nil {
		return false, err
	}
	created, err := s.Repo.InsertUnit(ctx, tx, projectID, unitID, s.now())
	if err != nil {
		return false, fmt.Errorf("insert unit: %w", err)
	}
	return created, nil
}

// AppendTask stores t at the end of the unit's sequence under a fresh id and stamps
// the actor on the project. The unit is created when absent.
func (s Store) AppendTask(ctx context.Context, tx *sql.Tx, projectID, unitID, actorID string, t domain.Task) (domain.Task, error) {
	if _, err := s.EnsureUnit(ctx, tx, projectID, unitID); err != nil {
		return domain.Task{}, err
	}
	pos, err := s.Repo.NextTaskPosition(ctx, tx, projectID, unitID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("next position: %w", err)
	}
	now := s.now()
	t.ID = uuid.New().String()
	t.ProjectID = projectID
	t.UnitID = unitID
	t.Position = pos
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Work.Photos == nil {
		t.Work.Photos = []string{}
	}
	if t.Review.Photos == nil {
		t.Review.Photos = []string{}
	}
	if err := s.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if t.Contractor != "" {
		if err := s.Repo.AddContractor(ctx, tx, projectID, t.Contractor, now); err != nil {
			return domain.Task{}, fmt.Errorf("record contractor: %w", err)
		}
	}
	if err := s.Repo.TouchProject(ctx, tx, projectID, actorID, now); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// FindTask locates a task anywhere in the project and returns it with its unit id.
func (s Store) FindTask(ctx context.Context, tx *sql.Tx, projectID, taskID string) (domain.Task, string, error) {
	if _, err := s.liveProject(ctx, tx, projectID); err != nil {
		return domain.Task{}, "", err
	}
	t, err := s.Repo.GetTaskTx(ctx, tx, projectID, taskID)
	if err != nil {
		return domain.Task{}, "", err
	}
	return t, t.UnitID, nil
}

// ReplaceTask loads the task, applies mutate and writes the result back if the task's
// version is unchanged. expectedVersion of zero means the version just loaded.
// Identity fields are restored after mutate; only content changes are written.
func (s Store) ReplaceTask(ctx context.Context, tx *sql.Tx, projectID, taskID, actorID string, expectedVersion int64, mutate Mutator) (domain.Task, error) {
	current, _, err := s.FindTask(ctx, tx, projectID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if expectedVersion == 0 {
		expectedVersion = current.Version
	}
	if expectedVersion != current.Version {
		return domain.Task{}, domain.ErrVersionConflict
	}
	next, err := mutate(current)
	if err != nil {
		return domain.Task{}, err
	}
	next.ID, next.ProjectID, next.UnitID, next.Position = current.ID, current.ProjectID, current.UnitID, current.Position
	next.Contractor, next.AddedBy, next.CreatedAt = current.Contractor, current.AddedBy, current.CreatedAt
	now := s.now()
	next.UpdatedAt = now
	if err := s.Repo.UpdateTaskVersioned(ctx, tx, next, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrNotFound) {
			return domain.Task{}, err
		}
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	next.Version = expectedVersion + 1
	if err := s.Repo.TouchProject(ctx, tx, projectID, actorID, now); err != nil {
		return domain.Task{}, err
	}
	return next, nil
}
