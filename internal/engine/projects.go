package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"sitework/internal/domain"
	"sitework/internal/engine/auth"
	"sitework/internal/events"
)

type ProjectCreateOptions struct {
	Name         string
	BuildingID   string
	FloorUnitID  string
	UnitID       string
	SiteIncharge string
	Contractors  []string
	Actor        domain.Actor
}

// CreateProject registers a building/floor/unit combination and its empty unit.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if err := auth.Require(opts.Actor, auth.CreateProject); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(opts.Name),
		BuildingID:   strings.TrimSpace(opts.BuildingID),
		FloorUnitID:  strings.TrimSpace(opts.FloorUnitID),
		UnitID:       strings.TrimSpace(opts.UnitID),
		SiteIncharge: strings.TrimSpace(opts.SiteIncharge),
		CreatedBy:    opts.Actor.ID,
		UpdatedBy:    opts.Actor.ID,
	}
	switch {
	case p.BuildingID == "":
		return domain.Project{}, domain.Invalid("building_id", "required")
	case p.FloorUnitID == "":
		return domain.Project{}, domain.Invalid("floor_unit_id", "required")
	case p.UnitID == "":
		return domain.Project{}, domain.Invalid("unit_id", "required")
	}
	for _, c := range opts.Contractors {
		if c = strings.TrimSpace(c); c != "" && !p.HasContractor(c) {
			p.Contractors = append(p.Contractors, c)
		}
	}
	now := e.stamp()
	p.CreatedAt, p.UpdatedAt = now, now
	err := e.withTx(ctx, "create project", func(tx *sql.Tx) error {
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return err
		}
		if _, err := e.store().EnsureUnit(ctx, tx, p.ID, p.UnitID); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.ProjectCreate, p.ID, "project", p.ID, opts.Actor.ID, events.EventPayload{
			"building_id": p.BuildingID, "floor_unit_id": p.FloorUnitID, "unit_id": p.UnitID, "site_incharge": p.SiteIncharge,
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.GetProject(ctx, p.ID)
}

// GetProject returns the full project with units and tasks.
func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, domain.Unavailable("load project", err)
	}
	return p, nil
}

// ProjectForActor returns the project if the actor's role may see it.
func (e Engine) ProjectForActor(ctx context.Context, id string, actor domain.Actor) (domain.Project, error) {
	if err := auth.Require(actor, auth.ListProjects); err != nil {
		return domain.Project{}, err
	}
	p, err := e.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if !projectVisible(p, actor) {
		return domain.Project{}, domain.ErrNotFound
	}
	return p, nil
}

func projectVisible(p domain.Project, actor domain.Actor) bool {
	if p.IsDeleted {
		return false
	}
	switch actor.Role {
	case domain.RoleSiteIncharge:
		return p.SiteIncharge == actor.ID
	case domain.RoleContractor:
		return p.HasContractor(actor.ID)
	default:
		return true
	}
}

// ListProjectsForActor returns the live projects the actor's role covers. Roles
// outside the project hierarchy are refused.
func (e Engine) ListProjectsForActor(ctx context.Context, actor domain.Actor) ([]domain.Project, error) {
	if err := auth.Require(actor, auth.ListProjects); err != nil {
		var fe auth.ForbiddenError
		if errors.As(err, &fe) {
			return nil, auth.Deny(actor, auth.ListProjects, "unsupported role")
		}
		return nil, err
	}
	projects, err := e.projectsInScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return projects, nil
}

type ProjectUpdateOptions struct {
	ID           string
	Name         *string
	SiteIncharge *string
	Actor        domain.Actor
}

// UpdateProject renames a project or moves it to another site incharge.
func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	if err := auth.Require(opts.Actor, auth.CreateProject); err != nil {
		return domain.Project{}, err
	}
	if opts.Name == nil && opts.SiteIncharge == nil {
		return domain.Project{}, domain.Invalid("patch", "no fields to update")
	}
	err := e.withTx(ctx, "update project", func(tx *sql.Tx) error {
		p, err := e.liveProjectRow(ctx, tx, opts.ID)
		if err != nil {
			return err
		}
		payload := events.EventPayload{}
		if opts.Name != nil {
			p.Name = strings.TrimSpace(*opts.Name)
			payload["name"] = p.Name
		}
		if opts.SiteIncharge != nil {
			p.SiteIncharge = strings.TrimSpace(*opts.SiteIncharge)
			payload["site_incharge"] = p.SiteIncharge
		}
		if err := e.Repo.UpdateProjectTx(ctx, tx, p, opts.Actor.ID, e.stamp()); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.ProjectUpdate, p.ID, "project", p.ID, opts.Actor.ID, payload)
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.GetProject(ctx, opts.ID)
}

// AddProjectContractor records a contractor on the project without assigning work.
func (e Engine) AddProjectContractor(ctx context.Context, projectID, contractorID string, actor domain.Actor) (domain.Project, error) {
	if err := auth.Require(actor, auth.AssignTask); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(contractorID) == "" {
		return domain.Project{}, domain.Invalid("contractor_id", "required")
	}
	err := e.withTx(ctx, "add contractor", func(tx *sql.Tx) error {
		p, err := e.liveProjectRow(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := ensureSiteIncharge(actor, p, auth.AssignTask); err != nil {
			return err
		}
		now := e.stamp()
		if err := e.Repo.AddContractor(ctx, tx, projectID, contractorID, now); err != nil {
			return err
		}
		if err := e.Repo.TouchProject(ctx, tx, projectID, actor.ID, now); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.ProjectContractor, projectID, "project", projectID, actor.ID, events.EventPayload{"contractor": contractorID})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.GetProject(ctx, projectID)
}

// DeleteProject soft-deletes the project; its tasks stay for audit.
func (e Engine) DeleteProject(ctx context.Context, id string, actor domain.Actor) error {
	if err := auth.Require(actor, auth.DeleteProject); err != nil {
		return err
	}
	return e.withTx(ctx, "delete project", func(tx *sql.Tx) error {
		if err := e.Repo.SoftDeleteProject(ctx, tx, id, actor.ID, e.stamp()); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.ProjectDelete, id, "project", id, actor.ID, nil)
	})
}
