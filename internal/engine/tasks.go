package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitework/internal/aggregate"
	"sitework/internal/domain"
	"sitework/internal/engine/auth"
	"sitework/internal/events"
	"sitework/internal/metrics"
	"sitework/internal/notify"
	"sitework/internal/repo"
	"sitework/internal/taskstate"
	"sitework/internal/visibility"
)

// AssignTaskOptions are parameters for assigning a new task to a contractor.
// UnitID defaults to the project's own unit.
type AssignTaskOptions struct {
	ProjectID      string
	ContractorID   string
	Title          string
	Deadline       string
	Priority       string
	Description    string
	Phase          string
	QualityIssueID string
	UnitID         string
	Actor          domain.Actor
}

// UpdateOption tunes a task update.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	expectedVersion int64
}

// IfVersion makes the update fail with ErrVersionConflict unless the stored task
// is still at version v.
func IfVersion(v int64) UpdateOption {
	return func(o *updateOptions) { o.expectedVersion = v }
}

func collect(opts []UpdateOption) updateOptions {
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func parseDeadline(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.Invalid("deadline", "required")
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return s, nil
	}
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return s, nil
	}
	return "", domain.Invalid("deadline", "must be RFC3339 or YYYY-MM-DD, got %q", s)
}

// liveProjectRow loads the project row and treats soft-deleted projects as absent.
func (e Engine) liveProjectRow(ctx context.Context, tx *sql.Tx, projectID string) (domain.Project, error) {
	p, err := e.Repo.GetProjectRowTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if p.IsDeleted {
		return p, domain.ErrNotFound
	}
	return p, nil
}

func ensureSiteIncharge(actor domain.Actor, p domain.Project, action auth.Action) error {
	if actor.Role == domain.RoleSiteIncharge && p.SiteIncharge != "" && p.SiteIncharge != actor.ID {
		return auth.Deny(actor, action, "not the site incharge of this project")
	}
	return nil
}

// AssignTask appends a new task for a contractor to a unit of the project.
func (e Engine) AssignTask(ctx context.Context, opts AssignTaskOptions) (task domain.Task, err error) {
	defer func() { e.recordTask("assign", err) }()
	actor := opts.Actor
	if err := auth.Require(actor, auth.AssignTask); err != nil {
		return domain.Task{}, err
	}
	title := strings.TrimSpace(opts.Title)
	switch {
	case strings.TrimSpace(opts.ProjectID) == "":
		return domain.Task{}, domain.Invalid("project_id", "required")
	case strings.TrimSpace(opts.ContractorID) == "":
		return domain.Task{}, domain.Invalid("contractor_id", "required")
	case title == "":
		return domain.Task{}, domain.Invalid("title", "required")
	}
	deadline, err := parseDeadline(opts.Deadline)
	if err != nil {
		return domain.Task{}, err
	}
	priority := domain.PriorityMedium
	if strings.TrimSpace(opts.Priority) != "" {
		p, ok := domain.ParsePriority(opts.Priority)
		if !ok {
			return domain.Task{}, domain.Invalid("priority", "must be high, medium, low or unspecified, got %q", opts.Priority)
		}
		priority = p
	}
	if known, err := e.Repo.GetActor(ctx, opts.ContractorID); err == nil {
		if known.Role != "" && known.Role != domain.RoleContractor {
			return domain.Task{}, domain.Invalid("contractor_id", "%s is a %s, not a contractor", opts.ContractorID, known.Role)
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, domain.Unavailable("load contractor", err)
	}

	err = e.withTx(ctx, "assign task", func(tx *sql.Tx) error {
		p, err := e.liveProjectRow(ctx, tx, opts.ProjectID)
		if err != nil {
			return err
		}
		if err := ensureSiteIncharge(actor, p, auth.AssignTask); err != nil {
			return err
		}
		unitID := strings.TrimSpace(opts.UnitID)
		if unitID == "" {
			unitID = p.UnitID
		}
		if opts.QualityIssueID != "" {
			issue, err := e.Repo.GetIssueTx(ctx, tx, opts.QualityIssueID)
			if err != nil {
				return err
			}
			if issue.ProjectID != p.ID {
				return domain.Invalid("quality_issue_id", "issue %s belongs to another project", issue.ID)
			}
			issue.Contractor = opts.ContractorID
			issue.UpdatedAt = e.stamp()
			if err := e.Repo.UpdateIssueTx(ctx, tx, issue); err != nil {
				return err
			}
		}
		task, err = e.store().AppendTask(ctx, tx, p.ID, unitID, actor.ID, domain.Task{
			Title:             title,
			Description:       strings.TrimSpace(opts.Description),
			ConstructionPhase: strings.TrimSpace(opts.Phase),
			Priority:          priority,
			Deadline:          deadline,
			Contractor:        opts.ContractorID,
			AddedBy:           actor.ID,
			QualityIssueID:    opts.QualityIssueID,
			Work:              domain.ContractorTrack{Status: domain.StatusInProgress},
			Review:            domain.ReviewTrack{Status: domain.StatusPendingVerification},
		})
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.TaskAssign, p.ID, "task", task.ID, actor.ID, events.EventPayload{
			"unit_id": unitID, "contractor": task.Contractor, "priority": task.Priority, "quality_issue_id": opts.QualityIssueID,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.queue().Enqueue(ctx, task.Contractor, notify.TitleTaskAssigned,
		fmt.Sprintf("You have been assigned a new task: %s.", task.Title), actor.ID)
	return task, nil
}

// UpdateTaskAsContractor applies a contractor patch to the contractor's own task.
// A submission notifies the project's site incharge.
func (e Engine) UpdateTaskAsContractor(ctx context.Context, projectID, taskID string, actor domain.Actor, patch taskstate.ContractorPatch, opts ...UpdateOption) (task domain.Task, err error) {
	defer func() { e.recordTask("contractor_update", err) }()
	if err := auth.Require(actor, auth.UpdateWork); err != nil {
		return domain.Task{}, err
	}
	o := collect(opts)
	var p domain.Project
	err = e.withTx(ctx, "contractor update", func(tx *sql.Tx) error {
		if p, err = e.liveProjectRow(ctx, tx, projectID); err != nil {
			return err
		}
		task, err = e.store().ReplaceTask(ctx, tx, projectID, taskID, actor.ID, o.expectedVersion, func(t domain.Task) (domain.Task, error) {
			if t.Contractor != actor.ID {
				return t, auth.Deny(actor, auth.UpdateWork, "task is assigned to another contractor")
			}
			return taskstate.ApplyContractor(t, patch, e.now(), e.progressPolicy())
		})
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.TaskWorkUpdate, projectID, "task", task.ID, actor.ID, events.EventPayload{
			"status": task.Work.Status, "progress": task.Work.Progress, "submitted": patch.ShouldSubmit, "version": task.Version,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	if patch.ShouldSubmit && p.SiteIncharge != "" {
		e.queue().Enqueue(ctx, p.SiteIncharge, notify.TitleTaskSubmitted,
			"A contractor has submitted progress for a construction task.", actor.ID)
	}
	return task, nil
}

// UpdateTaskAsSiteIncharge applies a reviewer patch. A verification decision
// notifies the task's contractor.
func (e Engine) UpdateTaskAsSiteIncharge(ctx context.Context, projectID, taskID string, actor domain.Actor, patch taskstate.ReviewerPatch, opts ...UpdateOption) (task domain.Task, err error) {
	defer func() { e.recordTask("site_incharge_update", err) }()
	if err := auth.Require(actor, auth.UpdateReview); err != nil {
		return domain.Task{}, err
	}
	o := collect(opts)
	err = e.withTx(ctx, "site incharge update", func(tx *sql.Tx) error {
		p, err := e.liveProjectRow(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := ensureSiteIncharge(actor, p, auth.UpdateReview); err != nil {
			return err
		}
		task, err = e.store().ReplaceTask(ctx, tx, projectID, taskID, actor.ID, o.expectedVersion, func(t domain.Task) (domain.Task, error) {
			return taskstate.ApplyReviewer(t, patch, e.now())
		})
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.TaskReviewUpdate, projectID, "task", task.ID, actor.ID, events.EventPayload{
			"status": task.Review.Status, "approved": task.Review.Approved, "version": task.Version,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	if patch.VerificationDecision != nil {
		e.queue().Enqueue(ctx, task.Contractor, notify.TitleTaskVerified,
			fmt.Sprintf("Your task %q was marked %s by the site incharge.", task.Title, task.Review.VerificationDecision), actor.ID)
	}
	return task, nil
}

// MiniUpdateTask applies the lightweight contractor update.
func (e Engine) MiniUpdateTask(ctx context.Context, projectID, taskID string, actor domain.Actor, patch taskstate.MiniPatch, opts ...UpdateOption) (task domain.Task, err error) {
	defer func() { e.recordTask("mini_update", err) }()
	if err := auth.Require(actor, auth.MiniUpdate); err != nil {
		return domain.Task{}, err
	}
	o := collect(opts)
	err = e.withTx(ctx, "mini update", func(tx *sql.Tx) error {
		if _, err := e.liveProjectRow(ctx, tx, projectID); err != nil {
			return err
		}
		task, err = e.store().ReplaceTask(ctx, tx, projectID, taskID, actor.ID, o.expectedVersion, func(t domain.Task) (domain.Task, error) {
			if t.Contractor != actor.ID {
				return t, auth.Deny(actor, auth.MiniUpdate, "task is assigned to another contractor")
			}
			return taskstate.ApplyMini(t, patch, e.progressPolicy())
		})
		if err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.TaskMiniUpdate, projectID, "task", task.ID, actor.ID, events.EventPayload{
			"status": task.Work.Status, "progress": task.Work.Progress, "approved": task.Work.Approved, "version": task.Version,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// projectsInScope loads the live projects relevant to actor's task view.
func (e Engine) projectsInScope(ctx context.Context, actor domain.Actor) ([]domain.Project, error) {
	f := repo.ProjectFilters{}
	switch actor.Role {
	case domain.RoleSiteIncharge:
		f.SiteIncharge = actor.ID
	case domain.RoleContractor:
		f.Contractor = actor.ID
	}
	projects, err := e.Repo.ListProjects(ctx, f)
	if err != nil {
		return nil, domain.Unavailable("list projects", err)
	}
	return projects, nil
}

// ListTasksForActor flattens every task the actor may see, highest priority first.
func (e Engine) ListTasksForActor(ctx context.Context, actor domain.Actor) ([]aggregate.TaskView, error) {
	if err := auth.Require(actor, auth.ListTasks); err != nil {
		return nil, err
	}
	start := e.now()
	projects, err := e.projectsInScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	owners := visibility.All()
	switch actor.Role {
	case domain.RoleSiteIncharge, domain.RoleContractor, domain.RoleOwner, domain.RoleAdmin, domain.RoleCustomerPurchased:
	default:
		if owners, err = e.Resolver.Resolve(ctx, actor); err != nil {
			return nil, domain.Unavailable("resolve visibility", err)
		}
	}
	names, err := e.contractorNames(ctx, projects)
	if err != nil {
		return nil, err
	}
	views := aggregate.Flatten(projects, aggregate.Scope{Actor: actor, Owners: owners, Names: names})
	if views == nil {
		views = []aggregate.TaskView{}
	}
	metrics.TaskListLatency.WithLabelValues(string(actor.Role)).Observe(e.now().Sub(start).Seconds())
	return views, nil
}

// GetUnitProgress rolls up the tasks of one unit. A location with no project yields zeroes.
func (e Engine) GetUnitProgress(ctx context.Context, buildingID, floorUnitID, unitID string) (aggregate.UnitProgress, error) {
	out := aggregate.UnitProgress{BuildingID: buildingID, FloorUnitID: floorUnitID, UnitID: unitID}
	if buildingID == "" || floorUnitID == "" || unitID == "" {
		return out, domain.Invalid("location", "building, floor unit and unit are required")
	}
	p, err := e.Repo.FindProjectByLocation(ctx, buildingID, floorUnitID, unitID)
	if errors.Is(err, repo.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return out, domain.Unavailable("find project", err)
	}
	out.TotalTasks, out.OverallProgress = aggregate.Progress(p.Units[unitID])
	return out, nil
}

// CompletedTasksForUnit lists tasks the contractor completed and the site incharge approved.
// An unknown or deleted project yields an empty list.
func (e Engine) CompletedTasksForUnit(ctx context.Context, projectID, unitID string, actor domain.Actor) ([]domain.Task, error) {
	if err := auth.Require(actor, auth.ViewUnitProgress); err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && p.IsDeleted) {
		return []domain.Task{}, nil
	}
	if err != nil {
		return nil, domain.Unavailable("load project", err)
	}
	tasks, err := e.Repo.UnitTasks(ctx, projectID, unitID)
	if err != nil {
		return nil, domain.Unavailable("unit tasks", err)
	}
	done := aggregate.CompletedInUnit(tasks)
	if done == nil {
		done = []domain.Task{}
	}
	return done, nil
}

// ContractorsForSiteIncharge summarizes each contractor across the site incharge's projects.
func (e Engine) ContractorsForSiteIncharge(ctx context.Context, actor domain.Actor) ([]aggregate.ContractorSummary, error) {
	if err := auth.Require(actor, auth.ReviewContractors); err != nil {
		return nil, err
	}
	projects, err := e.projectsInScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	names, err := e.contractorNames(ctx, projects)
	if err != nil {
		return nil, err
	}
	out := aggregate.ContractorSummaries(projects, names)
	if out == nil {
		out = []aggregate.ContractorSummary{}
	}
	return out, nil
}

// ContractorTasksForSiteIncharge lists one contractor's tasks within the site incharge's projects.
func (e Engine) ContractorTasksForSiteIncharge(ctx context.Context, actor domain.Actor, contractorID string) ([]aggregate.TaskView, error) {
	if err := auth.Require(actor, auth.ReviewContractors); err != nil {
		return nil, err
	}
	if strings.TrimSpace(contractorID) == "" {
		return nil, domain.Invalid("contractor_id", "required")
	}
	projects, err := e.projectsInScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	names, err := e.contractorNames(ctx, projects)
	if err != nil {
		return nil, err
	}
	out := aggregate.ContractorTasks(projects, contractorID, names)
	if out == nil {
		out = []aggregate.TaskView{}
	}
	return out, nil
}
