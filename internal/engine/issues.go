package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"sitework/internal/domain"
	"sitework/internal/engine/auth"
	"sitework/internal/events"
	"sitework/internal/repo"
)

type IssueCreateOptions struct {
	ProjectID   string
	Contractor  string
	Title       string
	Description string
	Actor       domain.Actor
}

// CreateIssue opens a quality issue on a project.
func (e Engine) CreateIssue(ctx context.Context, opts IssueCreateOptions) (domain.QualityIssue, error) {
	if err := auth.Require(opts.Actor, auth.CreateIssue); err != nil {
		return domain.QualityIssue{}, err
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.QualityIssue{}, domain.Invalid("title", "required")
	}
	if strings.TrimSpace(opts.ProjectID) == "" {
		return domain.QualityIssue{}, domain.Invalid("project_id", "required")
	}
	now := e.stamp()
	issue := domain.QualityIssue{
		ID:          uuid.New().String(),
		ProjectID:   opts.ProjectID,
		Contractor:  strings.TrimSpace(opts.Contractor),
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Status:      domain.IssueOpen,
		CreatedBy:   opts.Actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.withTx(ctx, "create issue", func(tx *sql.Tx) error {
		p, err := e.liveProjectRow(ctx, tx, opts.ProjectID)
		if err != nil {
			return err
		}
		if err := ensureSiteIncharge(opts.Actor, p, auth.CreateIssue); err != nil {
			return err
		}
		if err := e.Repo.InsertIssue(ctx, tx, issue); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.IssueCreate, p.ID, "quality_issue", issue.ID, opts.Actor.ID, events.EventPayload{"contractor": issue.Contractor})
	})
	if err != nil {
		return domain.QualityIssue{}, err
	}
	return issue, nil
}

// ListIssues returns issues scoped by role: management sees all, a site incharge
// sees what they raised, a contractor sees what is assigned to them.
func (e Engine) ListIssues(ctx context.Context, actor domain.Actor, projectID string, status domain.IssueStatus) ([]domain.QualityIssue, error) {
	if err := auth.Require(actor, auth.ListIssues); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, domain.Invalid("status", "must be open, under_review or resolved")
	}
	f := repo.IssueFilters{ProjectID: projectID, Status: status}
	switch actor.Role {
	case domain.RoleSiteIncharge:
		f.CreatedBy = actor.ID
	case domain.RoleContractor:
		f.Contractor = actor.ID
	}
	issues, err := e.Repo.ListIssues(ctx, f)
	if err != nil {
		return nil, domain.Unavailable("list issues", err)
	}
	return issues, nil
}

// UpdateIssueStatus moves an issue between open, under_review and resolved.
func (e Engine) UpdateIssueStatus(ctx context.Context, id string, status domain.IssueStatus, actor domain.Actor) (domain.QualityIssue, error) {
	if err := auth.Require(actor, auth.UpdateIssue); err != nil {
		return domain.QualityIssue{}, err
	}
	if !status.Valid() {
		return domain.QualityIssue{}, domain.Invalid("status", "must be open, under_review or resolved")
	}
	var issue domain.QualityIssue
	err := e.withTx(ctx, "update issue", func(tx *sql.Tx) error {
		var err error
		if issue, err = e.Repo.GetIssueTx(ctx, tx, id); err != nil {
			return err
		}
		if actor.Role == domain.RoleSiteIncharge && issue.CreatedBy != actor.ID {
			return auth.Deny(actor, auth.UpdateIssue, "issue was raised by someone else")
		}
		from := issue.Status
		issue.Status = status
		issue.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateIssueTx(ctx, tx, issue); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.IssueStatus, issue.ProjectID, "quality_issue", issue.ID, actor.ID, events.EventPayload{"from": from, "to": status})
	})
	if err != nil {
		return domain.QualityIssue{}, err
	}
	return issue, nil
}
