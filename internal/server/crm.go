package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sitework/internal/domain"
	"sitework/internal/engine"
)

func registerLeads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-lead",
		Method:        http.MethodPost,
		Path:          "/leads",
		Summary:       "Create lead",
		Tags:          []string{"leads"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateLeadRequest `json:"body"`
	}) (*body[domain.Lead], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.CreateLead(ctx, engine.LeadCreateOptions{
			Name:   input.Body.Name,
			Phone:  input.Body.Phone,
			Email:  input.Body.Email,
			Status: input.Body.Status,
			Actor:  actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-leads",
		Method:      http.MethodGet,
		Path:        "/leads",
		Summary:     "Leads visible to the caller through the team hierarchy",
		Tags:        []string{"leads"},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*body[[]domain.Lead], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		leads, err := e.ListLeads(ctx, actor, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(leads), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-lead",
		Method:      http.MethodPatch,
		Path:        "/leads/{lead_id}",
		Summary:     "Update lead",
		Tags:        []string{"leads"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LeadID string            `path:"lead_id"`
		Body   UpdateLeadRequest `json:"body"`
	}) (*body[domain.Lead], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.UpdateLead(ctx, engine.LeadUpdateOptions{
			ID:     input.LeadID,
			Name:   input.Body.Name,
			Phone:  input.Body.Phone,
			Email:  input.Body.Email,
			Status: input.Body.Status,
			Actor:  actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-lead",
		Method:        http.MethodDelete,
		Path:          "/leads/{lead_id}",
		Summary:       "Soft-delete lead",
		Tags:          []string{"leads"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteLead(ctx, input.LeadID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerIssues(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/issues",
		Summary:       "Raise a quality issue",
		Tags:          []string{"issues"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateIssueRequest `json:"body"`
	}) (*body[domain.QualityIssue], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := e.CreateIssue(ctx, engine.IssueCreateOptions{
			ProjectID:   input.ProjectID,
			Contractor:  input.Body.Contractor,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Actor:       actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(issue), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "Quality issues scoped to the caller's role",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Status    string `query:"status" doc:"open, under_review or resolved"`
	}) (*body[[]domain.QualityIssue], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issues, err := e.ListIssues(ctx, actor, input.ProjectID, domain.IssueStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(issues), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue-status",
		Method:      http.MethodPatch,
		Path:        "/issues/{issue_id}/status",
		Summary:     "Move a quality issue to another status",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string             `path:"issue_id"`
		Body    IssueStatusRequest `json:"body"`
	}) (*body[domain.QualityIssue], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := e.UpdateIssueStatus(ctx, input.IssueID, input.Body.Status, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(issue), nil
	})
}

func registerMemberships(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-membership",
		Method:        http.MethodPost,
		Path:          "/memberships",
		Summary:       "Place a team lead under a sales manager or an agent under a team lead",
		Tags:          []string{"memberships"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateMembershipRequest `json:"body"`
	}) (*body[domain.Membership], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			m   domain.Membership
			err error
		)
		switch input.Body.Kind {
		case domain.RoleTeamLead:
			m, err = e.AddTeamLead(ctx, input.Body.MemberID, input.Body.ManagerID, actor)
		case domain.RoleAgent:
			m, err = e.AddAgent(ctx, input.Body.MemberID, input.Body.ManagerID, actor)
		default:
			return nil, newAPIError(http.StatusBadRequest, "invalid_input", "kind must be team_lead or agent", map[string]any{"field": "kind"})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-memberships",
		Method:      http.MethodGet,
		Path:        "/memberships",
		Summary:     "List membership edges",
		Tags:        []string{"memberships"},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ManagerID      string `query:"manager_id"`
		IncludeDeleted bool   `query:"include_deleted"`
	}) (*body[[]domain.Membership], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ms, err := e.ListMemberships(ctx, input.ManagerID, input.IncludeDeleted, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ms), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-membership",
		Method:        http.MethodDelete,
		Path:          "/memberships/{membership_id}",
		Summary:       "Remove a membership edge",
		Tags:          []string{"memberships"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MembershipID string `path:"membership_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMembership(ctx, input.MembershipID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
