package auth

import (
	"errors"
	"fmt"

	"sitework/internal/domain"
)

// ErrUnauthenticated is returned when an operation is attempted without an actor.
var ErrUnauthenticated = errors.New("actor required")

// ForbiddenError indicates the actor's role may not perform the action.
type ForbiddenError struct {
	Role   domain.Role
	Action Action
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("role %q may not %s: %s", e.Role, e.Action, e.Reason)
	}
	return fmt.Sprintf("role %q may not %s", e.Role, e.Action)
}

type Action string

const (
	AssignTask        Action = "task.assign"
	UpdateWork        Action = "task.update_work"
	UpdateReview      Action = "task.update_review"
	MiniUpdate        Action = "task.mini_update"
	ListTasks         Action = "task.list"
	ViewUnitProgress  Action = "unit.progress"
	ReviewContractors Action = "contractor.review"
	CreateProject     Action = "project.create"
	DeleteProject     Action = "project.delete"
	ListProjects      Action = "project.list"
	ManageLeads       Action = "lead.manage"
	CreateIssue       Action = "issue.create"
	UpdateIssue       Action = "issue.update"
	ListIssues        Action = "issue.list"
	ManageMembers     Action = "membership.manage"
	ViewAudit         Action = "audit.view"
	ManageKeys        Action = "api_key.manage"
)

var (
	management = []domain.Role{domain.RoleAdmin, domain.RoleOwner}
	sales      = []domain.Role{domain.RoleAdmin, domain.RoleOwner, domain.RoleSalesManager, domain.RoleTeamLead, domain.RoleAgent}
)

// policy lists the roles allowed per action. A nil entry admits every role.
var policy = map[Action][]domain.Role{
	AssignTask:        {domain.RoleAdmin, domain.RoleOwner, domain.RoleSiteIncharge},
	UpdateWork:        {domain.RoleContractor},
	UpdateReview:      {domain.RoleSiteIncharge},
	MiniUpdate:        {domain.RoleContractor},
	ListTasks:         nil,
	ViewUnitProgress:  nil,
	ReviewContractors: {domain.RoleSiteIncharge, domain.RoleAccountant},
	CreateProject:     management,
	DeleteProject:     management,
	ListProjects: {domain.RoleAdmin, domain.RoleOwner, domain.RoleAccountant, domain.RoleCustomerPurchased,
		domain.RoleSiteIncharge, domain.RoleContractor},
	ManageLeads:   sales,
	CreateIssue:   {domain.RoleAdmin, domain.RoleSiteIncharge},
	UpdateIssue:   {domain.RoleAdmin, domain.RoleOwner, domain.RoleSiteIncharge},
	ListIssues:    {domain.RoleAdmin, domain.RoleOwner, domain.RoleSiteIncharge, domain.RoleContractor},
	ManageMembers: management,
	ViewAudit:     management,
	ManageKeys:    management,
}

// Allowed reports whether role may perform action. Unknown actions are denied.
func Allowed(role domain.Role, action Action) bool {
	roles, ok := policy[action]
	if !ok {
		return false
	}
	if roles == nil {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Require returns ErrUnauthenticated for an anonymous actor and ForbiddenError when
// the role is not allowed.
func Require(actor domain.Actor, action Action) error {
	if actor.ID == "" {
		return ErrUnauthenticated
	}
	if !Allowed(actor.Role, action) {
		return ForbiddenError{Role: actor.Role, Action: action}
	}
	return nil
}

// Deny builds a ForbiddenError for a record-level refusal.
func Deny(actor domain.Actor, action Action, reason string) error {
	return ForbiddenError{Role: actor.Role, Action: action, Reason: reason}
}

// KnownRole reports whether r is one of the defined roles.
func KnownRole(r domain.Role) bool {
	switch r {
	case domain.RoleAdmin, domain.RoleOwner, domain.RoleSalesManager, domain.RoleTeamLead, domain.RoleAgent,
		domain.RoleSiteIncharge, domain.RoleContractor, domain.RoleAccountant, domain.RoleCustomerPurchased:
		return true
	}
	return false
}
