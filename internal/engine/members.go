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
	"sitework/internal/repo"
)

// AddTeamLead places a team lead under a sales manager.
func (e Engine) AddTeamLead(ctx context.Context, teamLeadID, salesManagerID string, actor domain.Actor) (domain.Membership, error) {
	return e.addMembership(ctx, domain.RoleTeamLead, teamLeadID, salesManagerID, actor)
}

// AddAgent places an agent under a team lead.
func (e Engine) AddAgent(ctx context.Context, agentID, teamLeadID string, actor domain.Actor) (domain.Membership, error) {
	return e.addMembership(ctx, domain.RoleAgent, agentID, teamLeadID, actor)
}

// addMembership adds an edge. A member has at most one live manager per kind.
func (e Engine) addMembership(ctx context.Context, kind domain.Role, memberID, managerID string, actor domain.Actor) (domain.Membership, error) {
	if err := auth.Require(actor, auth.ManageMembers); err != nil {
		return domain.Membership{}, err
	}
	memberID, managerID = strings.TrimSpace(memberID), strings.TrimSpace(managerID)
	switch {
	case memberID == "":
		return domain.Membership{}, domain.Invalid("member_id", "required")
	case managerID == "":
		return domain.Membership{}, domain.Invalid("manager_id", "required")
	case memberID == managerID:
		return domain.Membership{}, domain.Invalid("manager_id", "a member cannot manage itself")
	}
	m := domain.Membership{
		ID:        uuid.New().String(),
		Kind:      kind,
		MemberID:  memberID,
		ManagerID: managerID,
		CreatedAt: e.stamp(),
	}
	err := e.withTx(ctx, "add membership", func(tx *sql.Tx) error {
		existing, err := e.Repo.LiveMembershipTx(ctx, tx, kind, memberID)
		switch {
		case err == nil:
			return domain.Invalid("member_id", "%s already reports to %s", memberID, existing.ManagerID)
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		if err := e.Repo.InsertMembership(ctx, tx, m); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.MembershipAdd, "", "membership", m.ID, actor.ID, events.EventPayload{
			"kind": kind, "member_id": memberID, "manager_id": managerID,
		})
	})
	if err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

// RemoveMembership soft-deletes an edge; visibility through it ends immediately.
func (e Engine) RemoveMembership(ctx context.Context, id string, actor domain.Actor) error {
	if err := auth.Require(actor, auth.ManageMembers); err != nil {
		return err
	}
	return e.withTx(ctx, "remove membership", func(tx *sql.Tx) error {
		if err := e.Repo.DeleteMembership(ctx, tx, id); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.MembershipRemove, "", "membership", id, actor.ID, nil)
	})
}

func (e Engine) ListMemberships(ctx context.Context, managerID string, includeDeleted bool, actor domain.Actor) ([]domain.Membership, error) {
	if err := auth.Require(actor, auth.ManageMembers); err != nil {
		return nil, err
	}
	ms, err := e.Repo.ListMemberships(ctx, managerID, includeDeleted)
	if err != nil {
		return nil, domain.Unavailable("list memberships", err)
	}
	if ms == nil {
		ms = []domain.Membership{}
	}
	return ms, nil
}
