package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sitework/internal/domain"
	"sitework/internal/engine/auth"
	"sitework/internal/events"
	"sitework/internal/notify"
	"sitework/internal/repo"
	"sitework/internal/visibility"
)

const defaultLeadStatus = "new"

type LeadCreateOptions struct {
	Name   string
	Phone  string
	Email  string
	Status string
	Actor  domain.Actor
}

func (e Engine) CreateLead(ctx context.Context, opts LeadCreateOptions) (domain.Lead, error) {
	if err := auth.Require(opts.Actor, auth.ManageLeads); err != nil {
		return domain.Lead{}, err
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Lead{}, domain.Invalid("name", "required")
	}
	status := strings.TrimSpace(opts.Status)
	if status == "" {
		status = defaultLeadStatus
	}
	now := e.stamp()
	l := domain.Lead{
		ID:        uuid.New().String(),
		Name:      name,
		Phone:     strings.TrimSpace(opts.Phone),
		Email:     strings.TrimSpace(opts.Email),
		Status:    status,
		AddedBy:   opts.Actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := e.withTx(ctx, "create lead", func(tx *sql.Tx) error {
		if err := e.Repo.InsertLead(ctx, tx, l); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.LeadCreate, "", "lead", l.ID, opts.Actor.ID, events.EventPayload{"status": l.Status})
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return l, nil
}

// ListLeads returns the live leads visible to actor, optionally narrowed by status.
func (e Engine) ListLeads(ctx context.Context, actor domain.Actor, status string) ([]domain.Lead, error) {
	if err := auth.Require(actor, auth.ManageLeads); err != nil {
		return nil, err
	}
	owners, err := e.Resolver.Resolve(ctx, actor)
	if err != nil {
		return nil, domain.Unavailable("resolve visibility", err)
	}
	leads, err := e.Repo.ListLeads(ctx, repo.LeadFilters{Owners: owners, Status: strings.TrimSpace(status)})
	if err != nil {
		return nil, domain.Unavailable("list leads", err)
	}
	return leads, nil
}

type LeadUpdateOptions struct {
	ID     string
	Name   *string
	Phone  *string
	Email  *string
	Status *string
	Actor  domain.Actor
}

// UpdateLead edits a lead the actor can see. A status change made by someone
// other than the lead's owner notifies the owner.
func (e Engine) UpdateLead(ctx context.Context, opts LeadUpdateOptions) (domain.Lead, error) {
	if err := auth.Require(opts.Actor, auth.ManageLeads); err != nil {
		return domain.Lead{}, err
	}
	if opts.Name == nil && opts.Phone == nil && opts.Email == nil && opts.Status == nil {
		return domain.Lead{}, domain.Invalid("patch", "no fields to update")
	}
	if opts.Name != nil && strings.TrimSpace(*opts.Name) == "" {
		return domain.Lead{}, domain.Invalid("name", "must not be empty")
	}
	if opts.Status != nil && strings.TrimSpace(*opts.Status) == "" {
		return domain.Lead{}, domain.Invalid("status", "must not be empty")
	}
	owners, err := e.Resolver.Resolve(ctx, opts.Actor)
	if err != nil {
		return domain.Lead{}, domain.Unavailable("resolve visibility", err)
	}
	var l domain.Lead
	var statusChanged bool
	err = e.withTx(ctx, "update lead", func(tx *sql.Tx) error {
		var err error
		if l, err = e.visibleLead(ctx, tx, opts.ID, opts.Actor, owners); err != nil {
			return err
		}
		if opts.Name != nil {
			l.Name = strings.TrimSpace(*opts.Name)
		}
		if opts.Phone != nil {
			l.Phone = strings.TrimSpace(*opts.Phone)
		}
		if opts.Email != nil {
			l.Email = strings.TrimSpace(*opts.Email)
		}
		if opts.Status != nil {
			next := strings.TrimSpace(*opts.Status)
			statusChanged = next != l.Status
			l.Status = next
		}
		l.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateLeadTx(ctx, tx, l); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.LeadUpdate, "", "lead", l.ID, opts.Actor.ID, events.EventPayload{"status": l.Status})
	})
	if err != nil {
		return domain.Lead{}, err
	}
	if statusChanged && l.AddedBy != opts.Actor.ID {
		e.queue().Enqueue(ctx, l.AddedBy, notify.TitleLeadUpdated,
			fmt.Sprintf("Lead %s is now %s.", l.Name, l.Status), opts.Actor.ID)
	}
	return l, nil
}

// DeleteLead soft-deletes a lead the actor can see.
func (e Engine) DeleteLead(ctx context.Context, id string, actor domain.Actor) error {
	if err := auth.Require(actor, auth.ManageLeads); err != nil {
		return err
	}
	owners, err := e.Resolver.Resolve(ctx, actor)
	if err != nil {
		return domain.Unavailable("resolve visibility", err)
	}
	return e.withTx(ctx, "delete lead", func(tx *sql.Tx) error {
		l, err := e.visibleLead(ctx, tx, id, actor, owners)
		if err != nil {
			return err
		}
		l.IsDeleted = true
		l.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateLeadTx(ctx, tx, l); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.LeadDelete, "", "lead", l.ID, actor.ID, nil)
	})
}

// visibleLead loads a live lead and refuses it when owners does not cover its creator.
func (e Engine) visibleLead(ctx context.Context, tx *sql.Tx, id string, actor domain.Actor, owners visibility.Filter) (domain.Lead, error) {
	l, err := e.Repo.GetLeadTx(ctx, tx, id)
	if err != nil {
		return l, err
	}
	if !owners.Match(l.AddedBy) {
		return l, auth.Deny(actor, auth.ManageLeads, "lead is outside your team")
	}
	return l, nil
}
