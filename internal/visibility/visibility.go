// Package visibility decides which ownable records an actor may see or mutate.
//
// An ownable record is anything carrying an "added by" identity: leads, tasks,
// quality issues. The resolver turns an actor into a Filter using the
// organizational membership graph; the same Filter is applied in memory with
// Match or pushed down to SQL with SQL.
package visibility

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sitework/internal/domain"
)

// Policy selects how sales managers are scoped.
type Policy string

const (
	// PolicyUnrestricted lets sales managers see everything, like admins.
	PolicyUnrestricted Policy = "unrestricted"
	// PolicyTwoHop scopes a sales manager to their team leads and the agents under them.
	PolicyTwoHop Policy = "two_hop"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyUnrestricted || p == PolicyTwoHop
}

// Graph is the read-only membership graph. Implementations must skip deleted edges.
type Graph interface {
	AgentsOf(ctx context.Context, teamLeadID string) ([]string, error)
	TeamLeadsOf(ctx context.Context, salesManagerID string) ([]string, error)
}

// Filter is a predicate over owner identities.
type Filter struct {
	all    bool
	owners map[string]struct{}
}

// All matches every owner.
func All() Filter { return Filter{all: true} }

// Owners matches exactly the given identities. Empty identities are dropped.
func Owners(ids ...string) Filter {
	f := Filter{owners: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			f.owners[id] = struct{}{}
		}
	}
	return f
}

// Unrestricted reports whether the filter matches every owner.
func (f Filter) Unrestricted() bool { return f.all }

// Match reports whether owner passes the filter.
func (f Filter) Match(owner string) bool {
	if f.all {
		return true
	}
	_, ok := f.owners[owner]
	return ok
}

// IDs returns the matched identities in sorted order; nil when unrestricted.
func (f Filter) IDs() []string {
	if f.all {
		return nil
	}
	ids := make([]string, 0, len(f.owners))
	for id := range f.owners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SQL renders the filter as a WHERE fragment on column.
func (f Filter) SQL(column string) (string, []any) {
	if f.all {
		return "1=1", nil
	}
	ids := f.IDs()
	if len(ids) == 0 {
		return "1=0", nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")), args
}

// Resolver computes the owners whose records an actor may see.
type Resolver struct {
	Graph  Graph
	Policy Policy
}

// Resolve builds the filter for actor. Unknown roles see only their own records.
func (r Resolver) Resolve(ctx context.Context, actor domain.Actor) (Filter, error) {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleOwner:
		return All(), nil
	case domain.RoleSalesManager:
		if r.Policy != PolicyTwoHop {
			return All(), nil
		}
		return r.salesManagerScope(ctx, actor.ID)
	case domain.RoleTeamLead:
		if actor.ID == "" {
			return Owners(), nil
		}
		agents, err := r.agents(ctx, actor.ID)
		if err != nil {
			return Filter{}, err
		}
		return Owners(append([]string{actor.ID}, agents...)...), nil
	default:
		return Owners(actor.ID), nil
	}
}

func (r Resolver) salesManagerScope(ctx context.Context, managerID string) (Filter, error) {
	if managerID == "" {
		return Owners(), nil
	}
	if r.Graph == nil {
		return Owners(managerID), nil
	}
	leads, err := r.Graph.TeamLeadsOf(ctx, managerID)
	if err != nil {
		return Filter{}, fmt.Errorf("team leads of %s: %w", managerID, err)
	}
	ids := append([]string{managerID}, leads...)
	for _, lead := range leads {
		agents, err := r.agents(ctx, lead)
		if err != nil {
			return Filter{}, err
		}
		ids = append(ids, agents...)
	}
	return Owners(ids...), nil
}

func (r Resolver) agents(ctx context.Context, teamLeadID string) ([]string, error) {
	if r.Graph == nil {
		return nil, nil
	}
	agents, err := r.Graph.AgentsOf(ctx, teamLeadID)
	if err != nil {
		return nil, fmt.Errorf("agents of %s: %w", teamLeadID, err)
	}
	return agents, nil
}
