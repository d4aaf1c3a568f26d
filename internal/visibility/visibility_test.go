package visibility

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitework/internal/domain"
)

type edge struct {
	member, manager string
	deleted         bool
}

type fakeGraph struct {
	teamLeads []edge
	agents    []edge
	calls     int
	err       error
}

func (g *fakeGraph) live(edges []edge, manager string) []string {
	var out []string
	for _, e := range edges {
		if e.manager == manager && !e.deleted {
			out = append(out, e.member)
		}
	}
	return out
}

func (g *fakeGraph) AgentsOf(_ context.Context, teamLeadID string) ([]string, error) {
	g.calls++
	return g.live(g.agents, teamLeadID), g.err
}

func (g *fakeGraph) TeamLeadsOf(_ context.Context, salesManagerID string) ([]string, error) {
	g.calls++
	return g.live(g.teamLeads, salesManagerID), g.err
}

func newGraph() *fakeGraph {
	return &fakeGraph{
		teamLeads: []edge{{member: "tl1", manager: "sm1"}, {member: "tl2", manager: "sm1"}, {member: "tl3", manager: "sm2"}},
		agents: []edge{
			{member: "ag1", manager: "tl1"},
			{member: "ag2", manager: "tl1"},
			{member: "ag3", manager: "tl2"},
			{member: "ag4", manager: "tl3"},
		},
	}
}

func TestUnrestrictedRoles(t *testing.T) {
	r := Resolver{Graph: newGraph(), Policy: PolicyUnrestricted}
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleOwner, domain.RoleSalesManager} {
		f, err := r.Resolve(context.Background(), domain.Actor{ID: "x", Role: role})
		require.NoError(t, err)
		assert.True(t, f.Unrestricted(), string(role))
		assert.True(t, f.Match("anyone"))
	}
}

func TestAgentSeesOnlyOwnRecords(t *testing.T) {
	r := Resolver{Graph: newGraph()}
	f, err := r.Resolve(context.Background(), domain.Actor{ID: "ag1", Role: domain.RoleAgent})
	require.NoError(t, err)
	assert.True(t, f.Match("ag1"))
	assert.False(t, f.Match("ag2"))
	assert.False(t, f.Match("tl1"))
}

func TestUnknownRoleDefaultsToSelf(t *testing.T) {
	g := newGraph()
	r := Resolver{Graph: g}
	f, err := r.Resolve(context.Background(), domain.Actor{ID: "acc1", Role: domain.Role("accountant")})
	require.NoError(t, err)
	assert.Equal(t, []string{"acc1"}, f.IDs())
	assert.Zero(t, g.calls, "self-only roles never consult the graph")

	f, err = r.Resolve(context.Background(), domain.Actor{Role: domain.Role("mystery")})
	require.NoError(t, err)
	assert.False(t, f.Match(""), "anonymous actors match nothing")
}

func TestTeamLeadSeesSelfAndLiveAgents(t *testing.T) {
	g := newGraph()
	r := Resolver{Graph: g}
	actor := domain.Actor{ID: "tl1", Role: domain.RoleTeamLead}

	f, err := r.Resolve(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, []string{"ag1", "ag2", "tl1"}, f.IDs())
	assert.False(t, f.Match("ag3"))

	g.agents[1].deleted = true
	f, err = r.Resolve(context.Background(), actor)
	require.NoError(t, err)
	assert.False(t, f.Match("ag2"), "access ends when the membership edge is deleted")
	assert.True(t, f.Match("ag1"))
}

func TestTwoHopSalesManager(t *testing.T) {
	r := Resolver{Graph: newGraph(), Policy: PolicyTwoHop}
	f, err := r.Resolve(context.Background(), domain.Actor{ID: "sm1", Role: domain.RoleSalesManager})
	require.NoError(t, err)
	assert.False(t, f.Unrestricted())
	assert.Equal(t, []string{"ag1", "ag2", "ag3", "sm1", "tl1", "tl2"}, f.IDs())
	assert.False(t, f.Match("ag4"))
}

func TestGraphErrorsPropagate(t *testing.T) {
	g := newGraph()
	g.err = errors.New("db down")
	_, err := Resolver{Graph: g}.Resolve(context.Background(), domain.Actor{ID: "tl1", Role: domain.RoleTeamLead})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestFilterSQL(t *testing.T) {
	clause, args := All().SQL("added_by")
	assert.Equal(t, "1=1", clause)
	assert.Empty(t, args)

	clause, args = Owners().SQL("added_by")
	assert.Equal(t, "1=0", clause)
	assert.Empty(t, args)

	clause, args = Owners("b", "a").SQL("added_by")
	assert.Equal(t, "added_by IN (?,?)", clause)
	assert.Equal(t, []any{"a", "b"}, args)
}
