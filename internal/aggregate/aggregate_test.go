package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitework/internal/domain"
	"sitework/internal/visibility"
)

func ids(views []TaskView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Task.ID
	}
	return out
}

func TestPrioritySortIsStableAndDescending(t *testing.T) {
	views := []TaskView{
		{Task: domain.Task{ID: "1", Priority: domain.PriorityLow}},
		{Task: domain.Task{ID: "2", Priority: domain.PriorityHigh}},
		{Task: domain.Task{ID: "3", Priority: domain.PriorityMedium}},
	}
	SortByPriority(views)
	assert.Equal(t, []string{"2", "3", "1"}, ids(views))

	ties := []TaskView{
		{Task: domain.Task{ID: "a", Priority: domain.PriorityMedium}},
		{Task: domain.Task{ID: "b"}},
		{Task: domain.Task{ID: "c", Priority: domain.PriorityMedium}},
		{Task: domain.Task{ID: "d", Priority: domain.PriorityUnspecified}},
		{Task: domain.Task{ID: "e", Priority: domain.PriorityHigh}},
	}
	SortByPriority(ties)
	assert.Equal(t, []string{"e", "a", "c", "b", "d"}, ids(ties))
}

func TestProgressRollup(t *testing.T) {
	total, overall := Progress([]domain.Task{
		{Work: domain.ContractorTrack{Progress: 20}},
		{Work: domain.ContractorTrack{Progress: 60}},
		{Work: domain.ContractorTrack{Progress: 100}},
	})
	assert.Equal(t, 3, total)
	assert.Equal(t, 60, overall)

	total, overall = Progress(nil)
	assert.Zero(t, total)
	assert.Zero(t, overall)

	_, overall = Progress([]domain.Task{{Work: domain.ContractorTrack{Progress: 50}}, {Work: domain.ContractorTrack{Progress: 51}}})
	assert.Equal(t, 51, overall, "half rounds up")
}

func fixtureProjects() []domain.Project {
	return []domain.Project{{
		ID:           "p1",
		Name:         "Tower A",
		BuildingID:   "b1",
		FloorUnitID:  "f1",
		UnitID:       "u1",
		SiteIncharge: "si1",
		Contractors:  []string{"c1", "c2"},
		Units: map[string][]domain.Task{
			"u2": {
				{ID: "t3", Contractor: "c1", AddedBy: "ag1", Priority: domain.PriorityHigh,
					Work: domain.ContractorTrack{Status: "completed", Approved: true, Progress: 100}},
			},
			"u1": {
				{ID: "t1", Contractor: "c1", AddedBy: "si1", Priority: domain.PriorityLow,
					Work: domain.ContractorTrack{Status: "completed", Approved: true, Progress: 90}},
				{ID: "t2", Contractor: "c2", AddedBy: "ag2", Priority: domain.PriorityMedium,
					Work:   domain.ContractorTrack{Status: "completed", Approved: true, Progress: 100},
					Review: domain.ReviewTrack{Status: "approved", Approved: true}},
				{ID: "t4", Contractor: "c2", AddedBy: "ag1",
					Work: domain.ContractorTrack{Status: "in_progress", Progress: 10}},
			},
		},
	}}
}

func TestFlattenForSiteIncharge(t *testing.T) {
	views := Flatten(fixtureProjects(), Scope{Actor: domain.Actor{ID: "si1", Role: domain.RoleSiteIncharge}})
	assert.Equal(t, []string{"t3", "t1"}, ids(views), "submitted and not yet approved, high first")
	for _, v := range views {
		assert.Equal(t, domain.StatusPendingVerification, v.Status)
		assert.Equal(t, "Tower A", v.ProjectName)
		assert.Equal(t, "Unknown Contractor", v.ContractorName)
	}
}

func TestFlattenForContractor(t *testing.T) {
	views := Flatten(fixtureProjects(), Scope{
		Actor: domain.Actor{ID: "c2", Role: domain.RoleContractor},
		Names: map[string]string{"c2": "Ravi"},
	})
	require.Len(t, views, 2)
	assert.Equal(t, []string{"t2", "t4"}, ids(views))
	assert.Equal(t, "Ravi", views[0].ContractorName)
	assert.True(t, views[0].Completed)
	assert.Equal(t, "in_progress", views[1].Status)
	assert.Equal(t, domain.PriorityUnspecified, views[1].Task.Priority)
}

func TestFlattenForOwnerSeesAll(t *testing.T) {
	views := Flatten(fixtureProjects(), Scope{Actor: domain.Actor{ID: "o", Role: domain.RoleOwner}})
	assert.Equal(t, []string{"t3", "t2", "t1", "t4"}, ids(views))
}

func TestFlattenForAgentUsesOwnerFilter(t *testing.T) {
	views := Flatten(fixtureProjects(), Scope{
		Actor:  domain.Actor{ID: "ag1", Role: domain.RoleAgent},
		Owners: visibility.Owners("ag1"),
	})
	assert.Equal(t, []string{"t3", "t4"}, ids(views))
	for _, v := range views {
		assert.Equal(t, "ag1", v.Task.AddedBy)
	}
}

func TestDisplayDefaults(t *testing.T) {
	views := Flatten([]domain.Project{{Units: map[string][]domain.Task{"": {{ID: "x"}}}}},
		Scope{Actor: domain.Actor{Role: domain.RoleAdmin}})
	require.Len(t, views, 1)
	v := views[0]
	assert.Equal(t, "Unnamed Project", v.ProjectName)
	assert.Equal(t, "N/A", v.BuildingID)
	assert.Equal(t, "N/A", v.UnitID)
	assert.Equal(t, "Untitled Task", v.Task.Title)
}

func TestCompletedInUnit(t *testing.T) {
	done := CompletedInUnit(fixtureProjects()[0].Units["u1"])
	require.Len(t, done, 1)
	assert.Equal(t, "t2", done[0].ID)
}

func TestContractorSummaries(t *testing.T) {
	sums := ContractorSummaries(fixtureProjects(), map[string]string{"c1": "Asha"})
	require.Len(t, sums, 2)
	assert.Equal(t, ContractorSummary{ContractorID: "c1", Name: "Asha", TotalTasks: 2, CompletedTasks: 1, CompletionRate: 50}, sums[0])
	assert.Equal(t, "c2", sums[1].ContractorID)
	assert.Equal(t, 2, sums[1].TotalTasks)
	assert.Equal(t, 1, sums[1].CompletedTasks)
}

func TestContractorTasksShowEffectiveCompletion(t *testing.T) {
	views := ContractorTasks(fixtureProjects(), "c1", nil)
	require.Len(t, views, 2)
	assert.Equal(t, "t3", views[0].Task.ID)
	assert.Equal(t, "completed", views[0].Status)
	assert.Equal(t, "completed", views[1].Status)
	assert.False(t, views[1].Completed)
}
