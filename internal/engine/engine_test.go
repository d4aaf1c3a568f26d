package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/engine/auth"
	"sitework/internal/migrate"
	"sitework/internal/notify"
	"sitework/internal/repo"
	"sitework/internal/taskstate"
	"sitework/internal/visibility"
)

var (
	admin  = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	owner  = domain.Actor{ID: "owner-1", Role: domain.RoleOwner}
	si1    = domain.Actor{ID: "si-1", Role: domain.RoleSiteIncharge}
	si2    = domain.Actor{ID: "si-2", Role: domain.RoleSiteIncharge}
	c1     = domain.Actor{ID: "c-1", Role: domain.RoleContractor}
	c2     = domain.Actor{ID: "c-2", Role: domain.RoleContractor}
	sm1    = domain.Actor{ID: "sm-1", Role: domain.RoleSalesManager}
	tl1    = domain.Actor{ID: "tl-1", Role: domain.RoleTeamLead}
	ag1    = domain.Actor{ID: "ag-1", Role: domain.RoleAgent}
	ag2    = domain.Actor{ID: "ag-2", Role: domain.RoleAgent}
	fixed  = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	noLogs = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, tweak ...func(*config.Config)) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))
	cfg := config.Default()
	for _, fn := range tweak {
		fn(cfg)
	}
	e := engine.New(conn, cfg, noLogs)
	e.Now = func() time.Time { return fixed }
	return testEnv{Engine: e, Ctx: ctx}
}

func (env testEnv) project(t *testing.T) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Name: "Tower A", BuildingID: "b1", FloorUnitID: "f1", UnitID: "u1",
		SiteIncharge: si1.ID, Contractors: []string{c1.ID}, Actor: owner,
	})
	require.NoError(t, err)
	return p
}

func (env testEnv) assign(t *testing.T, projectID string, contractor domain.Actor, title, priority string) domain.Task {
	t.Helper()
	task, err := env.Engine.AssignTask(env.Ctx, engine.AssignTaskOptions{
		ProjectID: projectID, ContractorID: contractor.ID, Title: title,
		Deadline: "2024-02-01", Priority: priority, Actor: si1,
	})
	require.NoError(t, err)
	return task
}

func (env testEnv) inbox(t *testing.T, recipient string) []domain.Notification {
	t.Helper()
	ns, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{RecipientID: recipient})
	require.NoError(t, err)
	return ns
}

func str(s string) *string { return &s }
func num(i int) *int       { return &i }

func TestAssignSubmitApproveFlow(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.assign(t, p.ID, c1, "Lay tiles", "")
	assert.Equal(t, domain.PriorityMedium, task.Priority)
	assert.Equal(t, "u1", task.UnitID)
	assert.Equal(t, domain.StatusInProgress, task.Work.Status)
	assert.Equal(t, domain.StatusPendingVerification, task.Review.Status)
	assert.Equal(t, int64(1), task.Version)

	assigned := env.inbox(t, c1.ID)
	require.Len(t, assigned, 1)
	assert.Equal(t, notify.TitleTaskAssigned, assigned[0].Title)
	assert.Equal(t, "You have been assigned a new task: Lay tiles.", assigned[0].Message)

	updated, err := env.Engine.UpdateTaskAsContractor(env.Ctx, p.ID, task.ID, c1, taskstate.ContractorPatch{
		Status: str(domain.StatusCompleted), Progress: num(100), Photos: []string{"ph1"}, ShouldSubmit: true,
	})
	require.NoError(t, err)
	assert.True(t, updated.Work.Approved)
	require.NotNil(t, updated.Work.SubmittedOn)
	assert.Equal(t, "2024-01-01T09:00:00Z", *updated.Work.SubmittedOn)
	assert.Equal(t, int64(2), updated.Version)

	submitted := env.inbox(t, si1.ID)
	require.Len(t, submitted, 1)
	assert.Equal(t, notify.TitleTaskSubmitted, submitted[0].Title)

	queue, err := env.Engine.ListTasksForActor(env.Ctx, si1)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, task.ID, queue[0].Task.ID)

	reviewed, err := env.Engine.UpdateTaskAsSiteIncharge(env.Ctx, p.ID, task.ID, si1, taskstate.ReviewerPatch{
		VerificationDecision: str(domain.StatusApproved), Note: str("clean work"),
	})
	require.NoError(t, err)
	assert.True(t, reviewed.Review.Approved)
	assert.Equal(t, domain.StatusApproved, reviewed.Review.Status)
	assert.Equal(t, []string{"ph1"}, reviewed.Work.Photos)
	assert.Equal(t, 100, reviewed.Work.Progress)

	verified := env.inbox(t, c1.ID)
	require.Len(t, verified, 2)
	assert.Equal(t, notify.TitleTaskVerified, verified[0].Title)

	queue, err = env.Engine.ListTasksForActor(env.Ctx, si1)
	require.NoError(t, err)
	assert.Empty(t, queue, "approved tasks leave the review queue")

	done, err := env.Engine.CompletedTasksForUnit(env.Ctx, p.ID, "u1", owner)
	require.NoError(t, err)
	require.Len(t, done, 1)

	evs, err := env.Engine.RecentEvents(env.Ctx, 10, repo.EventFilters{ProjectID: p.ID}, admin)
	require.NoError(t, err)
	var types []string
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"task.site_incharge_update", "task.contractor_update", "task.assign", "project.create"}, types)
}

func TestTracksStaySeparate(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.assign(t, p.ID, c1, "Paint", "high")

	reviewed, err := env.Engine.UpdateTaskAsSiteIncharge(env.Ctx, p.ID, task.ID, si1, taskstate.ReviewerPatch{
		Status: str("needs rework"), Photos: []string{"si-photo"},
	})
	require.NoError(t, err)
	assert.Equal(t, task.Work, reviewed.Work)

	worked, err := env.Engine.UpdateTaskAsContractor(env.Ctx, p.ID, task.ID, c1, taskstate.ContractorPatch{Progress: num(40)})
	require.NoError(t, err)
	assert.Equal(t, reviewed.Review, worked.Review)
	assert.Equal(t, 40, worked.Work.Progress)
}

func TestForbiddenMutations(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.assign(t, p.ID, c1, "Paint", "")

	var fe auth.ForbiddenError
	_, err := env.Engine.UpdateTaskAsContractor(env.Ctx, p.ID, task.ID, c2, taskstate.ContractorPatch{Progress: num(10)})
	require.ErrorAs(t, err, &fe)

	_, err = env.Engine.UpdateTaskAsSiteIncharge(env.Ctx, p.ID, task.ID, si2, taskstate.ReviewerPatch{Note: str("x")})
	require.ErrorAs(t, err, &fe)

	_, err = env.Engine.UpdateTaskAsSiteIncharge(env.Ctx, p.ID, task.ID, c1, taskstate.ReviewerPatch{Note: str("x")})
	require.ErrorAs(t, err, &fe)

	_, err = env.Engine.AssignTask(env.Ctx, engine.AssignTaskOptions{
		ProjectID: p.ID, ContractorID: c1.ID, Title: "t", Deadline: "2024-02-01", Actor: ag1,
	})
	require.ErrorAs(t, err, &fe)

	_, err = env.Engine.ListTasksForActor(env.Ctx, domain.Actor{Role: domain.RoleOwner})
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	stored, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Units["u1"][0].Version, "rejected updates write nothing")
}

func TestAssignValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	var ve domain.ValidationError

	_, err := env.Engine.AssignTask(env.Ctx, engine.AssignTaskOptions{ProjectID: p.ID, ContractorID: c1.ID, Title: "t", Actor: si1})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "deadline", ve.Field)

	_, err = env.Engine.AssignTask(env.Ctx, engine.AssignTaskOptions{ProjectID: p.ID, ContractorID: c1.ID, Title: "t", Deadline: "2024-02-01", Priority: "urgent", Actor: si1})
	require.ErrorAs(t, err, &ve)

	_, err = env.Engine.RegisterActor(env.Ctx, domain.Actor{ID: "acc-1", Role: domain.RoleAccountant}, admin)
	require.NoError(t, err)
	_, err = env.Engine.AssignTask(env.Ctx, engine.AssignTaskOptions{ProjectID: p.ID, ContractorID: "acc-1", Title: "t", Deadline: "2024-02-01", Actor: si1})
	require.ErrorAs(t, err, &ve)

	_, err = env.Engine.AssignTask(env.Ctx, engine.AssignTaskOptions{ProjectID: "missing", ContractorID: c1.ID, Title: "t", Deadline: "2024-02-01", Actor: si1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNoOpPatchIsRejected(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.assign(t, p.ID, c1, "Paint", "")
	var ve domain.ValidationError
	_, err := env.Engine.UpdateTaskAsContractor(env.Ctx, p.ID, task.ID, c1, taskstate.ContractorPatch{})
	require.ErrorAs(t, err, &ve)
	_, err = env.Engine.MiniUpdateTask(env.Ctx, p.ID, task.ID, c1, taskstate.MiniPatch{})
	require.ErrorAs(t, err, &ve)
}

func TestStaleVersionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.assign(t, p.ID, c1, "Paint", "")

	_, err := env.Engine.MiniUpdateTask(env.Ctx, p.ID, task.ID, c1, taskstate.MiniPatch{Progress: num(30)}, engine.IfVersion(task.Version))
	require.NoError(t, err)

	_, err = env.Engine.MiniUpdateTask(env.Ctx, p.ID, task.ID, c1, taskstate.MiniPatch{Progress: num(50)}, engine.IfVersion(task.Version))
	require.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestConcurrentUpdatesToDistinctTasksAllLand(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	tasks := make([]domain.Task, 6)
	for i := range tasks {
		tasks[i] = env.assign(t, p.ID, c1, "task", "")
	}
	var wg sync.WaitGroup
	errs := make([]error, len(tasks))
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.Engine.MiniUpdateTask(env.Ctx, p.ID, id, c1, taskstate.MiniPatch{Progress: num(10 * (i + 1))})
		}(i, task.ID)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	stored, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Units["u1"], len(tasks))
	for i, task := range stored.Units["u1"] {
		assert.Equal(t, 10*(i+1), task.Work.Progress)
		assert.Equal(t, int64(2), task.Version)
	}
}

func TestConcurrentContractorSubmissionsAllLand(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	first := env.assign(t, p.ID, c1, "Tile bathroom", "")
	second := env.assign(t, p.ID, c1, "Tile kitchen", "")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, task := range []domain.Task{first, second} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.Engine.UpdateTaskAsContractor(env.Ctx, p.ID, id, c1, taskstate.ContractorPatch{
				Status:       str(domain.StatusCompleted),
				Progress:     num(100),
				Photos:       []string{"photo-" + id},
				ShouldSubmit: true,
			})
		}(i, task.ID)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Units["u1"], 2)
	for _, task := range stored.Units["u1"] {
		assert.Equal(t, domain.StatusCompleted, task.Work.Status, task.Title)
		assert.Equal(t, 100, task.Work.Progress, task.Title)
		assert.True(t, task.Work.Approved, task.Title)
		assert.Equal(t, []string{"photo-" + task.ID}, task.Work.Photos, task.Title)
		require.NotNil(t, task.Work.SubmittedOn, task.Title)
		assert.Equal(t, int64(2), task.Version, task.Title)
	}

	evs, err := env.Engine.RecentEvents(env.Ctx, 10, repo.EventFilters{ProjectID: p.ID, Type: "task.contractor_update"}, admin)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
	assert.Len(t, env.inbox(t, si1.ID), 2, "each submission notifies the site incharge")
}

func TestMonotonicProgressPolicy(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Tasks.Progress = taskstate.ProgressMonotonic })
	p := env.project(t)
	task := env.assign(t, p.ID, c1, "Paint", "")
	_, err := env.Engine.MiniUpdateTask(env.Ctx, p.ID, task.ID, c1, taskstate.MiniPatch{Progress: num(60)})
	require.NoError(t, err)
	var ve domain.ValidationError
	_, err = env.Engine.MiniUpdateTask(env.Ctx, p.ID, task.ID, c1, taskstate.MiniPatch{Progress: num(20)})
	require.ErrorAs(t, err, &ve)
}

func TestListTasksPerRole(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	_, err := env.Engine.AddProjectContractor(env.Ctx, p.ID, c2.ID, owner)
	require.NoError(t, err)
	low := env.assign(t, p.ID, c1, "Low", "low")
	high := env.assign(t, p.ID, c2, "High", "high")

	all, err := env.Engine.ListTasksForActor(env.Ctx, owner)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, high.ID, all[0].Task.ID)
	assert.Equal(t, low.ID, all[1].Task.ID)

	mine, err := env.Engine.ListTasksForActor(env.Ctx, c1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, low.ID, mine[0].Task.ID)

	queue, err := env.Engine.ListTasksForActor(env.Ctx, si1)
	require.NoError(t, err)
	assert.Empty(t, queue)

	other, err := env.Engine.ListTasksForActor(env.Ctx, si2)
	require.NoError(t, err)
	assert.Empty(t, other)

	agent, err := env.Engine.ListTasksForActor(env.Ctx, ag1)
	require.NoError(t, err)
	assert.Empty(t, agent, "agents see only tasks they added")
}

func TestUnitProgress(t *testing.T) {
	env := newTestEnv(t)

	empty, err := env.Engine.GetUnitProgress(env.Ctx, "b9", "f9", "u9")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTasks)
	assert.Zero(t, empty.OverallProgress)

	_, err = env.Engine.GetUnitProgress(env.Ctx, "b1", "", "u1")
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)

	p := env.project(t)
	for _, pct := range []int{20, 60, 100} {
		task := env.assign(t, p.ID, c1, "step", "")
		_, err := env.Engine.MiniUpdateTask(env.Ctx, p.ID, task.ID, c1, taskstate.MiniPatch{Progress: num(pct)})
		require.NoError(t, err)
	}
	got, err := env.Engine.GetUnitProgress(env.Ctx, "b1", "f1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalTasks)
	assert.Equal(t, 60, got.OverallProgress)
}

func TestContractorSummariesForSiteIncharge(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	_, err := env.Engine.RegisterActor(env.Ctx, domain.Actor{ID: c1.ID, Name: "Asha", Role: domain.RoleContractor}, admin)
	require.NoError(t, err)
	a := env.assign(t, p.ID, c1, "a", "")
	env.assign(t, p.ID, c1, "b", "")
	_, err = env.Engine.MiniUpdateTask(env.Ctx, p.ID, a.ID, c1, taskstate.MiniPatch{Progress: num(100)})
	require.NoError(t, err)

	sums, err := env.Engine.ContractorsForSiteIncharge(env.Ctx, si1)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "Asha", sums[0].Name)
	assert.Equal(t, 2, sums[0].TotalTasks)
	assert.Equal(t, 1, sums[0].CompletedTasks)
	assert.Equal(t, 50.0, sums[0].CompletionRate)

	views, err := env.Engine.ContractorTasksForSiteIncharge(env.Ctx, si1, c1.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	accountant := domain.Actor{ID: "acc-1", Role: domain.RoleAccountant}
	sums, err = env.Engine.ContractorsForSiteIncharge(env.Ctx, accountant)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 2, sums[0].TotalTasks)

	_, err = env.Engine.ContractorsForSiteIncharge(env.Ctx, c1)
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
}

func seedTeam(t *testing.T, env testEnv) {
	t.Helper()
	_, err := env.Engine.AddTeamLead(env.Ctx, tl1.ID, sm1.ID, admin)
	require.NoError(t, err)
	_, err = env.Engine.AddAgent(env.Ctx, ag1.ID, tl1.ID, admin)
	require.NoError(t, err)
}

func leadNames(leads []domain.Lead) []string {
	out := make([]string, len(leads))
	for i, l := range leads {
		out[i] = l.Name
	}
	return out
}

func TestLeadVisibilityFollowsMembership(t *testing.T) {
	env := newTestEnv(t)
	seedTeam(t, env)
	for _, a := range []domain.Actor{tl1, ag1, ag2} {
		_, err := env.Engine.CreateLead(env.Ctx, engine.LeadCreateOptions{Name: "lead of " + a.ID, Actor: a})
		require.NoError(t, err)
	}

	got, err := env.Engine.ListLeads(env.Ctx, tl1, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lead of tl-1", "lead of ag-1"}, leadNames(got))

	got, err = env.Engine.ListLeads(env.Ctx, ag2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"lead of ag-2"}, leadNames(got))

	got, err = env.Engine.ListLeads(env.Ctx, sm1, "")
	require.NoError(t, err)
	assert.Len(t, got, 3, "unrestricted sales managers see everything")

	ms, err := env.Engine.ListMemberships(env.Ctx, tl1.ID, false, admin)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	require.NoError(t, env.Engine.RemoveMembership(env.Ctx, ms[0].ID, admin))

	got, err = env.Engine.ListLeads(env.Ctx, tl1, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"lead of tl-1"}, leadNames(got), "removed edges stop granting visibility")
}

func TestRemovedAgentTasksDropOutOfTeamLeadView(t *testing.T) {
	env := newTestEnv(t)
	seedTeam(t, env)
	p := env.project(t)

	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	require.NoError(t, err)
	task, err := env.Engine.Store.AppendTask(env.Ctx, tx, p.ID, "u1", ag1.ID, domain.Task{
		Title: "Show flat", Priority: domain.PriorityMedium, Contractor: c1.ID, AddedBy: ag1.ID,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	views, err := env.Engine.ListTasksForActor(env.Ctx, tl1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, task.ID, views[0].Task.ID)

	ms, err := env.Engine.ListMemberships(env.Ctx, tl1.ID, false, admin)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	require.NoError(t, env.Engine.RemoveMembership(env.Ctx, ms[0].ID, admin))

	views, err = env.Engine.ListTasksForActor(env.Ctx, tl1)
	require.NoError(t, err)
	assert.Empty(t, views)

	views, err = env.Engine.ListTasksForActor(env.Ctx, ag1)
	require.NoError(t, err)
	assert.Len(t, views, 1, "the agent keeps its own tasks")
}

func TestTwoHopSalesManager(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Visibility.SalesManager = visibility.PolicyTwoHop })
	seedTeam(t, env)
	for _, a := range []domain.Actor{sm1, tl1, ag1, ag2} {
		_, err := env.Engine.CreateLead(env.Ctx, engine.LeadCreateOptions{Name: "lead of " + a.ID, Actor: a})
		require.NoError(t, err)
	}
	got, err := env.Engine.ListLeads(env.Ctx, sm1, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lead of sm-1", "lead of tl-1", "lead of ag-1"}, leadNames(got))
}

func TestLeadUpdatesRequireVisibility(t *testing.T) {
	env := newTestEnv(t)
	seedTeam(t, env)
	l, err := env.Engine.CreateLead(env.Ctx, engine.LeadCreateOptions{Name: "Mehta", Phone: "555", Actor: ag1})
	require.NoError(t, err)
	assert.Equal(t, "new", l.Status)

	var fe auth.ForbiddenError
	_, err = env.Engine.UpdateLead(env.Ctx, engine.LeadUpdateOptions{ID: l.ID, Status: str("won"), Actor: ag2})
	require.ErrorAs(t, err, &fe)

	updated, err := env.Engine.UpdateLead(env.Ctx, engine.LeadUpdateOptions{ID: l.ID, Status: str("contacted"), Actor: tl1})
	require.NoError(t, err)
	assert.Equal(t, "contacted", updated.Status)

	inbox := env.inbox(t, ag1.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, notify.TitleLeadUpdated, inbox[0].Title)

	require.ErrorAs(t, env.Engine.DeleteLead(env.Ctx, l.ID, ag2), &fe)
	require.NoError(t, env.Engine.DeleteLead(env.Ctx, l.ID, ag1))
	got, err := env.Engine.ListLeads(env.Ctx, tl1, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	var ve domain.ValidationError
	_, err = env.Engine.UpdateLead(env.Ctx, engine.LeadUpdateOptions{ID: l.ID, Actor: ag1})
	require.ErrorAs(t, err, &ve)
}

func TestMembershipRules(t *testing.T) {
	env := newTestEnv(t)
	seedTeam(t, env)
	var ve domain.ValidationError
	_, err := env.Engine.AddAgent(env.Ctx, ag1.ID, "tl-2", admin)
	require.ErrorAs(t, err, &ve, "an agent has one team lead")

	_, err = env.Engine.AddAgent(env.Ctx, ag2.ID, ag2.ID, admin)
	require.ErrorAs(t, err, &ve)

	var fe auth.ForbiddenError
	_, err = env.Engine.AddAgent(env.Ctx, ag2.ID, tl1.ID, tl1)
	require.ErrorAs(t, err, &fe)
}

func TestIssueLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	issue, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{ProjectID: p.ID, Title: "Crack in wall", Actor: si1})
	require.NoError(t, err)
	assert.Equal(t, domain.IssueOpen, issue.Status)

	task, err := env.Engine.AssignTask(env.Ctx, engine.AssignTaskOptions{
		ProjectID: p.ID, ContractorID: c1.ID, Title: "Fix crack", Deadline: "2024-02-01", QualityIssueID: issue.ID, Actor: si1,
	})
	require.NoError(t, err)
	assert.Equal(t, issue.ID, task.QualityIssueID)

	mine, err := env.Engine.ListIssues(env.Ctx, c1, "", "")
	require.NoError(t, err)
	require.Len(t, mine, 1, "linking a task assigns the issue to its contractor")

	var fe auth.ForbiddenError
	_, err = env.Engine.UpdateIssueStatus(env.Ctx, issue.ID, domain.IssueResolved, si2)
	require.ErrorAs(t, err, &fe)

	resolved, err := env.Engine.UpdateIssueStatus(env.Ctx, issue.ID, domain.IssueResolved, si1)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueResolved, resolved.Status)

	var ve domain.ValidationError
	_, err = env.Engine.UpdateIssueStatus(env.Ctx, issue.ID, "closed", si1)
	require.ErrorAs(t, err, &ve)
}

func TestProjectEditsAreAudited(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)

	updated, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Name: str("Tower A East"), SiteIncharge: str(si2.ID), Actor: owner})
	require.NoError(t, err)
	assert.Equal(t, "Tower A East", updated.Name)
	assert.Equal(t, si2.ID, updated.SiteIncharge)

	withC2, err := env.Engine.AddProjectContractor(env.Ctx, p.ID, c2.ID, owner)
	require.NoError(t, err)
	assert.True(t, withC2.HasContractor(c2.ID))

	evs, err := env.Engine.RecentEvents(env.Ctx, 10, repo.EventFilters{ProjectID: p.ID}, admin)
	require.NoError(t, err)
	var types []string
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"project.contractor", "project.update", "project.create"}, types)
}

func TestDeletedProjectIsGone(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.assign(t, p.ID, c1, "Paint", "")
	_, err := env.Engine.UpdateTaskAsContractor(env.Ctx, p.ID, task.ID, c1, taskstate.ContractorPatch{
		Status: str(domain.StatusCompleted), Progress: num(100), ShouldSubmit: true,
	})
	require.NoError(t, err)
	_, err = env.Engine.UpdateTaskAsSiteIncharge(env.Ctx, p.ID, task.ID, si1, taskstate.ReviewerPatch{VerificationDecision: str("approved")})
	require.NoError(t, err)
	done, err := env.Engine.CompletedTasksForUnit(env.Ctx, p.ID, "u1", owner)
	require.NoError(t, err)
	require.Len(t, done, 1)

	require.NoError(t, env.Engine.DeleteProject(env.Ctx, p.ID, owner))

	done, err = env.Engine.CompletedTasksForUnit(env.Ctx, p.ID, "u1", owner)
	require.NoError(t, err)
	assert.Empty(t, done)

	done, err = env.Engine.CompletedTasksForUnit(env.Ctx, "no-such-project", "u1", owner)
	require.NoError(t, err)
	assert.NotNil(t, done)
	assert.Empty(t, done)

	_, err = env.Engine.MiniUpdateTask(env.Ctx, p.ID, task.ID, c1, taskstate.MiniPatch{Progress: num(10)})
	require.ErrorIs(t, err, domain.ErrNotFound)

	listed, err := env.Engine.ListProjectsForActor(env.Ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestAPIKeysResolveToActors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RegisterActor(env.Ctx, domain.Actor{ID: c1.ID, Name: "Asha", Role: domain.RoleContractor}, admin)
	require.NoError(t, err)
	raw, key, err := env.Engine.CreateAPIKey(env.Ctx, c1.ID, "phone", admin)
	require.NoError(t, err)
	assert.NotEqual(t, raw, key.KeyHash)

	got, err := env.Engine.Authenticate(env.Ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleContractor, got.Role)

	_, err = env.Engine.Authenticate(env.Ctx, "swk_nope")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, admin))
	_, err = env.Engine.Authenticate(env.Ctx, raw)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestNotificationsAreScopedToRecipient(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	env.assign(t, p.ID, c1, "Paint", "")

	own, err := env.Engine.Notifications(env.Ctx, repo.NotificationFilters{}, c1)
	require.NoError(t, err)
	require.Len(t, own, 1)

	var fe auth.ForbiddenError
	_, err = env.Engine.Notifications(env.Ctx, repo.NotificationFilters{RecipientID: c1.ID}, c2)
	require.ErrorAs(t, err, &fe)

	all, err := env.Engine.Notifications(env.Ctx, repo.NotificationFilters{RecipientID: c1.ID}, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

type brokenOutbox struct{ repo.Repo }

func (brokenOutbox) InsertNotification(context.Context, domain.Notification) (int64, error) {
	return 0, errors.New("disk full")
}

func TestNotificationFailureDoesNotFailMutation(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Notify.Store = brokenOutbox{env.Engine.Repo}
	p := env.project(t)
	task := env.assign(t, p.ID, c1, "Paint", "")
	assert.NotEmpty(t, task.ID)
	assert.Empty(t, env.inbox(t, c1.ID))
}
