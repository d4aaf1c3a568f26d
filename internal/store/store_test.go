package store_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitework/internal/db"
	"sitework/internal/domain"
	"sitework/internal/migrate"
	"sitework/internal/repo"
	"sitework/internal/store"
)

type testEnv struct {
	DB    *sql.DB
	Store store.Store
	Ctx   context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))
	s := store.New(repo.Repo{DB: conn})
	s.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	env := testEnv{DB: conn, Store: s, Ctx: ctx}
	env.tx(t, func(tx *sql.Tx) error {
		return s.Repo.InsertProject(ctx, tx, domain.Project{
			ID: "p1", Name: "Tower A", BuildingID: "b1", FloorUnitID: "f1", UnitID: "u1",
			SiteIncharge: "si1", CreatedBy: "owner", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
		})
	})
	return env
}

func (e testEnv) tx(t *testing.T, fn func(tx *sql.Tx) error) {
	t.Helper()
	require.NoError(t, e.try(fn))
}

func (e testEnv) try(fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(e.Ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e testEnv) appendTask(t *testing.T, unitID, title string) domain.Task {
	t.Helper()
	var out domain.Task
	e.tx(t, func(tx *sql.Tx) error {
		var err error
		out, err = e.Store.AppendTask(e.Ctx, tx, "p1", unitID, "si1", domain.Task{
			Title: title, Contractor: "c1", AddedBy: "si1", Priority: domain.PriorityMedium,
			Work:   domain.ContractorTrack{Status: domain.StatusInProgress},
			Review: domain.ReviewTrack{Status: domain.StatusPendingVerification},
		})
		return err
	})
	return out
}

func TestEnsureUnitIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	var first, second bool
	env.tx(t, func(tx *sql.Tx) error {
		var err error
		if first, err = env.Store.EnsureUnit(env.Ctx, tx, "p1", "u7"); err != nil {
			return err
		}
		second, err = env.Store.EnsureUnit(env.Ctx, tx, "p1", "u7")
		return err
	})
	assert.True(t, first)
	assert.False(t, second)

	p, err := env.Store.Repo.GetProject(env.Ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]domain.Task{"u7": {}}, p.Units)
}

func TestAppendTaskOrdersWithinUnit(t *testing.T) {
	env := newTestEnv(t)
	a := env.appendTask(t, "u1", "pour slab")
	b := env.appendTask(t, "u1", "tile floor")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 0, a.Position)
	assert.Equal(t, 1, b.Position)

	p, err := env.Store.Repo.GetProject(env.Ctx, "p1")
	require.NoError(t, err)
	require.Len(t, p.Units["u1"], 2)
	assert.Equal(t, "pour slab", p.Units["u1"][0].Title)
	assert.Equal(t, []string{"c1"}, p.Contractors)
	assert.Equal(t, "si1", p.UpdatedBy)
}

func TestAppendTaskToMissingProject(t *testing.T) {
	env := newTestEnv(t)
	err := env.try(func(tx *sql.Tx) error {
		_, err := env.Store.AppendTask(env.Ctx, tx, "nope", "u1", "si1", domain.Task{Title: "x", Contractor: "c1"})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindTaskAcrossUnits(t *testing.T) {
	env := newTestEnv(t)
	env.appendTask(t, "u1", "a")
	want := env.appendTask(t, "u2", "b")
	env.tx(t, func(tx *sql.Tx) error {
		got, unit, err := env.Store.FindTask(env.Ctx, tx, "p1", want.ID)
		require.NoError(t, err)
		assert.Equal(t, "u2", unit)
		assert.Equal(t, "b", got.Title)
		_, _, err = env.Store.FindTask(env.Ctx, tx, "p1", "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
}

func TestReplaceTaskRejectsStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	task := env.appendTask(t, "u1", "a")
	setProgress := func(n int) store.Mutator {
		return func(t domain.Task) (domain.Task, error) {
			t.Work.Progress = n
			return t, nil
		}
	}
	env.tx(t, func(tx *sql.Tx) error {
		updated, err := env.Store.ReplaceTask(env.Ctx, tx, "p1", task.ID, "c1", task.Version, setProgress(30))
		require.NoError(t, err)
		assert.Equal(t, task.Version+1, updated.Version)
		return nil
	})
	err := env.try(func(tx *sql.Tx) error {
		_, err := env.Store.ReplaceTask(env.Ctx, tx, "p1", task.ID, "c1", task.Version, setProgress(50))
		return err
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	tasks, err := env.Store.Repo.UnitTasks(env.Ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 30, tasks[0].Work.Progress)
}

func TestConcurrentUpdatesToDifferentTasksAreBothKept(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.appendTask(t, "u1", "a")
	t2 := env.appendTask(t, "u1", "b")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = env.try(func(tx *sql.Tx) error {
			_, err := env.Store.ReplaceTask(env.Ctx, tx, "p1", t1.ID, "c1", 0, func(t domain.Task) (domain.Task, error) {
				t.Work.Progress = 40
				return t, nil
			})
			return err
		})
	}()
	go func() {
		defer wg.Done()
		errs[1] = env.try(func(tx *sql.Tx) error {
			_, err := env.Store.ReplaceTask(env.Ctx, tx, "p1", t2.ID, "si1", 0, func(t domain.Task) (domain.Task, error) {
				t.Review.Note = "check grout"
				return t, nil
			})
			return err
		})
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	tasks, err := env.Store.Repo.UnitTasks(env.Ctx, "p1", "u1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, 40, tasks[0].Work.Progress)
	assert.Equal(t, "check grout", tasks[1].Review.Note)
}

func TestReplaceTaskKeepsIdentity(t *testing.T) {
	env := newTestEnv(t)
	task := env.appendTask(t, "u1", "a")
	env.tx(t, func(tx *sql.Tx) error {
		got, err := env.Store.ReplaceTask(env.Ctx, tx, "p1", task.ID, "c1", 0, func(t domain.Task) (domain.Task, error) {
			t.ID = "hijack"
			t.Contractor = "c9"
			t.Title = "renamed"
			return t, nil
		})
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, "c1", got.Contractor)
		assert.Equal(t, "renamed", got.Title)
		return nil
	})
}
