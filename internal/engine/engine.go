package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"sitework/internal/config"
	"sitework/internal/domain"
	"sitework/internal/engine/auth"
	"sitework/internal/events"
	"sitework/internal/metrics"
	"sitework/internal/notify"
	"sitework/internal/repo"
	"sitework/internal/store"
	"sitework/internal/taskstate"
	"sitework/internal/visibility"
)

// Engine coordinates authorization, task mutation, persistence, the audit log and
// the notification outbox. It is the only layer that opens transactions.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Store    store.Store
	Events   events.Writer
	Resolver visibility.Resolver
	Notify   notify.Queue
	Config   *config.Config
	Logger   *slog.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Store:    store.New(r),
		Events:   events.Writer{DB: db},
		Resolver: visibility.Resolver{Graph: r, Policy: cfg.Visibility.SalesManager},
		Notify:   notify.Queue{Store: r, Logger: logger},
		Config:   cfg,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// The collaborators below share the engine clock so tests can pin time once.

func (e Engine) store() store.Store {
	s := e.Store
	s.Now = e.now
	return s
}

func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func (e Engine) queue() notify.Queue {
	q := e.Notify
	q.Now = e.now
	return q
}

func (e Engine) progressPolicy() taskstate.ProgressPolicy {
	if e.Config != nil && e.Config.Tasks.Progress.Valid() {
		return e.Config.Tasks.Progress
	}
	return taskstate.ProgressOverwrite
}

// withTx runs fn in a transaction and classifies any failure. Errors that already
// carry a meaning pass through; anything else is reported as unavailable storage.
func (e Engine) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unavailable(op, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Unavailable(op, err)
	}
	return nil
}

func classify(op string, err error) error {
	var fe auth.ForbiddenError
	if errors.As(err, &fe) || errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.Unavailable(op, err)
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	var ve domain.ValidationError
	var fe auth.ForbiddenError
	var ue domain.UnavailableError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &fe), errors.Is(err, auth.ErrUnauthenticated):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrVersionConflict):
		return "conflict"
	case errors.As(err, &ue):
		return "unavailable"
	default:
		return "error"
	}
}

func (e Engine) recordTask(op string, err error) {
	metrics.TaskMutations.WithLabelValues(op, outcome(err)).Inc()
	if err != nil {
		e.Logger.Debug("task mutation rejected", "op", op, "err", err)
	}
}

// contractorNames resolves display names for every contractor in projects.
func (e Engine) contractorNames(ctx context.Context, projects []domain.Project) (map[string]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, p := range projects {
		for _, c := range p.Contractors {
			if !seen[c] {
				seen[c] = true
				ids = append(ids, c)
			}
		}
		for _, tasks := range p.Units {
			for _, t := range tasks {
				if t.Contractor != "" && !seen[t.Contractor] {
					seen[t.Contractor] = true
					ids = append(ids, t.Contractor)
				}
			}
		}
	}
	names, err := e.Repo.ActorNames(ctx, ids)
	if err != nil {
		return nil, domain.Unavailable("actor names", err)
	}
	return names, nil
}
