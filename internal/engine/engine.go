package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"commandops/internal/apperr"
	"commandops/internal/cache"
	"commandops/internal/domain"
	"commandops/internal/events"
	"commandops/internal/logging"
	"commandops/internal/repo"
)

// Engine runs the owner-scoped mission and quest operations. Every mutation
// executes in one transaction that also appends its event.
//
// Location decides which calendar day counts as "today" when quests are
// ranked for urgency; nil means time.Local.
type Engine struct {
	DB       *sqlx.DB
	Repo     repo.Repo
	EventLog events.Writer
	Cache    cache.Snapshots
	Log      *slog.Logger
	Now      func() time.Time
	Location *time.Location
}

func New(db *sqlx.DB, snapshots cache.Snapshots, log *slog.Logger) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Cache:    snapshots,
		Log:      log,
		Now:      time.Now,
		Location: time.Local,
	}
}

// now returns the engine clock in UTC at storage precision.
func (e Engine) now() time.Time {
	t := time.Now()
	if e.Now != nil {
		t = e.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}

// localNow is the clock in the engine's location, for read-time urgency.
func (e Engine) localNow() time.Time {
	if e.Location == nil {
		return e.now().Local()
	}
	return e.now().In(e.Location)
}

func (e Engine) log(ctx context.Context) *slog.Logger {
	return logging.From(ctx, e.Log)
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (e Engine) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Database(err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Database(err)
	}
	return nil
}

func (e Engine) appendEvent(ctx context.Context, tx *sqlx.Tx, evtType, ownerID, kind, id string, payload events.EventPayload) error {
	w := e.EventLog
	if w.Now == nil {
		w.Now = e.now
	}
	if err := w.Append(ctx, tx, evtType, ownerID, kind, id, payload); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// invalidate drops the owner's analytics snapshot after a committed change.
func (e Engine) invalidate(ctx context.Context, ownerID string) {
	if e.Cache == nil {
		return
	}
	if err := e.Cache.Invalidate(ctx, ownerID); err != nil {
		e.log(ctx).Warn("analytics snapshot invalidation failed", "owner_id", ownerID, "error", err)
	}
}

// classify maps repository and domain errors onto the API taxonomy.
func classify(err error, resource string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var illegal domain.ErrIllegalTransition
	var limit domain.ErrActiveLimit
	var pending domain.ErrPendingQuests
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return apperr.NotFound(resource)
	case errors.As(err, &illegal), errors.As(err, &limit), errors.As(err, &pending),
		errors.Is(err, domain.ErrMissionArchived):
		return apperr.BusinessLogic(err)
	default:
		return apperr.Database(err)
	}
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return apperr.Authentication("authentication required")
	}
	return nil
}
