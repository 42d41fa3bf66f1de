package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"commandops/internal/apperr"
	"commandops/internal/domain"
	"commandops/internal/events"
	"commandops/internal/validate"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

func (e Engine) ArchivedQuests(ctx context.Context, ownerID string, q validate.ArchiveQuery) (domain.Page[domain.Quest], error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Page[domain.Quest]{}, err
	}
	f, err := q.Filter(time.UTC)
	if err != nil {
		return domain.Page[domain.Quest]{}, err
	}
	items, total, err := e.Repo.ArchivedQuests(ctx, ownerID, f)
	if err != nil {
		return domain.Page[domain.Quest]{}, classify(err, "quest")
	}
	return domain.NewPage(items, total, f), nil
}

func (e Engine) ArchivedMissions(ctx context.Context, ownerID string, q validate.ArchiveQuery) (domain.Page[domain.Mission], error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Page[domain.Mission]{}, err
	}
	f, err := q.Filter(time.UTC)
	if err != nil {
		return domain.Page[domain.Mission]{}, err
	}
	items, total, err := e.Repo.ArchivedMissions(ctx, ownerID, f)
	if err != nil {
		return domain.Page[domain.Mission]{}, classify(err, "mission")
	}
	return domain.NewPage(items, total, f), nil
}

// Stats summarizes the owner's board.
func (e Engine) Stats(ctx context.Context, ownerID string) (domain.Stats, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Stats{}, err
	}
	quests, err := e.Repo.ListQuests(ctx, ownerID, domain.QuestFilter{IncludeArchived: true})
	if err != nil {
		return domain.Stats{}, classify(err, "quest")
	}
	s := domain.ComputeStats(quests, e.localNow())
	if s.ActiveMissions, s.ArchivedMissions, err = e.Repo.CountMissions(ctx, ownerID); err != nil {
		return domain.Stats{}, classify(err, "mission")
	}
	return s, nil
}

// Analytics returns the owner's analytics, served from the snapshot cache
// while it is fresh. Cache failures fall back to computing directly.
func (e Engine) Analytics(ctx context.Context, ownerID string) (domain.Analytics, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Analytics{}, err
	}
	if e.Cache != nil {
		a, ok, err := e.Cache.Get(ctx, ownerID)
		if err != nil {
			e.log(ctx).Warn("analytics snapshot read failed", "owner_id", ownerID, "error", err)
		} else if ok {
			return a, nil
		}
	}
	quests, err := e.Repo.ListQuests(ctx, ownerID, domain.QuestFilter{})
	if err != nil {
		return domain.Analytics{}, classify(err, "quest")
	}
	a := domain.ComputeAnalytics(quests, e.now())
	if e.Cache != nil {
		if err := e.Cache.Put(ctx, ownerID, a); err != nil {
			e.log(ctx).Warn("analytics snapshot write failed", "owner_id", ownerID, "error", err)
		}
	}
	return a, nil
}

// Events lists the owner's most recent events, newest first.
func (e Engine) Events(ctx context.Context, ownerID string, limit int) ([]domain.Event, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultEventLimit
	case limit > maxEventLimit:
		limit = maxEventLimit
	}
	evts, err := e.Repo.ListEvents(ctx, ownerID, limit)
	return evts, classify(err, "event")
}

func (e Engine) SubmitFeedback(ctx context.Context, ownerID string, in validate.FeedbackInput) (domain.Feedback, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Feedback{}, err
	}
	in, err := in.Validate()
	if err != nil {
		return domain.Feedback{}, err
	}
	f := domain.Feedback{ID: uuid.NewString(), OwnerID: ownerID, Message: in.Message, CreatedAt: e.now()}
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := e.Repo.InsertFeedback(ctx, tx, f); err != nil {
			return apperr.Database(err)
		}
		return e.appendEvent(ctx, tx, events.FeedbackSubmitted, ownerID, events.KindFeedback, f.ID, events.EventPayload{"length": len([]rune(f.Message))})
	})
	if err != nil {
		return domain.Feedback{}, err
	}
	return f, nil
}
