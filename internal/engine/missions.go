package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"commandops/internal/apperr"
	"commandops/internal/domain"
	"commandops/internal/events"
	"commandops/internal/repo"
	"commandops/internal/validate"
)

func (e Engine) CreateMission(ctx context.Context, ownerID string, in validate.MissionInput) (domain.Mission, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Mission{}, err
	}
	in, err := in.Validate()
	if err != nil {
		return domain.Mission{}, err
	}
	now := e.now()
	m := domain.Mission{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     in.Title,
		Objective: in.Objective,
		Status:    domain.MissionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
			return apperr.Database(err)
		}
		return e.appendEvent(ctx, tx, events.MissionCreated, ownerID, events.KindMission, m.ID, events.EventPayload{"title": m.Title})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	e.invalidate(ctx, ownerID)
	return m, nil
}

func (e Engine) GetMission(ctx context.Context, ownerID, id string) (domain.Mission, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Mission{}, err
	}
	m, err := e.Repo.GetMission(ctx, nil, ownerID, id)
	return m, classify(err, "mission")
}

func (e Engine) ListMissions(ctx context.Context, ownerID string, status *domain.MissionStatus) ([]domain.Mission, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if status != nil && *status != domain.MissionActive && *status != domain.MissionArchived {
		return nil, apperr.Validation(map[string]string{"status": "must be ACTIVE or ARCHIVED"})
	}
	missions, err := e.Repo.ListMissions(ctx, ownerID, status)
	return missions, classify(err, "mission")
}

func (e Engine) UpdateMission(ctx context.Context, ownerID, id string, patch validate.MissionPatch) (domain.Mission, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Mission{}, err
	}
	patch, err := patch.Validate()
	if err != nil {
		return domain.Mission{}, err
	}
	var out domain.Mission
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		m, err := e.Repo.GetMission(ctx, tx, ownerID, id)
		if err != nil {
			return classify(err, "mission")
		}
		if m.Status == domain.MissionArchived {
			return apperr.BusinessLogic(domain.ErrMissionArchived)
		}
		changed := events.EventPayload{}
		if patch.Title != nil {
			m.Title = *patch.Title
			changed["title"] = m.Title
		}
		if patch.Objective != nil {
			m.Objective = *patch.Objective
			changed["objective"] = true
		}
		m.UpdatedAt = e.now()
		if err := e.Repo.UpdateMission(ctx, tx, m); err != nil {
			return classify(err, "mission")
		}
		out = m
		return e.appendEvent(ctx, tx, events.MissionUpdated, ownerID, events.KindMission, m.ID, changed)
	})
	if err != nil {
		return domain.Mission{}, err
	}
	e.invalidate(ctx, ownerID)
	return out, nil
}

// ArchiveMission archives a mission whose quests are all completed, then
// archives every quest under it. Both steps commit together.
func (e Engine) ArchiveMission(ctx context.Context, ownerID, id string, in validate.ArchiveMissionInput) (domain.Mission, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Mission{}, err
	}
	in, err := in.Validate()
	if err != nil {
		return domain.Mission{}, err
	}
	var out domain.Mission
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		m, err := e.Repo.GetMission(ctx, tx, ownerID, id)
		if err != nil {
			return classify(err, "mission")
		}
		if err := domain.EnsureMissionArchivable(m); err != nil {
			return apperr.BusinessLogic(err)
		}
		now := e.now()
		m.Status = domain.MissionArchived
		m.ArchivedAt = &now
		m.AfterActionReport = in.AfterActionReport
		m.UpdatedAt = now
		ok, err := e.Repo.ArchiveMission(ctx, tx, m)
		if err != nil {
			return apperr.Database(err)
		}
		if !ok {
			return apperr.Authorization("mission could not be archived")
		}
		n, err := e.Repo.ArchiveMissionQuests(ctx, tx, ownerID, id, repo.FormatTime(now))
		if err != nil {
			return apperr.Database(err)
		}
		if out, err = e.Repo.GetMission(ctx, tx, ownerID, id); err != nil {
			return classify(err, "mission")
		}
		return e.appendEvent(ctx, tx, events.MissionArchived, ownerID, events.KindMission, id, events.EventPayload{
			"quests_archived":         n,
			"has_after_action_report": in.AfterActionReport != "",
		})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	e.invalidate(ctx, ownerID)
	return out, nil
}

// DeleteResult reports what a mission deletion did to its quests.
type DeleteResult struct {
	MissionID      string `json:"mission_id"`
	QuestsDeleted  int64  `json:"quests_deleted"`
	QuestsOrphaned int64  `json:"quests_orphaned"`
}

// DeleteMission removes a mission after either deleting or detaching its
// quests. If the mission row itself cannot be removed nothing is kept.
func (e Engine) DeleteMission(ctx context.Context, ownerID, id string, deleteQuests bool) (DeleteResult, error) {
	if err := requireOwner(ownerID); err != nil {
		return DeleteResult{}, err
	}
	res := DeleteResult{MissionID: id}
	err := e.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := e.Repo.GetMission(ctx, tx, ownerID, id); err != nil {
			return classify(err, "mission")
		}
		var err error
		if deleteQuests {
			res.QuestsDeleted, err = e.Repo.DeleteMissionQuests(ctx, tx, ownerID, id)
		} else {
			res.QuestsOrphaned, err = e.Repo.OrphanMissionQuests(ctx, tx, ownerID, id, repo.FormatTime(e.now()))
		}
		if err != nil {
			return apperr.Database(err)
		}
		n, err := e.Repo.DeleteMission(ctx, tx, ownerID, id)
		if err != nil {
			return apperr.Database(err)
		}
		if n == 0 {
			return apperr.Authorization("mission could not be deleted")
		}
		return e.appendEvent(ctx, tx, events.MissionDeleted, ownerID, events.KindMission, id, events.EventPayload{
			"delete_quests":   deleteQuests,
			"quests_deleted":  res.QuestsDeleted,
			"quests_orphaned": res.QuestsOrphaned,
		})
	})
	if err != nil {
		return DeleteResult{}, err
	}
	e.invalidate(ctx, ownerID)
	return res, nil
}

// ArchiveMissionQuests archives every non-archived quest under the mission
// and returns how many changed.
func (e Engine) ArchiveMissionQuests(ctx context.Context, ownerID, missionID string) (int64, error) {
	if err := requireOwner(ownerID); err != nil {
		return 0, err
	}
	var n int64
	err := e.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := e.Repo.GetMission(ctx, tx, ownerID, missionID); err != nil {
			return classify(err, "mission")
		}
		var err error
		n, err = e.Repo.ArchiveMissionQuests(ctx, tx, ownerID, missionID, repo.FormatTime(e.now()))
		if err != nil {
			return apperr.Database(err)
		}
		return e.appendEvent(ctx, tx, events.MissionQuestsArchived, ownerID, events.KindMission, missionID, events.EventPayload{"count": n})
	})
	if err != nil {
		return 0, err
	}
	e.invalidate(ctx, ownerID)
	return n, nil
}
