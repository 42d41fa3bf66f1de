package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"commandops/internal/apperr"
	"commandops/internal/domain"
	"commandops/internal/events"
	"commandops/internal/validate"
)

// Transition is the result of a status change. Admission is set when the
// quest became ACTIVE.
type Transition struct {
	Quest     domain.Quest      `json:"quest"`
	Admission *domain.Admission `json:"admission,omitempty"`
}

// ensureAssignable checks that missionID names an active mission of the owner.
func (e Engine) ensureAssignable(ctx context.Context, tx *sqlx.Tx, ownerID, missionID string) error {
	m, err := e.Repo.GetMission(ctx, tx, ownerID, missionID)
	if err != nil {
		return classify(err, "mission")
	}
	if m.Status != domain.MissionActive {
		return apperr.BusinessLogic(domain.ErrMissionArchived)
	}
	return nil
}

func (e Engine) CreateQuest(ctx context.Context, ownerID string, in validate.QuestInput) (domain.Quest, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Quest{}, err
	}
	in, err := in.Validate()
	if err != nil {
		return domain.Quest{}, err
	}
	now := e.now()
	q := domain.Quest{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		MissionID:     in.MissionID,
		Title:         in.Title,
		Description:   in.Description,
		IsCritical:    in.IsCritical,
		Status:        domain.QuestPlanning,
		Deadline:      in.Deadline,
		EstimatedTime: in.EstimatedTime,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		if q.MissionID != nil {
			if err := e.ensureAssignable(ctx, tx, ownerID, *q.MissionID); err != nil {
				return err
			}
		}
		if err := e.Repo.InsertQuest(ctx, tx, q); err != nil {
			return apperr.Database(err)
		}
		return e.appendEvent(ctx, tx, events.QuestCreated, ownerID, events.KindQuest, q.ID, events.EventPayload{
			"is_critical": q.IsCritical,
			"mission_id":  q.MissionID,
		})
	})
	if err != nil {
		return domain.Quest{}, err
	}
	e.invalidate(ctx, ownerID)
	return q, nil
}

func (e Engine) GetQuest(ctx context.Context, ownerID, id string) (domain.Quest, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Quest{}, err
	}
	q, err := e.Repo.GetQuest(ctx, nil, ownerID, id)
	return q, classify(err, "quest")
}

// ListQuests returns the owner's quests in priority order.
func (e Engine) ListQuests(ctx context.Context, ownerID string, f domain.QuestFilter) ([]domain.Quest, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "must be one of PLANNING, ACTIVE, COMPLETED, ARCHIVED"})
	}
	quests, err := e.Repo.ListQuests(ctx, ownerID, f)
	if err != nil {
		return nil, classify(err, "quest")
	}
	return domain.SortByPriority(quests, e.localNow()), nil
}

func (e Engine) UpdateQuest(ctx context.Context, ownerID, id string, patch validate.QuestPatch) (domain.Quest, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Quest{}, err
	}
	patch, err := patch.Validate()
	if err != nil {
		return domain.Quest{}, err
	}
	var out domain.Quest
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		q, err := e.Repo.GetQuest(ctx, tx, ownerID, id)
		if err != nil {
			return classify(err, "quest")
		}
		if q.Status == domain.QuestArchived {
			return apperr.BusinessLogicf("archived quests cannot be edited")
		}
		changed := []string{}
		if patch.MissionID != nil {
			if *patch.MissionID == "" {
				q.MissionID = nil
			} else {
				if err := e.ensureAssignable(ctx, tx, ownerID, *patch.MissionID); err != nil {
					return err
				}
				q.MissionID = patch.MissionID
			}
			changed = append(changed, "mission_id")
		}
		if patch.Title != nil {
			q.Title = *patch.Title
			changed = append(changed, "title")
		}
		if patch.Description != nil {
			q.Description = *patch.Description
			changed = append(changed, "description")
		}
		if patch.IsCritical != nil {
			q.IsCritical = *patch.IsCritical
			changed = append(changed, "is_critical")
		}
		if patch.ClearDeadline {
			q.Deadline = nil
			changed = append(changed, "deadline")
		} else if patch.Deadline != nil {
			q.Deadline = patch.Deadline
			changed = append(changed, "deadline")
		}
		if patch.EstimatedTime != nil {
			q.EstimatedTime = patch.EstimatedTime
			changed = append(changed, "estimated_time")
		}
		q.UpdatedAt = e.now()
		ok, err := e.Repo.UpdateQuestIf(ctx, tx, q, q.Status, 0)
		if err != nil {
			return apperr.Database(err)
		}
		if !ok {
			return apperr.Authorization("quest could not be updated")
		}
		out = q
		return e.appendEvent(ctx, tx, events.QuestUpdated, ownerID, events.KindQuest, q.ID, events.EventPayload{"fields": changed})
	})
	if err != nil {
		return domain.Quest{}, err
	}
	e.invalidate(ctx, ownerID)
	return out, nil
}

func (e Engine) DeleteQuest(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	err := e.withTx(ctx, func(tx *sqlx.Tx) error {
		q, err := e.Repo.GetQuest(ctx, tx, ownerID, id)
		if err != nil {
			return classify(err, "quest")
		}
		if err := e.Repo.DeleteQuest(ctx, tx, ownerID, id); err != nil {
			return classify(err, "quest")
		}
		return e.appendEvent(ctx, tx, events.QuestDeleted, ownerID, events.KindQuest, id, events.EventPayload{"status": q.Status})
	})
	if err != nil {
		return err
	}
	e.invalidate(ctx, ownerID)
	return nil
}

// transition moves q to the target status inside tx. Activation goes through
// admission control: the active count is checked up front for a precise
// error and again inside the conditional write.
func (e Engine) transition(ctx context.Context, tx *sqlx.Tx, q *domain.Quest, to domain.QuestStatus, emergency bool) (*domain.Admission, error) {
	from := q.Status
	now := e.now()
	if err := domain.EnsureQuestTransition(from, to); err != nil {
		return nil, apperr.BusinessLogic(err)
	}
	ceiling := 0
	var admission *domain.Admission
	if to == domain.QuestActive {
		if err := e.Repo.LockOwner(ctx, tx, q.OwnerID); err != nil {
			return nil, apperr.Database(err)
		}
		active, err := e.Repo.CountActive(ctx, tx, q.OwnerID)
		if err != nil {
			return nil, apperr.Database(err)
		}
		a, err := domain.AdmitActivation(active, emergency)
		if err != nil {
			return nil, apperr.BusinessLogic(err)
		}
		admission = &a
		ceiling = domain.AdmissionCeiling(emergency)
	}
	if err := domain.ApplyTransition(q, to, now); err != nil {
		return nil, apperr.BusinessLogic(err)
	}
	ok, err := e.Repo.UpdateQuestIf(ctx, tx, *q, from, ceiling)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if !ok {
		if ceiling > 0 {
			return nil, apperr.BusinessLogicf("active quest limit reached by a concurrent activation")
		}
		return nil, apperr.Authorization("quest could not be updated")
	}
	return admission, nil
}

// ActivateQuest moves a PLANNING quest to ACTIVE subject to the active cap.
func (e Engine) ActivateQuest(ctx context.Context, ownerID, id string, in validate.ActivateInput) (Transition, error) {
	if err := requireOwner(ownerID); err != nil {
		return Transition{}, err
	}
	in, err := in.Validate()
	if err != nil {
		return Transition{}, err
	}
	var out Transition
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		q, err := e.Repo.GetQuest(ctx, tx, ownerID, id)
		if err != nil {
			return classify(err, "quest")
		}
		if in.FirstTacticalStep != "" {
			q.FirstTacticalStep = in.FirstTacticalStep
		}
		if in.EstimatedTime != nil {
			q.EstimatedTime = in.EstimatedTime
		}
		admission, err := e.transition(ctx, tx, &q, domain.QuestActive, in.Emergency)
		if err != nil {
			return err
		}
		out = Transition{Quest: q, Admission: admission}
		return e.appendEvent(ctx, tx, events.QuestActivated, ownerID, events.KindQuest, q.ID, events.EventPayload{
			"is_emergency_deploy": admission.IsEmergencyDeploy,
			"active_count":        admission.ActiveCount,
		})
	})
	if err != nil {
		return Transition{}, err
	}
	e.logEmergency(ctx, out)
	e.invalidate(ctx, ownerID)
	return out, nil
}

// CompleteQuest records the debrief and moves the quest to COMPLETED.
func (e Engine) CompleteQuest(ctx context.Context, ownerID, id string, in validate.CompleteInput) (domain.Quest, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.Quest{}, err
	}
	in, err := in.Validate()
	if err != nil {
		return domain.Quest{}, err
	}
	var out domain.Quest
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		q, err := e.Repo.GetQuest(ctx, tx, ownerID, id)
		if err != nil {
			return classify(err, "quest")
		}
		if in.ActualTime != nil {
			q.ActualTime = in.ActualTime
		}
		if in.DebriefNotes != "" {
			q.DebriefNotes = in.DebriefNotes
		}
		if in.DebriefSatisfaction != nil {
			q.DebriefSatisfaction = in.DebriefSatisfaction
		}
		if _, err := e.transition(ctx, tx, &q, domain.QuestCompleted, false); err != nil {
			return err
		}
		out = q
		payload := events.EventPayload{"on_time": q.Deadline == nil || !q.CompletedAt.After(*q.Deadline)}
		if q.DebriefSatisfaction != nil {
			payload["debrief_satisfaction"] = *q.DebriefSatisfaction
		}
		return e.appendEvent(ctx, tx, events.QuestCompleted, ownerID, events.KindQuest, q.ID, payload)
	})
	if err != nil {
		return domain.Quest{}, err
	}
	e.invalidate(ctx, ownerID)
	return out, nil
}

// SetQuestStatus applies a direct status change, as used by board
// drag-and-drop. Moving to ACTIVE is subject to the active cap.
func (e Engine) SetQuestStatus(ctx context.Context, ownerID, id string, in validate.StatusInput) (Transition, error) {
	if err := requireOwner(ownerID); err != nil {
		return Transition{}, err
	}
	in, err := in.Validate()
	if err != nil {
		return Transition{}, err
	}
	var out Transition
	err = e.withTx(ctx, func(tx *sqlx.Tx) error {
		q, err := e.Repo.GetQuest(ctx, tx, ownerID, id)
		if err != nil {
			return classify(err, "quest")
		}
		from := q.Status
		admission, err := e.transition(ctx, tx, &q, in.Status, in.Emergency)
		if err != nil {
			return err
		}
		out = Transition{Quest: q, Admission: admission}
		payload := events.EventPayload{"from": from, "to": q.Status}
		if admission != nil {
			payload["is_emergency_deploy"] = admission.IsEmergencyDeploy
			payload["active_count"] = admission.ActiveCount
		}
		return e.appendEvent(ctx, tx, events.QuestStatusChanged, ownerID, events.KindQuest, q.ID, payload)
	})
	if err != nil {
		return Transition{}, err
	}
	e.logEmergency(ctx, out)
	e.invalidate(ctx, ownerID)
	return out, nil
}

func (e Engine) logEmergency(ctx context.Context, t Transition) {
	if t.Admission == nil || !t.Admission.IsEmergencyDeploy {
		return
	}
	e.log(ctx).Warn("emergency deploy",
		"owner_id", t.Quest.OwnerID,
		"quest_id", t.Quest.ID,
		"active_count", t.Admission.ActiveCount)
}
