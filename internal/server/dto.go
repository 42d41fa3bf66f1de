package server

import (
	"time"

	"commandops/internal/domain"
	"commandops/internal/engine"
	"commandops/internal/repo"
	"commandops/internal/validate"
)

// Request payloads

type CreateMissionRequest struct {
	Title     string `json:"title"`
	Objective string `json:"objective,omitempty"`
}

func (r CreateMissionRequest) input() validate.MissionInput {
	return validate.MissionInput{Title: r.Title, Objective: r.Objective}
}

type UpdateMissionRequest struct {
	Title     *string `json:"title,omitempty"`
	Objective *string `json:"objective,omitempty"`
}

func (r UpdateMissionRequest) patch() validate.MissionPatch {
	return validate.MissionPatch{Title: r.Title, Objective: r.Objective}
}

type ArchiveMissionRequest struct {
	AfterActionReport string `json:"after_action_report,omitempty"`
}

// input tolerates a request sent without a body.
func (r *ArchiveMissionRequest) input() validate.ArchiveMissionInput {
	if r == nil {
		return validate.ArchiveMissionInput{}
	}
	return validate.ArchiveMissionInput{AfterActionReport: r.AfterActionReport}
}

type CreateQuestRequest struct {
	MissionID     *string    `json:"mission_id,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	IsCritical    bool       `json:"is_critical,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	EstimatedTime *int       `json:"estimated_time,omitempty" doc:"Estimate in minutes"`
}

func (r CreateQuestRequest) input() validate.QuestInput {
	return validate.QuestInput{
		MissionID:     r.MissionID,
		Title:         r.Title,
		Description:   r.Description,
		IsCritical:    r.IsCritical,
		Deadline:      r.Deadline,
		EstimatedTime: r.EstimatedTime,
	}
}

type UpdateQuestRequest struct {
	MissionID     *string    `json:"mission_id,omitempty" doc:"Empty string detaches the quest from its mission"`
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	IsCritical    *bool      `json:"is_critical,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	ClearDeadline bool       `json:"clear_deadline,omitempty"`
	EstimatedTime *int       `json:"estimated_time,omitempty"`
}

func (r UpdateQuestRequest) patch() validate.QuestPatch {
	return validate.QuestPatch{
		MissionID:     r.MissionID,
		Title:         r.Title,
		Description:   r.Description,
		IsCritical:    r.IsCritical,
		Deadline:      r.Deadline,
		ClearDeadline: r.ClearDeadline,
		EstimatedTime: r.EstimatedTime,
	}
}

type ActivateQuestRequest struct {
	FirstTacticalStep string `json:"first_tactical_step,omitempty"`
	EstimatedTime     *int   `json:"estimated_time,omitempty"`
	Emergency         bool   `json:"emergency,omitempty" doc:"Allow one quest beyond the active limit"`
}

func (r *ActivateQuestRequest) input() validate.ActivateInput {
	if r == nil {
		return validate.ActivateInput{}
	}
	return validate.ActivateInput{
		FirstTacticalStep: r.FirstTacticalStep,
		EstimatedTime:     r.EstimatedTime,
		Emergency:         r.Emergency,
	}
}

type CompleteQuestRequest struct {
	ActualTime          *int   `json:"actual_time,omitempty"`
	DebriefNotes        string `json:"debrief_notes,omitempty"`
	DebriefSatisfaction *int   `json:"debrief_satisfaction,omitempty"`
}

func (r *CompleteQuestRequest) input() validate.CompleteInput {
	if r == nil {
		return validate.CompleteInput{}
	}
	return validate.CompleteInput{
		ActualTime:          r.ActualTime,
		DebriefNotes:        r.DebriefNotes,
		DebriefSatisfaction: r.DebriefSatisfaction,
	}
}

type SetQuestStatusRequest struct {
	Status    string `json:"status" doc:"PLANNING, ACTIVE, COMPLETED or ARCHIVED"`
	Emergency bool   `json:"emergency,omitempty"`
}

type FeedbackRequest struct {
	Message string `json:"message"`
}

// Response payloads

type MissionList struct {
	Items []domain.Mission `json:"items"`
}

type QuestList struct {
	Items []domain.Quest `json:"items"`
}

// TransitionResult is a quest after a status change. Admission is present
// when the change activated the quest.
type TransitionResult struct {
	Quest     domain.Quest      `json:"quest"`
	Admission *domain.Admission `json:"admission,omitempty"`
}

func transitionResult(t engine.Transition) TransitionResult {
	return TransitionResult{Quest: t.Quest, Admission: t.Admission}
}

type DeleteMissionResult struct {
	MissionID      string `json:"mission_id"`
	QuestsDeleted  int64  `json:"quests_deleted"`
	QuestsOrphaned int64  `json:"quests_orphaned"`
}

type BulkArchiveResult struct {
	MissionID string `json:"mission_id"`
	Archived  int64  `json:"archived"`
}

type ArchivedQuestPage struct {
	domain.Page[domain.Quest]
}

type ArchivedMissionPage struct {
	domain.Page[domain.Mission]
}

type EventView struct {
	ID         string         `json:"id"`
	TS         time.Time      `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type EventList struct {
	Items []EventView `json:"items"`
}

func eventViews(evts []domain.Event) ([]EventView, error) {
	out := make([]EventView, 0, len(evts))
	for _, e := range evts {
		payload, err := repo.DecodePayload(e)
		if err != nil {
			return nil, err
		}
		out = append(out, EventView{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			Payload:    payload,
		})
	}
	return out, nil
}
