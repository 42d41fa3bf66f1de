package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"commandops/internal/repo"
)

const (
	MissionCreated        = "mission.created"
	MissionUpdated        = "mission.updated"
	MissionArchived       = "mission.archived"
	MissionDeleted        = "mission.deleted"
	MissionQuestsArchived = "mission.quests_archived"
	QuestCreated          = "quest.created"
	QuestUpdated          = "quest.updated"
	QuestDeleted          = "quest.deleted"
	QuestActivated        = "quest.activated"
	QuestCompleted        = "quest.completed"
	QuestStatusChanged    = "quest.status_changed"
	FeedbackSubmitted     = "feedback.submitted"
)

const (
	KindMission  = "mission"
	KindQuest    = "quest"
	KindFeedback = "feedback"
)

// Writer appends to the event log inside the caller's transaction so an
// event exists exactly when its change commits.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sqlx.Tx, evtType, ownerID, entityKind, entityID string, payload EventPayload) error {
	if tx == nil {
		return fmt.Errorf("append %s: transaction required", evtType)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO events(id, ts, type, owner_id, entity_kind, entity_id, payload_json) VALUES (?,?,?,?,?,?,?)`),
		uuid.NewString(), repo.FormatTime(now()), evtType, ownerID, entityKind, entityID, string(data))
	return err
}
