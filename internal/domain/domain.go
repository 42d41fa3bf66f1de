package domain

import "time"

type MissionStatus string

const (
	MissionActive   MissionStatus = "ACTIVE"
	MissionArchived MissionStatus = "ARCHIVED"
)

type QuestStatus string

const (
	QuestPlanning  QuestStatus = "PLANNING"
	QuestActive    QuestStatus = "ACTIVE"
	QuestCompleted QuestStatus = "COMPLETED"
	QuestArchived  QuestStatus = "ARCHIVED"
)

// Valid reports whether s is a known quest status.
func (s QuestStatus) Valid() bool {
	switch s {
	case QuestPlanning, QuestActive, QuestCompleted, QuestArchived:
		return true
	}
	return false
}

// Done reports whether the quest no longer counts as pending work.
func (s QuestStatus) Done() bool {
	return s == QuestCompleted || s == QuestArchived
}

type Mission struct {
	ID                  string        `json:"id"`
	OwnerID             string        `json:"owner_id"`
	Title               string        `json:"title"`
	Objective           string        `json:"objective,omitempty"`
	Status              MissionStatus `json:"status" enum:"ACTIVE,ARCHIVED"`
	ArchivedAt          *time.Time    `json:"archived_at,omitempty"`
	AfterActionReport   string        `json:"after_action_report,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	TotalQuestCount     int           `json:"total_quest_count"`
	CompletedQuestCount int           `json:"completed_quest_count"`
}

// PendingQuests is the number of quests still blocking archival.
func (m Mission) PendingQuests() int {
	return m.TotalQuestCount - m.CompletedQuestCount
}

type Quest struct {
	ID                  string      `json:"id"`
	OwnerID             string      `json:"owner_id"`
	MissionID           *string     `json:"mission_id,omitempty"`
	Title               string      `json:"title"`
	Description         string      `json:"description,omitempty"`
	IsCritical          bool        `json:"is_critical"`
	Status              QuestStatus `json:"status" enum:"PLANNING,ACTIVE,COMPLETED,ARCHIVED"`
	Deadline            *time.Time  `json:"deadline,omitempty"`
	EstimatedTime       *int        `json:"estimated_time,omitempty"`
	ActualTime          *int        `json:"actual_time,omitempty"`
	FirstTacticalStep   string      `json:"first_tactical_step,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	StartedAt           *time.Time  `json:"started_at,omitempty"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty"`
	DebriefNotes        string      `json:"debrief_notes,omitempty"`
	DebriefSatisfaction *int        `json:"debrief_satisfaction,omitempty"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

type Feedback struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID         string    `json:"id"`
	TS         time.Time `json:"ts"`
	Type       string    `json:"type"`
	OwnerID    string    `json:"owner_id"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id,omitempty"`
	Payload    string    `json:"payload_json"`
}

type APIKey struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"key_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats is the aggregate overview of an owner's board.
type Stats struct {
	Planning         int `json:"planning"`
	Active           int `json:"active"`
	Completed        int `json:"completed"`
	Archived         int `json:"archived"`
	ActiveMissions   int `json:"active_missions"`
	ArchivedMissions int `json:"archived_missions"`
	OpenCritical     int `json:"open_critical"`
	OpenUrgent       int `json:"open_urgent"`
}
