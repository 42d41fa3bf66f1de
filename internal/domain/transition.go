package domain

import (
	"fmt"
	"time"
)

// ErrIllegalTransition is returned for status changes outside the table.
type ErrIllegalTransition struct {
	From QuestStatus
	To   QuestStatus
}

func (e ErrIllegalTransition) Error() string {
	return fmt.Sprintf("invalid quest status transition %s -> %s", e.From, e.To)
}

var questTransitions = map[QuestStatus][]QuestStatus{
	QuestPlanning:  {QuestActive, QuestCompleted, QuestArchived},
	QuestActive:    {QuestPlanning, QuestCompleted, QuestArchived},
	QuestCompleted: {QuestArchived},
	QuestArchived:  nil,
}

// EnsureQuestTransition fails unless from -> to is a legal status change.
func EnsureQuestTransition(from, to QuestStatus) error {
	for _, allowed := range questTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return ErrIllegalTransition{From: from, To: to}
}

// ApplyTransition validates and applies a status change to q in place,
// stamping startedAt/completedAt as needed. Admission control for
// PLANNING -> ACTIVE is the caller's responsibility.
func ApplyTransition(q *Quest, to QuestStatus, now time.Time) error {
	from := q.Status
	if err := EnsureQuestTransition(from, to); err != nil {
		return err
	}
	switch to {
	case QuestActive:
		if q.StartedAt == nil {
			q.StartedAt = &now
		}
	case QuestCompleted:
		q.CompletedAt = &now
		if from == QuestPlanning && q.StartedAt == nil {
			q.StartedAt = &now
		}
	}
	q.Status = to
	q.UpdatedAt = now
	return nil
}
