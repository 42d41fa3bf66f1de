package domain

import (
	"errors"
	"fmt"
)

// ErrMissionArchived is returned when an archived mission is edited or
// archived again.
var ErrMissionArchived = errors.New("mission is archived")

// ErrPendingQuests blocks archival while quests are still open.
type ErrPendingQuests struct {
	Pending int
}

func (e ErrPendingQuests) Error() string {
	return fmt.Sprintf("mission has %d pending quest(s); complete or archive them first", e.Pending)
}

// EnsureMissionArchivable checks that m may move to ARCHIVED.
func EnsureMissionArchivable(m Mission) error {
	if m.Status != MissionActive {
		return ErrMissionArchived
	}
	if n := m.PendingQuests(); n > 0 {
		return ErrPendingQuests{Pending: n}
	}
	return nil
}
