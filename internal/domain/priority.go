package domain

import (
	"slices"
	"time"
)

// Priority tiers, lowest number first.
const (
	PriorityCriticalUrgent = 1
	PriorityCritical       = 2
	PriorityUrgent         = 3
	PriorityRoutine        = 4
)

// IsUrgent reports whether the quest's deadline falls on or before the
// calendar day of now, in now's location. Quests without a deadline are
// never urgent.
func IsUrgent(q Quest, now time.Time) bool {
	if q.Deadline == nil {
		return false
	}
	return !startOfDay(*q.Deadline, now.Location()).After(startOfDay(now, now.Location()))
}

// Priority returns the 1..4 tier of q evaluated at now.
func Priority(q Quest, now time.Time) int {
	urgent := IsUrgent(q, now)
	switch {
	case q.IsCritical && urgent:
		return PriorityCriticalUrgent
	case q.IsCritical:
		return PriorityCritical
	case urgent:
		return PriorityUrgent
	default:
		return PriorityRoutine
	}
}

// SortByPriority returns a new slice ordered for display. Open quests come
// first by ascending priority, oldest first within a tier. Completed quests
// follow, most recently completed first; a missing completedAt sorts last.
func SortByPriority(quests []Quest, now time.Time) []Quest {
	out := slices.Clone(quests)
	slices.SortStableFunc(out, func(a, b Quest) int {
		ac, bc := a.Status == QuestCompleted, b.Status == QuestCompleted
		switch {
		case ac && bc:
			return compareCompletedDesc(a.CompletedAt, b.CompletedAt)
		case ac:
			return 1
		case bc:
			return -1
		}
		if pa, pb := Priority(a, now), Priority(b, now); pa != pb {
			return pa - pb
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func compareCompletedDesc(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return b.Compare(*a)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
