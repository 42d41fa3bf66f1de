package domain

import (
	"math"
	"time"
)

const momentumWindow = 7 * 24 * time.Hour

// Analytics is a derived, read-only summary of an owner's quests.
type Analytics struct {
	OperationalLoad  float64   `json:"operational_load"`
	ActiveCount      int       `json:"active_count"`
	WeeklyMomentum   int       `json:"weekly_momentum"`
	SuccessRate      int       `json:"success_rate"`
	EstimateAccuracy int       `json:"estimate_accuracy"`
	ComputedAt       time.Time `json:"computed_at"`
}

// ComputeAnalytics derives the summary metrics from quests as of now.
func ComputeAnalytics(quests []Quest, now time.Time) Analytics {
	a := Analytics{ComputedAt: now}
	since := now.Add(-momentumWindow)
	var withDeadline, onTime int
	var ratioSum float64
	var ratioN int
	for _, q := range quests {
		switch q.Status {
		case QuestActive:
			a.ActiveCount++
		case QuestCompleted:
			if q.CompletedAt != nil && q.CompletedAt.After(since) && !q.CompletedAt.After(now) {
				a.WeeklyMomentum++
				if q.Deadline != nil {
					withDeadline++
					if !q.CompletedAt.After(*q.Deadline) {
						onTime++
					}
				}
			}
			if q.EstimatedTime != nil && q.ActualTime != nil && *q.EstimatedTime > 0 && *q.ActualTime > 0 {
				est, act := float64(*q.EstimatedTime), float64(*q.ActualTime)
				ratioSum += math.Min(est, act) / math.Max(est, act)
				ratioN++
			}
		}
	}
	a.OperationalLoad = math.Min(float64(a.ActiveCount)/ActiveQuestLimit, 1)
	if withDeadline > 0 {
		a.SuccessRate = int(math.Round(float64(onTime) / float64(withDeadline) * 100))
	}
	if ratioN > 0 {
		a.EstimateAccuracy = int(math.Round(ratioSum / float64(ratioN) * 100))
	}
	return a
}

// ComputeStats counts quests per status and open critical/urgent work.
// Mission counts are filled in by the caller.
func ComputeStats(quests []Quest, now time.Time) Stats {
	var s Stats
	for _, q := range quests {
		switch q.Status {
		case QuestPlanning:
			s.Planning++
		case QuestActive:
			s.Active++
		case QuestCompleted:
			s.Completed++
		case QuestArchived:
			s.Archived++
		}
		if q.Status.Done() {
			continue
		}
		if q.IsCritical {
			s.OpenCritical++
		}
		if IsUrgent(q, now) {
			s.OpenUrgent++
		}
	}
	return s
}
