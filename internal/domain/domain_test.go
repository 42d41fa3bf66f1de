package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandops/internal/domain"
)

var now = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func intp(v int) *int { return &v }

func TestPriorityTiers(t *testing.T) {
	cases := []struct {
		name     string
		critical bool
		deadline *time.Time
		want     int
	}{
		{"critical overdue", true, at(-48 * time.Hour), 1},
		{"critical due later today", true, at(5 * time.Hour), 1},
		{"critical due tomorrow", true, at(24 * time.Hour), 2},
		{"critical no deadline", true, nil, 2},
		{"routine due today", false, at(-time.Hour), 3},
		{"routine due next week", false, at(7 * 24 * time.Hour), 4},
		{"routine no deadline", false, nil, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := domain.Quest{IsCritical: tc.critical, Deadline: tc.deadline}
			got := domain.Priority(q, now)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.critical && domain.IsUrgent(q, now), got == 1)
		})
	}
}

func TestUrgencyUsesEvaluationClock(t *testing.T) {
	q := domain.Quest{Deadline: at(3 * 24 * time.Hour)}
	assert.False(t, domain.IsUrgent(q, now))
	assert.True(t, domain.IsUrgent(q, now.Add(3*24*time.Hour)))
}

func TestSortByPriorityOpenQuests(t *testing.T) {
	quests := []domain.Quest{
		{ID: "routine-old", CreatedAt: now.Add(-10 * time.Hour)},
		{ID: "crit-urgent", IsCritical: true, Deadline: at(-time.Hour), CreatedAt: now.Add(-time.Hour)},
		{ID: "urgent", Deadline: at(0), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "crit-new", IsCritical: true, CreatedAt: now.Add(-time.Hour)},
		{ID: "crit-old", IsCritical: true, CreatedAt: now.Add(-5 * time.Hour)},
		{ID: "routine-new", CreatedAt: now.Add(-time.Minute)},
	}
	sorted := domain.SortByPriority(quests, now)
	var ids []string
	for _, q := range sorted {
		ids = append(ids, q.ID)
	}
	assert.Equal(t, []string{"crit-urgent", "crit-old", "crit-new", "urgent", "routine-old", "routine-new"}, ids)
	for i := 1; i < len(sorted); i++ {
		pa, pb := domain.Priority(sorted[i-1], now), domain.Priority(sorted[i], now)
		require.LessOrEqual(t, pa, pb)
		if pa == pb {
			require.False(t, sorted[i].CreatedAt.Before(sorted[i-1].CreatedAt))
		}
	}
	assert.Equal(t, "routine-old", quests[0].ID, "input must not be reordered")
}

func TestSortByPriorityCompletedQuests(t *testing.T) {
	quests := []domain.Quest{
		{ID: "no-stamp", Status: domain.QuestCompleted},
		{ID: "older", Status: domain.QuestCompleted, CompletedAt: at(-48 * time.Hour)},
		{ID: "recent", Status: domain.QuestCompleted, CompletedAt: at(-time.Hour)},
	}
	sorted := domain.SortByPriority(quests, now)
	assert.Equal(t, "recent", sorted[0].ID)
	assert.Equal(t, "older", sorted[1].ID)
	assert.Equal(t, "no-stamp", sorted[2].ID)
}

func TestSortByPriorityMixedPutsOpenFirst(t *testing.T) {
	quests := []domain.Quest{
		{ID: "done", Status: domain.QuestCompleted, CompletedAt: at(-time.Hour)},
		{ID: "open", Status: domain.QuestPlanning, CreatedAt: now},
	}
	sorted := domain.SortByPriority(quests, now)
	assert.Equal(t, "open", sorted[0].ID)
}

func TestQuestTransitionTable(t *testing.T) {
	all := []domain.QuestStatus{domain.QuestPlanning, domain.QuestActive, domain.QuestCompleted, domain.QuestArchived}
	legal := map[[2]domain.QuestStatus]bool{
		{domain.QuestPlanning, domain.QuestActive}:     true,
		{domain.QuestPlanning, domain.QuestCompleted}:  true,
		{domain.QuestPlanning, domain.QuestArchived}:   true,
		{domain.QuestActive, domain.QuestPlanning}:     true,
		{domain.QuestActive, domain.QuestCompleted}:    true,
		{domain.QuestActive, domain.QuestArchived}:     true,
		{domain.QuestCompleted, domain.QuestArchived}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			err := domain.EnsureQuestTransition(from, to)
			if legal[[2]domain.QuestStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			var illegal domain.ErrIllegalTransition
			require.True(t, errors.As(err, &illegal), "%s -> %s", from, to)
			assert.Equal(t, from, illegal.From)
			assert.Equal(t, to, illegal.To)
		}
	}
}

func TestApplyTransitionStampsTimes(t *testing.T) {
	q := domain.Quest{Status: domain.QuestPlanning}
	require.NoError(t, domain.ApplyTransition(&q, domain.QuestCompleted, now))
	require.NotNil(t, q.StartedAt)
	require.NotNil(t, q.CompletedAt)
	assert.Equal(t, now, *q.StartedAt)
	assert.Equal(t, now, *q.CompletedAt)

	started := now.Add(-time.Hour)
	q = domain.Quest{Status: domain.QuestActive, StartedAt: &started}
	require.NoError(t, domain.ApplyTransition(&q, domain.QuestPlanning, now))
	require.NoError(t, domain.ApplyTransition(&q, domain.QuestActive, now))
	assert.Equal(t, started, *q.StartedAt)

	q = domain.Quest{Status: domain.QuestArchived}
	assert.Error(t, domain.ApplyTransition(&q, domain.QuestPlanning, now))
	assert.Equal(t, domain.QuestArchived, q.Status)
}

func TestAdmitActivation(t *testing.T) {
	adm, err := domain.AdmitActivation(2, false)
	require.NoError(t, err)
	assert.Equal(t, domain.Admission{IsEmergencyDeploy: false, ActiveCount: 3}, adm)

	_, err = domain.AdmitActivation(3, false)
	var limit domain.ErrActiveLimit
	require.True(t, errors.As(err, &limit))
	assert.Contains(t, err.Error(), "emergency override")

	adm, err = domain.AdmitActivation(3, true)
	require.NoError(t, err)
	assert.Equal(t, domain.Admission{IsEmergencyDeploy: true, ActiveCount: 4}, adm)

	_, err = domain.AdmitActivation(4, true)
	require.Error(t, err)
	assert.Equal(t, 3, domain.AdmissionCeiling(false))
	assert.Equal(t, 4, domain.AdmissionCeiling(true))
}

func TestEstimateAccuracy(t *testing.T) {
	quests := []domain.Quest{
		{Status: domain.QuestCompleted, CompletedAt: at(-time.Hour), EstimatedTime: intp(60), ActualTime: intp(90)},
		{Status: domain.QuestCompleted, CompletedAt: at(-time.Hour), EstimatedTime: intp(0), ActualTime: intp(90)},
		{Status: domain.QuestActive, EstimatedTime: intp(10), ActualTime: intp(10)},
	}
	assert.Equal(t, 67, domain.ComputeAnalytics(quests, now).EstimateAccuracy)
	assert.Equal(t, 0, domain.ComputeAnalytics(nil, now).EstimateAccuracy)
}

func TestSuccessRateAndMomentum(t *testing.T) {
	quests := []domain.Quest{
		{Status: domain.QuestCompleted, CompletedAt: at(-2 * time.Hour), Deadline: at(time.Hour)},
		{Status: domain.QuestCompleted, CompletedAt: at(-3 * 24 * time.Hour), Deadline: at(-2 * 24 * time.Hour)},
		{Status: domain.QuestCompleted, CompletedAt: at(-time.Hour), Deadline: at(-2 * time.Hour)},
		{Status: domain.QuestCompleted, CompletedAt: at(-time.Hour)},
		{Status: domain.QuestCompleted, CompletedAt: at(-10 * 24 * time.Hour), Deadline: at(-20 * 24 * time.Hour)},
	}
	a := domain.ComputeAnalytics(quests, now)
	assert.Equal(t, 4, a.WeeklyMomentum)
	assert.Equal(t, 67, a.SuccessRate)
	assert.Equal(t, 0, domain.ComputeAnalytics(quests[3:4], now).SuccessRate)
}

func TestOperationalLoadSaturates(t *testing.T) {
	active := func(n int) []domain.Quest {
		qs := make([]domain.Quest, n)
		for i := range qs {
			qs[i].Status = domain.QuestActive
		}
		return qs
	}
	assert.InDelta(t, 2.0/3.0, domain.ComputeAnalytics(active(2), now).OperationalLoad, 1e-9)
	assert.Equal(t, 1.0, domain.ComputeAnalytics(active(3), now).OperationalLoad)
	a := domain.ComputeAnalytics(active(4), now)
	assert.Equal(t, 1.0, a.OperationalLoad)
	assert.Equal(t, 4, a.ActiveCount)
}

func TestComputeStats(t *testing.T) {
	quests := []domain.Quest{
		{Status: domain.QuestPlanning, IsCritical: true, Deadline: at(-time.Hour)},
		{Status: domain.QuestActive},
		{Status: domain.QuestCompleted, IsCritical: true},
		{Status: domain.QuestArchived},
	}
	s := domain.ComputeStats(quests, now)
	assert.Equal(t, domain.Stats{Planning: 1, Active: 1, Completed: 1, Archived: 1, OpenCritical: 1, OpenUrgent: 1}, s)
}

func TestEnsureMissionArchivable(t *testing.T) {
	m := domain.Mission{Status: domain.MissionActive, TotalQuestCount: 3, CompletedQuestCount: 2}
	var pending domain.ErrPendingQuests
	require.ErrorAs(t, domain.EnsureMissionArchivable(m), &pending)
	assert.Equal(t, 1, pending.Pending)

	m.CompletedQuestCount = 3
	assert.NoError(t, domain.EnsureMissionArchivable(m))

	m.Status = domain.MissionArchived
	assert.ErrorIs(t, domain.EnsureMissionArchivable(m), domain.ErrMissionArchived)
}
