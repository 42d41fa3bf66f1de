package repo

import (
	"context"
	"strings"

	"commandops/internal/domain"
)

// ArchivedQuests pages the owner's archived (and optionally completed)
// quests, most recently completed first.
func (r Repo) ArchivedQuests(ctx context.Context, ownerID string, f domain.ArchiveFilter) ([]domain.Quest, int, error) {
	clauses := []string{"owner_id=?"}
	args := []any{ownerID}
	if f.IncludeCompleted {
		clauses = append(clauses, "status IN ('ARCHIVED', 'COMPLETED')")
	} else {
		clauses = append(clauses, "status='ARCHIVED'")
	}
	if f.Query != "" {
		clauses = append(clauses, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(debrief_notes) LIKE ? ESCAPE '\')`)
		p := likePattern(f.Query)
		args = append(args, p, p, p)
	}
	if f.From != nil {
		clauses = append(clauses, "completed_at >= ?")
		args = append(args, FormatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "completed_at <= ?")
		args = append(args, FormatTime(*f.To))
	}
	if f.Satisfaction != nil {
		clauses = append(clauses, "debrief_satisfaction=?")
		args = append(args, *f.Satisfaction)
	}
	if f.Critical != nil {
		clauses = append(clauses, "is_critical=?")
		args = append(args, boolToInt(*f.Critical))
	}
	if f.MissionID != nil {
		clauses = append(clauses, "mission_id=?")
		args = append(args, *f.MissionID)
	}
	where := ` WHERE ` + strings.Join(clauses, " AND ")

	var total int
	if err := r.DB.GetContext(ctx, &total, r.DB.Rebind(`SELECT COUNT(*) FROM quests`+where), args...); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + questColumns + ` FROM quests` + where +
		` ORDER BY CASE WHEN completed_at IS NULL THEN 1 ELSE 0 END, completed_at DESC, updated_at DESC, id LIMIT ? OFFSET ?`
	var rows []questRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), append(args, f.PageSize, f.Offset())...); err != nil {
		return nil, 0, err
	}
	quests, err := questsFromRows(rows)
	return quests, total, err
}

// ArchivedMissions pages the owner's archived missions, most recently
// archived first. The date range applies to archivedAt.
func (r Repo) ArchivedMissions(ctx context.Context, ownerID string, f domain.ArchiveFilter) ([]domain.Mission, int, error) {
	clauses := []string{"m.owner_id=?", "m.status='ARCHIVED'"}
	args := []any{ownerID}
	if f.Query != "" {
		clauses = append(clauses, `(LOWER(m.title) LIKE ? ESCAPE '\' OR LOWER(m.objective) LIKE ? ESCAPE '\' OR LOWER(m.after_action_report) LIKE ? ESCAPE '\')`)
		p := likePattern(f.Query)
		args = append(args, p, p, p)
	}
	if f.From != nil {
		clauses = append(clauses, "m.archived_at >= ?")
		args = append(args, FormatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "m.archived_at <= ?")
		args = append(args, FormatTime(*f.To))
	}
	where := ` WHERE ` + strings.Join(clauses, " AND ")

	var total int
	if err := r.DB.GetContext(ctx, &total, r.DB.Rebind(`SELECT COUNT(*) FROM missions m`+where), args...); err != nil {
		return nil, 0, err
	}
	query := missionSelect + where + ` ORDER BY m.archived_at DESC, m.id LIMIT ? OFFSET ?`
	var rows []missionRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), append(args, f.PageSize, f.Offset())...); err != nil {
		return nil, 0, err
	}
	missions, err := missionsFromRows(rows)
	return missions, total, err
}
