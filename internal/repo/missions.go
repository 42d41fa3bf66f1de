package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"commandops/internal/domain"
)

type missionRow struct {
	ID                  string         `db:"id"`
	OwnerID             string         `db:"owner_id"`
	Title               string         `db:"title"`
	Objective           string         `db:"objective"`
	Status              string         `db:"status"`
	AfterActionReport   string         `db:"after_action_report"`
	ArchivedAt          sql.NullString `db:"archived_at"`
	CreatedAt           string         `db:"created_at"`
	UpdatedAt           string         `db:"updated_at"`
	TotalQuestCount     int            `db:"total_quest_count"`
	CompletedQuestCount int            `db:"completed_quest_count"`
}

func (row missionRow) toDomain() (domain.Mission, error) {
	m := domain.Mission{
		ID:                  row.ID,
		OwnerID:             row.OwnerID,
		Title:               row.Title,
		Objective:           row.Objective,
		Status:              domain.MissionStatus(row.Status),
		AfterActionReport:   row.AfterActionReport,
		TotalQuestCount:     row.TotalQuestCount,
		CompletedQuestCount: row.CompletedQuestCount,
	}
	var err error
	if m.ArchivedAt, err = parseNullTime(row.ArchivedAt); err != nil {
		return m, err
	}
	if m.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return m, err
	}
	m.UpdatedAt, err = parseTime(row.UpdatedAt)
	return m, err
}

func missionsFromRows(rows []missionRow) ([]domain.Mission, error) {
	out := make([]domain.Mission, 0, len(rows))
	for _, row := range rows {
		m, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

const missionSelect = `SELECT m.id, m.owner_id, m.title, m.objective, m.status, m.after_action_report,
	m.archived_at, m.created_at, m.updated_at,
	(SELECT COUNT(*) FROM quests q WHERE q.mission_id = m.id AND q.owner_id = m.owner_id) AS total_quest_count,
	(SELECT COUNT(*) FROM quests q WHERE q.mission_id = m.id AND q.owner_id = m.owner_id
		AND q.status IN ('COMPLETED', 'ARCHIVED')) AS completed_quest_count
FROM missions m`

func (r Repo) InsertMission(ctx context.Context, tx *sqlx.Tx, m domain.Mission) error {
	q := r.ext(tx)
	_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO missions(id, owner_id, title, objective, status, after_action_report, archived_at, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`),
		m.ID, m.OwnerID, m.Title, m.Objective, string(m.Status), m.AfterActionReport, nullTime(m.ArchivedAt), FormatTime(m.CreatedAt), FormatTime(m.UpdatedAt))
	return err
}

// GetMission returns the owner's mission with derived quest counts.
func (r Repo) GetMission(ctx context.Context, tx *sqlx.Tx, ownerID, id string) (domain.Mission, error) {
	q := r.ext(tx)
	var row missionRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(missionSelect+` WHERE m.id=? AND m.owner_id=?`), id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Mission{}, ErrNotFound
	}
	if err != nil {
		return domain.Mission{}, err
	}
	return row.toDomain()
}

// ListMissions returns the owner's missions, newest first.
func (r Repo) ListMissions(ctx context.Context, ownerID string, status *domain.MissionStatus) ([]domain.Mission, error) {
	clauses := []string{"m.owner_id=?"}
	args := []any{ownerID}
	if status != nil {
		clauses = append(clauses, "m.status=?")
		args = append(args, string(*status))
	}
	query := missionSelect + ` WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY m.created_at DESC, m.id DESC`
	var rows []missionRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return missionsFromRows(rows)
}

// UpdateMission writes the editable mission fields.
func (r Repo) UpdateMission(ctx context.Context, tx *sqlx.Tx, m domain.Mission) error {
	q := r.ext(tx)
	n, err := affected(q.ExecContext(ctx, q.Rebind(`UPDATE missions SET title=?, objective=?, updated_at=? WHERE id=? AND owner_id=?`),
		m.Title, m.Objective, FormatTime(m.UpdatedAt), m.ID, m.OwnerID))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveMission flips an ACTIVE mission to ARCHIVED provided none of the
// owner's quests under it is still PLANNING or ACTIVE. It reports whether a
// row was changed.
func (r Repo) ArchiveMission(ctx context.Context, tx *sqlx.Tx, m domain.Mission) (bool, error) {
	q := r.ext(tx)
	n, err := affected(q.ExecContext(ctx, q.Rebind(`UPDATE missions
SET status='ARCHIVED', archived_at=?, after_action_report=?, updated_at=?
WHERE id=? AND owner_id=? AND status='ACTIVE'
AND NOT EXISTS (SELECT 1 FROM quests WHERE mission_id=? AND owner_id=? AND status IN ('PLANNING', 'ACTIVE'))`),
		nullTime(m.ArchivedAt), m.AfterActionReport, FormatTime(m.UpdatedAt), m.ID, m.OwnerID, m.ID, m.OwnerID))
	return n > 0, err
}

// DeleteMission removes the mission row and returns the affected count.
func (r Repo) DeleteMission(ctx context.Context, tx *sqlx.Tx, ownerID, id string) (int64, error) {
	q := r.ext(tx)
	return affected(q.ExecContext(ctx, q.Rebind(`DELETE FROM missions WHERE id=? AND owner_id=?`), id, ownerID))
}

// CountMissions returns the owner's active and archived mission counts.
func (r Repo) CountMissions(ctx context.Context, ownerID string) (active, archived int, err error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err = r.DB.SelectContext(ctx, &rows, r.DB.Rebind(`SELECT status, COUNT(*) AS n FROM missions WHERE owner_id=? GROUP BY status`), ownerID)
	if err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		switch domain.MissionStatus(row.Status) {
		case domain.MissionActive:
			active = row.N
		case domain.MissionArchived:
			archived = row.N
		}
	}
	return active, archived, nil
}
