package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"commandops/internal/domain"
)

type questRow struct {
	ID                  string         `db:"id"`
	OwnerID             string         `db:"owner_id"`
	MissionID           sql.NullString `db:"mission_id"`
	Title               string         `db:"title"`
	Description         string         `db:"description"`
	Status              string         `db:"status"`
	IsCritical          int            `db:"is_critical"`
	Deadline            sql.NullString `db:"deadline"`
	StartedAt           sql.NullString `db:"started_at"`
	CompletedAt         sql.NullString `db:"completed_at"`
	EstimatedTime       sql.NullInt64  `db:"estimated_time"`
	ActualTime          sql.NullInt64  `db:"actual_time"`
	FirstTacticalStep   string         `db:"first_tactical_step"`
	DebriefNotes        string         `db:"debrief_notes"`
	DebriefSatisfaction sql.NullInt64  `db:"debrief_satisfaction"`
	CreatedAt           string         `db:"created_at"`
	UpdatedAt           string         `db:"updated_at"`
}

func (row questRow) toDomain() (domain.Quest, error) {
	q := domain.Quest{
		ID:                  row.ID,
		OwnerID:             row.OwnerID,
		MissionID:           stringPtr(row.MissionID),
		Title:               row.Title,
		Description:         row.Description,
		Status:              domain.QuestStatus(row.Status),
		IsCritical:          row.IsCritical != 0,
		EstimatedTime:       intPtr(row.EstimatedTime),
		ActualTime:          intPtr(row.ActualTime),
		FirstTacticalStep:   row.FirstTacticalStep,
		DebriefNotes:        row.DebriefNotes,
		DebriefSatisfaction: intPtr(row.DebriefSatisfaction),
	}
	var err error
	if q.Deadline, err = parseNullTime(row.Deadline); err != nil {
		return q, err
	}
	if q.StartedAt, err = parseNullTime(row.StartedAt); err != nil {
		return q, err
	}
	if q.CompletedAt, err = parseNullTime(row.CompletedAt); err != nil {
		return q, err
	}
	if q.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return q, err
	}
	q.UpdatedAt, err = parseTime(row.UpdatedAt)
	return q, err
}

func questsFromRows(rows []questRow) ([]domain.Quest, error) {
	out := make([]domain.Quest, 0, len(rows))
	for _, row := range rows {
		q, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

const questColumns = `id, owner_id, mission_id, title, description, status, is_critical, deadline,
	started_at, completed_at, estimated_time, actual_time, first_tactical_step,
	debrief_notes, debrief_satisfaction, created_at, updated_at`

func (r Repo) InsertQuest(ctx context.Context, tx *sqlx.Tx, q domain.Quest) error {
	ext := r.ext(tx)
	_, err := ext.ExecContext(ctx, ext.Rebind(`INSERT INTO quests(`+questColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		q.ID, q.OwnerID, nullString(q.MissionID), q.Title, q.Description, string(q.Status), boolToInt(q.IsCritical),
		nullTime(q.Deadline), nullTime(q.StartedAt), nullTime(q.CompletedAt), nullInt(q.EstimatedTime), nullInt(q.ActualTime),
		q.FirstTacticalStep, q.DebriefNotes, nullInt(q.DebriefSatisfaction), FormatTime(q.CreatedAt), FormatTime(q.UpdatedAt))
	return err
}

func (r Repo) GetQuest(ctx context.Context, tx *sqlx.Tx, ownerID, id string) (domain.Quest, error) {
	ext := r.ext(tx)
	var row questRow
	err := sqlx.GetContext(ctx, ext, &row, ext.Rebind(`SELECT `+questColumns+` FROM quests WHERE id=? AND owner_id=?`), id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quest{}, ErrNotFound
	}
	if err != nil {
		return domain.Quest{}, err
	}
	return row.toDomain()
}

// ListQuests returns the owner's quests matching f in creation order.
// Callers apply the priority ordering.
func (r Repo) ListQuests(ctx context.Context, ownerID string, f domain.QuestFilter) ([]domain.Quest, error) {
	clauses := []string{"owner_id=?"}
	args := []any{ownerID}
	switch {
	case f.Status != nil:
		clauses = append(clauses, "status=?")
		args = append(args, string(*f.Status))
	case !f.IncludeArchived:
		clauses = append(clauses, "status<>'ARCHIVED'")
	}
	if f.MissionID != nil {
		clauses = append(clauses, "mission_id=?")
		args = append(args, *f.MissionID)
	} else if f.Unassigned {
		clauses = append(clauses, "mission_id IS NULL")
	}
	query := `SELECT ` + questColumns + ` FROM quests WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at, id`
	var rows []questRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return questsFromRows(rows)
}

// UpdateQuestIf writes every mutable column of q, but only while the stored
// status still equals from. A positive activeCeiling additionally requires
// the owner to have fewer than activeCeiling ACTIVE quests at the moment of
// the write, evaluated in the same statement. It reports whether the row
// was changed.
func (r Repo) UpdateQuestIf(ctx context.Context, tx *sqlx.Tx, q domain.Quest, from domain.QuestStatus, activeCeiling int) (bool, error) {
	ext := r.ext(tx)
	query := `UPDATE quests SET mission_id=?, title=?, description=?, status=?, is_critical=?, deadline=?,
	started_at=?, completed_at=?, estimated_time=?, actual_time=?, first_tactical_step=?,
	debrief_notes=?, debrief_satisfaction=?, updated_at=?
WHERE id=? AND owner_id=? AND status=?`
	args := []any{
		nullString(q.MissionID), q.Title, q.Description, string(q.Status), boolToInt(q.IsCritical), nullTime(q.Deadline),
		nullTime(q.StartedAt), nullTime(q.CompletedAt), nullInt(q.EstimatedTime), nullInt(q.ActualTime), q.FirstTacticalStep,
		q.DebriefNotes, nullInt(q.DebriefSatisfaction), FormatTime(q.UpdatedAt),
		q.ID, q.OwnerID, string(from),
	}
	if activeCeiling > 0 {
		query += ` AND (SELECT COUNT(*) FROM quests a WHERE a.owner_id=? AND a.status='ACTIVE') < ?`
		args = append(args, q.OwnerID, activeCeiling)
	}
	n, err := affected(ext.ExecContext(ctx, ext.Rebind(query), args...))
	return n > 0, err
}

// CountActive returns how many of the owner's quests are ACTIVE.
func (r Repo) CountActive(ctx context.Context, tx *sqlx.Tx, ownerID string) (int, error) {
	ext := r.ext(tx)
	var n int
	err := sqlx.GetContext(ctx, ext, &n, ext.Rebind(`SELECT COUNT(*) FROM quests WHERE owner_id=? AND status='ACTIVE'`), ownerID)
	return n, err
}

// LockOwner serializes activations for one owner until tx ends. Postgres
// takes a transaction-scoped advisory lock keyed on the owner, since READ
// COMMITTED lets two conditional writes see the same active count. SQLite
// transactions are opened with an immediate write lock already.
func (r Repo) LockOwner(ctx context.Context, tx *sqlx.Tx, ownerID string) error {
	if r.DB.DriverName() != "postgres" {
		return nil
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`SELECT pg_advisory_xact_lock(hashtext(?))`), "quests.active:"+ownerID)
	return err
}

func (r Repo) DeleteQuest(ctx context.Context, tx *sqlx.Tx, ownerID, id string) error {
	ext := r.ext(tx)
	n, err := affected(ext.ExecContext(ctx, ext.Rebind(`DELETE FROM quests WHERE id=? AND owner_id=?`), id, ownerID))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveMissionQuests sets every non-archived quest of the owner under the
// mission to ARCHIVED and returns how many changed.
func (r Repo) ArchiveMissionQuests(ctx context.Context, tx *sqlx.Tx, ownerID, missionID, updatedAt string) (int64, error) {
	ext := r.ext(tx)
	return affected(ext.ExecContext(ctx, ext.Rebind(`UPDATE quests SET status='ARCHIVED', updated_at=?
WHERE owner_id=? AND mission_id=? AND status<>'ARCHIVED'`), updatedAt, ownerID, missionID))
}

// DeleteMissionQuests removes the owner's quests under the mission.
func (r Repo) DeleteMissionQuests(ctx context.Context, tx *sqlx.Tx, ownerID, missionID string) (int64, error) {
	ext := r.ext(tx)
	return affected(ext.ExecContext(ctx, ext.Rebind(`DELETE FROM quests WHERE owner_id=? AND mission_id=?`), ownerID, missionID))
}

// OrphanMissionQuests detaches the owner's quests from the mission.
func (r Repo) OrphanMissionQuests(ctx context.Context, tx *sqlx.Tx, ownerID, missionID, updatedAt string) (int64, error) {
	ext := r.ext(tx)
	return affected(ext.ExecContext(ctx, ext.Rebind(`UPDATE quests SET mission_id=NULL, updated_at=?
WHERE owner_id=? AND mission_id=?`), updatedAt, ownerID, missionID))
}
