package repo

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"commandops/internal/domain"
)

func (r Repo) InsertFeedback(ctx context.Context, tx *sqlx.Tx, f domain.Feedback) error {
	ext := r.ext(tx)
	_, err := ext.ExecContext(ctx, ext.Rebind(`INSERT INTO feedback(id, owner_id, message, created_at) VALUES (?,?,?,?)`),
		f.ID, f.OwnerID, f.Message, FormatTime(f.CreatedAt))
	return err
}

type eventRow struct {
	ID         string `db:"id"`
	TS         string `db:"ts"`
	Type       string `db:"type"`
	OwnerID    string `db:"owner_id"`
	EntityKind string `db:"entity_kind"`
	EntityID   string `db:"entity_id"`
	Payload    string `db:"payload_json"`
}

// ListEvents returns the owner's most recent events, newest first.
func (r Repo) ListEvents(ctx context.Context, ownerID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []eventRow
	err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(`SELECT id, ts, type, owner_id, entity_kind, entity_id, payload_json
FROM events WHERE owner_id=? ORDER BY ts DESC, id DESC LIMIT ?`), ownerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		ts, err := parseTime(row.TS)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Event{
			ID: row.ID, TS: ts, Type: row.Type, OwnerID: row.OwnerID,
			EntityKind: row.EntityKind, EntityID: row.EntityID, Payload: row.Payload,
		})
	}
	return out, nil
}

// DecodePayload unmarshals an event payload into a generic map.
func DecodePayload(e domain.Event) (map[string]any, error) {
	out := map[string]any{}
	if e.Payload == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(e.Payload), &out)
	return out, err
}
