package repo

import (
	"context"

	"fleetline/internal/domain"
)

// ListNarration returns all narration rows for an event, oldest first.
func (r Repo) ListNarration(ctx context.Context, eventID int64) ([]domain.NarrationEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,event_id,ts,actor_id,provenance,body FROM narration WHERE event_id=? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.NarrationEntry
	for rows.Next() {
		var n domain.NarrationEntry
		if err := rows.Scan(&n.ID, &n.EventID, &n.TS, &n.ActorID, &n.Provenance, &n.Body); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// TailNarration returns the last n entries across all events, oldest first.
// With eventID > 0 the tail is scoped to one event.
func (r Repo) TailNarration(ctx context.Context, eventID int64, n int) ([]domain.NarrationEntry, error) {
	query := `SELECT id,event_id,ts,actor_id,provenance,body FROM narration`
	args := []any{}
	if eventID > 0 {
		query += ` WHERE event_id=?`
		args = append(args, eventID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.NarrationEntry
	for rows.Next() {
		var e domain.NarrationEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.TS, &e.ActorID, &e.Provenance, &e.Body); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}
