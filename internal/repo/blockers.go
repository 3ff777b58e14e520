package repo

import (
	"context"
	"database/sql"
	"fmt"

	"fleetline/internal/domain"
)

const blockerColumns = `id,event_id,status_code,reason,priority,start_time,end_time,notes,created_by`

func scanBlocker(scan func(dest ...any) error) (domain.Blocker, error) {
	var b domain.Blocker
	var priority, endTime, notes sql.NullString
	err := scan(&b.ID, &b.EventID, &b.StatusCode, &b.Reason, &priority, &b.StartTime, &endTime, &notes, &b.CreatedBy)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	b.Priority = strPtr(priority)
	b.EndTime = strPtr(endTime)
	if notes.Valid {
		b.Notes = notes.String
	}
	return b, err
}

func (r Repo) InsertBlockerTx(ctx context.Context, tx *sql.Tx, b domain.Blocker) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO blockers(event_id,status_code,reason,priority,start_time,end_time,notes,created_by) VALUES (?,?,?,?,?,?,?,?)`,
		b.EventID, b.StatusCode, b.Reason, nullableStringPtr(b.Priority), b.StartTime, nullableStringPtr(b.EndTime), nullable(b.Notes), b.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("insert blocker: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) GetBlocker(ctx context.Context, id int64) (domain.Blocker, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+blockerColumns+` FROM blockers WHERE id=?`, id)
	return scanBlocker(row.Scan)
}

func (r Repo) GetBlockerTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Blocker, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+blockerColumns+` FROM blockers WHERE id=?`, id)
	return scanBlocker(row.Scan)
}

func (r Repo) ListBlockers(ctx context.Context, eventID int64) ([]domain.Blocker, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+blockerColumns+` FROM blockers WHERE event_id=? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBlockers(rows)
}

// ListActiveBlockersTx returns open blockers newest-first, so the first row
// wins severity ties during capability recomputation.
func (r Repo) ListActiveBlockersTx(ctx context.Context, tx *sql.Tx, eventID int64) ([]domain.Blocker, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+blockerColumns+` FROM blockers WHERE event_id=? AND end_time IS NULL ORDER BY start_time DESC, id DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBlockers(rows)
}

func collectBlockers(rows *sql.Rows) ([]domain.Blocker, error) {
	var res []domain.Blocker
	for rows.Next() {
		b, err := scanBlocker(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) CloseBlockerTx(ctx context.Context, tx *sql.Tx, id int64, endTime, notes string) error {
	_, err := tx.ExecContext(ctx, `UPDATE blockers SET end_time=?, notes=? WHERE id=?`, endTime, nullable(notes), id)
	return err
}

func (r Repo) UpdateBlockerTx(ctx context.Context, tx *sql.Tx, b domain.Blocker) error {
	_, err := tx.ExecContext(ctx, `UPDATE blockers SET status_code=?, reason=?, priority=?, notes=? WHERE id=?`,
		b.StatusCode, b.Reason, nullableStringPtr(b.Priority), nullable(b.Notes), b.ID)
	return err
}
