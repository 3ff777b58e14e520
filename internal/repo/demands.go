package repo

import (
	"context"
	"database/sql"
	"fmt"

	"fleetline/internal/domain"
)

const demandColumns = `id,action_id,part_id,quantity_required,quantity_issued,status`

func scanDemand(scan func(dest ...any) error) (domain.PartDemand, error) {
	var d domain.PartDemand
	err := scan(&d.ID, &d.ActionID, &d.PartID, &d.QuantityRequired, &d.QuantityIssued, &d.Status)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertPartDemandTx(ctx context.Context, tx *sql.Tx, d domain.PartDemand) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO part_demands(action_id,part_id,quantity_required,quantity_issued,status) VALUES (?,?,?,?,?)`,
		d.ActionID, d.PartID, d.QuantityRequired, d.QuantityIssued, d.Status)
	if err != nil {
		return 0, fmt.Errorf("insert part demand: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) GetPartDemand(ctx context.Context, id int64) (domain.PartDemand, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+demandColumns+` FROM part_demands WHERE id=?`, id)
	return scanDemand(row.Scan)
}

func (r Repo) GetPartDemandTx(ctx context.Context, tx *sql.Tx, id int64) (domain.PartDemand, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+demandColumns+` FROM part_demands WHERE id=?`, id)
	return scanDemand(row.Scan)
}

func (r Repo) ListPartDemands(ctx context.Context, actionID int64) ([]domain.PartDemand, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+demandColumns+` FROM part_demands WHERE action_id=? ORDER BY id`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PartDemand
	for rows.Next() {
		d, err := scanDemand(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) ListPartDemandsTx(ctx context.Context, tx *sql.Tx, actionID int64) ([]domain.PartDemand, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+demandColumns+` FROM part_demands WHERE action_id=? ORDER BY id`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PartDemand
	for rows.Next() {
		d, err := scanDemand(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePartDemandTx(ctx context.Context, tx *sql.Tx, d domain.PartDemand) error {
	_, err := tx.ExecContext(ctx, `UPDATE part_demands SET quantity_required=?, quantity_issued=?, status=? WHERE id=?`,
		d.QuantityRequired, d.QuantityIssued, d.Status, d.ID)
	return err
}

// --- action tool requirements ---

func (r Repo) InsertActionToolTx(ctx context.Context, tx *sql.Tx, t domain.ActionTool) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO action_tools(action_id,tool_id,quantity) VALUES (?,?,?)`,
		t.ActionID, t.ToolID, nullableFloatPtr(t.Quantity))
	if err != nil {
		return 0, fmt.Errorf("insert action tool: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) ListActionTools(ctx context.Context, actionID int64) ([]domain.ActionTool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,action_id,tool_id,quantity FROM action_tools WHERE action_id=? ORDER BY id`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActionTools(rows)
}

func (r Repo) ListActionToolsTx(ctx context.Context, tx *sql.Tx, actionID int64) ([]domain.ActionTool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,action_id,tool_id,quantity FROM action_tools WHERE action_id=? ORDER BY id`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActionTools(rows)
}

func collectActionTools(rows *sql.Rows) ([]domain.ActionTool, error) {
	var res []domain.ActionTool
	for rows.Next() {
		var t domain.ActionTool
		var qty sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.ActionID, &t.ToolID, &qty); err != nil {
			return nil, err
		}
		t.Quantity = floatPtr(qty)
		res = append(res, t)
	}
	return res, rows.Err()
}
