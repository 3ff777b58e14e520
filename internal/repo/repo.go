package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fleetline/internal/domain"
)

// Repo is a thin raw-SQL repository over the fleetline schema. Mutating
// methods that take a *sql.Tx participate in the caller's transaction; the
// caller owns commit and rollback.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// --- maintenance events ---

const eventColumns = `id,asset_id,status,capability_status,scheduled_start,scheduled_end,start_date,end_date,billable_hours,meter1,meter2,meter3,meter4,created_at,updated_at`

func scanEvent(row *sql.Row) (domain.MaintenanceEvent, error) {
	var e domain.MaintenanceEvent
	var schedStart, schedEnd, startDate, endDate, desc sql.NullString
	var hours, m1, m2, m3, m4 sql.NullFloat64
	_ = desc
	err := row.Scan(&e.ID, &e.AssetID, &e.Status, &e.CapabilityStatus,
		&schedStart, &schedEnd, &startDate, &endDate,
		&hours, &m1, &m2, &m3, &m4, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.ScheduledStart = strPtr(schedStart)
	e.ScheduledEnd = strPtr(schedEnd)
	e.StartDate = strPtr(startDate)
	e.EndDate = strPtr(endDate)
	e.BillableHours = floatPtr(hours)
	e.Meter1, e.Meter2, e.Meter3, e.Meter4 = floatPtr(m1), floatPtr(m2), floatPtr(m3), floatPtr(m4)
	return e, nil
}

func (r Repo) GetEvent(ctx context.Context, id int64) (domain.MaintenanceEvent, error) {
	return scanEvent(r.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM maintenance_events WHERE id=?`, id))
}

func (r Repo) GetEventTx(ctx context.Context, tx *sql.Tx, id int64) (domain.MaintenanceEvent, error) {
	return scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM maintenance_events WHERE id=?`, id))
}

func (r Repo) ListEvents(ctx context.Context, limit int) ([]domain.MaintenanceEvent, error) {
	query := `SELECT id FROM maintenance_events ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	var res []domain.MaintenanceEvent
	for _, id := range ids {
		e, err := r.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// CreateEventTx inserts a maintenance event with its action set. Events are
// normally born in the scheduling workflow upstream of this library; this
// factory exists for seeding and the CLI.
func (r Repo) CreateEventTx(ctx context.Context, tx *sql.Tx, id, assetID int64, capabilityBaseline string, scheduledStart, scheduledEnd *string, now time.Time) (domain.MaintenanceEvent, error) {
	ts := now.UTC().Format(time.RFC3339)
	var res sql.Result
	var err error
	if id > 0 {
		res, err = tx.ExecContext(ctx, `INSERT INTO maintenance_events(id,asset_id,status,capability_status,scheduled_start,scheduled_end,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
			id, assetID, domain.EventStatusOpen, capabilityBaseline, nullableStringPtr(scheduledStart), nullableStringPtr(scheduledEnd), ts, ts)
	} else {
		res, err = tx.ExecContext(ctx, `INSERT INTO maintenance_events(asset_id,status,capability_status,scheduled_start,scheduled_end,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
			assetID, domain.EventStatusOpen, capabilityBaseline, nullableStringPtr(scheduledStart), nullableStringPtr(scheduledEnd), ts, ts)
	}
	if err != nil {
		return domain.MaintenanceEvent{}, fmt.Errorf("insert event: %w", err)
	}
	eventID := id
	if eventID == 0 {
		eventID, err = res.LastInsertId()
		if err != nil {
			return domain.MaintenanceEvent{}, err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO action_sets(event_id) VALUES (?)`, eventID); err != nil {
		return domain.MaintenanceEvent{}, fmt.Errorf("insert action set: %w", err)
	}
	return r.GetEventTx(ctx, tx, eventID)
}

func (r Repo) SetEventStartDateTx(ctx context.Context, tx *sql.Tx, id int64, start, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE maintenance_events SET start_date=?, updated_at=? WHERE id=?`, start, updatedAt, id)
	return err
}

func (r Repo) UpdateCapabilityStatusTx(ctx context.Context, tx *sql.Tx, id int64, code, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE maintenance_events SET capability_status=?, updated_at=? WHERE id=?`, code, updatedAt, id)
	return err
}

func (r Repo) EventExists(ctx context.Context, id int64) (bool, error) {
	return r.existsByID(ctx, `SELECT 1 FROM maintenance_events WHERE id=?`, id)
}

// --- action sets / actions ---

func (r Repo) GetActionSetByEvent(ctx context.Context, eventID int64) (domain.ActionSet, error) {
	var s domain.ActionSet
	err := r.DB.QueryRowContext(ctx, `SELECT id,event_id FROM action_sets WHERE event_id=?`, eventID).Scan(&s.ID, &s.EventID)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) GetActionSetTx(ctx context.Context, tx *sql.Tx, id int64) (domain.ActionSet, error) {
	var s domain.ActionSet
	err := tx.QueryRowContext(ctx, `SELECT id,event_id FROM action_sets WHERE id=?`, id).Scan(&s.ID, &s.EventID)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) CountActionsTx(ctx context.Context, tx *sql.Tx, setID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM actions WHERE action_set_id=?`, setID).Scan(&n)
	return n, err
}

// ShiftActionsUpTx bumps every seq >= fromSeq by one. The shift runs in two
// passes through negative values so the UNIQUE(action_set_id, seq) constraint
// never sees a transient duplicate.
func (r Repo) ShiftActionsUpTx(ctx context.Context, tx *sql.Tx, setID int64, fromSeq int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE actions SET seq = -(seq + 1) WHERE action_set_id=? AND seq >= ?`, setID, fromSeq); err != nil {
		return fmt.Errorf("shift actions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE actions SET seq = -seq WHERE action_set_id=? AND seq < 0`, setID); err != nil {
		return fmt.Errorf("shift actions: %w", err)
	}
	return nil
}

// CloseActionGapTx pulls every seq > afterSeq down by one after a deletion.
func (r Repo) CloseActionGapTx(ctx context.Context, tx *sql.Tx, setID int64, afterSeq int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE actions SET seq = -(seq - 1) WHERE action_set_id=? AND seq > ?`, setID, afterSeq); err != nil {
		return fmt.Errorf("close action gap: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE actions SET seq = -seq WHERE action_set_id=? AND seq < 0`, setID); err != nil {
		return fmt.Errorf("close action gap: %w", err)
	}
	return nil
}

func (r Repo) InsertActionTx(ctx context.Context, tx *sql.Tx, a domain.Action) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO actions(action_set_id,seq,name,description,source,completed,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		a.ActionSetID, a.Seq, a.Name, nullable(a.Description), a.Source, a.Completed, a.CreatedBy, a.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	return res.LastInsertId()
}

const actionColumns = `id,action_set_id,seq,name,description,source,completed,created_by,created_at`

func scanAction(scan func(dest ...any) error) (domain.Action, error) {
	var a domain.Action
	var desc sql.NullString
	err := scan(&a.ID, &a.ActionSetID, &a.Seq, &a.Name, &desc, &a.Source, &a.Completed, &a.CreatedBy, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if desc.Valid {
		a.Description = desc.String
	}
	return a, err
}

func (r Repo) GetAction(ctx context.Context, id int64) (domain.Action, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id)
	return scanAction(row.Scan)
}

func (r Repo) GetActionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Action, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id)
	return scanAction(row.Scan)
}

func (r Repo) ListActions(ctx context.Context, setID int64) ([]domain.Action, error) {
	return r.listActions(ctx, r.DB, setID)
}

func (r Repo) ListActionsTx(ctx context.Context, tx *sql.Tx, setID int64) ([]domain.Action, error) {
	return r.listActions(ctx, tx, setID)
}

func (r Repo) listActions(ctx context.Context, q querier, setID int64) ([]domain.Action, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE action_set_id=? ORDER BY seq`, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Action
	for rows.Next() {
		a, err := scanAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteActionTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- proto / template libraries ---

func (r Repo) GetProtoActionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.ProtoAction, error) {
	var p domain.ProtoAction
	var desc sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,name,description FROM proto_actions WHERE id=?`, id).Scan(&p.ID, &p.Name, &desc)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) GetTemplateActionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.TemplateAction, error) {
	var t domain.TemplateAction
	var desc sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,name,description FROM template_actions WHERE id=?`, id).Scan(&t.ID, &t.Name, &desc)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return t, err
}

func (r Repo) existsByID(ctx context.Context, query string, id int64) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
