package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fleetline/internal/domain"
)

// Catalog factories follow a find-or-create discipline keyed on stable ids
// (or unique names when the id is zero), so seeding runs are idempotent. The
// bool result reports whether a row was created.

func (r Repo) FindOrCreateActorTx(ctx context.Context, tx *sql.Tx, a domain.Actor, now time.Time) (domain.Actor, bool, error) {
	var got domain.Actor
	err := tx.QueryRowContext(ctx, `SELECT id,username,display_name,role,created_at FROM actors WHERE id=? OR username=?`, a.ID, a.Username).
		Scan(&got.ID, &got.Username, &got.DisplayName, &got.Role, &got.CreatedAt)
	if err == nil {
		return got, false, nil
	}
	if err != sql.ErrNoRows {
		return got, false, err
	}
	a.CreatedAt = now.UTC().Format(time.RFC3339)
	if a.Role == "" {
		a.Role = "technician"
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO actors(id,username,display_name,role,created_at) VALUES (?,?,?,?,?)`,
		idOrNil(a.ID), a.Username, a.DisplayName, a.Role, a.CreatedAt)
	if err != nil {
		return a, false, fmt.Errorf("insert actor %s: %w", a.Username, err)
	}
	if a.ID == 0 {
		a.ID, err = res.LastInsertId()
	}
	return a, true, err
}

func (r Repo) GetActor(ctx context.Context, id int64) (domain.Actor, error) {
	var a domain.Actor
	err := r.DB.QueryRowContext(ctx, `SELECT id,username,display_name,role,created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &a.Username, &a.DisplayName, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) GetActorByUsername(ctx context.Context, username string) (domain.Actor, error) {
	var a domain.Actor
	err := r.DB.QueryRowContext(ctx, `SELECT id,username,display_name,role,created_at FROM actors WHERE username=?`, username).
		Scan(&a.ID, &a.Username, &a.DisplayName, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Actor, error) {
	var a domain.Actor
	err := tx.QueryRowContext(ctx, `SELECT id,username,display_name,role,created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &a.Username, &a.DisplayName, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ActorExists(ctx context.Context, id int64) (bool, error) {
	return r.existsByID(ctx, `SELECT 1 FROM actors WHERE id=?`, id)
}

func (r Repo) FindOrCreateAssetTypeTx(ctx context.Context, tx *sql.Tx, t domain.AssetType) (domain.AssetType, bool, error) {
	var got domain.AssetType
	var desc sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,name,description FROM asset_types WHERE id=? OR name=?`, t.ID, t.Name).
		Scan(&got.ID, &got.Name, &desc)
	if err == nil {
		if desc.Valid {
			got.Description = desc.String
		}
		return got, false, nil
	}
	if err != sql.ErrNoRows {
		return got, false, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO asset_types(id,name,description) VALUES (?,?,?)`,
		idOrNil(t.ID), t.Name, nullable(t.Description))
	if err != nil {
		return t, false, fmt.Errorf("insert asset type %s: %w", t.Name, err)
	}
	if t.ID == 0 {
		t.ID, err = res.LastInsertId()
	}
	return t, true, err
}

func (r Repo) GetAssetTypeByName(ctx context.Context, name string) (domain.AssetType, error) {
	var t domain.AssetType
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description FROM asset_types WHERE name=?`, name).
		Scan(&t.ID, &t.Name, &desc)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return t, err
}

func (r Repo) FindOrCreateAssetTx(ctx context.Context, tx *sql.Tx, a domain.Asset, now time.Time) (domain.Asset, bool, error) {
	var got domain.Asset
	var ident sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,asset_type_id,name,identifier,created_at FROM assets WHERE id=?`, a.ID).
		Scan(&got.ID, &got.AssetTypeID, &got.Name, &ident, &got.CreatedAt)
	if err == nil {
		if ident.Valid {
			got.Identifier = ident.String
		}
		return got, false, nil
	}
	if err != sql.ErrNoRows {
		return got, false, err
	}
	a.CreatedAt = now.UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `INSERT INTO assets(id,asset_type_id,name,identifier,created_at) VALUES (?,?,?,?,?)`,
		idOrNil(a.ID), a.AssetTypeID, a.Name, nullable(a.Identifier), a.CreatedAt)
	if err != nil {
		return a, false, fmt.Errorf("insert asset %s: %w", a.Name, err)
	}
	if a.ID == 0 {
		a.ID, err = res.LastInsertId()
	}
	return a, true, err
}

func (r Repo) GetAsset(ctx context.Context, id int64) (domain.Asset, error) {
	var a domain.Asset
	var ident sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,asset_type_id,name,identifier,created_at FROM assets WHERE id=?`, id).
		Scan(&a.ID, &a.AssetTypeID, &a.Name, &ident, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if ident.Valid {
		a.Identifier = ident.String
	}
	return a, err
}

func (r Repo) AssetExists(ctx context.Context, id int64) (bool, error) {
	return r.existsByID(ctx, `SELECT 1 FROM assets WHERE id=?`, id)
}

func (r Repo) FindOrCreatePartTx(ctx context.Context, tx *sql.Tx, p domain.Part) (domain.Part, bool, error) {
	var got domain.Part
	var unit sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,name,unit FROM parts WHERE id=? OR name=?`, p.ID, p.Name).
		Scan(&got.ID, &got.Name, &unit)
	if err == nil {
		if unit.Valid {
			got.Unit = unit.String
		}
		return got, false, nil
	}
	if err != sql.ErrNoRows {
		return got, false, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO parts(id,name,unit) VALUES (?,?,?)`, idOrNil(p.ID), p.Name, nullable(p.Unit))
	if err != nil {
		return p, false, fmt.Errorf("insert part %s: %w", p.Name, err)
	}
	if p.ID == 0 {
		p.ID, err = res.LastInsertId()
	}
	return p, true, err
}

func (r Repo) GetPartTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Part, error) {
	var p domain.Part
	var unit sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,name,unit FROM parts WHERE id=?`, id).Scan(&p.ID, &p.Name, &unit)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if unit.Valid {
		p.Unit = unit.String
	}
	return p, err
}

func (r Repo) PartExists(ctx context.Context, id int64) (bool, error) {
	return r.existsByID(ctx, `SELECT 1 FROM parts WHERE id=?`, id)
}

func (r Repo) FindOrCreateToolTx(ctx context.Context, tx *sql.Tx, t domain.Tool) (domain.Tool, bool, error) {
	var got domain.Tool
	err := tx.QueryRowContext(ctx, `SELECT id,name FROM tools WHERE id=? OR name=?`, t.ID, t.Name).Scan(&got.ID, &got.Name)
	if err == nil {
		return got, false, nil
	}
	if err != sql.ErrNoRows {
		return got, false, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO tools(id,name) VALUES (?,?)`, idOrNil(t.ID), t.Name)
	if err != nil {
		return t, false, fmt.Errorf("insert tool %s: %w", t.Name, err)
	}
	if t.ID == 0 {
		t.ID, err = res.LastInsertId()
	}
	return t, true, err
}

func (r Repo) GetToolTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Tool, error) {
	var t domain.Tool
	err := tx.QueryRowContext(ctx, `SELECT id,name FROM tools WHERE id=?`, id).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ToolExists(ctx context.Context, id int64) (bool, error) {
	return r.existsByID(ctx, `SELECT 1 FROM tools WHERE id=?`, id)
}

func (r Repo) FindOrCreateProtoActionTx(ctx context.Context, tx *sql.Tx, p domain.ProtoAction) (domain.ProtoAction, bool, error) {
	got, err := r.GetProtoActionTx(ctx, tx, p.ID)
	if err == nil {
		return got, false, nil
	}
	if err != ErrNotFound {
		return got, false, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO proto_actions(id,name,description) VALUES (?,?,?)`,
		idOrNil(p.ID), p.Name, nullable(p.Description))
	if err != nil {
		return p, false, fmt.Errorf("insert proto action %s: %w", p.Name, err)
	}
	if p.ID == 0 {
		p.ID, err = res.LastInsertId()
	}
	return p, true, err
}

func (r Repo) FindOrCreateTemplateActionTx(ctx context.Context, tx *sql.Tx, t domain.TemplateAction) (domain.TemplateAction, bool, error) {
	got, err := r.GetTemplateActionTx(ctx, tx, t.ID)
	if err == nil {
		return got, false, nil
	}
	if err != ErrNotFound {
		return got, false, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO template_actions(id,name,description) VALUES (?,?,?)`,
		idOrNil(t.ID), t.Name, nullable(t.Description))
	if err != nil {
		return t, false, fmt.Errorf("insert template action %s: %w", t.Name, err)
	}
	if t.ID == 0 {
		t.ID, err = res.LastInsertId()
	}
	return t, true, err
}

func (r Repo) FindOrCreateStoreroomTx(ctx context.Context, tx *sql.Tx, s domain.Storeroom) (domain.Storeroom, bool, error) {
	var got domain.Storeroom
	err := tx.QueryRowContext(ctx, `SELECT id,name FROM storerooms WHERE id=? OR name=?`, s.ID, s.Name).Scan(&got.ID, &got.Name)
	if err == nil {
		return got, false, nil
	}
	if err != sql.ErrNoRows {
		return got, false, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO storerooms(id,name) VALUES (?,?)`, idOrNil(s.ID), s.Name)
	if err != nil {
		return s, false, fmt.Errorf("insert storeroom %s: %w", s.Name, err)
	}
	if s.ID == 0 {
		s.ID, err = res.LastInsertId()
	}
	return s, true, err
}

func (r Repo) StoreroomExists(ctx context.Context, id int64) (bool, error) {
	return r.existsByID(ctx, `SELECT 1 FROM storerooms WHERE id=?`, id)
}

// UpsertStockTx sets the absolute stock quantity for a part in a storeroom.
func (r Repo) UpsertStockTx(ctx context.Context, tx *sql.Tx, s domain.StockLevel) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stock(part_id,storeroom_id,quantity) VALUES (?,?,?)
		ON CONFLICT(part_id,storeroom_id) DO UPDATE SET quantity=excluded.quantity`,
		s.PartID, s.StoreroomID, s.Quantity)
	return err
}

func (r Repo) GetStock(ctx context.Context, partID, storeroomID int64) (domain.StockLevel, error) {
	s := domain.StockLevel{PartID: partID, StoreroomID: storeroomID}
	err := r.DB.QueryRowContext(ctx, `SELECT quantity FROM stock WHERE part_id=? AND storeroom_id=?`, partID, storeroomID).Scan(&s.Quantity)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) FindOrCreateDispatchRequestTx(ctx context.Context, tx *sql.Tx, d domain.DispatchRequest, now time.Time) (domain.DispatchRequest, bool, error) {
	var got domain.DispatchRequest
	err := tx.QueryRowContext(ctx, `SELECT id,asset_id,destination,status,requested_by,created_at FROM dispatch_requests WHERE id=?`, d.ID).
		Scan(&got.ID, &got.AssetID, &got.Destination, &got.Status, &got.RequestedBy, &got.CreatedAt)
	if err == nil {
		return got, false, nil
	}
	if err != sql.ErrNoRows {
		return got, false, err
	}
	d.CreatedAt = now.UTC().Format(time.RFC3339)
	if d.Status == "" {
		d.Status = "Requested"
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO dispatch_requests(id,asset_id,destination,status,requested_by,created_at) VALUES (?,?,?,?,?,?)`,
		idOrNil(d.ID), d.AssetID, d.Destination, d.Status, d.RequestedBy, d.CreatedAt)
	if err != nil {
		return d, false, fmt.Errorf("insert dispatch request: %w", err)
	}
	if d.ID == 0 {
		d.ID, err = res.LastInsertId()
	}
	return d, true, err
}

func (r Repo) DispatchRequestExists(ctx context.Context, id int64) (bool, error) {
	return r.existsByID(ctx, `SELECT 1 FROM dispatch_requests WHERE id=?`, id)
}

// --- system markers ---

func (r Repo) GetMarker(ctx context.Context, name string) (domain.SystemMarker, error) {
	var m domain.SystemMarker
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at FROM system_markers WHERE name=?`, name).
		Scan(&m.ID, &m.Name, &desc, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if desc.Valid {
		m.Description = desc.String
	}
	return m, err
}

func (r Repo) SetMarkerTx(ctx context.Context, tx *sql.Tx, name, description string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO system_markers(name,description,created_at) VALUES (?,?,?)
		ON CONFLICT(name) DO NOTHING`, name, nullable(description), now.UTC().Format(time.RFC3339))
	return err
}

func idOrNil(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
