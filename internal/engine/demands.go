package engine

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"fleetline/internal/domain"
	"fleetline/internal/narrate"
)

// DemandManager runs the part demand lifecycle. Issued quantity never
// exceeds required and never goes negative; the status follows the
// quantities: a demand becomes Issued exactly when issued equals required,
// and partial issuance leaves it Approved. Approve is bookkeeping for the
// review workflow, not a gate on issuing.
type DemandManager struct {
	ctx *Context
}

func (m *DemandManager) List(ctx context.Context, actionID int64) ([]domain.PartDemand, error) {
	return m.ctx.Engine.Repo.ListPartDemands(ctx, actionID)
}

// Create records a new demand in Requested status.
func (m *DemandManager) Create(ctx context.Context, actionID, partID int64, quantity float64, actorID int64) (domain.PartDemand, error) {
	if quantity <= 0 {
		return domain.PartDemand{}, InvalidQuantityError{Quantity: quantity, Reason: "required quantity must be positive"}
	}
	var created domain.PartDemand
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		if _, err := m.ctx.openEventTx(ctx, tx); err != nil {
			return err
		}
		if _, err := m.ctx.Actions().actionInEventTx(ctx, tx, actionID); err != nil {
			return err
		}
		part, err := m.ctx.Engine.Repo.GetPartTx(ctx, tx, partID)
		if err != nil {
			return fmt.Errorf("part %d: %w", partID, err)
		}
		actor, err := m.ctx.actorTx(ctx, tx, actorID)
		if err != nil {
			return err
		}
		created = domain.PartDemand{
			ActionID:         actionID,
			PartID:           partID,
			QuantityRequired: quantity,
			Status:           domain.DemandStatusRequested,
		}
		created.ID, err = m.ctx.Engine.Repo.InsertPartDemandTx(ctx, tx, created)
		if err != nil {
			return err
		}
		if err := m.ctx.Engine.narrator().Append(ctx, tx, m.ctx.EventID, actorID,
			narrate.PartDemandCreated(part.Name, quantity, actor.Username)); err != nil {
			return err
		}
		m.ctx.Engine.Log.Info("part demand created",
			zap.Int64("event_id", m.ctx.EventID), zap.Int64("demand_id", created.ID),
			zap.Int64("part_id", partID), zap.Float64("quantity", quantity))
		return nil
	})
	return created, err
}

// Approve moves a Requested demand to Approved.
func (m *DemandManager) Approve(ctx context.Context, demandID, actorID int64) (domain.PartDemand, error) {
	return m.mutate(ctx, demandID, actorID, func(d *domain.PartDemand, part domain.Part, actor domain.Actor) (narrate.Comment, error) {
		if d.Status != domain.DemandStatusRequested {
			return narrate.Comment{}, DemandStateError{DemandID: d.ID, Status: d.Status, Op: "approve"}
		}
		d.Status = domain.DemandStatusApproved
		return narrate.PartDemandUpdated(part.Name, d.QuantityRequired, actor.Username), nil
	})
}

// Issue records quantity handed out against a demand. Approval is not a
// prerequisite: issuing against a Requested demand moves it through Approved
// implicitly, and it becomes Issued at full satisfaction.
func (m *DemandManager) Issue(ctx context.Context, demandID int64, quantity float64, actorID int64) (domain.PartDemand, error) {
	if quantity <= 0 {
		return domain.PartDemand{}, InvalidQuantityError{Quantity: quantity, Reason: "issue quantity must be positive"}
	}
	return m.mutate(ctx, demandID, actorID, func(d *domain.PartDemand, part domain.Part, actor domain.Actor) (narrate.Comment, error) {
		if d.Status == domain.DemandStatusCancelled {
			return narrate.Comment{}, DemandStateError{DemandID: d.ID, Status: d.Status, Op: "issue"}
		}
		remaining := d.QuantityRequired - d.QuantityIssued
		if quantity > remaining {
			return narrate.Comment{}, OverIssueError{DemandID: d.ID, Requested: quantity, Remaining: remaining}
		}
		d.QuantityIssued += quantity
		if d.QuantityIssued == d.QuantityRequired {
			d.Status = domain.DemandStatusIssued
		} else {
			d.Status = domain.DemandStatusApproved
		}
		return narrate.PartDemandIssued(part.Name, quantity, d.QuantityIssued, d.QuantityRequired, actor.Username), nil
	})
}

// UndoIssue returns quantity to stock, reverting the status to Approved when
// the demand is no longer fully issued.
func (m *DemandManager) UndoIssue(ctx context.Context, demandID int64, quantity float64, actorID int64) (domain.PartDemand, error) {
	if quantity <= 0 {
		return domain.PartDemand{}, InvalidQuantityError{Quantity: quantity, Reason: "undo quantity must be positive"}
	}
	return m.mutate(ctx, demandID, actorID, func(d *domain.PartDemand, part domain.Part, actor domain.Actor) (narrate.Comment, error) {
		if d.Status != domain.DemandStatusApproved && d.Status != domain.DemandStatusIssued {
			return narrate.Comment{}, DemandStateError{DemandID: d.ID, Status: d.Status, Op: "undo issue"}
		}
		if quantity > d.QuantityIssued {
			return narrate.Comment{}, InvalidQuantityError{Quantity: quantity, Reason: fmt.Sprintf("only %g issued", d.QuantityIssued)}
		}
		d.QuantityIssued -= quantity
		d.Status = domain.DemandStatusApproved
		return narrate.PartDemandIssueUndone(part.Name, quantity, actor.Username), nil
	})
}

// Cancel withdraws a demand with nothing issued against it.
func (m *DemandManager) Cancel(ctx context.Context, demandID, actorID int64) (domain.PartDemand, error) {
	return m.mutate(ctx, demandID, actorID, func(d *domain.PartDemand, part domain.Part, actor domain.Actor) (narrate.Comment, error) {
		if d.Status == domain.DemandStatusCancelled {
			return narrate.Comment{}, DemandStateError{DemandID: d.ID, Status: d.Status, Op: "cancel"}
		}
		if d.QuantityIssued > 0 {
			return narrate.Comment{}, DemandStateError{DemandID: d.ID, Status: d.Status, Op: "cancel with issued quantity"}
		}
		d.Status = domain.DemandStatusCancelled
		return narrate.PartDemandCancelled(part.Name, d.QuantityRequired, actor.Username), nil
	})
}

// Update changes the required quantity. It can never drop below what was
// already issued.
func (m *DemandManager) Update(ctx context.Context, demandID int64, quantityRequired float64, actorID int64) (domain.PartDemand, error) {
	if quantityRequired <= 0 {
		return domain.PartDemand{}, InvalidQuantityError{Quantity: quantityRequired, Reason: "required quantity must be positive"}
	}
	return m.mutate(ctx, demandID, actorID, func(d *domain.PartDemand, part domain.Part, actor domain.Actor) (narrate.Comment, error) {
		if d.Status == domain.DemandStatusCancelled {
			return narrate.Comment{}, DemandStateError{DemandID: d.ID, Status: d.Status, Op: "update"}
		}
		if quantityRequired < d.QuantityIssued {
			return narrate.Comment{}, BelowIssuedError{DemandID: d.ID, Required: quantityRequired, Issued: d.QuantityIssued}
		}
		d.QuantityRequired = quantityRequired
		if d.QuantityIssued == d.QuantityRequired {
			d.Status = domain.DemandStatusIssued
		} else if d.Status == domain.DemandStatusIssued {
			d.Status = domain.DemandStatusApproved
		}
		return narrate.PartDemandUpdated(part.Name, quantityRequired, actor.Username), nil
	})
}

func (m *DemandManager) mutate(ctx context.Context, demandID, actorID int64, fn func(*domain.PartDemand, domain.Part, domain.Actor) (narrate.Comment, error)) (domain.PartDemand, error) {
	var out domain.PartDemand
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		if _, err := m.ctx.openEventTx(ctx, tx); err != nil {
			return err
		}
		d, err := m.demandInEventTx(ctx, tx, demandID)
		if err != nil {
			return err
		}
		part, err := m.ctx.Engine.Repo.GetPartTx(ctx, tx, d.PartID)
		if err != nil {
			return err
		}
		actor, err := m.ctx.actorTx(ctx, tx, actorID)
		if err != nil {
			return err
		}
		comment, err := fn(&d, part, actor)
		if err != nil {
			return err
		}
		if err := m.ctx.Engine.Repo.UpdatePartDemandTx(ctx, tx, d); err != nil {
			return err
		}
		if err := m.ctx.Engine.narrator().Append(ctx, tx, m.ctx.EventID, actorID, comment); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (m *DemandManager) demandInEventTx(ctx context.Context, tx *sql.Tx, demandID int64) (domain.PartDemand, error) {
	d, err := m.ctx.Engine.Repo.GetPartDemandTx(ctx, tx, demandID)
	if err != nil {
		return d, fmt.Errorf("demand %d: %w", demandID, err)
	}
	if _, err := m.ctx.Actions().actionInEventTx(ctx, tx, d.ActionID); err != nil {
		return d, err
	}
	return d, nil
}
