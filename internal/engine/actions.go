package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fleetline/internal/domain"
	"fleetline/internal/narrate"
	"fleetline/internal/repo"
)

// ActionManager maintains the event's ordered action list. Sequence numbers
// stay contiguous from 1: inserting at position p shifts everything at p and
// beyond up by one, deleting closes the gap.
type ActionManager struct {
	ctx *Context
}

// ActionCreateOptions are parameters for adding an action. Position 0 means
// append at the end; otherwise it must fall in 1..len+1.
type ActionCreateOptions struct {
	Name        string
	Description string
	Position    int
	ActorID     int64
}

func (m *ActionManager) List(ctx context.Context) ([]domain.Action, error) {
	set, err := m.ctx.Engine.Repo.GetActionSetByEvent(ctx, m.ctx.EventID)
	if err != nil {
		return nil, err
	}
	return m.ctx.Engine.Repo.ListActions(ctx, set.ID)
}

// Create adds a blank action authored by the actor.
func (m *ActionManager) Create(ctx context.Context, opts ActionCreateOptions) (domain.Action, error) {
	if opts.Name == "" {
		return domain.Action{}, fmt.Errorf("action name is required")
	}
	return m.insert(ctx, opts.Name, opts.Description, domain.ActionSourceBlank, opts.Position, opts.ActorID,
		func(actor domain.Actor) narrate.Comment { return narrate.ActionCreated(opts.Name, actor.Username) })
}

// CreateFromProto copies name and description from a proto action.
func (m *ActionManager) CreateFromProto(ctx context.Context, protoID int64, position int, actorID int64) (domain.Action, error) {
	var created domain.Action
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		proto, err := m.ctx.Engine.Repo.GetProtoActionTx(ctx, tx, protoID)
		if err != nil {
			return fmt.Errorf("proto action %d: %w", protoID, err)
		}
		created, err = m.insertTx(ctx, tx, proto.Name, proto.Description, domain.ActionSourceProto, position, actorID,
			func(actor domain.Actor) narrate.Comment { return narrate.ActionCreatedFromProto(proto.Name, actor.Username) })
		return err
	})
	return created, err
}

// CreateFromTemplate copies name and description from the template library.
func (m *ActionManager) CreateFromTemplate(ctx context.Context, templateID int64, position int, actorID int64) (domain.Action, error) {
	var created domain.Action
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		tpl, err := m.ctx.Engine.Repo.GetTemplateActionTx(ctx, tx, templateID)
		if err != nil {
			return fmt.Errorf("template action %d: %w", templateID, err)
		}
		created, err = m.insertTx(ctx, tx, tpl.Name, tpl.Description, domain.ActionSourceTemplate, position, actorID,
			func(actor domain.Actor) narrate.Comment { return narrate.ActionCreatedFromTemplate(tpl.Name, actor.Username) })
		return err
	})
	return created, err
}

// DuplicateOptions control what a duplicate carries over beyond name and
// description.
type DuplicateOptions struct {
	Position    int
	ActorID     int64
	CopyDemands bool
	CopyTools   bool
}

// Duplicate copies an existing action of this event into a new position.
func (m *ActionManager) Duplicate(ctx context.Context, actionID int64, opts DuplicateOptions) (domain.Action, error) {
	var created domain.Action
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		src, err := m.actionInEventTx(ctx, tx, actionID)
		if err != nil {
			return err
		}
		created, err = m.insertTx(ctx, tx, src.Name, src.Description, domain.ActionSourceDuplicate, opts.Position, opts.ActorID,
			func(actor domain.Actor) narrate.Comment { return narrate.ActionDuplicated(src.Name, actor.Username) })
		if err != nil {
			return err
		}
		if opts.CopyDemands {
			demands, err := m.ctx.Engine.Repo.ListPartDemandsTx(ctx, tx, src.ID)
			if err != nil {
				return err
			}
			for _, d := range demands {
				if d.Status == domain.DemandStatusCancelled {
					continue
				}
				copyDemand := domain.PartDemand{
					ActionID:         created.ID,
					PartID:           d.PartID,
					QuantityRequired: d.QuantityRequired,
					Status:           domain.DemandStatusRequested,
				}
				if _, err := m.ctx.Engine.Repo.InsertPartDemandTx(ctx, tx, copyDemand); err != nil {
					return err
				}
			}
		}
		if opts.CopyTools {
			tools, err := m.ctx.Engine.Repo.ListActionToolsTx(ctx, tx, src.ID)
			if err != nil {
				return err
			}
			for _, t := range tools {
				t.ID = 0
				t.ActionID = created.ID
				if _, err := m.ctx.Engine.Repo.InsertActionToolTx(ctx, tx, t); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return created, err
}

// Delete removes an action and pulls later sequence numbers down by one.
func (m *ActionManager) Delete(ctx context.Context, actionID, actorID int64) error {
	return m.ctx.run(ctx, func(tx *sql.Tx) error {
		if _, err := m.ctx.openEventTx(ctx, tx); err != nil {
			return err
		}
		a, err := m.actionInEventTx(ctx, tx, actionID)
		if err != nil {
			return err
		}
		actor, err := m.ctx.actorTx(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if err := m.ctx.Engine.Repo.DeleteActionTx(ctx, tx, a.ID); err != nil {
			return err
		}
		if err := m.ctx.Engine.Repo.CloseActionGapTx(ctx, tx, a.ActionSetID, a.Seq); err != nil {
			return err
		}
		if err := m.ctx.Engine.narrator().Append(ctx, tx, m.ctx.EventID, actorID, narrate.ActionDeleted(a.Name, actor.Username)); err != nil {
			return err
		}
		m.ctx.Engine.Log.Info("action deleted",
			zap.Int64("event_id", m.ctx.EventID), zap.Int64("action_id", a.ID), zap.Int("seq", a.Seq))
		return nil
	})
}

func (m *ActionManager) insert(ctx context.Context, name, description, source string, position int, actorID int64, comment func(domain.Actor) narrate.Comment) (domain.Action, error) {
	var created domain.Action
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = m.insertTx(ctx, tx, name, description, source, position, actorID, comment)
		return err
	})
	return created, err
}

func (m *ActionManager) insertTx(ctx context.Context, tx *sql.Tx, name, description, source string, position int, actorID int64, comment func(domain.Actor) narrate.Comment) (domain.Action, error) {
	if _, err := m.ctx.openEventTx(ctx, tx); err != nil {
		return domain.Action{}, err
	}
	set, err := m.actionSetTx(ctx, tx)
	if err != nil {
		return domain.Action{}, err
	}
	count, err := m.ctx.Engine.Repo.CountActionsTx(ctx, tx, set.ID)
	if err != nil {
		return domain.Action{}, err
	}
	if position == 0 {
		position = count + 1
	}
	if position < 1 || position > count+1 {
		return domain.Action{}, InvalidPositionError{Position: position, Max: count + 1}
	}
	actor, err := m.ctx.actorTx(ctx, tx, actorID)
	if err != nil {
		return domain.Action{}, err
	}
	if position <= count {
		if err := m.ctx.Engine.Repo.ShiftActionsUpTx(ctx, tx, set.ID, position); err != nil {
			return domain.Action{}, err
		}
	}
	a := domain.Action{
		ActionSetID: set.ID,
		Seq:         position,
		Name:        name,
		Description: description,
		Source:      source,
		CreatedBy:   actorID,
		CreatedAt:   m.ctx.Engine.now().UTC().Format(time.RFC3339),
	}
	a.ID, err = m.ctx.Engine.Repo.InsertActionTx(ctx, tx, a)
	if err != nil {
		return domain.Action{}, err
	}
	if err := m.ctx.Engine.narrator().Append(ctx, tx, m.ctx.EventID, actorID, comment(actor)); err != nil {
		return domain.Action{}, err
	}
	m.ctx.Engine.Log.Info("action created",
		zap.Int64("event_id", m.ctx.EventID), zap.Int64("action_id", a.ID),
		zap.String("source", source), zap.Int("seq", position))
	return a, nil
}

func (m *ActionManager) actionSetTx(ctx context.Context, tx *sql.Tx) (domain.ActionSet, error) {
	var s domain.ActionSet
	err := tx.QueryRowContext(ctx, `SELECT id,event_id FROM action_sets WHERE event_id=?`, m.ctx.EventID).Scan(&s.ID, &s.EventID)
	if err == sql.ErrNoRows {
		return s, repo.ErrNotFound
	}
	return s, err
}

// actionInEventTx loads an action and checks it belongs to this event.
func (m *ActionManager) actionInEventTx(ctx context.Context, tx *sql.Tx, actionID int64) (domain.Action, error) {
	a, err := m.ctx.Engine.Repo.GetActionTx(ctx, tx, actionID)
	if err != nil {
		return a, fmt.Errorf("action %d: %w", actionID, err)
	}
	set, err := m.ctx.Engine.Repo.GetActionSetTx(ctx, tx, a.ActionSetID)
	if err != nil {
		return a, err
	}
	if set.EventID != m.ctx.EventID {
		return a, fmt.Errorf("action %d: %w", actionID, repo.ErrNotFound)
	}
	return a, nil
}
