package engine

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"fleetline/internal/domain"
	"fleetline/internal/narrate"
)

// ToolManager records tool requirements against actions.
type ToolManager struct {
	ctx *Context
}

func (m *ToolManager) List(ctx context.Context, actionID int64) ([]domain.ActionTool, error) {
	return m.ctx.Engine.Repo.ListActionTools(ctx, actionID)
}

// Add attaches a tool requirement to an action. Quantity is optional but
// must be positive when given.
func (m *ToolManager) Add(ctx context.Context, actionID, toolID int64, quantity *float64, actorID int64) (domain.ActionTool, error) {
	if quantity != nil && *quantity <= 0 {
		return domain.ActionTool{}, InvalidQuantityError{Quantity: *quantity, Reason: "tool quantity must be positive"}
	}
	var created domain.ActionTool
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		if _, err := m.ctx.openEventTx(ctx, tx); err != nil {
			return err
		}
		action, err := m.ctx.Actions().actionInEventTx(ctx, tx, actionID)
		if err != nil {
			return err
		}
		tool, err := m.ctx.Engine.Repo.GetToolTx(ctx, tx, toolID)
		if err != nil {
			return fmt.Errorf("tool %d: %w", toolID, err)
		}
		actor, err := m.ctx.actorTx(ctx, tx, actorID)
		if err != nil {
			return err
		}
		created = domain.ActionTool{ActionID: actionID, ToolID: toolID, Quantity: quantity}
		created.ID, err = m.ctx.Engine.Repo.InsertActionToolTx(ctx, tx, created)
		if err != nil {
			return err
		}
		if err := m.ctx.Engine.narrator().Append(ctx, tx, m.ctx.EventID, actorID,
			narrate.ToolAdded(tool.Name, action.Name, actor.Username)); err != nil {
			return err
		}
		m.ctx.Engine.Log.Info("tool requirement added",
			zap.Int64("event_id", m.ctx.EventID), zap.Int64("action_id", actionID), zap.Int64("tool_id", toolID))
		return nil
	})
	return created, err
}
