package engine

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"fleetline/internal/domain"
	"fleetline/internal/narrate"
)

// Completion is the only path that moves a maintenance event to Completed.
// The completion UPDATE lives here rather than in the repository so no other
// caller can flip the status or write the closing fields.
type Completion struct {
	ctx *Context
}

type CompletionOptions struct {
	StartDate     string // RFC3339
	EndDate       string // RFC3339
	BillableHours float64
	Meters        [4]*float64
	Comment       string
	ActorID       int64
}

// Complete validates the closing record, writes it with the status flip, and
// narrates a summary folding in the operator comment.
func (s *Completion) Complete(ctx context.Context, opts CompletionOptions) (domain.MaintenanceEvent, error) {
	startT, err := parseTime(opts.StartDate)
	if err != nil {
		return domain.MaintenanceEvent{}, fmt.Errorf("start date: %w", err)
	}
	endT, err := parseTime(opts.EndDate)
	if err != nil {
		return domain.MaintenanceEvent{}, fmt.Errorf("end date: %w", err)
	}
	if endT.Before(startT) {
		return domain.MaintenanceEvent{}, InvalidTimeRangeError{Start: opts.StartDate, End: opts.EndDate}
	}
	if opts.BillableHours < 0 {
		return domain.MaintenanceEvent{}, InvalidQuantityError{Quantity: opts.BillableHours, Reason: "billable hours must not be negative"}
	}
	for i, m := range opts.Meters {
		if m != nil && *m < 0 {
			return domain.MaintenanceEvent{}, InvalidQuantityError{Quantity: *m, Reason: fmt.Sprintf("meter %d reading must not be negative", i+1)}
		}
	}

	var done domain.MaintenanceEvent
	err = s.ctx.run(ctx, func(tx *sql.Tx) error {
		if _, err := s.ctx.openEventTx(ctx, tx); err != nil {
			return err
		}
		actor, err := s.ctx.actorTx(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		meterArg := func(i int) any {
			if opts.Meters[i] == nil {
				return nil
			}
			return *opts.Meters[i]
		}
		_, err = tx.ExecContext(ctx, `UPDATE maintenance_events
			SET status=?, start_date=?, end_date=?, billable_hours=?, meter1=?, meter2=?, meter3=?, meter4=?, updated_at=?
			WHERE id=?`,
			domain.EventStatusCompleted, opts.StartDate, opts.EndDate, opts.BillableHours,
			meterArg(0), meterArg(1), meterArg(2), meterArg(3),
			s.ctx.Engine.nowString(), s.ctx.EventID)
		if err != nil {
			return fmt.Errorf("complete event: %w", err)
		}
		// one entry combining the operator comment with the generated record
		summary := narrate.CompletionSummary(actor.Username, opts.Comment, startT, endT, opts.BillableHours, opts.Meters)
		if err := s.ctx.Engine.narrator().Append(ctx, tx, s.ctx.EventID, opts.ActorID, summary); err != nil {
			return err
		}
		done, err = s.ctx.Engine.Repo.GetEventTx(ctx, tx, s.ctx.EventID)
		if err != nil {
			return err
		}
		s.ctx.Engine.Log.Info("maintenance event completed",
			zap.Int64("event_id", s.ctx.EventID), zap.Float64("billable_hours", opts.BillableHours))
		return nil
	})
	return done, err
}
