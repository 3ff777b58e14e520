package engine

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"fleetline/internal/domain"
	"fleetline/internal/narrate"
	"fleetline/internal/repo"
)

// BlockerManager records capability-reducing conditions and keeps the
// event's capability status derived from the active set: the most
// restrictive open blocker wins, the configured baseline applies when none
// remain.
type BlockerManager struct {
	ctx *Context
}

type BlockerOpenOptions struct {
	StatusCode string
	Reason     string
	Priority   *string
	StartTime  string // RFC3339; empty means now
	ActorID    int64
	Comment    string // optional operator override, narrated instead of the generated comment
}

func (m *BlockerManager) List(ctx context.Context) ([]domain.Blocker, error) {
	return m.ctx.Engine.Repo.ListBlockers(ctx, m.ctx.EventID)
}

// Open records a new blocker and recomputes the capability status.
func (m *BlockerManager) Open(ctx context.Context, opts BlockerOpenOptions) (domain.Blocker, error) {
	cfg := m.ctx.Engine.Config
	if _, ok := cfg.SeverityRank(opts.StatusCode); !ok {
		return domain.Blocker{}, UnknownCapabilityCodeError{Code: opts.StatusCode}
	}
	if opts.Priority != nil && !cfg.ValidPriority(*opts.Priority) {
		return domain.Blocker{}, UnknownPriorityError{Priority: *opts.Priority}
	}
	if opts.Reason == "" {
		return domain.Blocker{}, fmt.Errorf("blocker reason is required")
	}
	start := opts.StartTime
	if start == "" {
		start = m.ctx.Engine.nowString()
	} else if _, err := parseTime(start); err != nil {
		return domain.Blocker{}, fmt.Errorf("start time: %w", err)
	}

	var created domain.Blocker
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		if _, err := m.ctx.openEventTx(ctx, tx); err != nil {
			return err
		}
		actor, err := m.ctx.actorTx(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		created = domain.Blocker{
			EventID:    m.ctx.EventID,
			StatusCode: opts.StatusCode,
			Reason:     opts.Reason,
			Priority:   opts.Priority,
			StartTime:  start,
			CreatedBy:  opts.ActorID,
		}
		created.ID, err = m.ctx.Engine.Repo.InsertBlockerTx(ctx, tx, created)
		if err != nil {
			return err
		}
		if err := m.recomputeTx(ctx, tx); err != nil {
			return err
		}
		comment := narrate.BlockerOpened(actor.Username, opts.StatusCode, opts.Reason, opts.Priority)
		if opts.Comment != "" {
			comment = narrate.Human(opts.Comment)
		}
		if err := m.ctx.Engine.narrator().Append(ctx, tx, m.ctx.EventID, opts.ActorID, comment); err != nil {
			return err
		}
		m.ctx.Engine.Log.Info("blocker opened",
			zap.Int64("event_id", m.ctx.EventID), zap.Int64("blocker_id", created.ID),
			zap.String("status_code", opts.StatusCode))
		return nil
	})
	return created, err
}

type BlockerCloseOptions struct {
	EndTime string // RFC3339; empty means now
	Notes   string
	ActorID int64
	Comment string
}

// Close ends an active blocker and recomputes the capability status.
func (m *BlockerManager) Close(ctx context.Context, blockerID int64, opts BlockerCloseOptions) (domain.Blocker, error) {
	var closed domain.Blocker
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		if _, err := m.ctx.openEventTx(ctx, tx); err != nil {
			return err
		}
		b, err := m.blockerInEventTx(ctx, tx, blockerID)
		if err != nil {
			return err
		}
		if b.EndTime != nil {
			return BlockerClosedError{BlockerID: b.ID}
		}
		end := opts.EndTime
		if end == "" {
			end = m.ctx.Engine.nowString()
		}
		endT, err := parseTime(end)
		if err != nil {
			return fmt.Errorf("end time: %w", err)
		}
		startT, err := parseTime(b.StartTime)
		if err != nil {
			return fmt.Errorf("blocker %d start time: %w", b.ID, err)
		}
		if endT.Before(startT) {
			return InvalidTimeRangeError{Start: b.StartTime, End: end}
		}
		actor, err := m.ctx.actorTx(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		notes := b.Notes
		if opts.Notes != "" {
			notes = opts.Notes
		}
		if err := m.ctx.Engine.Repo.CloseBlockerTx(ctx, tx, b.ID, end, notes); err != nil {
			return err
		}
		if err := m.recomputeTx(ctx, tx); err != nil {
			return err
		}
		comment := narrate.BlockerClosed(actor.Username, b.StatusCode, opts.Notes)
		if opts.Comment != "" {
			comment = narrate.Human(opts.Comment)
		}
		if err := m.ctx.Engine.narrator().Append(ctx, tx, m.ctx.EventID, opts.ActorID, comment); err != nil {
			return err
		}
		b.EndTime = &end
		b.Notes = notes
		closed = b
		m.ctx.Engine.Log.Info("blocker closed",
			zap.Int64("event_id", m.ctx.EventID), zap.Int64("blocker_id", b.ID))
		return nil
	})
	return closed, err
}

type BlockerUpdateOptions struct {
	StatusCode *string
	Reason     *string
	Priority   *string
	Notes      *string
	ActorID    int64
}

// Update edits an active blocker in place. A status code change triggers a
// capability recomputation.
func (m *BlockerManager) Update(ctx context.Context, blockerID int64, opts BlockerUpdateOptions) (domain.Blocker, error) {
	cfg := m.ctx.Engine.Config
	if opts.StatusCode != nil {
		if _, ok := cfg.SeverityRank(*opts.StatusCode); !ok {
			return domain.Blocker{}, UnknownCapabilityCodeError{Code: *opts.StatusCode}
		}
	}
	if opts.Priority != nil && *opts.Priority != "" && !cfg.ValidPriority(*opts.Priority) {
		return domain.Blocker{}, UnknownPriorityError{Priority: *opts.Priority}
	}
	var updated domain.Blocker
	err := m.ctx.run(ctx, func(tx *sql.Tx) error {
		if _, err := m.ctx.openEventTx(ctx, tx); err != nil {
			return err
		}
		b, err := m.blockerInEventTx(ctx, tx, blockerID)
		if err != nil {
			return err
		}
		if b.EndTime != nil {
			return BlockerClosedError{BlockerID: b.ID}
		}
		actor, err := m.ctx.actorTx(ctx, tx, opts.ActorID)
		if err != nil {
			return err
		}
		if opts.StatusCode != nil {
			b.StatusCode = *opts.StatusCode
		}
		if opts.Reason != nil {
			b.Reason = *opts.Reason
		}
		if opts.Priority != nil {
			if *opts.Priority == "" {
				b.Priority = nil
			} else {
				b.Priority = opts.Priority
			}
		}
		if opts.Notes != nil {
			b.Notes = *opts.Notes
		}
		if err := m.ctx.Engine.Repo.UpdateBlockerTx(ctx, tx, b); err != nil {
			return err
		}
		if err := m.recomputeTx(ctx, tx); err != nil {
			return err
		}
		if err := m.ctx.Engine.narrator().Append(ctx, tx, m.ctx.EventID, opts.ActorID,
			narrate.BlockerUpdated(actor.Username, b.StatusCode)); err != nil {
			return err
		}
		updated = b
		return nil
	})
	return updated, err
}

// recomputeTx derives the event capability status from the active blockers.
// Severity ties go to the most recently opened blocker, which the repo's
// newest-first ordering makes the first winner.
func (m *BlockerManager) recomputeTx(ctx context.Context, tx *sql.Tx) error {
	cfg := m.ctx.Engine.Config
	active, err := m.ctx.Engine.Repo.ListActiveBlockersTx(ctx, tx, m.ctx.EventID)
	if err != nil {
		return err
	}
	code := cfg.Capability.Baseline
	best := -1
	for _, b := range active {
		rank, ok := cfg.SeverityRank(b.StatusCode)
		if !ok {
			return UnknownCapabilityCodeError{Code: b.StatusCode}
		}
		if rank > best {
			best = rank
			code = b.StatusCode
		}
	}
	ev, err := m.ctx.Engine.Repo.GetEventTx(ctx, tx, m.ctx.EventID)
	if err != nil {
		return err
	}
	if ev.CapabilityStatus == code {
		return nil
	}
	if err := m.ctx.Engine.Repo.UpdateCapabilityStatusTx(ctx, tx, m.ctx.EventID, code, m.ctx.Engine.nowString()); err != nil {
		return err
	}
	m.ctx.Engine.Log.Info("capability status changed",
		zap.Int64("event_id", m.ctx.EventID),
		zap.String("from", ev.CapabilityStatus), zap.String("to", code))
	return nil
}

func (m *BlockerManager) blockerInEventTx(ctx context.Context, tx *sql.Tx, blockerID int64) (domain.Blocker, error) {
	b, err := m.ctx.Engine.Repo.GetBlockerTx(ctx, tx, blockerID)
	if err != nil {
		return b, fmt.Errorf("blocker %d: %w", blockerID, err)
	}
	if b.EventID != m.ctx.EventID {
		return b, fmt.Errorf("blocker %d: %w", blockerID, repo.ErrNotFound)
	}
	return b, nil
}
