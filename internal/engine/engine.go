// Package engine implements the maintenance workflow operations. Every
// business mutation runs in one transaction that writes the entity rows and
// the narration rows together, serialized per event.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fleetline/internal/config"
	"fleetline/internal/domain"
	"fleetline/internal/narrate"
	"fleetline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time

	locks *eventLocks
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
		locks:  newEventLocks(),
	}
}

// narrator builds a writer pinned to the engine clock.
func (e *Engine) narrator() narrate.Writer {
	return narrate.Writer{Now: e.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Context scopes operations to one maintenance event. Managers are built
// lazily on first use and reused for the lifetime of the context.
type Context struct {
	Engine  *Engine
	EventID int64

	actions    *ActionManager
	blockers   *BlockerManager
	demands    *DemandManager
	tools      *ToolManager
	completion *Completion
}

func (e *Engine) Context(eventID int64) *Context {
	return &Context{Engine: e, EventID: eventID}
}

func (c *Context) Actions() *ActionManager {
	if c.actions == nil {
		c.actions = &ActionManager{ctx: c}
	}
	return c.actions
}

func (c *Context) Blockers() *BlockerManager {
	if c.blockers == nil {
		c.blockers = &BlockerManager{ctx: c}
	}
	return c.blockers
}

func (c *Context) Demands() *DemandManager {
	if c.demands == nil {
		c.demands = &DemandManager{ctx: c}
	}
	return c.demands
}

func (c *Context) Tools() *ToolManager {
	if c.tools == nil {
		c.tools = &ToolManager{ctx: c}
	}
	return c.tools
}

func (c *Context) Completion() *Completion {
	if c.completion == nil {
		c.completion = &Completion{ctx: c}
	}
	return c.completion
}

// Event returns the current event row.
func (c *Context) Event(ctx context.Context) (domain.MaintenanceEvent, error) {
	return c.Engine.Repo.GetEvent(ctx, c.EventID)
}

// Start records the actual work start on an open event. An empty startTime
// means the current clock; calling it again moves the recorded start.
func (c *Context) Start(ctx context.Context, startTime string, actorID int64) (domain.MaintenanceEvent, error) {
	start := startTime
	if start == "" {
		start = c.Engine.nowString()
	} else {
		t, err := parseTime(start)
		if err != nil {
			return domain.MaintenanceEvent{}, fmt.Errorf("start date: %w", err)
		}
		start = t.UTC().Format(time.RFC3339)
	}

	var ev domain.MaintenanceEvent
	err := c.run(ctx, func(tx *sql.Tx) error {
		var err error
		ev, err = c.openEventTx(ctx, tx)
		if err != nil {
			return err
		}
		actor, err := c.actorTx(ctx, tx, actorID)
		if err != nil {
			return err
		}
		updatedAt := c.Engine.nowString()
		if err := c.Engine.Repo.SetEventStartDateTx(ctx, tx, ev.ID, start, updatedAt); err != nil {
			return err
		}
		ev.StartDate = &start
		ev.UpdatedAt = updatedAt
		if err := c.Engine.narrator().Append(ctx, tx, ev.ID, actor.ID, narrate.EventStarted(actor.Username, start)); err != nil {
			return err
		}
		c.Engine.Log.Info("event started",
			zap.Int64("event_id", ev.ID),
			zap.String("start_date", start),
			zap.String("actor", actor.Username))
		return nil
	})
	return ev, err
}

// openEventTx loads the event and rejects mutations once it is completed.
func (c *Context) openEventTx(ctx context.Context, tx *sql.Tx) (domain.MaintenanceEvent, error) {
	ev, err := c.Engine.Repo.GetEventTx(ctx, tx, c.EventID)
	if err != nil {
		return ev, err
	}
	if ev.Status == domain.EventStatusCompleted {
		return ev, EventCompletedError{EventID: ev.ID}
	}
	return ev, nil
}

// run wraps one business operation: per-event lock, transaction, commit.
func (c *Context) run(ctx context.Context, fn func(tx *sql.Tx) error) error {
	c.Engine.locks.Lock(c.EventID)
	defer c.Engine.locks.Unlock(c.EventID)

	tx, err := c.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Context) actorTx(ctx context.Context, tx *sql.Tx, actorID int64) (domain.Actor, error) {
	a, err := c.Engine.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return a, fmt.Errorf("actor %d: %w", actorID, err)
	}
	return a, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
