package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/repo"
)

// SeedError names the module that failed. Seeding is fail-fast: modules
// after the failing one are not attempted.
type SeedError struct {
	Module string
	Err    error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed module %s: %v", e.Module, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }

// Debug seeds development data module by module in dependency order. A
// module whose known rows already exist is skipped, so repeated runs are
// harmless.
type Debug struct {
	Repo   repo.Repo
	Engine *engine.Engine
	Source Source
	Log    *zap.Logger
	Now    func() time.Time
}

func (d Debug) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

type stage struct {
	name    string
	deps    []string
	present func(ctx context.Context) (bool, error)
	run     func(ctx context.Context) error
}

// Run installs the debug data set. The module order is fixed: core, assets,
// dispatching, maintenance, inventory; each module's declared dependencies
// must already have run.
func (d Debug) Run(ctx context.Context) error {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	runID := uuid.NewString()
	log = log.With(zap.String("seed_run", runID))

	core, err := d.Source.Core()
	if err != nil {
		return &SeedError{Module: "core", Err: err}
	}
	assets, err := d.Source.Assets()
	if err != nil {
		return &SeedError{Module: "assets", Err: err}
	}
	dispatching, err := d.Source.Dispatching()
	if err != nil {
		return &SeedError{Module: "dispatching", Err: err}
	}
	maintenance, err := d.Source.Maintenance()
	if err != nil {
		return &SeedError{Module: "maintenance", Err: err}
	}
	inventory, err := d.Source.Inventory()
	if err != nil {
		return &SeedError{Module: "inventory", Err: err}
	}

	stages := []stage{
		{
			name: "core",
			present: func(ctx context.Context) (bool, error) {
				if len(core.Actors) == 0 {
					return true, nil
				}
				return d.Repo.ActorExists(ctx, core.Actors[0].ID)
			},
			run: func(ctx context.Context) error { return d.seedCore(ctx, core) },
		},
		{
			name: "assets",
			deps: []string{"core"},
			present: func(ctx context.Context) (bool, error) {
				if len(assets.Assets) == 0 {
					return true, nil
				}
				return d.Repo.AssetExists(ctx, assets.Assets[0].ID)
			},
			run: func(ctx context.Context) error { return d.seedAssets(ctx, assets) },
		},
		{
			name: "dispatching",
			deps: []string{"core", "assets"},
			present: func(ctx context.Context) (bool, error) {
				if len(dispatching.DispatchRequests) == 0 {
					return true, nil
				}
				return d.Repo.DispatchRequestExists(ctx, dispatching.DispatchRequests[0].ID)
			},
			run: func(ctx context.Context) error { return d.seedDispatching(ctx, dispatching) },
		},
		{
			name: "maintenance",
			deps: []string{"core", "assets"},
			present: func(ctx context.Context) (bool, error) {
				if len(maintenance.Events) == 0 {
					return true, nil
				}
				return d.Repo.EventExists(ctx, maintenance.Events[0].ID)
			},
			run: func(ctx context.Context) error { return d.seedMaintenance(ctx, maintenance) },
		},
		{
			name: "inventory",
			deps: []string{"maintenance"},
			present: func(ctx context.Context) (bool, error) {
				if len(inventory.Parts) == 0 {
					return true, nil
				}
				return d.Repo.PartExists(ctx, inventory.Parts[0].ID)
			},
			run: func(ctx context.Context) error { return d.seedInventory(ctx, inventory) },
		},
	}

	done := map[string]bool{}
	for _, s := range stages {
		for _, dep := range s.deps {
			if !done[dep] {
				return &SeedError{Module: s.name, Err: fmt.Errorf("dependency %s has not run", dep)}
			}
		}
		present, err := s.present(ctx)
		if err != nil {
			return &SeedError{Module: s.name, Err: err}
		}
		if present {
			log.Info("seed module already present, skipping", zap.String("module", s.name))
			done[s.name] = true
			continue
		}
		log.Info("seeding module", zap.String("module", s.name))
		if err := s.run(ctx); err != nil {
			return &SeedError{Module: s.name, Err: err}
		}
		done[s.name] = true
	}
	return nil
}

func (d Debug) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (d Debug) seedCore(ctx context.Context, data CoreData) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		now := d.now()
		for _, a := range data.Actors {
			if _, _, err := d.Repo.FindOrCreateActorTx(ctx, tx, a, now); err != nil {
				return err
			}
		}
		for _, t := range data.AssetTypes {
			if _, _, err := d.Repo.FindOrCreateAssetTypeTx(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d Debug) seedAssets(ctx context.Context, data AssetsData) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		now := d.now()
		for _, a := range data.Assets {
			if _, _, err := d.Repo.FindOrCreateAssetTx(ctx, tx, a, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d Debug) seedDispatching(ctx context.Context, data DispatchingData) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		now := d.now()
		for _, r := range data.DispatchRequests {
			req := domain.DispatchRequest{
				ID:          r.ID,
				AssetID:     r.AssetID,
				Destination: r.Destination,
				Status:      r.Status,
				RequestedBy: r.RequestedBy,
			}
			if _, _, err := d.Repo.FindOrCreateDispatchRequestTx(ctx, tx, req, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// seedMaintenance creates events in one transaction, then drives actions and
// blockers through the engine so sequencing, capability derivation and
// narration behave exactly as they would in production.
func (d Debug) seedMaintenance(ctx context.Context, data MaintenanceData) error {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		now := d.now()
		for _, p := range data.ProtoActions {
			if _, _, err := d.Repo.FindOrCreateProtoActionTx(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, t := range data.TemplateActions {
			if _, _, err := d.Repo.FindOrCreateTemplateActionTx(ctx, tx, t); err != nil {
				return err
			}
		}
		for _, ev := range data.Events {
			var start, end *string
			if ev.ScheduledStart != "" {
				start = &ev.ScheduledStart
			}
			if ev.ScheduledEnd != "" {
				end = &ev.ScheduledEnd
			}
			baseline := d.Engine.Config.Capability.Baseline
			if _, err := d.Repo.CreateEventTx(ctx, tx, ev.ID, ev.AssetID, baseline, start, end, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, ev := range data.Events {
		ectx := d.Engine.Context(ev.ID)
		for _, a := range ev.Actions {
			if _, err := ectx.Actions().Create(ctx, engine.ActionCreateOptions{
				Name:        a.Name,
				Description: a.Description,
				ActorID:     a.ActorID,
			}); err != nil {
				return err
			}
		}
		for _, b := range ev.Blockers {
			opts := engine.BlockerOpenOptions{
				StatusCode: b.StatusCode,
				Reason:     b.Reason,
				ActorID:    b.ActorID,
			}
			if b.Priority != "" {
				p := b.Priority
				opts.Priority = &p
			}
			if _, err := ectx.Blockers().Open(ctx, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d Debug) seedInventory(ctx context.Context, data InventoryData) error {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range data.Parts {
			if _, _, err := d.Repo.FindOrCreatePartTx(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, t := range data.Tools {
			if _, _, err := d.Repo.FindOrCreateToolTx(ctx, tx, t); err != nil {
				return err
			}
		}
		for _, s := range data.Storerooms {
			if _, _, err := d.Repo.FindOrCreateStoreroomTx(ctx, tx, s); err != nil {
				return err
			}
		}
		for _, s := range data.Stock {
			level := domain.StockLevel{PartID: s.PartID, StoreroomID: s.StoreroomID, Quantity: s.Quantity}
			if err := d.Repo.UpsertStockTx(ctx, tx, level); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, spec := range data.Demands {
		set, err := d.Repo.GetActionSetByEvent(ctx, spec.EventID)
		if err != nil {
			return fmt.Errorf("event %d: %w", spec.EventID, err)
		}
		actions, err := d.Repo.ListActions(ctx, set.ID)
		if err != nil {
			return err
		}
		var actionID int64
		for _, a := range actions {
			if a.Seq == spec.ActionSeq {
				actionID = a.ID
				break
			}
		}
		if actionID == 0 {
			return fmt.Errorf("event %d: no action at position %d", spec.EventID, spec.ActionSeq)
		}
		ectx := d.Engine.Context(spec.EventID)
		if _, err := ectx.Demands().Create(ctx, actionID, spec.PartID, spec.Quantity, spec.ActorID); err != nil {
			return err
		}
	}
	return nil
}
