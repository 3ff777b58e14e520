package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/migrate"
	"fleetline/internal/repo"
	"fleetline/internal/seed"
)

type testEnv struct {
	Engine  *engine.Engine
	Ctx     context.Context
	EventID int64
	ActorID int64
	PartID  int64
	ToolID  int64
	ProtoID int64
	TplID   int64
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg, zaptest.NewLogger(t))
	eng.Now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	crit := seed.Critical{Repo: eng.Repo, Now: eng.Now}
	if err := crit.Insert(ctx); err != nil {
		t.Fatalf("critical insert: %v", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	now := eng.Now()
	actor, _, err := eng.Repo.FindOrCreateActorTx(ctx, tx, domain.Actor{Username: "tech1", DisplayName: "Tech One"}, now)
	if err != nil {
		t.Fatalf("actor: %v", err)
	}
	asset, _, err := eng.Repo.FindOrCreateAssetTx(ctx, tx, domain.Asset{AssetTypeID: 1, Name: "Truck 1"}, now)
	if err != nil {
		t.Fatalf("asset: %v", err)
	}
	part, _, err := eng.Repo.FindOrCreatePartTx(ctx, tx, domain.Part{Name: "Fan belt", Unit: "each"})
	if err != nil {
		t.Fatalf("part: %v", err)
	}
	tool, _, err := eng.Repo.FindOrCreateToolTx(ctx, tx, domain.Tool{Name: "Belt tension gauge"})
	if err != nil {
		t.Fatalf("tool: %v", err)
	}
	proto, _, err := eng.Repo.FindOrCreateProtoActionTx(ctx, tx, domain.ProtoAction{ID: 300, Name: "Replace fan belt", Description: "Swap and re-tension"})
	if err != nil {
		t.Fatalf("proto: %v", err)
	}
	tpl, _, err := eng.Repo.FindOrCreateTemplateActionTx(ctx, tx, domain.TemplateAction{ID: 400, Name: "Weekly checklist"})
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	ev, err := eng.Repo.CreateEventTx(ctx, tx, 0, asset.ID, cfg.Capability.Baseline, nil, nil, now)
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return testEnv{
		Engine:  eng,
		Ctx:     ctx,
		EventID: ev.ID,
		ActorID: actor.ID,
		PartID:  part.ID,
		ToolID:  tool.ID,
		ProtoID: proto.ID,
		TplID:   tpl.ID,
	}
}

func (env testEnv) actions(t *testing.T) []domain.Action {
	t.Helper()
	actions, err := env.Engine.Context(env.EventID).Actions().List(env.Ctx)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	return actions
}

func (env testEnv) narration(t *testing.T) []domain.NarrationEntry {
	t.Helper()
	entries, err := env.Engine.Repo.ListNarration(env.Ctx, env.EventID)
	if err != nil {
		t.Fatalf("list narration: %v", err)
	}
	return entries
}

func checkContiguous(t *testing.T, actions []domain.Action) {
	t.Helper()
	for i, a := range actions {
		if a.Seq != i+1 {
			t.Fatalf("seq not contiguous: index %d has seq %d", i, a.Seq)
		}
	}
}

func TestActionSequencing(t *testing.T) {
	env := newTestEnv(t)
	am := env.Engine.Context(env.EventID).Actions()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := am.Create(env.Ctx, engine.ActionCreateOptions{Name: name, ActorID: env.ActorID}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	inserted, err := am.Create(env.Ctx, engine.ActionCreateOptions{Name: "between", Position: 2, ActorID: env.ActorID})
	if err != nil {
		t.Fatalf("insert at 2: %v", err)
	}
	if inserted.Seq != 2 {
		t.Fatalf("inserted at seq %d, want 2", inserted.Seq)
	}
	actions := env.actions(t)
	checkContiguous(t, actions)
	want := []string{"first", "between", "second", "third"}
	for i, name := range want {
		if actions[i].Name != name {
			t.Fatalf("position %d: got %q, want %q", i+1, actions[i].Name, name)
		}
	}

	_, err = am.Create(env.Ctx, engine.ActionCreateOptions{Name: "bad", Position: 9, ActorID: env.ActorID})
	var badPos engine.InvalidPositionError
	if !errors.As(err, &badPos) {
		t.Fatalf("expected InvalidPositionError, got %v", err)
	}

	if err := am.Delete(env.Ctx, inserted.ID, env.ActorID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	actions = env.actions(t)
	checkContiguous(t, actions)
	if len(actions) != 3 || actions[1].Name != "second" {
		t.Fatalf("gap not closed: %+v", actions)
	}
}

func TestActionFromProtoTemplateAndDuplicate(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)

	fromProto, err := c.Actions().CreateFromProto(env.Ctx, env.ProtoID, 0, env.ActorID)
	if err != nil {
		t.Fatalf("from proto: %v", err)
	}
	if fromProto.Name != "Replace fan belt" || fromProto.Source != domain.ActionSourceProto {
		t.Fatalf("proto copy wrong: %+v", fromProto)
	}
	fromTpl, err := c.Actions().CreateFromTemplate(env.Ctx, env.TplID, 0, env.ActorID)
	if err != nil {
		t.Fatalf("from template: %v", err)
	}
	if fromTpl.Source != domain.ActionSourceTemplate {
		t.Fatalf("template source wrong: %+v", fromTpl)
	}

	if _, err := c.Demands().Create(env.Ctx, fromProto.ID, env.PartID, 2, env.ActorID); err != nil {
		t.Fatalf("demand: %v", err)
	}
	if _, err := c.Tools().Add(env.Ctx, fromProto.ID, env.ToolID, nil, env.ActorID); err != nil {
		t.Fatalf("tool: %v", err)
	}

	dup, err := c.Actions().Duplicate(env.Ctx, fromProto.ID, engine.DuplicateOptions{
		ActorID:     env.ActorID,
		CopyDemands: true,
		CopyTools:   true,
	})
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.Source != domain.ActionSourceDuplicate || dup.Name != fromProto.Name {
		t.Fatalf("duplicate wrong: %+v", dup)
	}
	demands, err := env.Engine.Repo.ListPartDemands(env.Ctx, dup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(demands) != 1 || demands[0].Status != domain.DemandStatusRequested || demands[0].QuantityIssued != 0 {
		t.Fatalf("copied demand wrong: %+v", demands)
	}
	tools, err := env.Engine.Repo.ListActionTools(env.Ctx, dup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 {
		t.Fatalf("copied tools wrong: %+v", tools)
	}
	checkContiguous(t, env.actions(t))
}

func TestBlockerCapabilityDerivation(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)

	ev, err := c.Event(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ev.CapabilityStatus != "FMC" {
		t.Fatalf("baseline: got %s", ev.CapabilityStatus)
	}

	pmc, err := c.Blockers().Open(env.Ctx, engine.BlockerOpenOptions{
		StatusCode: "PMC", Reason: "waiting on parts", ActorID: env.ActorID,
	})
	if err != nil {
		t.Fatalf("open PMC: %v", err)
	}
	ev, _ = c.Event(env.Ctx)
	if ev.CapabilityStatus != "PMC" {
		t.Fatalf("after PMC: got %s", ev.CapabilityStatus)
	}

	nmc, err := c.Blockers().Open(env.Ctx, engine.BlockerOpenOptions{
		StatusCode: "NMC", Reason: "engine out", ActorID: env.ActorID,
	})
	if err != nil {
		t.Fatalf("open NMC: %v", err)
	}
	ev, _ = c.Event(env.Ctx)
	if ev.CapabilityStatus != "NMC" {
		t.Fatalf("after NMC: got %s", ev.CapabilityStatus)
	}

	if _, err := c.Blockers().Close(env.Ctx, nmc.ID, engine.BlockerCloseOptions{ActorID: env.ActorID, Notes: "engine back in"}); err != nil {
		t.Fatalf("close NMC: %v", err)
	}
	ev, _ = c.Event(env.Ctx)
	if ev.CapabilityStatus != "PMC" {
		t.Fatalf("after closing NMC: got %s", ev.CapabilityStatus)
	}

	if _, err := c.Blockers().Close(env.Ctx, pmc.ID, engine.BlockerCloseOptions{ActorID: env.ActorID}); err != nil {
		t.Fatalf("close PMC: %v", err)
	}
	ev, _ = c.Event(env.Ctx)
	if ev.CapabilityStatus != "FMC" {
		t.Fatalf("after closing all: got %s", ev.CapabilityStatus)
	}

	_, err = c.Blockers().Close(env.Ctx, pmc.ID, engine.BlockerCloseOptions{ActorID: env.ActorID})
	var closedErr engine.BlockerClosedError
	if !errors.As(err, &closedErr) {
		t.Fatalf("expected BlockerClosedError, got %v", err)
	}

	_, err = c.Blockers().Open(env.Ctx, engine.BlockerOpenOptions{StatusCode: "XYZ", Reason: "nope", ActorID: env.ActorID})
	var badCode engine.UnknownCapabilityCodeError
	if !errors.As(err, &badCode) {
		t.Fatalf("expected UnknownCapabilityCodeError, got %v", err)
	}
}

func TestBlockerScopedToItsEvent(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)
	b, err := c.Blockers().Open(env.Ctx, engine.BlockerOpenOptions{
		StatusCode: "PMC", Reason: "waiting on parts", ActorID: env.ActorID,
	})
	if err != nil {
		t.Fatal(err)
	}

	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	now := env.Engine.Now()
	asset, _, err := env.Engine.Repo.FindOrCreateAssetTx(env.Ctx, tx, domain.Asset{AssetTypeID: 1, Name: "Truck 2"}, now)
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.Engine.Repo.CreateEventTx(env.Ctx, tx, 0, asset.ID, env.Engine.Config.Capability.Baseline, nil, nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	_, err = env.Engine.Context(other.ID).Blockers().Close(env.Ctx, b.ID, engine.BlockerCloseOptions{ActorID: env.ActorID})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another event's blocker, got %v", err)
	}
}

func TestDemandLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)
	action, err := c.Actions().Create(env.Ctx, engine.ActionCreateOptions{Name: "fit part", ActorID: env.ActorID})
	if err != nil {
		t.Fatal(err)
	}

	d, err := c.Demands().Create(env.Ctx, action.ID, env.PartID, 4, env.ActorID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Status != domain.DemandStatusRequested {
		t.Fatalf("new demand status %s", d.Status)
	}

	// issuing straight from Requested moves the demand through Approved
	if d, err = c.Demands().Issue(env.Ctx, d.ID, 3, env.ActorID); err != nil {
		t.Fatalf("partial issue: %v", err)
	}
	if d.Status != domain.DemandStatusApproved || d.QuantityIssued != 3 {
		t.Fatalf("partial issue wrong: %+v", d)
	}

	_, err = c.Demands().Issue(env.Ctx, d.ID, 2, env.ActorID)
	var over engine.OverIssueError
	if !errors.As(err, &over) {
		t.Fatalf("expected OverIssueError, got %v", err)
	}

	if d, err = c.Demands().Issue(env.Ctx, d.ID, 1, env.ActorID); err != nil {
		t.Fatalf("final issue: %v", err)
	}
	if d.Status != domain.DemandStatusIssued {
		t.Fatalf("fully issued status %s", d.Status)
	}

	_, err = c.Demands().Update(env.Ctx, d.ID, 2, env.ActorID)
	var below engine.BelowIssuedError
	if !errors.As(err, &below) {
		t.Fatalf("expected BelowIssuedError, got %v", err)
	}

	if d, err = c.Demands().UndoIssue(env.Ctx, d.ID, 4, env.ActorID); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if d.Status != domain.DemandStatusApproved || d.QuantityIssued != 0 {
		t.Fatalf("undo wrong: %+v", d)
	}

	if d, err = c.Demands().Cancel(env.Ctx, d.ID, env.ActorID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if d.Status != domain.DemandStatusCancelled {
		t.Fatalf("cancel status %s", d.Status)
	}

	// a cancelled demand is the one state that refuses issues
	_, err = c.Demands().Issue(env.Ctx, d.ID, 1, env.ActorID)
	var state engine.DemandStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected DemandStateError, got %v", err)
	}
}

func TestIssueFullQuantityWithoutApproval(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)
	action, err := c.Actions().Create(env.Ctx, engine.ActionCreateOptions{Name: "fit part", ActorID: env.ActorID})
	if err != nil {
		t.Fatal(err)
	}
	d, err := c.Demands().Create(env.Ctx, action.ID, env.PartID, 10, env.ActorID)
	if err != nil {
		t.Fatal(err)
	}
	if d, err = c.Demands().Issue(env.Ctx, d.ID, 10, env.ActorID); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if d.Status != domain.DemandStatusIssued || d.QuantityIssued != 10 {
		t.Fatalf("full issue wrong: %+v", d)
	}
	_, err = c.Demands().Issue(env.Ctx, d.ID, 1, env.ActorID)
	var over engine.OverIssueError
	if !errors.As(err, &over) {
		t.Fatalf("expected OverIssueError, got %v", err)
	}
}

func TestCancelWithIssuedQuantityRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)
	action, err := c.Actions().Create(env.Ctx, engine.ActionCreateOptions{Name: "fit part", ActorID: env.ActorID})
	if err != nil {
		t.Fatal(err)
	}
	d, err := c.Demands().Create(env.Ctx, action.ID, env.PartID, 2, env.ActorID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = c.Demands().Approve(env.Ctx, d.ID, env.ActorID); err != nil {
		t.Fatal(err)
	}
	if _, err = c.Demands().Issue(env.Ctx, d.ID, 1, env.ActorID); err != nil {
		t.Fatal(err)
	}
	_, err = c.Demands().Cancel(env.Ctx, d.ID, env.ActorID)
	var state engine.DemandStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected DemandStateError, got %v", err)
	}
}

func TestCompletion(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)

	meter := 1234.5
	ev, err := c.Completion().Complete(env.Ctx, engine.CompletionOptions{
		StartDate:     "2026-08-01T08:00:00Z",
		EndDate:       "2026-08-01T11:30:00Z",
		BillableHours: 3.5,
		Meters:        [4]*float64{&meter, nil, nil, nil},
		Comment:       "All work finished",
		ActorID:       env.ActorID,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ev.Status != domain.EventStatusCompleted {
		t.Fatalf("status %s", ev.Status)
	}
	if ev.BillableHours == nil || *ev.BillableHours != 3.5 {
		t.Fatalf("hours %+v", ev.BillableHours)
	}
	if ev.Meter1 == nil || *ev.Meter1 != 1234.5 || ev.Meter2 != nil {
		t.Fatalf("meters wrong: %+v", ev)
	}

	entries := env.narration(t)
	if len(entries) != 1 {
		t.Fatalf("expected one combined summary entry, got %d", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Provenance != "machine" {
		t.Fatalf("summary provenance %s", last.Provenance)
	}
	if !strings.Contains(last.Body, "All work finished") || !strings.Contains(last.Body, "3.5 billable hours") {
		t.Fatalf("summary should fold in the comment and the record: %q", last.Body)
	}

	// a completed event rejects further mutations
	_, err = c.Completion().Complete(env.Ctx, engine.CompletionOptions{
		StartDate: "2026-08-02T08:00:00Z", EndDate: "2026-08-02T09:00:00Z", ActorID: env.ActorID,
	})
	var completed engine.EventCompletedError
	if !errors.As(err, &completed) {
		t.Fatalf("expected EventCompletedError, got %v", err)
	}
	_, err = c.Actions().Create(env.Ctx, engine.ActionCreateOptions{Name: "late", ActorID: env.ActorID})
	if !errors.As(err, &completed) {
		t.Fatalf("expected EventCompletedError on action create, got %v", err)
	}
}

func TestCompletionValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)

	_, err := c.Completion().Complete(env.Ctx, engine.CompletionOptions{
		StartDate: "2026-08-01T11:00:00Z", EndDate: "2026-08-01T08:00:00Z", ActorID: env.ActorID,
	})
	var badRange engine.InvalidTimeRangeError
	if !errors.As(err, &badRange) {
		t.Fatalf("expected InvalidTimeRangeError, got %v", err)
	}

	_, err = c.Completion().Complete(env.Ctx, engine.CompletionOptions{
		StartDate: "2026-08-01T08:00:00Z", EndDate: "2026-08-01T11:00:00Z",
		BillableHours: -1, ActorID: env.ActorID,
	})
	var badQty engine.InvalidQuantityError
	if !errors.As(err, &badQty) {
		t.Fatalf("expected InvalidQuantityError, got %v", err)
	}

	// zero-duration work is a legal closing record
	ev, err := c.Completion().Complete(env.Ctx, engine.CompletionOptions{
		StartDate: "2026-08-01T08:00:00Z", EndDate: "2026-08-01T08:00:00Z", ActorID: env.ActorID,
	})
	if err != nil {
		t.Fatalf("equal start and end: %v", err)
	}
	if ev.Status != domain.EventStatusCompleted {
		t.Fatalf("status %s", ev.Status)
	}
}

func TestNarrationRecordsEveryMutation(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)

	if _, err := c.Actions().Create(env.Ctx, engine.ActionCreateOptions{Name: "inspect", ActorID: env.ActorID}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Blockers().Open(env.Ctx, engine.BlockerOpenOptions{
		StatusCode: "PMC", Reason: "crane busy", ActorID: env.ActorID, Comment: "crane is booked until Tuesday",
	}); err != nil {
		t.Fatal(err)
	}

	entries := env.narration(t)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Provenance != "machine" {
		t.Fatalf("generated entry must be machine: %+v", entries[0])
	}
	// the operator comment overrides the generated blocker narration
	if entries[1].Provenance != "human" || entries[1].Body != "crane is booked until Tuesday" {
		t.Fatalf("human override wrong: %+v", entries[1])
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			t.Fatalf("narration ids not increasing")
		}
	}
}

func TestEventStart(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Context(env.EventID)

	ev, err := c.Start(env.Ctx, "", env.ActorID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ev.StartDate == nil || *ev.StartDate != "2026-08-01T12:00:00Z" {
		t.Fatalf("start date not pinned to clock: %+v", ev.StartDate)
	}

	ev, err = c.Start(env.Ctx, "2026-08-01T09:30:00Z", env.ActorID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if ev.StartDate == nil || *ev.StartDate != "2026-08-01T09:30:00Z" {
		t.Fatalf("explicit start date not recorded: %+v", ev.StartDate)
	}

	if _, err := c.Start(env.Ctx, "yesterday", env.ActorID); err == nil {
		t.Fatal("malformed start date accepted")
	}

	entries := env.narration(t)
	if len(entries) != 2 {
		t.Fatalf("expected 2 narration entries, got %d", len(entries))
	}
	if !strings.Contains(entries[0].Body, "Maintenance started") {
		t.Fatalf("start not narrated: %q", entries[0].Body)
	}
}
