package seed_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"fleetline/internal/app"
	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/migrate"
	"fleetline/internal/repo"
	"fleetline/internal/seed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func TestCriticalVerifyFailsOnEmptyDatabase(t *testing.T) {
	conn := openTestDB(t)
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	crit := seed.Critical{Repo: repo.Repo{DB: conn}, Now: fixedNow}
	err := crit.Verify(context.Background())
	if !errors.Is(err, seed.ErrCriticalDataUnavailable) {
		t.Fatalf("expected ErrCriticalDataUnavailable, got %v", err)
	}
}

func TestBuildInstallsCriticalAndDebugData(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	cfg := config.Default()
	err := app.Build(ctx, conn, cfg, zaptest.NewLogger(t), app.BuildOptions{Debug: true, Now: fixedNow})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	r := repo.Repo{DB: conn}

	// critical set
	if _, err := r.GetActor(ctx, seed.SystemActorID); err != nil {
		t.Fatalf("system actor: %v", err)
	}
	if _, err := r.GetActor(ctx, seed.AdminActorID); err != nil {
		t.Fatalf("admin actor: %v", err)
	}
	if _, err := r.GetAssetTypeByName(ctx, seed.BaselineAssetType); err != nil {
		t.Fatalf("baseline asset type: %v", err)
	}
	if _, err := r.GetMarker(ctx, seed.InstalledMarker); err != nil {
		t.Fatalf("marker: %v", err)
	}

	// debug set
	ev, err := r.GetEvent(ctx, 1000)
	if err != nil {
		t.Fatalf("seeded event: %v", err)
	}
	if ev.CapabilityStatus != "PMC" {
		t.Fatalf("seeded blocker should derive PMC, got %s", ev.CapabilityStatus)
	}
	set, err := r.GetActionSetByEvent(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	actions, err := r.ListActions(ctx, set.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 seeded actions, got %d", len(actions))
	}
	for i, a := range actions {
		if a.Seq != i+1 {
			t.Fatalf("seeded seq not contiguous: %+v", actions)
		}
	}
	demands, err := r.ListPartDemands(ctx, actions[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(demands) != 2 {
		t.Fatalf("expected 2 seeded demands, got %d", len(demands))
	}
	entries, err := r.ListNarration(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatalf("seeded mutations should narrate")
	}
	if _, err := r.GetStock(ctx, 200, 20); err != nil {
		t.Fatalf("seeded stock: %v", err)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	cfg := config.Default()
	log := zaptest.NewLogger(t)
	opts := app.BuildOptions{Debug: true, Now: fixedNow}
	if err := app.Build(ctx, conn, cfg, log, opts); err != nil {
		t.Fatalf("first build: %v", err)
	}
	r := repo.Repo{DB: conn}
	before, err := r.ListNarration(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Build(ctx, conn, cfg, log, opts); err != nil {
		t.Fatalf("second build: %v", err)
	}
	after, err := r.ListNarration(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("second build re-seeded: narration grew from %d to %d", len(before), len(after))
	}
}

func TestSeedFailsFastOnBadData(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	cfg := config.Default()

	dataDir := t.TempDir()
	bad := "actors:\n  - username: x\n    display_name: X\n    bogus_field: true\n"
	if err := os.WriteFile(filepath.Join(dataDir, "core.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	err := app.Build(ctx, conn, cfg, zaptest.NewLogger(t), app.BuildOptions{Debug: true, DataDir: dataDir, Now: fixedNow})
	var seedErr *seed.SeedError
	if !errors.As(err, &seedErr) {
		t.Fatalf("expected SeedError, got %v", err)
	}
	if seedErr.Module != "core" {
		t.Fatalf("failing module %s, want core", seedErr.Module)
	}

	// nothing downstream ran
	r := repo.Repo{DB: conn}
	if ok, _ := r.AssetExists(ctx, 100); ok {
		t.Fatalf("assets module ran after core failure")
	}
}

func TestDataDirOverridesEmbeddedFile(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	cfg := config.Default()

	dataDir := t.TempDir()
	files := map[string]string{
		"core.yaml":        "actors:\n  - id: 42\n    username: override\n    display_name: Override Actor\n",
		"assets.yaml":      "assets: []\n",
		"dispatching.yaml": "dispatch_requests: []\n",
		"maintenance.yaml": "events: []\n",
		"inventory.yaml":   "parts: []\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := app.Build(ctx, conn, cfg, zaptest.NewLogger(t), app.BuildOptions{Debug: true, DataDir: dataDir, Now: fixedNow}); err != nil {
		t.Fatalf("build: %v", err)
	}
	r := repo.Repo{DB: conn}
	if _, err := r.GetActor(ctx, 42); err != nil {
		t.Fatalf("override actor: %v", err)
	}
	// embedded core actor must not be present
	if ok, _ := r.ActorExists(ctx, 10); ok {
		t.Fatalf("embedded core file was not shadowed")
	}
}
