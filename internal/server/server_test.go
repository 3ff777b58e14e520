package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/migrate"
	"fleetline/internal/seed"
	"fleetline/internal/server"
)

const testSecret = "test-secret"

type apiEnv struct {
	Server  *httptest.Server
	Token   string
	EventID int64
}

func newAPIEnv(t *testing.T) apiEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
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
		t.Fatalf("critical: %v", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	asset, _, err := eng.Repo.FindOrCreateAssetTx(ctx, tx, domain.Asset{AssetTypeID: 1, Name: "Truck 1"}, eng.Now())
	if err != nil {
		t.Fatalf("asset: %v", err)
	}
	ev, err := eng.Repo.CreateEventTx(ctx, tx, 0, asset.ID, cfg.Capability.Baseline, nil, nil, eng.Now())
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	handler, err := server.New(server.Config{
		Engine: eng,
		Auth:   server.AuthConfig{JWTSecret: testSecret, Logger: zaptest.NewLogger(t)},
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token, err := server.IssueToken(testSecret, seed.AdminActorID, nil)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return apiEnv{Server: srv, Token: token, EventID: ev.ID}
}

func (env apiEnv) request(t *testing.T, method, path, body string, authed bool) *http.Response {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, env.Server.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+env.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.request(t, http.MethodGet, "/v0/health", "", false)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
}

func TestBearerAuthRequired(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.request(t, http.MethodGet, "/v0/events/1", "", false)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestActionLifecycleOverHTTP(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.request(t, http.MethodPost, "/v0/events/1/actions", `{"name":"inspect brakes"}`, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create action status %d", resp.StatusCode)
	}
	var action domain.Action
	if err := json.NewDecoder(resp.Body).Decode(&action); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if action.Seq != 1 || action.Name != "inspect brakes" {
		t.Fatalf("unexpected action: %+v", action)
	}

	resp = env.request(t, http.MethodGet, "/v0/events/1/actions", "", true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
	var actions []domain.Action
	if err := json.NewDecoder(resp.Body).Decode(&actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
}

func TestBlockerUpdatesCapabilityOverHTTP(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.request(t, http.MethodPost, "/v0/events/1/blockers", `{"status_code":"NMC","reason":"engine out"}`, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open blocker status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/v0/events/1", "", true)
	defer resp.Body.Close()
	var ev domain.MaintenanceEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.CapabilityStatus != "NMC" {
		t.Fatalf("capability %s, want NMC", ev.CapabilityStatus)
	}
}

func TestUnknownCapabilityCodeRejected(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.request(t, http.MethodPost, "/v0/events/1/blockers", `{"status_code":"XYZ","reason":"nope"}`, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCompleteEventOverHTTP(t *testing.T) {
	env := newAPIEnv(t)

	body := `{"start_date":"2026-08-01T08:00:00Z","end_date":"2026-08-01T08:00:00Z","billable_hours":0.5,"comment":"quick fix"}`
	resp := env.request(t, http.MethodPost, "/v0/events/1/complete", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d", resp.StatusCode)
	}
	var ev domain.MaintenanceEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != env.EventID || ev.Status != domain.EventStatusCompleted {
		t.Fatalf("unexpected event: %+v", ev)
	}

	resp = env.request(t, http.MethodPost, "/v0/events/1/actions", `{"name":"too late"}`, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on mutating a completed event, got %d", resp.StatusCode)
	}
}

func TestMissingEventIsNotFound(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.request(t, http.MethodGet, "/v0/events/9999", "", true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
