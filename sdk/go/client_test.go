package portfoliosdk_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"portfolio/internal/config"
	"portfolio/internal/db"
	"portfolio/internal/engine"
	"portfolio/internal/migrate"
	"portfolio/internal/server"
	portfoliosdk "portfolio/sdk/go"
)

func newClient(t *testing.T, cfg *config.Config) *portfoliosdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := server.New(server.Config{Engine: engine.New(conn, cfg)})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := portfoliosdk.New(srv.URL + "/")
	c.ActorID = "sdk"
	return c
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, config.Default())

	saved, err := c.SaveProject(ctx, portfoliosdk.Project{
		Name: "Billing", Leader: "Ana", Department: "Finance", Status: "Planning",
		Tasks: []portfoliosdk.Task{
			{Name: "Design", StartDate: "2024-01-01", EndDate: "2024-02-01", Progress: 80, Weight: 50},
			{Name: "Build", StartDate: "2024-02-01", EndDate: "2024-04-01", Progress: 20, Weight: 50},
		},
	}, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !saved.Created || saved.Project.Progress != 50 || saved.HistoryID == "" {
		t.Fatalf("unexpected save result: %+v", saved)
	}

	p := saved.Project
	p.Tasks[1].Progress = 60
	if _, err := c.SaveProject(ctx, p, false); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := c.GetProject(ctx, p.ID)
	if err != nil || got.Progress != 70 {
		t.Fatalf("get: %+v %v", got, err)
	}

	list, err := c.ListProjects(ctx, portfoliosdk.Filter{Department: "finance"})
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v %v", list, err)
	}
	history, err := c.History(ctx, p.ID)
	if err != nil || len(history) != 2 || history[0].ProjectID != p.ID {
		t.Fatalf("history: %+v %v", history, err)
	}
	report, err := c.Variance(ctx, p.ID)
	if err != nil || report.Snapshots != 2 || report.Timeline[0].ProgressDelta == nil || *report.Timeline[0].ProgressDelta != 20 {
		t.Fatalf("variance: %+v %v", report, err)
	}
	series, err := c.Progression(ctx, p.ID)
	if err != nil || len(series.Points) != 2 {
		t.Fatalf("progression: %+v %v", series, err)
	}

	computed, err := c.ComputeProgress(ctx, []portfoliosdk.Task{{Progress: 100, Weight: 25}, {Progress: 0, Weight: 75}})
	if err != nil || computed.Progress != 25 || !computed.Advisory.Balanced {
		t.Fatalf("compute: %+v %v", computed, err)
	}

	if _, err := c.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if list, err := c.ListProjects(ctx, portfoliosdk.Filter{IncludeDeleted: true}); err != nil || len(list) != 1 || list[0].Status != "Deleted" {
		t.Fatalf("list deleted: %+v %v", list, err)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Weights.RequireBalanced = true
	c := newClient(t, cfg)

	_, err := c.GetProject(ctx, "P0000001")
	apiErr, ok := err.(*portfoliosdk.APIError)
	if !ok || apiErr.StatusCode != 404 || apiErr.Code != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}

	p := portfoliosdk.Project{
		Name: "Billing", Leader: "Ana", Department: "Finance", Status: "Planning",
		Tasks: []portfoliosdk.Task{{Name: "Design", Weight: 40}},
	}
	if _, err := c.SaveProject(ctx, p, false); !portfoliosdk.IsWeightUnbalanced(err) {
		t.Fatalf("expected weight_unbalanced, got %v", err)
	}
	res, err := c.SaveProject(ctx, p, true)
	if err != nil || res.Advisory.Total != 40 || res.Advisory.Balanced {
		t.Fatalf("forced save: %+v %v", res, err)
	}
}
