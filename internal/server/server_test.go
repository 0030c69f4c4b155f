package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portfolio/internal/archive"
	"portfolio/internal/config"
	"portfolio/internal/db"
	"portfolio/internal/domain"
	"portfolio/internal/engine"
	"portfolio/internal/migrate"
	"portfolio/internal/variance"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.MasterData.Leaders = []string{"Ana", "Bo"}
	cfg.MasterData.Departments = []string{"Data", "Ops"}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	if err := e.EnsureMasterData(context.Background(), "tester"); err != nil {
		t.Fatalf("seed master data: %v", err)
	}
	store, err := archive.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth, Archive: &archive.Exporter{Storage: store}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL, Engine: e, client: srv.Client()}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope %s: %v", string(data), err)
	}
	return env
}

func projectBody(weights ...float64) map[string]any {
	if len(weights) == 0 {
		weights = []float64{30, 70}
	}
	tasks := []map[string]any{}
	for i, w := range weights {
		tasks = append(tasks, map[string]any{
			"name": "Task", "startDate": "2024-03-01", "endDate": "2024-04-01",
			"progress": 50 * i, "weight": w,
		})
	}
	return map[string]any{
		"name":       "Data platform",
		"leader":     "Ana",
		"department": "Data",
		"status":     "In Progress",
		"tasks":      tasks,
		"milestones": []map[string]any{{"name": "Beta", "date": "2024-04-15"}},
	}
}

func TestProjectLifecycle(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	actor := map[string]string{"X-Actor-Id": "ana"}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", projectBody(), actor)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	if res.Header.Get(RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
	var created engine.SaveResult
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal create: %v", err)
	}
	id := created.Project.ID
	if id != "P2024001" || created.Project.Progress != 35 || !created.Created {
		t.Fatalf("unexpected create result: %+v", created)
	}

	update := projectBody()
	update["tasks"] = []map[string]any{
		{"id": created.Project.Tasks[0].ID, "name": "Task", "startDate": "2024-03-01", "endDate": "2024-04-01", "progress": 100, "weight": 30},
		{"id": created.Project.Tasks[1].ID, "name": "Task", "startDate": "2024-03-01", "endDate": "2024-04-08", "progress": 50, "weight": 70},
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+id, update, actor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects?department=data", nil, nil)
	var list []domain.Project
	if err := json.Unmarshal(data, &list); err != nil || len(list) != 1 || list[0].Progress != 65 {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects?leader=Bo", nil, nil)
	if err := json.Unmarshal(data, &list); err != nil || len(list) != 0 {
		t.Fatalf("leader filter: %s", string(data))
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+id+"/history", nil, nil)
	var history []domain.ProjectHistory
	if err := json.Unmarshal(data, &history); err != nil || len(history) != 2 {
		t.Fatalf("history: %s", string(data))
	}
	if history[0].ID != "P2024001_20240301_0900-2" || history[0].ProjectID != id {
		t.Fatalf("unexpected newest snapshot: %+v", history[0])
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+id+"/variance", nil, nil)
	var report variance.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("variance: %v", err)
	}
	if len(report.Timeline) != 2 || *report.Timeline[0].ProgressDelta != 30 || *report.Timeline[0].Tasks[1].EndSlip != 7 {
		t.Fatalf("unexpected variance: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+id+"/progression", nil, nil)
	var series variance.Series
	if err := json.Unmarshal(data, &series); err != nil || len(series.Points) != 2 || len(series.Markers) != 1 {
		t.Fatalf("progression %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+id+"/export", nil, actor)
	var exported ExportResponse
	if err := json.Unmarshal(data, &exported); err != nil || res.StatusCode != http.StatusOK || len(exported.Paths) != 3 {
		t.Fatalf("export %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+id, nil, actor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+id, nil, actor)
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Error.Code != "already_deleted" {
		t.Fatalf("second delete %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if err := json.Unmarshal(data, &list); err != nil || len(list) != 0 {
		t.Fatalf("deleted project listed: %s", string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects?include_deleted=true", nil, nil)
	if err := json.Unmarshal(data, &list); err != nil || len(list) != 1 || list[0].Status != "Deleted" {
		t.Fatalf("include_deleted: %s", string(data))
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?project_id="+id+"&limit=10", nil, nil)
	var evs []domain.Event
	if err := json.Unmarshal(data, &evs); err != nil || len(evs) != 3 {
		t.Fatalf("events: %s", string(data))
	}
	if evs[0].Type != "project.deleted" || evs[2].Type != "project.created" || evs[2].ActorID != "ana" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/P404", nil, nil)
	if res.StatusCode != http.StatusNotFound || decodeError(t, data).Error.Code != "not_found" {
		t.Fatalf("get missing %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/P404/variance", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("variance missing %d: %s", res.StatusCode, string(data))
	}

	body := projectBody()
	delete(body, "leader")
	body["tasks"] = []map[string]any{{"name": "", "startDate": "next week"}}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", body, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("validation status %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	fields, _ := env.Error.Details["fields"].(map[string]any)
	if env.Error.Code != "validation_failed" || fields["leader"] != "required" || fields["tasks[0].startDate"] == nil {
		t.Fatalf("unexpected validation envelope: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=0", nil, nil)
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Error.Code != "bad_request" {
		t.Fatalf("bad query %d: %s", res.StatusCode, string(data))
	}
}

func TestWeightAdvisory(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", projectBody(30, 60), nil)
	var saved engine.SaveResult
	if err := json.Unmarshal(data, &saved); err != nil || res.StatusCode != http.StatusCreated || saved.Advisory.Balanced {
		t.Fatalf("advisory save %d: %s", res.StatusCode, string(data))
	}

	srv.Engine.Config.Weights.RequireBalanced = true
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", projectBody(30, 60), nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "weight_unbalanced" || env.Error.Details["total"] != 90.0 || env.Error.Details["expected"] != 100.0 {
		t.Fatalf("unexpected envelope: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects?force=true", projectBody(30, 60), nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("forced save %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/progress/compute", map[string]any{
		"tasks": []map[string]any{{"progress": 40}, {"progress": 60}},
	}, nil)
	var computed ComputeProgressResponse
	if err := json.Unmarshal(data, &computed); err != nil || computed.Progress != 50 || !computed.Advisory.Balanced {
		t.Fatalf("compute %d: %s", res.StatusCode, string(data))
	}
}

func TestJWTAuth(t *testing.T) {
	secret := "test-secret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", res.StatusCode)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"X-Actor-Id": "mallory"})
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error.Code != "unauthorized" {
		t.Fatalf("missing token %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error.Code != "invalid_credentials" {
		t.Fatalf("bad token %d: %s", res.StatusCode, string(data))
	}
	expired, err := IssueToken(secret, "ana", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer " + expired})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired token accepted: %d", res.StatusCode)
	}

	token, err := IssueToken(secret, "ana", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + token, "X-Actor-Id": "mallory"}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", projectBody(), auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create with token %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=project.created", nil, auth)
	var evs []domain.Event
	if err := json.Unmarshal(data, &evs); err != nil || len(evs) != 1 || evs[0].ActorID != "ana" {
		t.Fatalf("actor should come from the token subject: %s", string(data))
	}

	if _, err := IssueToken("", "ana", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestMasterDataAndImport(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/master-data", nil, nil)
	var md domain.MasterData
	if err := json.Unmarshal(data, &md); err != nil || len(md.Leaders) != 2 || len(md.Statuses) != 5 {
		t.Fatalf("seeded master data: %s", string(data))
	}

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/master-data", map[string]any{
		"leaders":  []string{"Zoe", "Ana"},
		"statuses": []map[string]any{{"name": "Open", "color": "#22c55e"}},
	}, nil)
	if err := json.Unmarshal(data, &md); err != nil || res.StatusCode != http.StatusOK || md.Leaders[0] != "Ana" || len(md.Departments) != 0 {
		t.Fatalf("replace master data %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/master-data", map[string]any{"departments": []string{"Ops", "Ops"}}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate master data %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/import", map[string]any{
		"projects": []map[string]any{
			{"id": "P2023001", "name": "Legacy", "leader": "Ana", "department": "Ops", "status": "Open",
				"progress": 20, "updatedAt": "2023-06-01T00:00:00Z", "tasks": []map[string]any{{"id": "a", "name": "A", "progress": 20, "weight": 100}}},
		},
		"histories": []map[string]any{
			{"id": "h1", "projectId": "P2023001", "progress": 20, "updatedAt": "2023-06-01T00:00:00Z"},
			{"id": "h2", "projectId": "ghost", "updatedAt": "2023-06-01T00:00:00Z"},
		},
	}, nil)
	var imported engine.ImportResult
	if err := json.Unmarshal(data, &imported); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("import %d: %s", res.StatusCode, string(data))
	}
	if imported.Projects != 1 || imported.Histories != 1 || len(imported.Rejected) != 1 {
		t.Fatalf("unexpected import result: %+v", imported)
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/analytics/leaders", nil, nil)
	var leaders []engine.LeaderRow
	if err := json.Unmarshal(data, &leaders); err != nil || len(leaders) != 2 || leaders[0].Leader != "Ana" || leaders[0].TotalProjects != 1 {
		t.Fatalf("leaders: %s", string(data))
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/portfolio/variance", nil, nil)
	var rows []engine.PortfolioRow
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) != 1 || rows[0].Snapshots != 1 {
		t.Fatalf("portfolio variance: %s", string(data))
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/gantt?status=open", nil, nil)
	var chart engine.GanttChart
	if err := json.Unmarshal(data, &chart); err != nil || len(chart.Rows) != 1 || chart.Rows[0].Color != "#22c55e" {
		t.Fatalf("gantt: %s", string(data))
	}
}

func TestOpenAPIAdvertisesBearerAuth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc struct {
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	if doc.Components.SecuritySchemes["bearerAuth"] == nil || doc.Paths["/v0/projects/{project_id}/variance"] == nil {
		t.Fatalf("openapi missing expected entries")
	}
}

func minimalProject() domain.Project {
	return domain.Project{
		Name: "Ops revamp", Leader: "Bo", Department: "Ops", Status: "Planning",
		Tasks: []domain.Task{{Name: "Plan", Progress: 10, Weight: 100}},
	}
}
