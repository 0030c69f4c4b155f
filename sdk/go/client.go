package portfoliosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal portfolio HTTP API client.
type Client struct {
	BaseURL     string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Task struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	StartDate   string  `json:"startDate,omitempty"`
	EndDate     string  `json:"endDate,omitempty"`
	Progress    int     `json:"progress"`
	Weight      float64 `json:"weight"`
}

type Milestone struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty"`
	Completed   bool   `json:"completed,omitempty"`
}

type Project struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Leader      string      `json:"leader"`
	Department  string      `json:"department"`
	Status      string      `json:"status"`
	Progress    int         `json:"progress,omitempty"`
	Tasks       []Task      `json:"tasks"`
	Milestones  []Milestone `json:"milestones,omitempty"`
	UpdatedAt   string      `json:"updatedAt,omitempty"`
}

// ProjectHistory is one immutable snapshot.
type ProjectHistory struct {
	Project
	ProjectID string `json:"projectId"`
}

type WeightAdvisory struct {
	Total    float64 `json:"total"`
	Expected float64 `json:"expected"`
	Balanced bool    `json:"balanced"`
}

type SaveResult struct {
	Project   Project        `json:"project"`
	HistoryID string         `json:"historyId"`
	Created   bool           `json:"created"`
	Advisory  WeightAdvisory `json:"weightAdvisory"`
}

type Point struct {
	HistoryID string  `json:"historyId"`
	T         int64   `json:"t"`
	Progress  int     `json:"progress"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type Marker struct {
	MilestoneID string  `json:"milestoneId"`
	Name        string  `json:"name"`
	T           int64   `json:"t"`
	Completed   bool    `json:"completed"`
	X           float64 `json:"x"`
}

type Series struct {
	Points    []Point  `json:"points"`
	Markers   []Marker `json:"milestoneMarkers"`
	StartTime int64    `json:"startTime"`
	EndTime   int64    `json:"endTime"`
	TimeRange int64    `json:"timeRange"`
	Excluded  []string `json:"excluded,omitempty"`
}

// SnapshotDelta keeps task and milestone deltas as raw JSON.
type SnapshotDelta struct {
	HistoryID     string          `json:"historyId"`
	UpdatedAt     string          `json:"updatedAt"`
	Status        string          `json:"status"`
	Progress      int             `json:"progress"`
	Initial       bool            `json:"initial"`
	ProgressDelta *int            `json:"progressDelta,omitempty"`
	Tasks         json.RawMessage `json:"tasks"`
	Milestones    json.RawMessage `json:"milestones"`
}

type VarianceReport struct {
	ProjectID string          `json:"projectId"`
	Snapshots int             `json:"snapshots"`
	Timeline  []SnapshotDelta `json:"timeline"`
	Series    Series          `json:"series"`
}

type ComputeResult struct {
	Progress int            `json:"progress"`
	Advisory WeightAdvisory `json:"weightAdvisory"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsWeightUnbalanced reports whether err is the server refusing a save
// because task weights do not add up.
func IsWeightUnbalanced(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "weight_unbalanced"
}

// Filter narrows list results; empty fields match everything.
type Filter struct {
	Department     string
	Leader         string
	Status         string
	IncludeDeleted bool
}

func (f Filter) query() string {
	q := url.Values{}
	if f.Department != "" {
		q.Set("department", f.Department)
	}
	if f.Leader != "" {
		q.Set("leader", f.Leader)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.IncludeDeleted {
		q.Set("include_deleted", "true")
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) ListProjects(ctx context.Context, f Filter) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects"+f.query(), nil, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, projectPath(id, ""), nil, &resp)
	return resp, err
}

// SaveProject creates the project when p.ID is empty and replaces it otherwise.
func (c *Client) SaveProject(ctx context.Context, p Project, force bool) (SaveResult, error) {
	method, endpoint := http.MethodPost, "v0/projects"
	if p.ID != "" {
		method, endpoint = http.MethodPut, projectPath(p.ID, "")
	}
	if force {
		endpoint += "?force=true"
	}
	var resp SaveResult
	err := c.do(ctx, method, endpoint, p, &resp)
	return resp, err
}

func (c *Client) DeleteProject(ctx context.Context, id string) (SaveResult, error) {
	var resp SaveResult
	err := c.do(ctx, http.MethodDelete, projectPath(id, ""), nil, &resp)
	return resp, err
}

// History returns snapshots newest first.
func (c *Client) History(ctx context.Context, id string) ([]ProjectHistory, error) {
	var resp []ProjectHistory
	err := c.do(ctx, http.MethodGet, projectPath(id, "history"), nil, &resp)
	return resp, err
}

func (c *Client) Variance(ctx context.Context, id string) (VarianceReport, error) {
	var resp VarianceReport
	err := c.do(ctx, http.MethodGet, projectPath(id, "variance"), nil, &resp)
	return resp, err
}

func (c *Client) Progression(ctx context.Context, id string) (Series, error) {
	var resp Series
	err := c.do(ctx, http.MethodGet, projectPath(id, "progression"), nil, &resp)
	return resp, err
}

// ComputeProgress asks the server to aggregate tasks without saving.
func (c *Client) ComputeProgress(ctx context.Context, tasks []Task) (ComputeResult, error) {
	var resp ComputeResult
	err := c.do(ctx, http.MethodPost, "v0/progress/compute", map[string]any{"tasks": tasks}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func projectPath(id, p string) string {
	base := fmt.Sprintf("v0/projects/%s", url.PathEscape(id))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
