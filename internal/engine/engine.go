package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"portfolio/internal/config"
	"portfolio/internal/dates"
	"portfolio/internal/domain"
	"portfolio/internal/events"
	"portfolio/internal/ids"
	"portfolio/internal/progress"
	"portfolio/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

var (
	ErrNoConfig       = errors.New("config not loaded")
	ErrAlreadyDeleted = errors.New("project already deleted")
)

// ValidationError lists every rejected field of a save request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// WeightAdvisoryError blocks a save whose task weights do not add up to the
// expected total when the workspace requires balanced weights.
type WeightAdvisoryError struct {
	Advisory progress.WeightAdvisory
}

func (e *WeightAdvisoryError) Error() string {
	return fmt.Sprintf("task weights total %s, expected %s; save with force to accept",
		formatWeight(e.Advisory.Total), formatWeight(e.Advisory.Expected))
}

func formatWeight(w float64) string {
	if w == math.Trunc(w) {
		return fmt.Sprintf("%.0f", w)
	}
	return fmt.Sprintf("%.2f", w)
}

// SaveOptions are parameters for creating or updating a project. An empty
// Project.ID creates a new project with a generated id.
type SaveOptions struct {
	Project domain.Project
	ActorID string
	Force   bool
}

type SaveResult struct {
	Project   domain.Project          `json:"project"`
	HistoryID string                  `json:"historyId"`
	Created   bool                    `json:"created"`
	Advisory  progress.WeightAdvisory `json:"weightAdvisory"`
}

// SaveProject validates, recomputes progress and writes the live record, one
// history snapshot and an event in a single transaction.
func (e Engine) SaveProject(ctx context.Context, opts SaveOptions) (SaveResult, error) {
	return e.save(ctx, opts, "")
}

func (e Engine) save(ctx context.Context, opts SaveOptions, evtType string) (SaveResult, error) {
	if e.Config == nil {
		return SaveResult{}, ErrNoConfig
	}
	p := sanitize(opts.Project)
	// Deletion re-saves whatever is stored, including imported records that
	// would not pass today's rules.
	if evtType != events.ProjectDeleted {
		if err := validate(p); err != nil {
			return SaveResult{}, err
		}
	}
	p.Progress = progress.Compute(p.Tasks)
	advisory := progress.CheckWeights(p.Tasks, e.Config.Weights.ExpectedTotal)
	if !advisory.Balanced {
		if e.Config.Weights.RequireBalanced && !opts.Force {
			return SaveResult{}, &WeightAdvisoryError{Advisory: advisory}
		}
		e.log().WarnContext(ctx, "task weights unbalanced", "project", p.ID, "total", advisory.Total, "expected", advisory.Expected)
	}

	now := e.now()
	p.UpdatedAt = dates.FormatISO(now)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, err
	}
	defer tx.Rollback()

	created := false
	if p.ID == "" {
		prefix := ids.ProjectPrefix(now)
		existing, err := e.Repo.ProjectIDs(ctx, tx, prefix)
		if err != nil {
			return SaveResult{}, fmt.Errorf("list project ids: %w", err)
		}
		p.ID = ids.NextProjectID(existing, now)
		created = true
	} else if _, err := e.Repo.GetProjectTx(ctx, tx, p.ID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return SaveResult{}, err
		}
		created = true
	}

	if err := e.Repo.UpsertProjectTx(ctx, tx, p); err != nil {
		return SaveResult{}, fmt.Errorf("save project %s: %w", p.ID, err)
	}
	historyID, err := e.Repo.InsertHistoryTx(ctx, tx, p.Snapshot(ids.HistoryID(p.ID, now)))
	if err != nil {
		return SaveResult{}, fmt.Errorf("append history for %s: %w", p.ID, err)
	}
	switch {
	case evtType != "":
	case created:
		evtType = events.ProjectCreated
	default:
		evtType = events.ProjectSaved
	}
	payload := events.EventPayload{"history_id": historyID, "progress": p.Progress, "status": p.Status}
	if !advisory.Balanced {
		payload["weight_total"] = advisory.Total
	}
	if err := e.Events.Append(ctx, tx, evtType, p.ID, events.KindProject, p.ID, actorOrDefault(opts.ActorID), payload); err != nil {
		return SaveResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SaveResult{}, err
	}
	e.log().DebugContext(ctx, "project saved", "project", p.ID, "history", historyID, "progress", p.Progress, "created", created)
	return SaveResult{Project: p, HistoryID: historyID, Created: created, Advisory: advisory}, nil
}

// DeleteProject moves a project to the configured deleted status through the
// save path, so the deletion is itself recorded in history.
func (e Engine) DeleteProject(ctx context.Context, id, actorID string) (SaveResult, error) {
	if e.Config == nil {
		return SaveResult{}, ErrNoConfig
	}
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return SaveResult{}, err
	}
	deleted := e.Config.Lifecycle.DeletedStatus
	if p.Status == deleted {
		return SaveResult{}, fmt.Errorf("%s: %w", id, ErrAlreadyDeleted)
	}
	p.Status = deleted
	res, err := e.save(ctx, SaveOptions{Project: p, ActorID: actorID, Force: true}, events.ProjectDeleted)
	if err != nil {
		return SaveResult{}, err
	}
	e.log().InfoContext(ctx, "project deleted", "project", id)
	return res, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

// ListProjects returns live projects, most recently updated first. Deleted
// projects are hidden unless includeDeleted is set.
func (e Engine) ListProjects(ctx context.Context, includeDeleted bool) ([]domain.Project, error) {
	if e.Config == nil {
		return nil, ErrNoConfig
	}
	return e.Repo.ListProjects(ctx, repo.ProjectQuery{
		IncludeDeleted: includeDeleted,
		DeletedStatus:  e.Config.Lifecycle.DeletedStatus,
	})
}

// History returns a project's snapshots newest first.
func (e Engine) History(ctx context.Context, projectID string) ([]domain.ProjectHistory, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, projectID)
}

// ComputeProgress runs the aggregator without persisting anything.
func (e Engine) ComputeProgress(tasks []domain.Task) (int, progress.WeightAdvisory) {
	expected := float64(progress.DefaultExpectedWeight)
	if e.Config != nil {
		expected = e.Config.Weights.ExpectedTotal
	}
	return progress.Compute(tasks), progress.CheckWeights(tasks, expected)
}

func sanitize(p domain.Project) domain.Project {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Leader = strings.TrimSpace(p.Leader)
	p.Department = strings.TrimSpace(p.Department)
	p.Status = strings.TrimSpace(p.Status)

	tasks := make([]domain.Task, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			t.ID = ids.NewItemID()
		}
		t.Name = strings.TrimSpace(t.Name)
		t.Description = strings.TrimSpace(t.Description)
		t.StartDate = strings.TrimSpace(t.StartDate)
		t.EndDate = strings.TrimSpace(t.EndDate)
		t.Progress = min(max(t.Progress, 0), 100)
		if t.Weight < 0 || math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) {
			t.Weight = 0
		}
		tasks = append(tasks, t)
	}
	p.Tasks = tasks

	milestones := make([]domain.Milestone, 0, len(p.Milestones))
	for _, m := range p.Milestones {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			m.ID = ids.NewItemID()
		}
		m.Name = strings.TrimSpace(m.Name)
		m.Description = strings.TrimSpace(m.Description)
		m.Date = strings.TrimSpace(m.Date)
		milestones = append(milestones, m)
	}
	p.Milestones = milestones
	return p
}

func validate(p domain.Project) error {
	fields := map[string]string{}
	required := map[string]string{"name": p.Name, "leader": p.Leader, "department": p.Department, "status": p.Status}
	for k, v := range required {
		if v == "" {
			fields[k] = "required"
		}
	}
	if len(p.Tasks) == 0 {
		fields["tasks"] = "at least one task is required"
	}
	seen := map[string]bool{}
	for i, t := range p.Tasks {
		if t.Name == "" {
			fields[fmt.Sprintf("tasks[%d].name", i)] = "required"
		}
		if seen[t.ID] {
			fields[fmt.Sprintf("tasks[%d].id", i)] = "duplicate id " + t.ID
		}
		seen[t.ID] = true
		for name, v := range map[string]string{"startDate": t.StartDate, "endDate": t.EndDate} {
			if v == "" {
				continue
			}
			if _, err := dates.ParseDate(v); err != nil {
				fields[fmt.Sprintf("tasks[%d].%s", i, name)] = "invalid date " + v
			}
		}
	}
	seen = map[string]bool{}
	for i, m := range p.Milestones {
		if m.Name == "" {
			fields[fmt.Sprintf("milestones[%d].name", i)] = "required"
		}
		if seen[m.ID] {
			fields[fmt.Sprintf("milestones[%d].id", i)] = "duplicate id " + m.ID
		}
		seen[m.ID] = true
		if m.Date != "" {
			if _, err := dates.ParseDate(m.Date); err != nil {
				fields[fmt.Sprintf("milestones[%d].date", i)] = "invalid date " + m.Date
			}
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func actorOrDefault(actorID string) string {
	if actorID == "" {
		return "local-user"
	}
	return actorID
}
