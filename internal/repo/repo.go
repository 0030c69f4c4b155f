package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"portfolio/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const projectColumns = `id,name,description,leader,department,status,progress,tasks_json,milestones_json,updated_at`

const historyColumns = `id,project_id,name,description,leader,department,status,progress,tasks_json,milestones_json,updated_at`

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var tasks, milestones string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Leader, &p.Department, &p.Status, &p.Progress, &tasks, &milestones, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if p.Tasks, p.Milestones, err = decodeItems(tasks, milestones); err != nil {
		return p, fmt.Errorf("project %s: %w", p.ID, err)
	}
	return p, nil
}

func scanHistory(row scanner) (domain.ProjectHistory, error) {
	var h domain.ProjectHistory
	var tasks, milestones string
	err := row.Scan(&h.ID, &h.ProjectID, &h.Name, &h.Description, &h.Leader, &h.Department, &h.Status, &h.Progress, &tasks, &milestones, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	if h.Tasks, h.Milestones, err = decodeItems(tasks, milestones); err != nil {
		return h, fmt.Errorf("history %s: %w", h.ID, err)
	}
	return h, nil
}

func decodeItems(tasksJSON, milestonesJSON string) ([]domain.Task, []domain.Milestone, error) {
	tasks := []domain.Task{}
	milestones := []domain.Milestone{}
	if err := strictUnmarshal(tasksJSON, &tasks); err != nil {
		return nil, nil, fmt.Errorf("decode tasks: %w", err)
	}
	if err := strictUnmarshal(milestonesJSON, &milestones); err != nil {
		return nil, nil, fmt.Errorf("decode milestones: %w", err)
	}
	return tasks, milestones, nil
}

func strictUnmarshal(data string, v any) error {
	if data == "" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func encodeItems(tasks []domain.Task, milestones []domain.Milestone) (string, string, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	if milestones == nil {
		milestones = []domain.Milestone{}
	}
	t, err := json.Marshal(tasks)
	if err != nil {
		return "", "", fmt.Errorf("encode tasks: %w", err)
	}
	m, err := json.Marshal(milestones)
	if err != nil {
		return "", "", fmt.Errorf("encode milestones: %w", err)
	}
	return string(t), string(m), nil
}

// UpsertProjectTx writes the live record, replacing any previous state.
func (r Repo) UpsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	tasks, milestones, err := encodeItems(p.Tasks, p.Milestones)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name,description=excluded.description,leader=excluded.leader,
department=excluded.department,status=excluded.status,progress=excluded.progress,tasks_json=excluded.tasks_json,
milestones_json=excluded.milestones_json,updated_at=excluded.updated_at`,
		p.ID, p.Name, p.Description, p.Leader, p.Department, p.Status, p.Progress, tasks, milestones, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return getProject(ctx, r.DB, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return getProject(ctx, tx, id)
}

func getProject(ctx context.Context, q queryer, id string) (domain.Project, error) {
	return scanProject(q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

type ProjectQuery struct {
	IncludeDeleted bool
	DeletedStatus  string
}

// ListProjects returns live records, most recently updated first.
func (r Repo) ListProjects(ctx context.Context, q ProjectQuery) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if !q.IncludeDeleted && q.DeletedStatus != "" {
		query += ` WHERE status<>?`
		args = append(args, q.DeletedStatus)
	}
	query += ` ORDER BY updated_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectIDs lists every project id starting with prefix, including deleted ones.
func (r Repo) ProjectIDs(ctx context.Context, tx *sql.Tx, prefix string) ([]string, error) {
	var q queryer = r.DB
	if tx != nil {
		q = tx
	}
	rows, err := q.QueryContext(ctx, `SELECT id FROM projects WHERE id LIKE ? ESCAPE '\' ORDER BY id`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// InsertHistoryTx appends a snapshot and returns the id it was stored under.
// Snapshots are never updated; when the id is taken a -N suffix is added.
func (r Repo) InsertHistoryTx(ctx context.Context, tx *sql.Tx, h domain.ProjectHistory) (string, error) {
	base := h.ID
	for n := 2; ; n++ {
		exists, err := r.HistoryExistsTx(ctx, tx, h.ID)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		h.ID = fmt.Sprintf("%s-%d", base, n)
	}
	tasks, milestones, err := encodeItems(h.Tasks, h.Milestones)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects_history(`+historyColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.ProjectID, h.Name, h.Description, h.Leader, h.Department, h.Status, h.Progress, tasks, milestones, h.UpdatedAt)
	if err != nil {
		return "", err
	}
	return h.ID, nil
}

func (r Repo) HistoryExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects_history WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListHistory returns a project's snapshots newest first.
func (r Repo) ListHistory(ctx context.Context, projectID string) ([]domain.ProjectHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+historyColumns+` FROM projects_history WHERE project_id=? ORDER BY updated_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ProjectHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) GetHistory(ctx context.Context, id string) (domain.ProjectHistory, error) {
	return scanHistory(r.DB.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM projects_history WHERE id=?`, id))
}

func (r Repo) CountHistory(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects_history WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

// ReplaceMasterDataTx swaps all three master lists in one transaction.
func (r Repo) ReplaceMasterDataTx(ctx context.Context, tx *sql.Tx, md domain.MasterData) error {
	for _, table := range []string{"master_leaders", "master_departments", "master_statuses"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, l := range md.Leaders {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO master_leaders(name) VALUES (?)`, l); err != nil {
			return fmt.Errorf("insert leader %s: %w", l, err)
		}
	}
	for _, d := range md.Departments {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO master_departments(name) VALUES (?)`, d); err != nil {
			return fmt.Errorf("insert department %s: %w", d, err)
		}
	}
	for i, s := range md.Statuses {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO master_statuses(name,color,position) VALUES (?,?,?)`, s.Name, s.Color, i); err != nil {
			return fmt.Errorf("insert status %s: %w", s.Name, err)
		}
	}
	return nil
}

// GetMasterData returns leaders and departments sorted by name and statuses in
// their configured order.
func (r Repo) GetMasterData(ctx context.Context) (domain.MasterData, error) {
	md := domain.MasterData{Leaders: []string{}, Departments: []string{}, Statuses: []domain.StatusMaster{}}
	var err error
	if md.Leaders, err = r.names(ctx, "master_leaders"); err != nil {
		return md, err
	}
	if md.Departments, err = r.names(ctx, "master_departments"); err != nil {
		return md, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT name,color FROM master_statuses ORDER BY position, name`)
	if err != nil {
		return md, err
	}
	defer rows.Close()
	for rows.Next() {
		var s domain.StatusMaster
		if err := rows.Scan(&s.Name, &s.Color); err != nil {
			return md, err
		}
		s.ID = s.Name
		md.Statuses = append(md.Statuses, s)
	}
	return md, rows.Err()
}

// MasterDataEmpty reports whether no master list has been written yet.
func (r Repo) MasterDataEmpty(ctx context.Context) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT (SELECT COUNT(1) FROM master_leaders)+(SELECT COUNT(1) FROM master_departments)+(SELECT COUNT(1) FROM master_statuses)`).Scan(&n)
	return n == 0, err
}

func (r Repo) names(ctx context.Context, table string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name FROM `+table+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// LatestEvents returns events newest first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns up to limit events with id greater than after, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, after int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, after, limit)
}

// LatestEventID returns the highest event id, or 0 for an empty log.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
