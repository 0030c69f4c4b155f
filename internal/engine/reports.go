package engine

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"portfolio/internal/analytics"
	"portfolio/internal/domain"
	"portfolio/internal/variance"
)

// reportWorkers bounds concurrent history reads for portfolio reports.
const reportWorkers = 4

// Variance builds the timeline and progression series for one project.
func (e Engine) Variance(ctx context.Context, projectID string) (variance.Report, error) {
	history, err := e.History(ctx, projectID)
	if err != nil {
		return variance.Report{}, err
	}
	report := variance.BuildReport(projectID, history)
	if n := len(report.Series.Excluded); n > 0 {
		e.log().WarnContext(ctx, "history snapshots skipped", "project", projectID, "count", n, "ids", report.Series.Excluded)
	}
	return report, nil
}

// PortfolioRow summarizes the latest change of one project.
type PortfolioRow struct {
	ProjectID     string `json:"projectId"`
	Name          string `json:"name"`
	Leader        string `json:"leader"`
	Department    string `json:"department"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	Snapshots     int    `json:"snapshots"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
	ProgressDelta *int   `json:"progressDelta,omitempty"`
	SlippedTasks  int    `json:"slippedTasks"`
	MaxEndSlip    int    `json:"maxEndSlip"`
	NewTasks      int    `json:"newTasks"`
}

// PortfolioVariance compares the two latest snapshots of every project that
// matches filter. Rows are ordered by project id.
func (e Engine) PortfolioVariance(ctx context.Context, filter analytics.Filter) ([]PortfolioRow, error) {
	projects, err := e.ListProjects(ctx, false)
	if err != nil {
		return nil, err
	}
	projects = filter.Apply(projects)

	p := pool.NewWithResults[PortfolioRow]().WithContext(ctx).WithMaxGoroutines(reportWorkers)
	for _, proj := range projects {
		p.Go(func(ctx context.Context) (PortfolioRow, error) {
			history, err := e.Repo.ListHistory(ctx, proj.ID)
			if err != nil {
				return PortfolioRow{}, err
			}
			return portfolioRow(proj, variance.BuildTimeline(history)), nil
		})
	}
	rows, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProjectID < rows[j].ProjectID })
	return rows, nil
}

func portfolioRow(p domain.Project, timeline []variance.SnapshotDelta) PortfolioRow {
	row := PortfolioRow{
		ProjectID:  p.ID,
		Name:       p.Name,
		Leader:     p.Leader,
		Department: p.Department,
		Status:     p.Status,
		Progress:   p.Progress,
		Snapshots:  len(timeline),
	}
	if len(timeline) == 0 {
		return row
	}
	latest := timeline[0]
	row.LastUpdatedAt = latest.UpdatedAt
	row.ProgressDelta = latest.ProgressDelta
	for _, t := range latest.Tasks {
		if t.IsNew {
			row.NewTasks++
			continue
		}
		if t.EndSlip != nil && *t.EndSlip > 0 {
			row.SlippedTasks++
			row.MaxEndSlip = max(row.MaxEndSlip, *t.EndSlip)
		}
	}
	return row
}

type LeaderRow struct {
	analytics.LeaderStat
	MilestoneRate int `json:"milestoneRate"`
}

// LeaderAnalytics ranks the master-data leaders by the average progress of
// their live projects. Leaders found only on projects are appended so no
// project goes unaccounted.
func (e Engine) LeaderAnalytics(ctx context.Context) ([]LeaderRow, error) {
	projects, err := e.ListProjects(ctx, false)
	if err != nil {
		return nil, err
	}
	md, err := e.Repo.GetMasterData(ctx)
	if err != nil {
		return nil, err
	}
	leaders := append([]string{}, md.Leaders...)
	known := map[string]bool{}
	for _, l := range leaders {
		known[l] = true
	}
	var extra []string
	for _, p := range projects {
		if p.Leader != "" && !known[p.Leader] {
			known[p.Leader] = true
			extra = append(extra, p.Leader)
		}
	}
	sort.Strings(extra)
	leaders = append(leaders, extra...)

	stats := analytics.LeaderStats(projects, leaders, e.Config.Lifecycle.ClosedStatuses)
	ranked := analytics.RankLeaders(leaders, stats)
	rows := make([]LeaderRow, 0, len(ranked))
	for _, l := range ranked {
		st := stats[l]
		rows = append(rows, LeaderRow{LeaderStat: st, MilestoneRate: st.MilestoneRate()})
	}
	return rows, nil
}

type GanttBar struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Start    string  `json:"start"`
	End      string  `json:"end"`
	Progress int     `json:"progress"`
	StartPos float64 `json:"startPos"`
	EndPos   float64 `json:"endPos"`
}

type GanttMarker struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Date      string  `json:"date"`
	Completed bool    `json:"completed"`
	Pos       float64 `json:"pos"`
}

type GanttRow struct {
	ProjectID  string        `json:"projectId"`
	Name       string        `json:"name"`
	Leader     string        `json:"leader"`
	Department string        `json:"department"`
	Status     string        `json:"status"`
	Color      string        `json:"color"`
	Progress   int           `json:"progress"`
	Span       *GanttBar     `json:"span,omitempty"`
	Tasks      []GanttBar    `json:"tasks"`
	Milestones []GanttMarker `json:"milestones"`
}

type GanttChart struct {
	Window analytics.Window `json:"window"`
	Rows   []GanttRow       `json:"rows"`
}

// Gantt places every matching project's tasks and milestones on the
// configured timeline window. Items with unparseable dates are left out.
func (e Engine) Gantt(ctx context.Context, filter analytics.Filter) (GanttChart, error) {
	projects, err := e.ListProjects(ctx, false)
	if err != nil {
		return GanttChart{}, err
	}
	md, err := e.Repo.GetMasterData(ctx)
	if err != nil {
		return GanttChart{}, err
	}
	w := analytics.NewWindow(e.now(), e.Config.Timeline.YearsBefore, e.Config.Timeline.YearsAfter)
	chart := GanttChart{Window: w, Rows: []GanttRow{}}
	for _, p := range filter.Apply(projects) {
		row := GanttRow{
			ProjectID:  p.ID,
			Name:       p.Name,
			Leader:     p.Leader,
			Department: p.Department,
			Status:     p.Status,
			Color:      analytics.StatusColor(md, p.Status),
			Progress:   p.Progress,
			Tasks:      []GanttBar{},
			Milestones: []GanttMarker{},
		}
		var span GanttBar
		for _, t := range p.Tasks {
			start, okStart := w.Position(t.StartDate)
			end, okEnd := w.Position(t.EndDate)
			if !okStart || !okEnd {
				continue
			}
			row.Tasks = append(row.Tasks, GanttBar{
				ID: t.ID, Name: t.Name, Start: t.StartDate, End: t.EndDate,
				Progress: t.Progress, StartPos: start, EndPos: end,
			})
			if span.Start == "" || start < span.StartPos {
				span.Start, span.StartPos = t.StartDate, start
			}
			if span.End == "" || end > span.EndPos {
				span.End, span.EndPos = t.EndDate, end
			}
		}
		if len(row.Tasks) > 0 {
			span.ID, span.Name, span.Progress = p.ID, p.Name, p.Progress
			row.Span = &span
		}
		for _, m := range p.Milestones {
			pos, ok := w.Position(m.Date)
			if !ok {
				continue
			}
			row.Milestones = append(row.Milestones, GanttMarker{ID: m.ID, Name: m.Name, Date: m.Date, Completed: m.Completed, Pos: pos})
		}
		chart.Rows = append(chart.Rows, row)
	}
	return chart, nil
}
