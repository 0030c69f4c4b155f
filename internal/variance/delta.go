// Package variance compares project history snapshots and maps their progression
// onto a normalized time axis.
package variance

import (
	"sort"

	"portfolio/internal/dates"
	"portfolio/internal/domain"
)

// TaskDelta compares one task against its state in the baseline snapshot.
// Numeric fields are nil when the task is new or a date could not be parsed.
type TaskDelta struct {
	TaskID        string `json:"taskId"`
	Name          string `json:"name"`
	Progress      int    `json:"progress"`
	IsNew         bool   `json:"isNew"`
	ProgressDelta *int   `json:"progressDelta,omitempty"`
	StartSlip     *int   `json:"startSlip,omitempty"`
	EndSlip       *int   `json:"endSlip,omitempty"`
}

type MilestoneDelta struct {
	MilestoneID string `json:"milestoneId"`
	Name        string `json:"name"`
	Date        string `json:"date"`
	Completed   bool   `json:"completed"`
	IsNew       bool   `json:"isNew"`
	DateSlip    *int   `json:"dateSlip,omitempty"`
}

// SnapshotDelta is the change recorded by one snapshot relative to its baseline.
// Initial marks the oldest snapshot, which has nothing to compare against.
type SnapshotDelta struct {
	HistoryID     string           `json:"historyId"`
	UpdatedAt     string           `json:"updatedAt"`
	Status        string           `json:"status"`
	Progress      int              `json:"progress"`
	Initial       bool             `json:"initial"`
	ProgressDelta *int             `json:"progressDelta,omitempty"`
	Tasks         []TaskDelta      `json:"tasks"`
	Milestones    []MilestoneDelta `json:"milestones"`
}

// ComputeSnapshotDelta compares current against previous. A nil previous yields
// the initial marker with no deltas. Entities that exist only in previous are
// not reported.
func ComputeSnapshotDelta(current domain.ProjectHistory, previous *domain.ProjectHistory) SnapshotDelta {
	d := SnapshotDelta{
		HistoryID:  current.ID,
		UpdatedAt:  current.UpdatedAt,
		Status:     current.Status,
		Progress:   current.Progress,
		Tasks:      []TaskDelta{},
		Milestones: []MilestoneDelta{},
	}
	if previous == nil {
		d.Initial = true
		return d
	}
	d.ProgressDelta = intPtr(current.Progress - previous.Progress)

	prevTasks := make(map[string]domain.Task, len(previous.Tasks))
	for _, t := range previous.Tasks {
		prevTasks[t.ID] = t
	}
	for _, t := range current.Tasks {
		td := TaskDelta{TaskID: t.ID, Name: t.Name, Progress: t.Progress}
		prev, ok := prevTasks[t.ID]
		if !ok {
			td.IsNew = true
			d.Tasks = append(d.Tasks, td)
			continue
		}
		td.ProgressDelta = intPtr(t.Progress - prev.Progress)
		td.StartSlip = slip(t.StartDate, prev.StartDate)
		td.EndSlip = slip(t.EndDate, prev.EndDate)
		d.Tasks = append(d.Tasks, td)
	}

	prevMilestones := make(map[string]domain.Milestone, len(previous.Milestones))
	for _, m := range previous.Milestones {
		prevMilestones[m.ID] = m
	}
	for _, m := range current.Milestones {
		md := MilestoneDelta{MilestoneID: m.ID, Name: m.Name, Date: m.Date, Completed: m.Completed}
		prev, ok := prevMilestones[m.ID]
		if !ok {
			md.IsNew = true
			d.Milestones = append(d.Milestones, md)
			continue
		}
		md.DateSlip = slip(m.Date, prev.Date)
		d.Milestones = append(d.Milestones, md)
	}
	return d
}

// BuildTimeline returns one delta per snapshot, newest first, each compared
// with the next older snapshot. Snapshots whose updatedAt does not parse are skipped.
func BuildTimeline(history []domain.ProjectHistory) []SnapshotDelta {
	ordered := sortByUpdatedAt(history)
	out := make([]SnapshotDelta, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		var prev *domain.ProjectHistory
		if i > 0 {
			prev = &ordered[i-1].h
		}
		out = append(out, ComputeSnapshotDelta(ordered[i].h, prev))
	}
	return out
}

type stamped struct {
	h domain.ProjectHistory
	t int64
}

// sortByUpdatedAt drops unparseable snapshots and orders the rest oldest first.
// Equal timestamps fall back to the history id so the order never depends on input order.
func sortByUpdatedAt(history []domain.ProjectHistory) []stamped {
	out := make([]stamped, 0, len(history))
	for _, h := range history {
		ts, err := dates.ParseTimestamp(h.UpdatedAt)
		if err != nil {
			continue
		}
		out = append(out, stamped{h: h, t: dates.Millis(ts)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].t != out[j].t {
			return out[i].t < out[j].t
		}
		return out[i].h.ID < out[j].h.ID
	})
	return out
}

func slip(current, previous string) *int {
	days, err := dates.DaysBetween(current, previous)
	if err != nil {
		return nil
	}
	return intPtr(days)
}

func intPtr(v int) *int { return &v }
