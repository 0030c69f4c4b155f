// Package analytics summarizes a portfolio per leader and places project
// dates on the dashboard timeline.
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"portfolio/internal/dates"
	"portfolio/internal/domain"
)

// DefaultStatusColor is used for statuses missing from the master list.
const DefaultStatusColor = "#94a3b8"

type LeaderStat struct {
	Leader             string `json:"leader"`
	TotalProjects      int    `json:"totalProjects"`
	AvgProgress        int    `json:"avgProgress"`
	AchievedMilestones int    `json:"achievedMilestones"`
	TotalMilestones    int    `json:"totalMilestones"`
	ActiveProjects     int    `json:"activeProjects"`
}

// MilestoneRate is the rounded percentage of achieved milestones.
func (s LeaderStat) MilestoneRate() int {
	if s.TotalMilestones == 0 {
		return 0
	}
	return roundHalfUp(float64(s.AchievedMilestones) / float64(s.TotalMilestones) * 100)
}

// LeaderStats aggregates projects per leader. Projects whose status is in
// closed do not count as active.
func LeaderStats(projects []domain.Project, leaders []string, closed []string) map[string]LeaderStat {
	closedSet := make(map[string]bool, len(closed))
	for _, c := range closed {
		closedSet[c] = true
	}
	stats := make(map[string]LeaderStat, len(leaders))
	for _, leader := range leaders {
		st := LeaderStat{Leader: leader}
		var progress int
		for _, p := range projects {
			if p.Leader != leader {
				continue
			}
			st.TotalProjects++
			progress += p.Progress
			for _, m := range p.Milestones {
				st.TotalMilestones++
				if m.Completed {
					st.AchievedMilestones++
				}
			}
			if !closedSet[p.Status] {
				st.ActiveProjects++
			}
		}
		if st.TotalProjects > 0 {
			st.AvgProgress = roundHalfUp(float64(progress) / float64(st.TotalProjects))
		}
		stats[leader] = st
	}
	return stats
}

// RankLeaders orders leaders by average progress, highest first. Ties keep input order.
func RankLeaders(leaders []string, stats map[string]LeaderStat) []string {
	out := append([]string(nil), leaders...)
	sort.SliceStable(out, func(i, j int) bool {
		return stats[out[i]].AvgProgress > stats[out[j]].AvgProgress
	})
	return out
}

// Filter selects projects by department, leader and status. Matching trims
// whitespace and ignores case; an empty field matches everything.
type Filter struct {
	Department string `json:"department,omitempty"`
	Leader     string `json:"leader,omitempty"`
	Status     string `json:"status,omitempty"`
}

func (f Filter) Matches(p domain.Project) bool {
	return fieldMatches(f.Department, p.Department) &&
		fieldMatches(f.Leader, p.Leader) &&
		fieldMatches(f.Status, p.Status)
}

func (f Filter) Apply(projects []domain.Project) []domain.Project {
	out := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

func fieldMatches(want, got string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return true
	}
	return strings.EqualFold(want, strings.TrimSpace(got))
}

// Window is the fixed span of the Gantt timeline.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow spans Jan 1 of now's year minus before to Dec 31 of now's year plus after.
func NewWindow(now time.Time, before, after int) Window {
	y := now.Year()
	return Window{
		Start: time.Date(y-before, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(y+after, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Position returns where date falls in the window as a percentage clamped to
// [0,100]. The second result is false when date is empty or unparseable.
func (w Window) Position(date string) (float64, bool) {
	t, err := dates.ParseDate(date)
	if err != nil {
		return 0, false
	}
	if t.Before(w.Start) {
		return 0, true
	}
	if t.After(w.End) {
		return 100, true
	}
	total := w.End.Sub(w.Start)
	if total <= 0 {
		return 0, true
	}
	return float64(t.Sub(w.Start)) / float64(total) * 100, true
}

// StatusColor looks up the display color for status.
func StatusColor(md domain.MasterData, status string) string {
	for _, s := range md.Statuses {
		if s.Name == status && s.Color != "" {
			return s.Color
		}
	}
	return DefaultStatusColor
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
