package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"portfolio/internal/domain"
)

func portfolio() []domain.Project {
	return []domain.Project{
		{ID: "P1", Leader: "Ana", Department: "Data", Status: "In Progress", Progress: 40,
			Milestones: []domain.Milestone{{Completed: true}, {}}},
		{ID: "P2", Leader: "Ana", Department: "Ops", Status: "Completed", Progress: 100,
			Milestones: []domain.Milestone{{Completed: true}}},
		{ID: "P3", Leader: "Ana", Department: "Data", Status: "Planning", Progress: 5},
		{ID: "P4", Leader: "Bo", Department: "Ops", Status: "In Progress", Progress: 90},
	}
}

func TestLeaderStats(t *testing.T) {
	stats := LeaderStats(portfolio(), []string{"Ana", "Bo", "Cy"}, []string{"Completed", "Closed"})
	ana := stats["Ana"]
	assert.Equal(t, 3, ana.TotalProjects)
	assert.Equal(t, 2, ana.ActiveProjects)
	// (40+100+5)/3 = 48.33
	assert.Equal(t, 48, ana.AvgProgress)
	assert.Equal(t, 2, ana.AchievedMilestones)
	assert.Equal(t, 3, ana.TotalMilestones)
	assert.Equal(t, 67, ana.MilestoneRate())

	assert.Equal(t, LeaderStat{Leader: "Cy"}, stats["Cy"])
	assert.Equal(t, 0, stats["Cy"].MilestoneRate())
}

func TestLeaderStatsAverageRoundsHalfUp(t *testing.T) {
	stats := LeaderStats([]domain.Project{{Leader: "A", Progress: 50}, {Leader: "A", Progress: 51}}, []string{"A"}, nil)
	assert.Equal(t, 51, stats["A"].AvgProgress)
}

func TestRankLeaders(t *testing.T) {
	stats := LeaderStats(portfolio(), []string{"Cy", "Ana", "Bo"}, nil)
	assert.Equal(t, []string{"Bo", "Ana", "Cy"}, RankLeaders([]string{"Cy", "Ana", "Bo"}, stats))

	tied := map[string]LeaderStat{"x": {AvgProgress: 10}, "y": {AvgProgress: 10}}
	assert.Equal(t, []string{"y", "x"}, RankLeaders([]string{"y", "x"}, tied))
}

func TestFilter(t *testing.T) {
	ps := portfolio()
	assert.Len(t, Filter{}.Apply(ps), 4)
	got := Filter{Department: " data ", Leader: "ANA"}.Apply(ps)
	require.Len(t, got, 2)
	assert.Equal(t, "P1", got[0].ID)
	assert.Equal(t, "P3", got[1].ID)
	assert.Empty(t, Filter{Status: "On Hold"}.Apply(ps))
}

func TestWindowPosition(t *testing.T) {
	w := NewWindow(time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), 1, 2)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), w.End)

	pos, ok := w.Position("2023-01-01")
	assert.True(t, ok)
	assert.Equal(t, 0.0, pos)
	pos, _ = w.Position("2026-12-31")
	assert.Equal(t, 100.0, pos)
	pos, _ = w.Position("1999-05-01")
	assert.Equal(t, 0.0, pos)
	pos, _ = w.Position("2040-05-01")
	assert.Equal(t, 100.0, pos)
	pos, _ = w.Position("2024-12-31")
	assert.InDelta(t, 50.0, pos, 0.1)

	_, ok = w.Position("")
	assert.False(t, ok)
}

func TestWindowPositionClamped(t *testing.T) {
	w := NewWindow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1, 2)
	rapid.Check(t, func(t *rapid.T) {
		d := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, rapid.IntRange(0, 30000).Draw(t, "days"))
		pos, ok := w.Position(d.Format(time.DateOnly))
		if !ok || pos < 0 || pos > 100 {
			t.Fatalf("position %v (%v) for %s", pos, ok, d)
		}
	})
}

func TestStatusColor(t *testing.T) {
	md := domain.MasterData{Statuses: []domain.StatusMaster{{Name: "Planning", Color: "#3b82f6"}, {Name: "Blank"}}}
	assert.Equal(t, "#3b82f6", StatusColor(md, "Planning"))
	assert.Equal(t, DefaultStatusColor, StatusColor(md, "Blank"))
	assert.Equal(t, DefaultStatusColor, StatusColor(md, "Unknown"))
}
