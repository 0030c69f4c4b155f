package main

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/dates"
	"portfolio/internal/variance"
)

func TestPlotGrid(t *testing.T) {
	s := variance.Series{
		Points: []variance.Point{
			{HistoryID: "a", X: 0, Y: 0.5},
			{HistoryID: "b", X: 1, Y: 1},
		},
		Markers: []variance.Marker{
			{MilestoneID: "m1", X: 0.5, Completed: true},
			{MilestoneID: "m2", X: 0},
		},
	}
	grid := plotGrid(s, 11, 5)
	require.Len(t, grid, 5)
	for _, row := range grid {
		require.Len(t, row, 11)
	}
	assert.Equal(t, pointGlyph, grid[2][0])
	assert.Equal(t, pointGlyph, grid[0][10])
	assert.Equal(t, doneMilestoneGlyph, grid[4][5])
	assert.Equal(t, openMilestoneGlyph, grid[4][0])
}

func TestPlotGridPointsCoverMarkers(t *testing.T) {
	s := variance.Series{
		Points:  []variance.Point{{X: 0.5, Y: 0}},
		Markers: []variance.Marker{{X: 0.5}},
	}
	grid := plotGrid(s, 3, 3)
	assert.Equal(t, pointGlyph, grid[2][1])
}

func TestPlotGridClampsOutOfRange(t *testing.T) {
	s := variance.Series{Points: []variance.Point{{X: 1.4, Y: -0.2}}}
	grid := plotGrid(s, 4, 4)
	assert.Equal(t, pointGlyph, grid[3][3])
	assert.Empty(t, plotGrid(s, 0, 0))
}

func TestRenderProgression(t *testing.T) {
	assert.Contains(t, renderProgression(variance.Series{}, 20, 5), "no history")

	s := variance.Series{
		Points:    []variance.Point{{X: 0, Y: 0}, {X: 0.5, Y: 0.4}, {X: 1, Y: 1}},
		StartTime: 0,
		TimeRange: dates.OneWeek,
	}
	out := renderProgression(s, 30, 6)
	assert.Equal(t, 3, strings.Count(out, string(pointGlyph)))
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "  0%")
	assert.Contains(t, out, "1970-01-01")
	assert.Contains(t, out, "1970-01-08")
	assert.Len(t, strings.Split(out, "\n"), 8)
}

func TestGanttBar(t *testing.T) {
	bar := ganttBar(0, 50, 10, "#ffffff")
	assert.Equal(t, 10, lipgloss.Width(bar))
	assert.Equal(t, 5, strings.Count(bar, "·"))
	assert.Equal(t, 5, strings.Count(bar, "█"))

	end := ganttBar(100, 100, 10, "#ffffff")
	assert.Equal(t, 9, strings.Count(end, "·"))
	assert.Equal(t, 1, strings.Count(end, "█"))
}

func TestProgressBarAndPercent(t *testing.T) {
	assert.True(t, strings.HasSuffix(progressBar(150, 10), "100%"))
	assert.True(t, strings.HasSuffix(progressBar(-5, 4), "  0%"))
	assert.Equal(t, 4, strings.Count(progressBar(-5, 4), "░"))
	assert.Equal(t, "-", percent(nil))
	v := 5
	assert.Equal(t, "+5", percent(&v))
}
