package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"portfolio/internal/variance"
)

const (
	pointGlyph         = '●'
	doneMilestoneGlyph = '◆'
	openMilestoneGlyph = '◇'
)

var (
	pointStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3b82f6"))
	axisStyle  = mutedStyle
)

// plotGrid rasterizes a series onto a width x height cell grid. Row 0 is the
// top (100%); milestones sit on the bottom row.
func plotGrid(s variance.Series, width, height int) [][]rune {
	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}
	if width < 1 || height < 1 {
		return grid
	}
	vp := variance.Viewport{Width: float64(width - 1), Height: float64(height - 1)}
	cell := func(px, py float64) (int, int) {
		col := min(max(int(math.Round(px)), 0), width-1)
		row := min(max(int(math.Round(py)), 0), height-1)
		return col, row
	}
	for _, m := range s.Markers {
		col, row := cell(vp.PlotMarker(m))
		glyph := openMilestoneGlyph
		if m.Completed {
			glyph = doneMilestoneGlyph
		}
		grid[row][col] = glyph
	}
	for _, p := range s.Points {
		col, row := cell(vp.PlotPoint(p))
		grid[row][col] = pointGlyph
	}
	return grid
}

// renderProgression draws the progress trajectory with a percent axis on the
// left and the series date range underneath.
func renderProgression(s variance.Series, width, height int) string {
	if len(s.Points) == 0 {
		return mutedStyle.Render("no history")
	}
	grid := plotGrid(s, width, height)
	var b strings.Builder
	for i, row := range grid {
		label := "    "
		switch i {
		case 0:
			label = "100%"
		case len(grid) / 2:
			label = " 50%"
		case len(grid) - 1:
			label = "  0%"
		}
		b.WriteString(axisStyle.Render(label + " │"))
		for _, r := range row {
			switch r {
			case pointGlyph:
				b.WriteString(pointStyle.Render(string(r)))
			case doneMilestoneGlyph, openMilestoneGlyph:
				b.WriteString(warnStyle.Render(string(r)))
			default:
				b.WriteRune(r)
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString(axisStyle.Render("     └" + strings.Repeat("─", width)))
	b.WriteByte('\n')
	start := dateLabel(s.StartTime)
	end := dateLabel(s.StartTime + s.TimeRange)
	gap := max(width-len(start)-len(end), 1)
	b.WriteString("      " + start + strings.Repeat(" ", gap) + end)
	return b.String()
}

func dateLabel(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.DateOnly)
}

// ganttBar draws a bar between two window percentages on a width-cell track.
func ganttBar(startPos, endPos float64, width int, color string) string {
	from := min(max(int(math.Floor(startPos/100*float64(width))), 0), width-1)
	to := min(max(int(math.Ceil(endPos/100*float64(width))), from+1), width)
	bar := colored(strings.Repeat("█", to-from), color)
	return strings.Repeat("·", from) + bar + strings.Repeat("·", width-to)
}

func percent(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+d", *v)
}
