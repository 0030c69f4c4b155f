package variance

import (
	"sort"

	"portfolio/internal/dates"
	"portfolio/internal/domain"
)

// Point is one snapshot on the progression axis. X and Y are normalized to [0,1].
type Point struct {
	HistoryID string  `json:"historyId"`
	T         int64   `json:"t"`
	Progress  int     `json:"progress"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Marker is a milestone from the latest snapshot placed on the same axis.
type Marker struct {
	MilestoneID string  `json:"milestoneId"`
	Name        string  `json:"name"`
	T           int64   `json:"t"`
	Completed   bool    `json:"completed"`
	X           float64 `json:"x"`
}

// Series is a project's progress trajectory. Times are Unix milliseconds.
// TimeRange is never below dates.OneWeek when the series is non-empty.
type Series struct {
	Points    []Point  `json:"points"`
	Markers   []Marker `json:"milestoneMarkers"`
	StartTime int64    `json:"startTime"`
	EndTime   int64    `json:"endTime"`
	TimeRange int64    `json:"timeRange"`
	Excluded  []string `json:"excluded,omitempty"`
}

// NormalizedX maps a timestamp onto [0,1] relative to the series bounds.
func (s Series) NormalizedX(t int64) float64 {
	if s.TimeRange == 0 {
		return 0
	}
	return float64(t-s.StartTime) / float64(s.TimeRange)
}

// NormalizedY maps a progress percentage onto [0,1].
func (s Series) NormalizedY(progress int) float64 {
	return float64(progress) / 100
}

// BuildProgressionSeries orders history by updatedAt and derives the progression
// points, the latest snapshot's milestone markers, and the shared time axis.
// Input order does not matter. Snapshots with an unparseable updatedAt are
// excluded and reported in Excluded.
func BuildProgressionSeries(history []domain.ProjectHistory) Series {
	s := Series{Points: []Point{}, Markers: []Marker{}}
	for _, h := range history {
		if _, err := dates.ParseTimestamp(h.UpdatedAt); err != nil {
			s.Excluded = append(s.Excluded, h.ID)
		}
	}
	sort.Strings(s.Excluded)
	ordered := sortByUpdatedAt(history)
	if len(ordered) == 0 {
		return s
	}

	for _, o := range ordered {
		s.Points = append(s.Points, Point{HistoryID: o.h.ID, T: o.t, Progress: o.h.Progress})
	}
	latest := ordered[len(ordered)-1].h
	for _, m := range latest.Milestones {
		md, err := dates.ParseDate(m.Date)
		if err != nil {
			continue
		}
		s.Markers = append(s.Markers, Marker{
			MilestoneID: m.ID,
			Name:        m.Name,
			T:           dates.Millis(md),
			Completed:   m.Completed,
		})
	}

	s.StartTime, s.EndTime = s.Points[0].T, s.Points[0].T
	extend := func(t int64) {
		if t < s.StartTime {
			s.StartTime = t
		}
		if t > s.EndTime {
			s.EndTime = t
		}
	}
	for _, p := range s.Points {
		extend(p.T)
	}
	for _, m := range s.Markers {
		extend(m.T)
	}
	s.TimeRange = max(s.EndTime-s.StartTime, dates.OneWeek)

	for i := range s.Points {
		s.Points[i].X = s.NormalizedX(s.Points[i].T)
		s.Points[i].Y = s.NormalizedY(s.Points[i].Progress)
	}
	for i := range s.Markers {
		s.Markers[i].X = s.NormalizedX(s.Markers[i].T)
	}
	return s
}
