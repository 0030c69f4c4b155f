package variance

import "portfolio/internal/domain"

// Report bundles a project's variance timeline and progression series.
type Report struct {
	ProjectID string          `json:"projectId"`
	Snapshots int             `json:"snapshots"`
	Timeline  []SnapshotDelta `json:"timeline"`
	Series    Series          `json:"series"`
}

// BuildReport derives both views from the same history.
func BuildReport(projectID string, history []domain.ProjectHistory) Report {
	return Report{
		ProjectID: projectID,
		Snapshots: len(history),
		Timeline:  BuildTimeline(history),
		Series:    BuildProgressionSeries(history),
	}
}
