package server

import (
	"portfolio/internal/domain"
	"portfolio/internal/progress"
)

// Request payloads. Derived fields (progress, updatedAt) are accepted so a
// fetched project can be sent back unchanged, but they are always recomputed.

type TaskInput struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	StartDate   string  `json:"startDate,omitempty" example:"2024-01-01"`
	EndDate     string  `json:"endDate,omitempty" example:"2024-03-31"`
	Progress    int     `json:"progress,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

type MilestoneInput struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty" example:"2024-02-15"`
	Completed   bool   `json:"completed,omitempty"`
}

type SaveProjectRequest struct {
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Leader      string           `json:"leader,omitempty"`
	Department  string           `json:"department,omitempty"`
	Status      string           `json:"status,omitempty"`
	Tasks       []TaskInput      `json:"tasks,omitempty"`
	Milestones  []MilestoneInput `json:"milestones,omitempty"`
	ID          string           `json:"id,omitempty" doc:"Ignored on update; the path id wins"`
	Progress    int              `json:"progress,omitempty" doc:"Ignored; recomputed from tasks"`
	UpdatedAt   string           `json:"updatedAt,omitempty" doc:"Ignored; set by the server"`
}

func (r SaveProjectRequest) toProject(id string) domain.Project {
	p := domain.Project{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Leader:      r.Leader,
		Department:  r.Department,
		Status:      r.Status,
		Tasks:       taskInputs(r.Tasks),
		Milestones:  make([]domain.Milestone, 0, len(r.Milestones)),
	}
	for _, m := range r.Milestones {
		p.Milestones = append(p.Milestones, domain.Milestone{
			ID: m.ID, Name: m.Name, Description: m.Description, Date: m.Date, Completed: m.Completed,
		})
	}
	return p
}

func taskInputs(in []TaskInput) []domain.Task {
	out := make([]domain.Task, 0, len(in))
	for _, t := range in {
		out = append(out, domain.Task{
			ID: t.ID, Name: t.Name, Description: t.Description, StartDate: t.StartDate,
			EndDate: t.EndDate, Progress: t.Progress, Weight: t.Weight,
		})
	}
	return out
}

type ComputeProgressRequest struct {
	Tasks []TaskInput `json:"tasks"`
}

type ComputeProgressResponse struct {
	Progress int                     `json:"progress"`
	Advisory progress.WeightAdvisory `json:"weightAdvisory"`
}

type StatusInput struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty" example:"#22c55e"`
}

type MasterDataRequest struct {
	Leaders     []string      `json:"leaders,omitempty"`
	Departments []string      `json:"departments,omitempty"`
	Statuses    []StatusInput `json:"statuses,omitempty"`
}

func (r MasterDataRequest) toDomain() domain.MasterData {
	md := domain.MasterData{Leaders: r.Leaders, Departments: r.Departments}
	for _, s := range r.Statuses {
		md.Statuses = append(md.Statuses, domain.StatusMaster{Name: s.Name, Color: s.Color})
	}
	return md
}

type ImportRequest struct {
	Projects   []map[string]any            `json:"projects,omitempty"`
	Histories  []map[string]any            `json:"histories,omitempty"`
	MasterData map[string][]map[string]any `json:"masterData,omitempty"`
}

type ExportResponse struct {
	ProjectID string   `json:"projectId"`
	Paths     []string `json:"paths"`
}
