package domain

// Task is one weighted unit of work inside a project. Dates are YYYY-MM-DD.
type Task struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	StartDate   string  `json:"startDate" yaml:"startDate"`
	EndDate     string  `json:"endDate" yaml:"endDate"`
	Progress    int     `json:"progress" yaml:"progress"`
	Weight      float64 `json:"weight" yaml:"weight"`
}

type Milestone struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Date        string `json:"date" yaml:"date"`
	Completed   bool   `json:"completed,omitempty" yaml:"completed,omitempty"`
}

// Project is the live, current-state record. Progress is derived from Tasks on every save.
type Project struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Leader      string      `json:"leader" yaml:"leader"`
	Department  string      `json:"department" yaml:"department"`
	Status      string      `json:"status" yaml:"status"`
	Progress    int         `json:"progress" yaml:"progress"`
	Tasks       []Task      `json:"tasks" yaml:"tasks"`
	Milestones  []Milestone `json:"milestones" yaml:"milestones"`
	UpdatedAt   string      `json:"updatedAt" yaml:"updatedAt" format:"date-time"`
}

// ProjectHistory is an immutable snapshot of a Project written on every save.
// ID is the snapshot's own identifier; ProjectID links back to the live project.
type ProjectHistory struct {
	ID          string      `json:"id" yaml:"id"`
	ProjectID   string      `json:"projectId" yaml:"projectId"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Leader      string      `json:"leader" yaml:"leader"`
	Department  string      `json:"department" yaml:"department"`
	Status      string      `json:"status" yaml:"status"`
	Progress    int         `json:"progress" yaml:"progress"`
	Tasks       []Task      `json:"tasks" yaml:"tasks"`
	Milestones  []Milestone `json:"milestones" yaml:"milestones"`
	UpdatedAt   string      `json:"updatedAt" yaml:"updatedAt" format:"date-time"`
}

// Snapshot copies the project's fields into a history record.
func (p Project) Snapshot(historyID string) ProjectHistory {
	return ProjectHistory{
		ID:          historyID,
		ProjectID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		Leader:      p.Leader,
		Department:  p.Department,
		Status:      p.Status,
		Progress:    p.Progress,
		Tasks:       append([]Task(nil), p.Tasks...),
		Milestones:  append([]Milestone(nil), p.Milestones...),
		UpdatedAt:   p.UpdatedAt,
	}
}

// AsProject returns the live-project view of a snapshot.
func (h ProjectHistory) AsProject() Project {
	return Project{
		ID:          h.ProjectID,
		Name:        h.Name,
		Description: h.Description,
		Leader:      h.Leader,
		Department:  h.Department,
		Status:      h.Status,
		Progress:    h.Progress,
		Tasks:       append([]Task(nil), h.Tasks...),
		Milestones:  append([]Milestone(nil), h.Milestones...),
		UpdatedAt:   h.UpdatedAt,
	}
}

type StatusMaster struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}

type MasterData struct {
	Leaders     []string       `json:"leaders" yaml:"leaders"`
	Departments []string       `json:"departments" yaml:"departments"`
	Statuses    []StatusMaster `json:"statuses" yaml:"statuses"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
