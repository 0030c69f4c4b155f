package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"gopkg.in/yaml.v3"

	"portfolio/internal/domain"
	"portfolio/internal/variance"
)

type Exporter struct {
	Storage Storage
}

// HistoryPath is where a snapshot is archived.
func HistoryPath(projectID, historyID string) string {
	return path.Join("history", projectID, historyID+".yaml")
}

// VariancePath is where a project's latest variance report is archived.
func VariancePath(projectID string) string {
	return path.Join("variance", projectID+".json")
}

// ExportProject writes every snapshot as YAML and the report as JSON.
// Snapshots already present are left untouched since history is immutable.
// It returns the paths written, in write order.
func (e Exporter) ExportProject(ctx context.Context, projectID string, history []domain.ProjectHistory, report variance.Report) ([]string, error) {
	var written []string
	for _, h := range history {
		if h.ProjectID != projectID {
			return written, fmt.Errorf("snapshot %s belongs to %s, not %s", h.ID, h.ProjectID, projectID)
		}
		p := HistoryPath(projectID, h.ID)
		ok, err := e.Storage.Exists(ctx, p)
		if err != nil {
			return written, err
		}
		if ok {
			continue
		}
		data, err := yaml.Marshal(h)
		if err != nil {
			return written, fmt.Errorf("marshal snapshot %s: %w", h.ID, err)
		}
		if err := e.Storage.Write(ctx, p, data); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return written, fmt.Errorf("marshal variance report: %w", err)
	}
	p := VariancePath(projectID)
	if err := e.Storage.Write(ctx, p, data); err != nil {
		return written, err
	}
	return append(written, p), nil
}

// LoadHistory reads back every archived snapshot of a project.
func (e Exporter) LoadHistory(ctx context.Context, projectID string) ([]domain.ProjectHistory, error) {
	paths, err := e.Storage.List(ctx, path.Join("history", projectID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProjectHistory, 0, len(paths))
	for _, p := range paths {
		data, err := e.Storage.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		var h domain.ProjectHistory
		if err := yaml.Unmarshal(data, &h); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		out = append(out, h)
	}
	return out, nil
}
