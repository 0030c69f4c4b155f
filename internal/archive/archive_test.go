package archive

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/config"
	"portfolio/internal/domain"
	"portfolio/internal/variance"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err := s.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "a/b.txt", []byte("one")))
	require.NoError(t, s.Write(ctx, "a/a.txt", []byte("two")))
	require.NoError(t, s.Write(ctx, "a/b.txt", []byte("three")))

	data, err := s.Read(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "three", string(data))

	paths, err := s.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/a.txt", "a/b.txt"}, paths)

	paths, err = s.List(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocalStorageStaysInsideBase(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "../../escape.txt", []byte("x")))
	ok, err := s.Exists(ctx, "escape.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(context.Background(), config.ArchiveEnv{Type: "ftp"})
	assert.Error(t, err)

	st, err := New(context.Background(), config.ArchiveEnv{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, st)
}

func history() []domain.ProjectHistory {
	mk := func(id, at string, progress int) domain.ProjectHistory {
		return domain.ProjectHistory{
			ID: id, ProjectID: "P2024001", Name: "Data platform", Leader: "Ana", Department: "Data",
			Status: "In Progress", Progress: progress, UpdatedAt: at,
			Tasks:      []domain.Task{{ID: "t1", Name: "Design", StartDate: "2024-01-01", EndDate: "2024-02-01", Progress: progress, Weight: 100}},
			Milestones: []domain.Milestone{{ID: "m1", Name: "Beta", Date: "2024-03-01"}},
		}
	}
	return []domain.ProjectHistory{
		mk("P2024001_20240101_0900", "2024-01-01T09:00:00.000Z", 10),
		mk("P2024001_20240108_0900", "2024-01-08T09:00:00.000Z", 35),
	}
}

func TestExporter(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ex := Exporter{Storage: s}
	h := history()

	paths, err := ex.ExportProject(ctx, "P2024001", h, variance.BuildReport("P2024001", h))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"history/P2024001/P2024001_20240101_0900.yaml",
		"history/P2024001/P2024001_20240108_0900.yaml",
		"variance/P2024001.json",
	}, paths)

	loaded, err := ex.LoadHistory(ctx, "P2024001")
	require.NoError(t, err)
	assert.Equal(t, h, loaded)

	raw, err := s.Read(ctx, VariancePath("P2024001"))
	require.NoError(t, err)
	var report variance.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, 2, report.Snapshots)
	assert.Equal(t, 25, *report.Timeline[0].ProgressDelta)

	// snapshots are immutable: a second export only refreshes the report
	paths, err = ex.ExportProject(ctx, "P2024001", h, variance.BuildReport("P2024001", h))
	require.NoError(t, err)
	assert.Equal(t, []string{"variance/P2024001.json"}, paths)
}

func TestExporterRejectsForeignSnapshot(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	h := history()
	h[1].ProjectID = "P2024002"
	_, err = Exporter{Storage: s}.ExportProject(context.Background(), "P2024001", h, variance.Report{})
	assert.ErrorContains(t, err, "P2024002")
}
