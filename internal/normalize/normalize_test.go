package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestProjectCoercesLooseFields(t *testing.T) {
	raw := decodeJSON(t, `{
		"id": "P2024001",
		"name": "Data platform",
		"leader": "Ana",
		"department": null,
		"status": "In Progress",
		"progress": "42.6",
		"updatedAt": 1704067200000,
		"tasks": [
			{"id": "t1", "name": "Design", "startDate": "2024-01-01", "endDate": "2024-02-01", "progress": 140, "weight": "60"},
			{"id": "t2", "name": "Build", "progress": "", "weight": -5}
		]
	}`)
	p, err := Project(raw)
	require.NoError(t, err)
	assert.Equal(t, "P2024001", p.ID)
	assert.Equal(t, "", p.Department)
	assert.Equal(t, 43, p.Progress)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", p.UpdatedAt)
	require.Len(t, p.Tasks, 2)
	assert.Equal(t, 100, p.Tasks[0].Progress)
	assert.Equal(t, 60.0, p.Tasks[0].Weight)
	assert.Equal(t, "2024-01-01", p.Tasks[0].StartDate)
	assert.Equal(t, 0, p.Tasks[1].Progress)
	assert.Equal(t, 0.0, p.Tasks[1].Weight)
	assert.NotNil(t, p.Milestones)
}

func TestProjectRequiresID(t *testing.T) {
	_, err := Project(map[string]any{"name": "x", "updatedAt": "2024-01-01"})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = Project(map[string]any{"id": "P1"})
	var mre *MalformedRecordError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, "P1", mre.Record)
	assert.Equal(t, "updatedAt", mre.Field)
}

func TestHistoryDerivesID(t *testing.T) {
	h, err := History(map[string]any{
		"projectId": "P2024001",
		"progress":  30,
		"updatedAt": map[string]any{"_seconds": int64(1704110700), "_nanoseconds": 0},
	})
	require.NoError(t, err)
	assert.Equal(t, "P2024001_20240101_1205", h.ID)
	assert.Equal(t, "2024-01-01T12:05:00.000Z", h.UpdatedAt)
	assert.Equal(t, 30, h.Progress)
}

func TestHistoriesSkipsMalformed(t *testing.T) {
	out, errs := Histories([]map[string]any{
		{"id": "h1", "projectId": "P1", "updatedAt": "2024-01-01T00:00:00Z"},
		{"id": "h2", "updatedAt": "2024-01-01T00:00:00Z"},
		{"id": "h3", "projectId": "P1", "updatedAt": "soon"},
		{"id": "h4", "projectId": "P1", "updatedAt": "2024-01-02", "tasks": "nope"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "h1", out[0].ID)
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrMalformedRecord)
	}
}

func TestMasterData(t *testing.T) {
	md := MasterData(map[string][]map[string]any{
		"leaders":     {{"Name": "Zoe"}, {"name": " ana "}, {"Name": ""}},
		"departments": {{"Name": "Ops"}, {"Name": "Data"}},
		"statuses":    {{"id": "s1", "Name": "Planning", "color": "#3b82f6"}, {"color": "#000"}},
	})
	assert.Equal(t, []string{"Zoe", "ana"}, md.Leaders)
	assert.Equal(t, []string{"Data", "Ops"}, md.Departments)
	require.Len(t, md.Statuses, 1)
	assert.Equal(t, "s1", md.Statuses[0].ID)
	assert.Equal(t, "#3b82f6", md.Statuses[0].Color)
}

func TestTimestamp(t *testing.T) {
	got, err := Timestamp("2024-03-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T08:00:00.000Z", got)

	got, err = Timestamp(map[string]any{"seconds": 0, "nanoseconds": 5_000_000})
	require.NoError(t, err)
	assert.Equal(t, "1970-01-01T00:00:00.005Z", got)

	_, err = Timestamp(nil)
	assert.Error(t, err)
	_, err = Timestamp(map[string]any{"nanos": 1})
	assert.Error(t, err)
	_, err = Timestamp([]int{1})
	assert.Error(t, err)
}
