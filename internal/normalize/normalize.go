// Package normalize converts loosely-typed records exported from the document
// store into strict domain values. All coercion happens here so the rest of the
// code can rely on the types in package domain.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"portfolio/internal/dates"
	"portfolio/internal/domain"
	"portfolio/internal/ids"
)

var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError reports the record and field that could not be normalized.
type MalformedRecordError struct {
	Record string
	Field  string
	Value  any
	Err    error
}

func (e *MalformedRecordError) Error() string {
	rec := e.Record
	if rec == "" {
		rec = "<unknown>"
	}
	return fmt.Sprintf("malformed record %s: %s=%v: %v", rec, e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// looseProject mirrors the stored document shape; ids and timestamps are
// coerced separately because the store may hold numbers or timestamp objects.
type looseProject struct {
	Name        string             `mapstructure:"name"`
	Description string             `mapstructure:"description"`
	Leader      string             `mapstructure:"leader"`
	Department  string             `mapstructure:"department"`
	Status      string             `mapstructure:"status"`
	Progress    int                `mapstructure:"progress"`
	Tasks       []domain.Task      `mapstructure:"tasks"`
	Milestones  []domain.Milestone `mapstructure:"milestones"`
	Rest        map[string]any     `mapstructure:",remain"`
}

// Project normalizes one live project record. id and updatedAt are required.
func Project(raw map[string]any) (domain.Project, error) {
	id := cast.ToString(raw["id"])
	if strings.TrimSpace(id) == "" {
		return domain.Project{}, &MalformedRecordError{Field: "id", Value: raw["id"], Err: errors.New("required")}
	}
	lp, err := decode(id, raw)
	if err != nil {
		return domain.Project{}, err
	}
	updatedAt, err := Timestamp(raw["updatedAt"])
	if err != nil {
		return domain.Project{}, &MalformedRecordError{Record: id, Field: "updatedAt", Value: raw["updatedAt"], Err: err}
	}
	return domain.Project{
		ID:          id,
		Name:        lp.Name,
		Description: lp.Description,
		Leader:      lp.Leader,
		Department:  lp.Department,
		Status:      lp.Status,
		Progress:    clamp(lp.Progress),
		Tasks:       tasks(lp.Tasks),
		Milestones:  milestones(lp.Milestones),
		UpdatedAt:   updatedAt,
	}, nil
}

// History normalizes one snapshot record. projectId and updatedAt are required;
// a missing snapshot id is derived from them.
func History(raw map[string]any) (domain.ProjectHistory, error) {
	projectID := cast.ToString(raw["projectId"])
	recID := cast.ToString(raw["id"])
	if strings.TrimSpace(projectID) == "" {
		return domain.ProjectHistory{}, &MalformedRecordError{Record: recID, Field: "projectId", Value: raw["projectId"], Err: errors.New("required")}
	}
	lp, err := decode(recID, raw)
	if err != nil {
		return domain.ProjectHistory{}, err
	}
	updatedAt, err := Timestamp(raw["updatedAt"])
	if err != nil {
		return domain.ProjectHistory{}, &MalformedRecordError{Record: recID, Field: "updatedAt", Value: raw["updatedAt"], Err: err}
	}
	if recID == "" {
		ts, _ := dates.ParseTimestamp(updatedAt)
		recID = ids.HistoryID(projectID, ts)
	}
	return domain.ProjectHistory{
		ID:          recID,
		ProjectID:   projectID,
		Name:        lp.Name,
		Description: lp.Description,
		Leader:      lp.Leader,
		Department:  lp.Department,
		Status:      lp.Status,
		Progress:    clamp(lp.Progress),
		Tasks:       tasks(lp.Tasks),
		Milestones:  milestones(lp.Milestones),
		UpdatedAt:   updatedAt,
	}, nil
}

// Histories normalizes a batch, skipping malformed records. Every skipped
// record is reported in the returned error slice.
func Histories(raw []map[string]any) ([]domain.ProjectHistory, []error) {
	out := make([]domain.ProjectHistory, 0, len(raw))
	var errs []error
	for _, r := range raw {
		h, err := History(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, h)
	}
	return out, errs
}

// Projects normalizes a batch of live records with the same skip policy as Histories.
func Projects(raw []map[string]any) ([]domain.Project, []error) {
	out := make([]domain.Project, 0, len(raw))
	var errs []error
	for _, r := range raw {
		p, err := Project(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, p)
	}
	return out, errs
}

// MasterData reads the leader, department and status collections. Names are
// taken from "Name" or "name" and keep their original casing.
func MasterData(raw map[string][]map[string]any) domain.MasterData {
	md := domain.MasterData{Leaders: []string{}, Departments: []string{}, Statuses: []domain.StatusMaster{}}
	for _, r := range raw["leaders"] {
		if n := nameOf(r); n != "" {
			md.Leaders = append(md.Leaders, n)
		}
	}
	for _, r := range raw["departments"] {
		if n := nameOf(r); n != "" {
			md.Departments = append(md.Departments, n)
		}
	}
	sort.Strings(md.Leaders)
	sort.Strings(md.Departments)
	for _, r := range raw["statuses"] {
		n := nameOf(r)
		if n == "" {
			continue
		}
		md.Statuses = append(md.Statuses, domain.StatusMaster{
			ID:    cast.ToString(r["id"]),
			Name:  n,
			Color: cast.ToString(r["color"]),
		})
	}
	return md
}

// Timestamp coerces an updatedAt value into the ISO wire format. It accepts
// ISO strings, Unix milliseconds and {seconds, nanoseconds} timestamp objects.
func Timestamp(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", errors.New("missing timestamp")
	case string:
		ts, err := dates.ParseTimestamp(t)
		if err != nil {
			return "", err
		}
		return dates.FormatISO(ts), nil
	case map[string]any:
		secs, ok := firstOf(t, "seconds", "_seconds")
		if !ok {
			return "", fmt.Errorf("timestamp object without seconds: %v", t)
		}
		s, err := cast.ToInt64E(secs)
		if err != nil {
			return "", err
		}
		nanosRaw, _ := firstOf(t, "nanoseconds", "_nanoseconds")
		return dates.FormatISO(time.Unix(s, cast.ToInt64(nanosRaw))), nil
	default:
		ms, err := cast.ToInt64E(v)
		if err != nil {
			return "", fmt.Errorf("unsupported timestamp %T: %w", v, err)
		}
		return dates.FormatISO(time.UnixMilli(ms)), nil
	}
}

func decode(record string, raw map[string]any) (looseProject, error) {
	var lp looseProject
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       coerceHook,
		WeaklyTypedInput: true,
		Result:           &lp,
	})
	if err != nil {
		return lp, err
	}
	if err := dec.Decode(raw); err != nil {
		return lp, &MalformedRecordError{Record: record, Field: "fields", Value: nil, Err: err}
	}
	return lp, nil
}

// coerceHook applies the store's lenient number rules: empty and null become
// zero, decimal strings are accepted for integer fields.
func coerceHook(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int64:
		if data == nil {
			return 0, nil
		}
		if s, ok := data.(string); ok {
			if strings.TrimSpace(s) == "" {
				return 0, nil
			}
			f, err := cast.ToFloat64E(strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			return int(math.Round(f)), nil
		}
		if f, ok := data.(float64); ok {
			return int(math.Round(f)), nil
		}
	case reflect.Float64:
		if data == nil {
			return 0.0, nil
		}
		if s, ok := data.(string); ok && strings.TrimSpace(s) == "" {
			return 0.0, nil
		}
		return cast.ToFloat64E(data)
	case reflect.String:
		if data == nil {
			return "", nil
		}
	case reflect.Bool:
		if data == nil {
			return false, nil
		}
	}
	return data, nil
}

func tasks(in []domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(in))
	for _, t := range in {
		t.Progress = clamp(t.Progress)
		if t.Weight < 0 || math.IsNaN(t.Weight) {
			t.Weight = 0
		}
		out = append(out, t)
	}
	return out
}

func milestones(in []domain.Milestone) []domain.Milestone {
	if in == nil {
		return []domain.Milestone{}
	}
	return in
}

func clamp(p int) int {
	return min(max(p, 0), 100)
}

func nameOf(r map[string]any) string {
	if v, ok := firstOf(r, "Name", "name"); ok {
		return strings.TrimSpace(cast.ToString(v))
	}
	return ""
}

func firstOf(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil && v != "" {
			return v, true
		}
	}
	return nil, false
}
