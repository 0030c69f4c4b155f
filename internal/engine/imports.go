package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"portfolio/internal/domain"
	"portfolio/internal/events"
	"portfolio/internal/normalize"
	"portfolio/internal/repo"
)

// ReplaceMasterData swaps the leader, department and status lists. Names are
// trimmed, blanks dropped and duplicates rejected.
func (e Engine) ReplaceMasterData(ctx context.Context, md domain.MasterData, actorID string) (domain.MasterData, error) {
	clean, err := cleanMasterData(md)
	if err != nil {
		return domain.MasterData{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MasterData{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceMasterDataTx(ctx, tx, clean); err != nil {
		return domain.MasterData{}, err
	}
	payload := events.EventPayload{
		"leaders":     len(clean.Leaders),
		"departments": len(clean.Departments),
		"statuses":    len(clean.Statuses),
	}
	if err := e.Events.Append(ctx, tx, events.MasterDataReplaced, "", events.KindMasterData, "", actorOrDefault(actorID), payload); err != nil {
		return domain.MasterData{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MasterData{}, err
	}
	return e.Repo.GetMasterData(ctx)
}

// EnsureMasterData seeds master data from config on first use.
func (e Engine) EnsureMasterData(ctx context.Context, actorID string) error {
	if e.Config == nil {
		return ErrNoConfig
	}
	empty, err := e.Repo.MasterDataEmpty(ctx)
	if err != nil || !empty {
		return err
	}
	seed := e.Config.Seed()
	if len(seed.Leaders)+len(seed.Departments)+len(seed.Statuses) == 0 {
		return nil
	}
	_, err = e.ReplaceMasterData(ctx, seed, actorID)
	return err
}

func cleanMasterData(md domain.MasterData) (domain.MasterData, error) {
	fields := map[string]string{}
	out := domain.MasterData{
		Leaders:     cleanNames(md.Leaders, "leaders", fields),
		Departments: cleanNames(md.Departments, "departments", fields),
		Statuses:    []domain.StatusMaster{},
	}
	seen := map[string]bool{}
	for i, s := range md.Statuses {
		s.Name = strings.TrimSpace(s.Name)
		s.Color = strings.TrimSpace(s.Color)
		if s.Name == "" {
			continue
		}
		if seen[s.Name] {
			fields[fmt.Sprintf("statuses[%d]", i)] = "duplicate " + s.Name
			continue
		}
		seen[s.Name] = true
		s.ID = s.Name
		out.Statuses = append(out.Statuses, s)
	}
	if len(fields) > 0 {
		return domain.MasterData{}, &ValidationError{Fields: fields}
	}
	return out, nil
}

func cleanNames(in []string, field string, fields map[string]string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for i, n := range in {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if seen[n] {
			fields[fmt.Sprintf("%s[%d]", field, i)] = "duplicate " + n
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ImportOptions carries raw exported records. Projects are applied before
// histories so snapshots can reference projects from the same batch.
type ImportOptions struct {
	Projects   []map[string]any            `json:"projects,omitempty"`
	Histories  []map[string]any            `json:"histories,omitempty"`
	MasterData map[string][]map[string]any `json:"masterData,omitempty"`
	ActorID    string                      `json:"-"`
}

type ImportResult struct {
	Projects          int      `json:"projects"`
	Histories         int      `json:"histories"`
	DuplicateHistory  int      `json:"duplicateHistories"`
	MasterDataApplied bool     `json:"masterDataApplied"`
	Rejected          []string `json:"rejected"`
}

// ImportRecords loads records exported from the document store. Live records
// are stored as given, without recomputing progress. Malformed records and
// snapshots of unknown projects are skipped and listed in Rejected; snapshots
// whose id already exists are counted as duplicates.
func (e Engine) ImportRecords(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	res := ImportResult{Rejected: []string{}}
	projects, errs := normalize.Projects(opts.Projects)
	for _, err := range errs {
		res.Rejected = append(res.Rejected, err.Error())
	}
	histories, errs := normalize.Histories(opts.Histories)
	for _, err := range errs {
		res.Rejected = append(res.Rejected, err.Error())
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for _, p := range projects {
		if err := e.Repo.UpsertProjectTx(ctx, tx, p); err != nil {
			return res, fmt.Errorf("import project %s: %w", p.ID, err)
		}
		res.Projects++
	}
	for _, h := range histories {
		if _, err := e.Repo.GetProjectTx(ctx, tx, h.ProjectID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				res.Rejected = append(res.Rejected, fmt.Sprintf("history %s: unknown project %s", h.ID, h.ProjectID))
				continue
			}
			return res, err
		}
		exists, err := e.Repo.HistoryExistsTx(ctx, tx, h.ID)
		if err != nil {
			return res, err
		}
		if exists {
			res.DuplicateHistory++
			continue
		}
		if _, err := e.Repo.InsertHistoryTx(ctx, tx, h); err != nil {
			return res, fmt.Errorf("import history %s: %w", h.ID, err)
		}
		res.Histories++
	}
	if len(opts.MasterData) > 0 {
		md, err := cleanMasterData(normalize.MasterData(opts.MasterData))
		if err != nil {
			return res, err
		}
		if err := e.Repo.ReplaceMasterDataTx(ctx, tx, md); err != nil {
			return res, err
		}
		res.MasterDataApplied = true
	}
	payload := events.EventPayload{
		"projects":  res.Projects,
		"histories": res.Histories,
		"rejected":  len(res.Rejected),
	}
	if err := e.Events.Append(ctx, tx, events.RecordsImported, "", events.KindProject, "", actorOrDefault(opts.ActorID), payload); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	for _, r := range res.Rejected {
		e.log().WarnContext(ctx, "import record rejected", "reason", r)
	}
	e.log().InfoContext(ctx, "records imported", "projects", res.Projects, "histories", res.Histories, "rejected", len(res.Rejected))
	return res, nil
}
