// Package store persists projects and their run history in the key-value
// store.
package store

import (
	"context"
	"fmt"

	"github.com/webleadsnow/linkboard/internal/seo"
)

// Key layout: one record per project, one per run history, plus a single
// id-list record used to enumerate projects.
const (
	keyProjectList = "projects:list"
	maxRuns        = 50
)

func projectKey(id string) string { return "project:" + id }
func runsKey(id string) string    { return "runs:" + id }

// ProjectStore owns project records and their capped run history.
type ProjectStore struct {
	kv    seo.KV
	idGen seo.IDGenerator
}

// New constructs a ProjectStore.
func New(kv seo.KV, idGen seo.IDGenerator) *ProjectStore {
	return &ProjectStore{kv: kv, idGen: idGen}
}

// SaveProject upserts a project, assigning a time-ordered id when absent and
// registering new ids in the id list.
func (s *ProjectStore) SaveProject(ctx context.Context, p seo.Project) (seo.Project, error) {
	if p.ID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			return seo.Project{}, fmt.Errorf("assign project id: %w", err)
		}
		p.ID = id
	}
	if err := s.kv.Set(ctx, projectKey(p.ID), p); err != nil {
		return seo.Project{}, fmt.Errorf("save project %s: %w", p.ID, err)
	}

	ids, err := s.listIDs(ctx)
	if err != nil {
		return seo.Project{}, err
	}
	for _, id := range ids {
		if id == p.ID {
			return p, nil
		}
	}
	if err := s.kv.Set(ctx, keyProjectList, append(ids, p.ID)); err != nil {
		return seo.Project{}, fmt.Errorf("update project list: %w", err)
	}
	return p, nil
}

// GetProject loads one project, returning seo.ErrNotFound when absent.
func (s *ProjectStore) GetProject(ctx context.Context, id string) (seo.Project, error) {
	var p seo.Project
	ok, err := s.kv.Get(ctx, projectKey(id), &p)
	if err != nil {
		return seo.Project{}, fmt.Errorf("load project %s: %w", id, err)
	}
	if !ok {
		return seo.Project{}, seo.ErrNotFound
	}
	return p, nil
}

// ListProjects loads every registered project, skipping stale ids whose
// record has disappeared.
func (s *ProjectStore) ListProjects(ctx context.Context) ([]seo.Project, error) {
	ids, err := s.listIDs(ctx)
	if err != nil {
		return nil, err
	}
	projects := make([]seo.Project, 0, len(ids))
	for _, id := range ids {
		var p seo.Project
		ok, err := s.kv.Get(ctx, projectKey(id), &p)
		if err != nil {
			return nil, fmt.Errorf("load project %s: %w", id, err)
		}
		if ok {
			projects = append(projects, p)
		}
	}
	return projects, nil
}

// DeleteProject removes the project record, its run history, and its entry
// in the id list. Deleting an unknown id is a no-op.
func (s *ProjectStore) DeleteProject(ctx context.Context, id string) error {
	if err := s.kv.Del(ctx, projectKey(id)); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if err := s.kv.Del(ctx, runsKey(id)); err != nil {
		return fmt.Errorf("delete runs %s: %w", id, err)
	}
	ids, err := s.listIDs(ctx)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if err := s.kv.Set(ctx, keyProjectList, kept); err != nil {
		return fmt.Errorf("update project list: %w", err)
	}
	return nil
}

// GetRuns returns the run history for a project, most recent first. A
// missing history is an empty list, not an error.
func (s *ProjectStore) GetRuns(ctx context.Context, id string) ([]seo.Run, error) {
	var runs []seo.Run
	ok, err := s.kv.Get(ctx, runsKey(id), &runs)
	if err != nil {
		return nil, fmt.Errorf("load runs %s: %w", id, err)
	}
	if !ok {
		return []seo.Run{}, nil
	}
	return runs, nil
}

// SaveRun prepends the run to the project's history and truncates to the
// most recent 50. Runs are never mutated after this point.
func (s *ProjectStore) SaveRun(ctx context.Context, id string, run seo.Run) error {
	runs, err := s.GetRuns(ctx, id)
	if err != nil {
		return err
	}
	runs = append([]seo.Run{run}, runs...)
	if len(runs) > maxRuns {
		runs = runs[:maxRuns]
	}
	if err := s.kv.Set(ctx, runsKey(id), runs); err != nil {
		return fmt.Errorf("save runs %s: %w", id, err)
	}
	return nil
}

func (s *ProjectStore) listIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := s.kv.Get(ctx, keyProjectList, &ids); err != nil {
		return nil, fmt.Errorf("load project list: %w", err)
	}
	return ids, nil
}
