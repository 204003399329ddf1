package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kvmemory "github.com/webleadsnow/linkboard/internal/kv/memory"
	"github.com/webleadsnow/linkboard/internal/seo"
)

type seqIDGen struct {
	n int
}

func (g *seqIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%04d", g.n), nil
}

func newTestStore() *ProjectStore {
	return New(kvmemory.New(), &seqIDGen{})
}

func TestSaveProject_AssignsIDAndRegisters(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	saved, err := s.SaveProject(ctx, seo.Project{Name: "Acme", Domain: "acme.com"})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := s.GetProject(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
}

func TestSaveProject_UpsertKeepsSingleListEntry(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	saved, err := s.SaveProject(ctx, seo.Project{Name: "Acme", Domain: "acme.com"})
	require.NoError(t, err)

	saved.Name = "Acme v2"
	_, err = s.SaveProject(ctx, saved)
	require.NoError(t, err)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, "Acme v2", projects[0].Name)
}

func TestDeleteProject_CascadesRunsAndList(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	saved, err := s.SaveProject(ctx, seo.Project{Name: "Acme", Domain: "acme.com"})
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, saved.ID, seo.Run{Date: time.Now().UTC()}))

	require.NoError(t, s.DeleteProject(ctx, saved.ID))

	_, err = s.GetProject(ctx, saved.ID)
	require.ErrorIs(t, err, seo.ErrNotFound)

	runs, err := s.GetRuns(ctx, saved.ID)
	require.NoError(t, err)
	require.Empty(t, runs)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Empty(t, projects)
}

func TestSaveRun_CapsAtFiftyNewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 51; i++ {
		run := seo.Run{Date: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.SaveRun(ctx, "p1", run))
	}

	runs, err := s.GetRuns(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, runs, 50)
	require.Equal(t, base.Add(50*time.Hour), runs[0].Date)
	require.Equal(t, base.Add(1*time.Hour), runs[49].Date)
}

func TestGetRuns_UnknownProjectIsEmptyList(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	runs, err := s.GetRuns(context.Background(), "nope")
	require.NoError(t, err)
	require.NotNil(t, runs)
	require.Empty(t, runs)
}
