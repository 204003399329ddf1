// Package scheduler wires up the cron job that periodically refreshes every
// stored project's run history.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/seo"
)

// Runner executes one project refresh and persists the result.
type Runner interface {
	RunStored(ctx context.Context, projectID string) (seo.Run, error)
}

// ProjectLister loads every stored project.
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]seo.Project, error)
}

// Scheduler wraps robfig/cron and manages the refresh loop.
type Scheduler struct {
	cron     *cron.Cron
	projects ProjectLister
	runner   Runner
	spec     string
	logger   *zap.Logger
}

// New creates a Scheduler firing every intervalHours hours.
func New(projects ProjectLister, runner Runner, intervalHours int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		projects: projects,
		runner:   runner,
		spec:     fmt.Sprintf("@every %dh", intervalHours),
		logger:   logger,
	}
}

// Start registers the job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RefreshAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// RefreshAll runs every stored project once. Projects without a domain are
// skipped; one project's failure does not stop the cycle.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		s.logger.Error("list projects", zap.Error(err))
		return
	}
	if len(projects) == 0 {
		s.logger.Info("no projects to refresh")
		return
	}

	for _, p := range projects {
		if p.Domain == "" {
			s.logger.Info("skipping project without domain", zap.String("project_id", p.ID))
			continue
		}
		if _, err := s.runner.RunStored(ctx, p.ID); err != nil {
			s.logger.Error("project refresh failed",
				zap.String("project_id", p.ID),
				zap.Error(err))
			continue
		}
		s.logger.Info("project refreshed", zap.String("project_id", p.ID))
	}
}
