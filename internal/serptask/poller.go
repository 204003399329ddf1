// Package serptask runs asynchronous keyword rank checks: submit a lookup,
// then poll the task until the result set is ready.
package serptask

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
	"github.com/webleadsnow/linkboard/internal/upstream/dataforseo"
)

// Tasker is the slice of the SERP client the poller needs.
type Tasker interface {
	SerpTaskPost(ctx context.Context, keyword string) (string, error)
	SerpTaskGet(ctx context.Context, taskID string) ([]dataforseo.SerpItem, int, error)
}

// Policy bounds a blocking Await. Jitter spreads poll intervals so bursts of
// concurrent checks do not hit the upstream in lockstep.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	Jitter      time.Duration
}

// DefaultPolicy allows about a minute of waiting per check.
var DefaultPolicy = Policy{
	MaxAttempts: 12,
	Interval:    5 * time.Second,
	Jitter:      time.Second,
}

// Service submits and resolves queued rank checks.
type Service struct {
	tasks   Tasker
	sleeper seo.Sleeper
	policy  Policy
	logger  *zap.Logger
}

// New constructs a Service. A zero policy falls back to DefaultPolicy.
func New(tasks Tasker, sleeper seo.Sleeper, policy Policy, logger *zap.Logger) *Service {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tasks: tasks, sleeper: sleeper, policy: policy, logger: logger}
}

// Submit queues a lookup and returns a pending check carrying the task id.
func (s *Service) Submit(ctx context.Context, keyword, domain string) (seo.RankCheck, error) {
	taskID, err := s.tasks.SerpTaskPost(ctx, keyword)
	if err != nil {
		return seo.RankCheck{}, fmt.Errorf("submit rank check: %w", err)
	}
	s.logger.Info("rank check queued",
		zap.String("keyword", keyword),
		zap.String("task_id", taskID))
	return seo.RankCheck{
		Keyword: keyword,
		Domain:  seo.StripWWW(seo.CleanDomain(domain)),
		TaskID:  taskID,
	}, nil
}

// Poll checks a queued lookup once. A task still in the upstream queue comes
// back with Done false and the upstream status code, not an error.
func (s *Service) Poll(ctx context.Context, keyword, domain, taskID string) (seo.RankCheck, error) {
	items, status, err := s.tasks.SerpTaskGet(ctx, taskID)
	if err != nil {
		if errors.Is(err, seo.ErrTaskPending) {
			metrics.ObserveSerpPoll("pending")
			return seo.RankCheck{
				Keyword:    keyword,
				Domain:     seo.StripWWW(seo.CleanDomain(domain)),
				TaskID:     taskID,
				StatusCode: status,
			}, nil
		}
		metrics.ObserveSerpPoll("error")
		return seo.RankCheck{}, fmt.Errorf("poll rank check: %w", err)
	}

	metrics.ObserveSerpPoll("done")
	check := dataforseo.NormalizeSERP(keyword, domain, items)
	check.TaskID = taskID
	check.StatusCode = status
	return check, nil
}

// Await submits a lookup and polls until it resolves or the policy's attempt
// budget runs out, in which case the error wraps seo.ErrPollTimeout.
func (s *Service) Await(ctx context.Context, keyword, domain string) (seo.RankCheck, error) {
	pending, err := s.Submit(ctx, keyword, domain)
	if err != nil {
		return seo.RankCheck{}, err
	}

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if err := s.sleeper.Sleep(ctx, s.interval()); err != nil {
			return seo.RankCheck{}, err
		}
		check, err := s.Poll(ctx, keyword, domain, pending.TaskID)
		if err != nil {
			return seo.RankCheck{}, err
		}
		if check.Done {
			s.logger.Info("rank check resolved",
				zap.String("keyword", keyword),
				zap.String("task_id", pending.TaskID),
				zap.Int("attempts", attempt))
			return check, nil
		}
	}

	metrics.ObserveSerpPoll("timeout")
	return seo.RankCheck{}, fmt.Errorf("task %s after %d attempts: %w",
		pending.TaskID, s.policy.MaxAttempts, seo.ErrPollTimeout)
}

func (s *Service) interval() time.Duration {
	d := s.policy.Interval
	if s.policy.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(s.policy.Jitter)))
	}
	return d
}
