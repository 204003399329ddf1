// Package main wires together the backlink intelligence service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/aggregate"
	"github.com/webleadsnow/linkboard/internal/api"
	"github.com/webleadsnow/linkboard/internal/clock/system"
	"github.com/webleadsnow/linkboard/internal/config"
	"github.com/webleadsnow/linkboard/internal/id/uuid"
	"github.com/webleadsnow/linkboard/internal/kv/memory"
	"github.com/webleadsnow/linkboard/internal/kv/redis"
	"github.com/webleadsnow/linkboard/internal/logging"
	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/report"
	"github.com/webleadsnow/linkboard/internal/scheduler"
	"github.com/webleadsnow/linkboard/internal/seo"
	"github.com/webleadsnow/linkboard/internal/serptask"
	"github.com/webleadsnow/linkboard/internal/store"
	"github.com/webleadsnow/linkboard/internal/token"
	"github.com/webleadsnow/linkboard/internal/upstream/dataforseo"
	"github.com/webleadsnow/linkboard/internal/upstream/email"
	"github.com/webleadsnow/linkboard/internal/upstream/pagerank"
	"github.com/webleadsnow/linkboard/internal/upstream/research"
	"github.com/webleadsnow/linkboard/internal/upstream/searchconsole"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var kv seo.KV
	if cfg.Redis.URL != "" {
		redisKV, err := redis.New(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("redis connect failed", zap.Error(err))
		}
		defer func() {
			if closeErr := redisKV.Close(); closeErr != nil {
				logger.Error("redis close failed", zap.Error(closeErr))
			}
		}()
		kv = redisKV
	} else {
		logger.Warn("no redis url configured, run history will not survive restarts")
		kv = memory.New()
	}

	clock := system.New()
	projectStore := store.New(kv, uuid.New())

	tokens := token.New(kv, clock, nil, token.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	})

	seoAPI := dataforseo.New(dataforseo.Config{
		Login:    cfg.DataForSEO.Login,
		Password: cfg.DataForSEO.Password,
	}, logger.Named("dataforseo"))
	ranks := pagerank.New(pagerank.Config{APIKey: cfg.PageRank.APIKey})
	search := searchconsole.New(searchconsole.Config{}, tokens, clock)
	evaluator := research.New(research.Config{
		APIKey:  cfg.Research.APIKey,
		Model:   cfg.Research.Model,
		Timeout: cfg.ResearchTimeout(),
	}, logger.Named("research"))
	emails := email.New(email.Config{
		APIKey: cfg.Email.APIKey,
		From:   cfg.Email.From,
	}, logger.Named("email"))

	orchestrator := aggregate.New(seoAPI, ranks, search, projectStore, clock, logger.Named("aggregate"))
	ranker := serptask.New(seoAPI, clock, serptask.Policy{
		MaxAttempts: cfg.Poller.MaxAttempts,
		Interval:    cfg.PollInterval(),
		Jitter:      cfg.PollJitter(),
	}, logger.Named("serptask"))
	reports := report.New(orchestrator, emails, clock, logger.Named("report"))

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(projectStore, orchestrator, cfg.Scheduler.IntervalHours, logger.Named("scheduler"))
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("scheduler start failed", zap.Error(err))
		}
		defer sched.Stop()
	}

	apiServer := api.NewServer(
		projectStore,
		orchestrator,
		ranker,
		evaluator,
		tokens,
		search,
		reports,
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
